package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scraplink/backend/internal/ledger"
	"github.com/scraplink/backend/internal/models"
)

var (
	ErrAccountNotFound = errors.New("wallet account not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNotYourOrder    = errors.New("order does not belong to the caller")
	ErrAlreadyPaid     = errors.New("order is already paid")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrNothingToPay    = errors.New("order has no payable amount")
)

// Ledger is the subset of ledger operations the wallet surface invokes.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error)
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error)
	GetBalance(ctx context.Context, ownerID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, error)
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// AccountGetter resolves wallet accounts for the profile endpoint.
type AccountGetter interface {
	GetAccount(ctx context.Context, ownerID uuid.UUID) (*models.WalletAccount, error)
}

// OrderRepo is the order store access PayOrder needs.
type OrderRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Order, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error
}

// Service is the wallet-facing surface: recharges, withdrawals, order
// payment, and balance/statement reads. All money movement goes through the
// ledger; the service never touches balances directly.
type Service struct {
	ledger   Ledger
	accounts AccountGetter
	orders   OrderRepo
	gateway  PaymentGateway
	logger   *slog.Logger
}

func NewService(led Ledger, accounts AccountGetter, orders OrderRepo, gateway PaymentGateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: led, accounts: accounts, orders: orders, gateway: gateway, logger: logger}
}

// Profile returns the caller's wallet account.
func (s *Service) Profile(ctx context.Context, ownerID uuid.UUID) (*models.WalletAccount, error) {
	acc, err := s.accounts.GetAccount(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// Transactions returns the caller's ledger trail.
func (s *Service) Transactions(ctx context.Context, ownerID uuid.UUID, page, limit int) ([]*models.WalletTransaction, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.ledger.ListTransactions(ctx, ownerID, limit, (page-1)*limit)
}

// CreateRecharge opens a payment-provider order for the given amount. No
// wallet movement happens until the payment is verified.
func (s *Service) CreateRecharge(ctx context.Context, ownerID uuid.UUID, amount int64) (*GatewayOrder, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.accounts.GetAccount(ctx, ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return s.gateway.CreateOrder(ctx, ownerID, amount)
}

// VerifyRecharge checks the provider signature and credits the wallet with
// the amount the provider recorded for the order, never a client-supplied one.
// The transaction id is derived from the gateway order, so a replayed
// callback credits at most once.
func (s *Service) VerifyRecharge(ctx context.Context, ownerID uuid.UUID, ownerKind, gatewayOrderID, paymentID, signature string) (*models.WalletTransaction, error) {
	amount, err := s.gateway.VerifyPayment(gatewayOrderID, paymentID, signature)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var txn *models.WalletTransaction
	err = s.ledger.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		txn, err = s.ledger.Credit(ctx, tx, ledger.Entry{
			TrxID:       "TRX-RECHARGE-" + gatewayOrderID,
			OwnerID:     ownerID,
			OwnerKind:   ownerKind,
			Amount:      amount,
			Category:    models.CategoryRecharge,
			Description: fmt.Sprintf("Wallet recharge via payment %s", paymentID),
			Gateway:     "RAZORPAY",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet recharged", "owner_id", ownerID, "amount", amount, "gateway_order", gatewayOrderID)
	return txn, nil
}

// PayOrder settles an order from the requester's wallet before completion:
// a checked debit from the requester and, when a scrapper already holds the
// order, the matching credit. Marks the order's payment as completed so the
// completion-time payment leg is skipped.
func (s *Service) PayOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.ledger.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.orders.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.UserID != userID {
			return ErrNotYourOrder
		}
		if order.PaymentStatus == models.PaymentStatusCompleted {
			return ErrAlreadyPaid
		}
		if order.TotalAmount <= 0 {
			return ErrNothingToPay
		}

		if _, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			TrxID:       ledger.OrderTrxID(models.CategoryPaymentSent, order.ID, userID),
			OwnerID:     userID,
			OwnerKind:   models.OwnerKindUser,
			Amount:      order.TotalAmount,
			Category:    models.CategoryPaymentSent,
			OrderID:     &order.ID,
			Description: fmt.Sprintf("Wallet payment for order #%s", order.ID),
			Gateway:     "WALLET",
		}); err != nil {
			return err
		}

		if order.ScrapperID != nil {
			if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
				TrxID:       ledger.OrderTrxID(models.CategoryPaymentReceived, order.ID, *order.ScrapperID),
				OwnerID:     *order.ScrapperID,
				OwnerKind:   models.OwnerKindScrapper,
				Amount:      order.TotalAmount,
				Category:    models.CategoryPaymentReceived,
				OrderID:     &order.ID,
				Description: fmt.Sprintf("Wallet payment received for order #%s", order.ID),
				Gateway:     "WALLET",
			}); err != nil {
				return err
			}
		}

		order.PaymentStatus = models.PaymentStatusCompleted
		return s.orders.UpdateTx(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order paid from wallet", "order_id", orderID, "user_id", userID, "amount", order.TotalAmount)
	return order, nil
}

// Withdraw debits the caller's wallet. Withdrawals are always checked: no
// overdraft, whatever the caller's role.
func (s *Service) Withdraw(ctx context.Context, ownerID uuid.UUID, ownerKind string, amount int64) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var txn *models.WalletTransaction
	err := s.ledger.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		txn, err = s.ledger.Debit(ctx, tx, ledger.Entry{
			OwnerID:     ownerID,
			OwnerKind:   ownerKind,
			Amount:      amount,
			Category:    models.CategoryWithdrawal,
			Description: "Wallet withdrawal",
			Gateway:     "BANK",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal recorded", "owner_id", ownerID, "amount", amount)
	return txn, nil
}
