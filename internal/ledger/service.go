package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scraplink/backend/internal/models"
)

// ErrInsufficientFunds is returned when a checked debit would take the
// balance below zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvalidEntry is returned for a non-positive amount or an unknown category.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// AccountRepo is the minimal wallet-account store the ledger needs.
type AccountRepo interface {
	GetAccount(ctx context.Context, ownerID uuid.UUID) (*models.WalletAccount, error)
	GetAccountForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*models.WalletAccount, error)
	SetBalanceTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, balance int64) error
}

// TransactionRepo is the minimal transaction store the ledger needs.
type TransactionRepo interface {
	GetByTrxID(ctx context.Context, tx pgx.Tx, trxID string) (*models.WalletTransaction, error)
	InsertTxnTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, error)
}

// TxBeginner abstracts pgxpool.Pool so tests can inject a no-op.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Entry describes one balance-changing operation. A non-empty TrxID makes the
// operation idempotent: a retry carrying the same TrxID is a no-op returning
// the already-recorded transaction.
type Entry struct {
	TrxID       string
	OwnerID     uuid.UUID
	OwnerKind   string
	Amount      int64
	Category    string
	OrderID     *uuid.UUID
	Description string
	Gateway     string
}

// OrderTrxID derives the stable transaction id for an order-scoped operation,
// unique per order+category+owner.
func OrderTrxID(category string, orderID, ownerID uuid.UUID) string {
	return fmt.Sprintf("TRX-%s-%s-%s", category, orderID, ownerID)
}

// Service applies wallet operations as all-or-nothing units: lock account row,
// check, write new balance, append the transaction record. Nothing else in the
// codebase writes balances.
type Service struct {
	pool     TxBeginner
	accounts AccountRepo
	txns     TransactionRepo
}

func NewService(pool TxBeginner, accounts AccountRepo, txns TransactionRepo) *Service {
	return &Service{pool: pool, accounts: accounts, txns: txns}
}

// Debit removes funds from the owner's wallet, failing with
// ErrInsufficientFunds if the balance would go negative.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, e Entry) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, e, models.TxnDebit, true)
}

// DebitOverdraft removes funds without the balance floor check. Used only by
// order-completion settlement: completion debits always go through, and a
// negative balance is recovered on the scrapper's next recharge.
func (s *Service) DebitOverdraft(ctx context.Context, tx pgx.Tx, e Entry) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, e, models.TxnDebit, false)
}

// Credit adds funds to the owner's wallet. No upper bound.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, e Entry) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, e, models.TxnCredit, false)
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, e Entry, direction string, checked bool) (*models.WalletTransaction, error) {
	if e.Amount <= 0 || !models.ValidTxnCategory(e.Category) {
		return nil, ErrInvalidEntry
	}

	acc, err := s.accounts.GetAccountForUpdate(ctx, tx, e.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet account: %w", err)
	}

	// The duplicate check runs under the account row lock, so a racing retry
	// either sees the committed record or blocks until it can.
	if e.TrxID != "" {
		existing, err := s.txns.GetByTrxID(ctx, tx, e.TrxID)
		if err != nil {
			return nil, fmt.Errorf("lookup trx id: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		e.TrxID = fmt.Sprintf("TRX-%s-%s", e.Category, uuid.New())
	}

	delta := e.Amount
	if direction == models.TxnDebit {
		delta = -e.Amount
	}
	if checked && acc.Balance+delta < 0 {
		return nil, ErrInsufficientFunds
	}

	newBalance := acc.Balance + delta
	if err := s.accounts.SetBalanceTx(ctx, tx, e.OwnerID, newBalance); err != nil {
		return nil, fmt.Errorf("write balance: %w", err)
	}

	txn := &models.WalletTransaction{
		ID:            uuid.New(),
		TrxID:         e.TrxID,
		OwnerID:       e.OwnerID,
		OwnerKind:     e.OwnerKind,
		Direction:     direction,
		Amount:        e.Amount,
		BalanceBefore: acc.Balance,
		BalanceAfter:  newBalance,
		Category:      e.Category,
		Status:        models.TxnStatusSuccess,
		OrderID:       e.OrderID,
		Description:   e.Description,
		Gateway:       e.Gateway,
	}
	if err := s.txns.InsertTxnTx(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return txn, nil
}

// GetBalance reflects the latest committed transaction for the owner.
func (s *Service) GetBalance(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	acc, err := s.accounts.GetAccount(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// ListTransactions returns the owner's ledger trail, newest first.
func (s *Service) ListTransactions(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, error) {
	return s.txns.ListByOwner(ctx, ownerID, limit, offset)
}

// InTx runs fn inside a fresh transaction, committing on success.
func (s *Service) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
