package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scraplink/backend/internal/ledger"
	"github.com/scraplink/backend/internal/models"
)

var (
	ErrNotFound            = errors.New("order not found")
	ErrScrapperNotFound    = errors.New("scrapper profile not found")
	ErrUnauthorized        = errors.New("not authorized for this order")
	ErrOrderNotAvailable   = errors.New("order is not available for acceptance")
	ErrAlreadyAssigned     = errors.New("order is already accepted by another scrapper")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidStatus       = errors.New("invalid status value")
	ErrAlreadyCompleted    = errors.New("order is already completed")
	ErrAlreadyCancelled    = errors.New("order is already cancelled")
	ErrNotPending          = errors.New("only pending orders can be updated")
)

// MinBalance is the default wallet floor for booking a service order and for
// accepting any order.
const MinBalance int64 = 100

// Commission is the platform fee: 1% of the amount, floored at 1 unit.
func Commission(amount int64) int64 {
	c := int64(math.Round(float64(amount) * 0.01))
	if c < 1 {
		c = 1
	}
	return c
}

// OrderRepo is the order store interface the state machine mutates through.
type OrderRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	UpdateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error
	AcceptCASTx(ctx context.Context, tx pgx.Tx, orderID, scrapperID uuid.UUID, at time.Time) (bool, error)
	CancelCAS(ctx context.Context, orderID uuid.UUID, notes string) (bool, error)
	AppendAssignmentTx(ctx context.Context, tx pgx.Tx, rec *models.AssignmentRecord) error
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Order, int, error)
	ListAvailable(ctx context.Context, scrapperID uuid.UUID, kinds []string, limit int) ([]*models.Order, error)
	ListByScrapper(ctx context.Context, scrapperID uuid.UUID, status string) ([]*models.Order, error)
}

// ScrapperRepo resolves worker profiles.
type ScrapperRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Scrapper, error)
}

// Ledger is the subset of wallet-ledger operations the state machine invokes.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error)
	DebitOverdraft(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error)
	GetBalance(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// TxBeginner abstracts pgxpool.Pool for tests.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EnqueueBroadcastFunc inserts the availability-broadcast job in the order
// creation transaction. Typically a closure over river.Client.InsertTx.
type EnqueueBroadcastFunc func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error

// Actor identifies the caller of a state-machine operation.
type Actor struct {
	ID   uuid.UUID
	Role string // user | scrapper
}

// Service validates and executes order transitions, invoking the wallet
// ledger for money-moving ones. It is the only component that mutates orders.
type Service struct {
	pool             TxBeginner
	orders           OrderRepo
	scrappers        ScrapperRepo
	ledger           Ledger
	enqueueBroadcast EnqueueBroadcastFunc
	minBalance       int64
	logger           *slog.Logger
}

func NewService(pool TxBeginner, orders OrderRepo, scrappers ScrapperRepo, wallet Ledger,
	enqueueBroadcast EnqueueBroadcastFunc, minBalance int64, logger *slog.Logger) *Service {
	if minBalance <= 0 {
		minBalance = MinBalance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:             pool,
		orders:           orders,
		scrappers:        scrappers,
		ledger:           wallet,
		enqueueBroadcast: enqueueBroadcast,
		minBalance:       minBalance,
		logger:           logger,
	}
}

// CreateInput carries the fields of a new order.
type CreateInput struct {
	Kind           string
	ScrapItems     []models.ScrapItem
	ServiceDetails []byte
	ServiceFee     int64
	PickupAddress  string
	PreferredTime  string
	PickupSlot     string
	Notes          string
}

// Create persists a new pending order. Service orders require the requester's
// wallet to hold the minimum balance. The availability broadcast is enqueued
// in the same transaction but can never fail the request.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Order, error) {
	kind := in.Kind
	if kind == "" {
		kind = models.OrderKindScrap
	}
	if !models.ValidOrderKind(kind) {
		return nil, ErrInvalidStatus
	}

	if kind == models.OrderKindService {
		bal, err := s.ledger.GetBalance(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get requester balance: %w", err)
		}
		if bal < s.minBalance {
			return nil, ErrInsufficientBalance
		}
	}

	order := &models.Order{
		ID:               uuid.New(),
		UserID:           userID,
		Kind:             kind,
		ScrapItems:       in.ScrapItems,
		ServiceDetails:   in.ServiceDetails,
		ServiceFee:       in.ServiceFee,
		Status:           models.OrderStatusPending,
		AssignmentStatus: models.AssignmentUnassigned,
		PaymentStatus:    models.PaymentStatusPending,
		PickupAddress:    in.PickupAddress,
		PreferredTime:    in.PreferredTime,
		PickupSlot:       in.PickupSlot,
		Notes:            in.Notes,
	}
	if kind == models.OrderKindService {
		order.TotalAmount = in.ServiceFee
	} else {
		order.TotalAmount, order.TotalWeight = sumItems(in.ScrapItems)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.orders.CreateTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if s.enqueueBroadcast != nil {
		if err := s.enqueueBroadcast(ctx, tx, order.ID); err != nil {
			// Best-effort fan-out: never fail order creation over it.
			s.logger.Error("enqueue broadcast failed", "order_id", order.ID, "error", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("order created", "order_id", order.ID, "user_id", userID, "kind", kind)
	return order, nil
}

func sumItems(items []models.ScrapItem) (amount int64, weight float64) {
	for _, it := range items {
		amount += it.Total
		weight += it.Weight
	}
	return amount, weight
}

// Accept assigns the order to the scrapper. Safe to retry: a repeat call by
// the already-assigned scrapper succeeds without re-mutating. Two concurrent
// accepts resolve to one winner via the store's conditional write.
func (s *Service) Accept(ctx context.Context, orderID, scrapperID uuid.UUID) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusConfirmed && order.ScrapperID != nil && *order.ScrapperID == scrapperID {
		s.logger.Info("order already accepted by this scrapper", "order_id", orderID, "scrapper_id", scrapperID)
		return order, nil
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrOrderNotAvailable
	}
	if order.AssignmentStatus == models.AssignmentAccepted ||
		(order.ScrapperID != nil && *order.ScrapperID != scrapperID) {
		return nil, ErrAlreadyAssigned
	}

	if _, err := s.scrappers.GetByID(ctx, scrapperID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScrapperNotFound
		}
		return nil, err
	}

	// Scrappers self-fund: minimum balance required to take work.
	bal, err := s.ledger.GetBalance(ctx, scrapperID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScrapperNotFound
		}
		return nil, fmt.Errorf("get scrapper balance: %w", err)
	}
	if bal < s.minBalance {
		return nil, ErrInsufficientBalance
	}

	// The conditional write and the history insert commit together: a failed
	// history insert rolls the assignment back rather than leaving an
	// accepted order with no trail.
	now := time.Now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	won, err := s.orders.AcceptCASTx(ctx, tx, orderID, scrapperID, now)
	if err != nil {
		return nil, fmt.Errorf("accept order: %w", err)
	}
	if !won {
		// Lost the race between our status check and the write.
		return nil, ErrAlreadyAssigned
	}

	if err := s.orders.AppendAssignmentTx(ctx, tx, &models.AssignmentRecord{
		ID:         uuid.New(),
		OrderID:    orderID,
		ScrapperID: scrapperID,
		Outcome:    models.AssignmentAccepted,
		AssignedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("append assignment history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("order accepted", "order_id", orderID, "scrapper_id", scrapperID)
	return s.getOrder(ctx, orderID)
}

// StatusUpdate carries a requested transition.
type StatusUpdate struct {
	Status        string
	PaymentStatus *string
	TotalAmount   *int64 // final negotiated price override
}

// UpdateStatus executes a status transition. On completion the commission and
// payment legs run in the same transaction as the order update: if any ledger
// write fails, the order stays in its pre-transition state.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, actor Actor, upd StatusUpdate) (*models.Order, error) {
	if !models.ValidOrderStatus(upd.Status) {
		return nil, ErrInvalidStatus
	}
	if upd.PaymentStatus != nil && !models.ValidPaymentStatus(*upd.PaymentStatus) {
		return nil, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := s.orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := authorize(order, actor); err != nil {
		return nil, err
	}

	if upd.PaymentStatus != nil {
		order.PaymentStatus = *upd.PaymentStatus
	}
	// Amount override applies before the completion legs, so commission is
	// computed on the final negotiated price.
	if upd.TotalAmount != nil {
		order.TotalAmount = *upd.TotalAmount
	}
	order.Status = upd.Status

	if upd.Status == models.OrderStatusCompleted && order.CompletedAt == nil {
		now := time.Now().UTC()
		order.CompletedAt = &now
		if err := s.settleCompletion(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	if err := s.orders.UpdateTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("order status updated", "order_id", orderID, "status", order.Status,
		"payment_status", order.PaymentStatus, "actor_role", actor.Role, "actor_id", actor.ID)
	return order, nil
}

// settleCompletion applies the wallet legs for a completing order. Each leg
// carries a deterministic trx id, so a retried completion never double-charges.
func (s *Service) settleCompletion(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	switch {
	case order.Kind == models.OrderKindService:
		// Requester pays the 1% platform fee; the service fee itself settles
		// outside the ledger.
		commission := Commission(order.TotalAmount)
		if _, err := s.ledger.DebitOverdraft(ctx, tx, ledger.Entry{
			TrxID:       ledger.OrderTrxID(models.CategoryCommission, order.ID, order.UserID),
			OwnerID:     order.UserID,
			OwnerKind:   models.OwnerKindUser,
			Amount:      commission,
			Category:    models.CategoryCommission,
			OrderID:     &order.ID,
			Description: fmt.Sprintf("Platform fee (1%%) for service order #%s", order.ID),
			Gateway:     "SYSTEM",
		}); err != nil {
			return fmt.Errorf("commission debit: %w", err)
		}
		s.logger.Info("commission deducted", "order_id", order.ID, "user_id", order.UserID, "amount", commission)

	case order.ScrapperID != nil:
		scrapperID := *order.ScrapperID
		amount := order.TotalAmount

		// Leg 1: pay the requester out of the scrapper's wallet, unless the
		// order was already settled online or by wallet.
		if amount > 0 && order.PaymentStatus != models.PaymentStatusCompleted {
			if _, err := s.ledger.DebitOverdraft(ctx, tx, ledger.Entry{
				TrxID:       ledger.OrderTrxID(models.CategoryPaymentSent, order.ID, scrapperID),
				OwnerID:     scrapperID,
				OwnerKind:   models.OwnerKindScrapper,
				Amount:      amount,
				Category:    models.CategoryPaymentSent,
				OrderID:     &order.ID,
				Description: fmt.Sprintf("Payment to user for order #%s", order.ID),
				Gateway:     "WALLET",
			}); err != nil {
				return fmt.Errorf("payment debit: %w", err)
			}
			s.logger.Info("payment deducted", "order_id", order.ID, "scrapper_id", scrapperID, "amount", amount)
		}

		// Leg 2: 1% commission on the original order amount, regardless of
		// how the payment leg went.
		commission := Commission(amount)
		if _, err := s.ledger.DebitOverdraft(ctx, tx, ledger.Entry{
			TrxID:       ledger.OrderTrxID(models.CategoryCommission, order.ID, scrapperID),
			OwnerID:     scrapperID,
			OwnerKind:   models.OwnerKindScrapper,
			Amount:      commission,
			Category:    models.CategoryCommission,
			OrderID:     &order.ID,
			Description: fmt.Sprintf("Platform fee (1%%) for order #%s", order.ID),
			Gateway:     "SYSTEM",
		}); err != nil {
			return fmt.Errorf("commission debit: %w", err)
		}
		s.logger.Info("commission deducted", "order_id", order.ID, "scrapper_id", scrapperID, "amount", commission)
	}
	return nil
}

// Cancel moves the order to its terminal cancelled state and clears the
// assignment. No wallet effect.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(order, actor); err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	notes := order.Notes
	if reason != "" {
		notes = strings.TrimSpace(notes + "\nCancellation reason: " + reason)
	}
	done, err := s.orders.CancelCAS(ctx, orderID, notes)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if !done {
		// Reached a terminal state between our read and the write.
		fresh, ferr := s.getOrder(ctx, orderID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh.Status == models.OrderStatusCompleted {
			return nil, ErrAlreadyCompleted
		}
		return nil, ErrAlreadyCancelled
	}

	s.logger.Info("order cancelled", "order_id", orderID, "actor_role", actor.Role, "actor_id", actor.ID)
	return s.getOrder(ctx, orderID)
}

// UpdateInput carries the editable fields of a still-pending order.
type UpdateInput struct {
	ScrapItems    []models.ScrapItem
	PickupAddress string
	PreferredTime string
	PickupSlot    string
	Notes         *string
}

// Update edits a pending order's fields (requester only). Item changes
// recompute the totals.
func (s *Service) Update(ctx context.Context, orderID, userID uuid.UUID, in UpdateInput) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrUnauthorized
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrNotPending
	}

	if in.ScrapItems != nil {
		order.ScrapItems = in.ScrapItems
		order.TotalAmount, order.TotalWeight = sumItems(in.ScrapItems)
	}
	if in.PickupAddress != "" {
		order.PickupAddress = in.PickupAddress
	}
	if in.PreferredTime != "" {
		order.PreferredTime = in.PreferredTime
	}
	if in.PickupSlot != "" {
		order.PickupSlot = in.PickupSlot
	}
	if in.Notes != nil {
		order.Notes = *in.Notes
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

// GetForActor fetches an order, enforcing ownership.
func (s *Service) GetForActor(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByUser returns the requester's orders with pagination.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]*models.Order, int, error) {
	if status != "" && !models.ValidOrderStatus(status) {
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.orders.ListByUser(ctx, userID, status, limit, (page-1)*limit)
}

// ListAvailable returns the scrapper's open-order feed, filtered by the
// services they declare.
func (s *Service) ListAvailable(ctx context.Context, scrapperID uuid.UUID) ([]*models.Order, error) {
	scr, err := s.scrappers.GetByID(ctx, scrapperID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScrapperNotFound
		}
		return nil, err
	}
	services := scr.Services
	if len(services) == 0 {
		services = []string{models.ServiceScrapPickup}
	}
	kinds := make([]string, 0, len(services))
	for _, svc := range services {
		kinds = append(kinds, models.KindForService(svc))
	}
	return s.orders.ListAvailable(ctx, scrapperID, kinds, 20)
}

// ListByScrapper returns the scrapper's assigned orders.
func (s *Service) ListByScrapper(ctx context.Context, scrapperID uuid.UUID, status string) ([]*models.Order, error) {
	if status != "" && !models.ValidOrderStatus(status) {
		return nil, ErrInvalidStatus
	}
	return s.orders.ListByScrapper(ctx, scrapperID, status)
}

func (s *Service) getOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// authorize enforces the ownership matrix: requesters touch their own orders,
// scrappers only orders assigned to them.
func authorize(order *models.Order, actor Actor) error {
	switch actor.Role {
	case models.RoleUser:
		if order.UserID != actor.ID {
			return ErrUnauthorized
		}
	case models.RoleScrapper:
		if order.ScrapperID == nil || *order.ScrapperID != actor.ID {
			return ErrUnauthorized
		}
	default:
		return ErrUnauthorized
	}
	return nil
}
