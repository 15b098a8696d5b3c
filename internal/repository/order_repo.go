package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scraplink/backend/internal/models"
)

const orderColumns = `id, user_id, scrapper_id, kind, scrap_items, service_details, service_fee,
	total_amount, total_weight, status, assignment_status, payment_status,
	pickup_address, preferred_time, pickup_slot, notes,
	assigned_at, accepted_at, completed_at, created_at, updated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.ScrapperID, &o.Kind, &o.ScrapItems, &o.ServiceDetails, &o.ServiceFee,
		&o.TotalAmount, &o.TotalWeight, &o.Status, &o.AssignmentStatus, &o.PaymentStatus,
		&o.PickupAddress, &o.PreferredTime, &o.PickupSlot, &o.Notes,
		&o.AssignedAt, &o.AcceptedAt, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var list []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func (r *OrderRepo) CreateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	return tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, scrapper_id, kind, scrap_items, service_details, service_fee,
			total_amount, total_weight, status, assignment_status, payment_status,
			pickup_address, preferred_time, pickup_slot, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`, o.ID, o.UserID, o.ScrapperID, o.Kind, o.ScrapItems, o.ServiceDetails, o.ServiceFee,
		o.TotalAmount, o.TotalWeight, o.Status, o.AssignmentStatus, o.PaymentStatus,
		o.PickupAddress, o.PreferredTime, o.PickupSlot, o.Notes).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetByIDForUpdate locks the order row for the duration of the transaction.
// The completion sequence runs entirely under this lock.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *OrderRepo) Update(ctx context.Context, o *models.Order) error {
	_, err := r.pool.Exec(ctx, updateOrderSQL, updateOrderArgs(o)...)
	return err
}

func (r *OrderRepo) UpdateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	_, err := tx.Exec(ctx, updateOrderSQL, updateOrderArgs(o)...)
	return err
}

const updateOrderSQL = `
	UPDATE orders SET scrapper_id = $2, scrap_items = $3, service_details = $4, service_fee = $5,
		total_amount = $6, total_weight = $7, status = $8, assignment_status = $9, payment_status = $10,
		pickup_address = $11, preferred_time = $12, pickup_slot = $13, notes = $14,
		assigned_at = $15, accepted_at = $16, completed_at = $17, updated_at = now()
	WHERE id = $1
`

func updateOrderArgs(o *models.Order) []any {
	return []any{o.ID, o.ScrapperID, o.ScrapItems, o.ServiceDetails, o.ServiceFee,
		o.TotalAmount, o.TotalWeight, o.Status, o.AssignmentStatus, o.PaymentStatus,
		o.PickupAddress, o.PreferredTime, o.PickupSlot, o.Notes,
		o.AssignedAt, o.AcceptedAt, o.CompletedAt}
}

// AcceptCASTx assigns the scrapper with a single conditional write. It
// succeeds only if the order is still pending and unassigned, so two racing
// accepts resolve to exactly one winner. Runs in the caller's transaction so
// the assignment-history insert commits with it or not at all.
func (r *OrderRepo) AcceptCASTx(ctx context.Context, tx pgx.Tx, orderID, scrapperID uuid.UUID, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET scrapper_id = $2, assignment_status = $3, status = $4,
			assigned_at = $5, accepted_at = $5, updated_at = now()
		WHERE id = $1 AND status = $6 AND assignment_status = $7
			AND (scrapper_id IS NULL OR scrapper_id = $2)
	`, orderID, scrapperID, models.AssignmentAccepted, models.OrderStatusConfirmed, at,
		models.OrderStatusPending, models.AssignmentUnassigned)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelCAS cancels the order unless it is already in a terminal state.
func (r *OrderRepo) CancelCAS(ctx context.Context, orderID uuid.UUID, notes string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, assignment_status = $3, scrapper_id = NULL, notes = $4, updated_at = now()
		WHERE id = $1 AND status NOT IN ($5, $6)
	`, orderID, models.OrderStatusCancelled, models.AssignmentUnassigned, notes,
		models.OrderStatusCompleted, models.OrderStatusCancelled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepo) AppendAssignmentTx(ctx context.Context, tx pgx.Tx, rec *models.AssignmentRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_assignments (id, order_id, scrapper_id, outcome, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.OrderID, rec.ScrapperID, rec.Outcome, rec.AssignedAt)
	return err
}

func (r *OrderRepo) ListAssignments(ctx context.Context, orderID uuid.UUID) ([]*models.AssignmentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, scrapper_id, outcome, assigned_at
		FROM order_assignments WHERE order_id = $1 ORDER BY assigned_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.AssignmentRecord
	for rows.Next() {
		var a models.AssignmentRecord
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ScrapperID, &a.Outcome, &a.AssignedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// ListByUser returns the requester's orders, newest first, with an optional
// status filter. Also returns the total count for pagination.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM orders WHERE user_id = $1 AND ($2 = '' OR status = $2)
	`, userID, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectOrders(rows)
	return list, total, err
}

// ListAvailable returns open orders a scrapper may accept: pending, unassigned,
// of a kind the scrapper serves, and not previously tied to this scrapper.
func (r *OrderRepo) ListAvailable(ctx context.Context, scrapperID uuid.UUID, kinds []string, limit int) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $2 AND assignment_status = $3 AND kind = ANY($4)
			AND (scrapper_id IS NULL OR scrapper_id <> $1)
			AND NOT EXISTS (
				SELECT 1 FROM order_assignments a WHERE a.order_id = orders.id AND a.scrapper_id = $1
			)
		ORDER BY created_at DESC LIMIT $5
	`, scrapperID, models.OrderStatusPending, models.AssignmentUnassigned, kinds, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *OrderRepo) ListByScrapper(ctx context.Context, scrapperID uuid.UUID, status string) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE scrapper_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, scrapperID, status)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
