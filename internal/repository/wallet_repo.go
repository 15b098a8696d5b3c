package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scraplink/backend/internal/models"
)

// WalletRepo stores wallet accounts and their append-only transaction trail.
// Balance mutation goes through the ledger service only; this layer just
// executes the SQL it is told to inside the ledger's transaction.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) CreateAccountTx(ctx context.Context, tx pgx.Tx, a *models.WalletAccount) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_accounts (owner_id, owner_kind, balance)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, a.OwnerID, a.OwnerKind, a.Balance).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *WalletRepo) GetAccount(ctx context.Context, ownerID uuid.UUID) (*models.WalletAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT owner_id, owner_kind, balance, created_at, updated_at
		FROM wallet_accounts WHERE owner_id = $1
	`, ownerID))
}

// GetAccountForUpdate locks the account row. Every balance change holds this
// lock until its transaction commits, which serializes writes per account.
func (r *WalletRepo) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*models.WalletAccount, error) {
	return scanAccount(tx.QueryRow(ctx, `
		SELECT owner_id, owner_kind, balance, created_at, updated_at
		FROM wallet_accounts WHERE owner_id = $1 FOR UPDATE
	`, ownerID))
}

func (r *WalletRepo) SetBalanceTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, balance int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallet_accounts SET balance = $2, updated_at = now() WHERE owner_id = $1
	`, ownerID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanAccount(row pgx.Row) (*models.WalletAccount, error) {
	var a models.WalletAccount
	err := row.Scan(&a.OwnerID, &a.OwnerKind, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const txnColumns = `id, trx_id, owner_id, owner_kind, direction, amount, balance_before, balance_after,
	category, status, order_id, description, gateway, created_at`

// GetByTrxID returns the transaction with the given deterministic id, or nil
// when none is recorded yet.
func (r *WalletRepo) GetByTrxID(ctx context.Context, tx pgx.Tx, trxID string) (*models.WalletTransaction, error) {
	t, err := scanTxn(tx.QueryRow(ctx, `
		SELECT `+txnColumns+` FROM wallet_transactions WHERE trx_id = $1
	`, trxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *WalletRepo) InsertTxnTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, trx_id, owner_id, owner_kind, direction, amount,
			balance_before, balance_after, category, status, order_id, description, gateway)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`, t.ID, t.TrxID, t.OwnerID, t.OwnerKind, t.Direction, t.Amount,
		t.BalanceBefore, t.BalanceAfter, t.Category, t.Status, t.OrderID, t.Description, t.Gateway).
		Scan(&t.CreatedAt)
}

func (r *WalletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txnColumns+` FROM wallet_transactions
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *WalletRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txnColumns+` FROM wallet_transactions
		WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTxn(row pgx.Row) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := row.Scan(&t.ID, &t.TrxID, &t.OwnerID, &t.OwnerKind, &t.Direction, &t.Amount,
		&t.BalanceBefore, &t.BalanceAfter, &t.Category, &t.Status, &t.OrderID,
		&t.Description, &t.Gateway, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
