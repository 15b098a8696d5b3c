package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scraplink/backend/internal/ledger"
	"github.com/scraplink/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// mockLedger keeps real balances with trx-id idempotency so the recharge and
// payment tests exercise the same accounting the production ledger does.
type mockLedger struct {
	balances map[uuid.UUID]int64
	entries  []*models.WalletTransaction
	byTrxID  map[string]*models.WalletTransaction
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		balances: make(map[uuid.UUID]int64),
		byTrxID:  make(map[string]*models.WalletTransaction),
	}
}

func (m *mockLedger) apply(e ledger.Entry, direction string, checked bool) (*models.WalletTransaction, error) {
	if e.TrxID != "" {
		if existing, ok := m.byTrxID[e.TrxID]; ok {
			return existing, nil
		}
	}
	before, ok := m.balances[e.OwnerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	delta := e.Amount
	if direction == models.TxnDebit {
		delta = -e.Amount
	}
	if checked && before+delta < 0 {
		return nil, ledger.ErrInsufficientFunds
	}
	after := before + delta
	m.balances[e.OwnerID] = after
	txn := &models.WalletTransaction{
		ID: uuid.New(), TrxID: e.TrxID, OwnerID: e.OwnerID, OwnerKind: e.OwnerKind,
		Direction: direction, Amount: e.Amount, BalanceBefore: before, BalanceAfter: after,
		Category: e.Category, Status: models.TxnStatusSuccess, OrderID: e.OrderID,
	}
	m.entries = append(m.entries, txn)
	if e.TrxID != "" {
		m.byTrxID[e.TrxID] = txn
	}
	return txn, nil
}

func (m *mockLedger) Debit(_ context.Context, _ pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error) {
	return m.apply(e, models.TxnDebit, true)
}

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error) {
	return m.apply(e, models.TxnCredit, false)
}

func (m *mockLedger) GetBalance(_ context.Context, ownerID uuid.UUID) (int64, error) {
	bal, ok := m.balances[ownerID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return bal, nil
}

func (m *mockLedger) ListTransactions(_ context.Context, ownerID uuid.UUID, _, _ int) ([]*models.WalletTransaction, error) {
	var out []*models.WalletTransaction
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockLedger) InTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(noopTx{})
}

type mockAccounts struct {
	accounts map[uuid.UUID]*models.WalletAccount
}

func (m *mockAccounts) GetAccount(_ context.Context, ownerID uuid.UUID) (*models.WalletAccount, error) {
	acc, ok := m.accounts[ownerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *acc
	return &cp, nil
}

type mockOrders struct {
	orders map[uuid.UUID]*models.Order
}

func (m *mockOrders) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrders) UpdateTx(_ context.Context, _ pgx.Tx, o *models.Order) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func newTestService() (*Service, *mockLedger, *mockAccounts, *mockOrders, *SandboxGateway) {
	led := newMockLedger()
	accounts := &mockAccounts{accounts: make(map[uuid.UUID]*models.WalletAccount)}
	orders := &mockOrders{orders: make(map[uuid.UUID]*models.Order)}
	gw := NewSandboxGateway("test-secret")
	return NewService(led, accounts, orders, gw, nil), led, accounts, orders, gw
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestProfile(t *testing.T) {
	svc, _, accounts, _, _ := newTestService()
	owner := uuid.New()

	if _, err := svc.Profile(context.Background(), owner); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing account: expected ErrAccountNotFound, got %v", err)
	}

	accounts.accounts[owner] = &models.WalletAccount{OwnerID: owner, OwnerKind: models.OwnerKindUser, Balance: 420}
	acc, err := svc.Profile(context.Background(), owner)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if acc.Balance != 420 {
		t.Errorf("balance: got %d, want 420", acc.Balance)
	}
}

func TestRechargeFlow(t *testing.T) {
	svc, led, accounts, _, gw := newTestService()
	owner := uuid.New()
	accounts.accounts[owner] = &models.WalletAccount{OwnerID: owner, OwnerKind: models.OwnerKindUser}
	led.balances[owner] = 0
	ctx := context.Background()

	if _, err := svc.CreateRecharge(ctx, owner, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: expected ErrInvalidAmount, got %v", err)
	}

	gwOrder, err := svc.CreateRecharge(ctx, owner, 500)
	if err != nil {
		t.Fatalf("CreateRecharge: %v", err)
	}
	if led.balances[owner] != 0 {
		t.Error("creating a recharge order must not move money")
	}

	if _, err := svc.VerifyRecharge(ctx, owner, models.OwnerKindUser,
		gwOrder.ID, "pay_123", "wrong-signature"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("bad signature: expected ErrBadSignature, got %v", err)
	}
	if led.balances[owner] != 0 {
		t.Error("failed verification must not credit the wallet")
	}

	sig := gw.Sign(gwOrder.ID, "pay_123")
	txn, err := svc.VerifyRecharge(ctx, owner, models.OwnerKindUser, gwOrder.ID, "pay_123", sig)
	if err != nil {
		t.Fatalf("VerifyRecharge: %v", err)
	}
	if txn.Category != models.CategoryRecharge || txn.BalanceAfter != 500 {
		t.Errorf("recharge txn: got %+v", txn)
	}

	// Replayed callback credits at most once.
	if _, err := svc.VerifyRecharge(ctx, owner, models.OwnerKindUser, gwOrder.ID, "pay_123", sig); err != nil {
		t.Fatalf("replayed verification: %v", err)
	}
	if led.balances[owner] != 500 {
		t.Errorf("balance after replay: got %d, want 500", led.balances[owner])
	}
	if len(led.entries) != 1 {
		t.Errorf("ledger entries after replay: got %d, want 1", len(led.entries))
	}
}

// The credited amount comes from the gateway's own record of the order. A
// client presenting a valid signature cannot talk the wallet into crediting
// more than was actually paid.
func TestVerifyRecharge_AmountFromGateway(t *testing.T) {
	svc, led, accounts, _, gw := newTestService()
	owner := uuid.New()
	accounts.accounts[owner] = &models.WalletAccount{OwnerID: owner, OwnerKind: models.OwnerKindUser}
	led.balances[owner] = 0
	ctx := context.Background()

	gwOrder, err := svc.CreateRecharge(ctx, owner, 100)
	if err != nil {
		t.Fatalf("CreateRecharge: %v", err)
	}

	sig := gw.Sign(gwOrder.ID, "pay_forged")
	txn, err := svc.VerifyRecharge(ctx, owner, models.OwnerKindUser, gwOrder.ID, "pay_forged", sig)
	if err != nil {
		t.Fatalf("VerifyRecharge: %v", err)
	}
	if txn.Amount != 100 {
		t.Errorf("credited amount: got %d, want the order's 100", txn.Amount)
	}
	if led.balances[owner] != 100 {
		t.Errorf("balance: got %d, want 100", led.balances[owner])
	}

	// An order id the gateway never issued is rejected even with a signature
	// computed over it.
	if _, err := svc.VerifyRecharge(ctx, owner, models.OwnerKindUser,
		"sbx_unknown", "pay_x", gw.Sign("sbx_unknown", "pay_x")); !errors.Is(err, ErrBadSignature) {
		t.Errorf("unknown order: expected ErrBadSignature, got %v", err)
	}
	if led.balances[owner] != 100 {
		t.Errorf("balance after rejected verify: got %d, want 100", led.balances[owner])
	}
}

func TestPayOrder(t *testing.T) {
	svc, led, _, orders, _ := newTestService()
	user, scrapper := uuid.New(), uuid.New()
	led.balances[user] = 1000
	led.balances[scrapper] = 0

	order := &models.Order{
		ID: uuid.New(), UserID: user, ScrapperID: &scrapper,
		Kind: models.OrderKindService, TotalAmount: 300,
		Status: models.OrderStatusConfirmed, PaymentStatus: models.PaymentStatusPending,
	}
	orders.orders[order.ID] = order
	ctx := context.Background()

	if _, err := svc.PayOrder(ctx, uuid.New(), order.ID); !errors.Is(err, ErrNotYourOrder) {
		t.Errorf("stranger: expected ErrNotYourOrder, got %v", err)
	}
	if _, err := svc.PayOrder(ctx, user, uuid.New()); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order: expected ErrOrderNotFound, got %v", err)
	}

	paid, err := svc.PayOrder(ctx, user, order.ID)
	if err != nil {
		t.Fatalf("PayOrder: %v", err)
	}
	if paid.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("payment status: got %s, want completed", paid.PaymentStatus)
	}
	if led.balances[user] != 700 {
		t.Errorf("user balance: got %d, want 700", led.balances[user])
	}
	if led.balances[scrapper] != 300 {
		t.Errorf("scrapper balance: got %d, want 300", led.balances[scrapper])
	}

	if _, err := svc.PayOrder(ctx, user, order.ID); !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("second payment: expected ErrAlreadyPaid, got %v", err)
	}
	if led.balances[user] != 700 {
		t.Errorf("balance after rejected repeat: got %d, want 700", led.balances[user])
	}
}

func TestPayOrder_InsufficientFunds(t *testing.T) {
	svc, led, _, orders, _ := newTestService()
	user := uuid.New()
	led.balances[user] = 100

	order := &models.Order{
		ID: uuid.New(), UserID: user, Kind: models.OrderKindService,
		TotalAmount: 300, Status: models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	orders.orders[order.ID] = order

	_, err := svc.PayOrder(context.Background(), user, order.ID)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if orders.orders[order.ID].PaymentStatus != models.PaymentStatusPending {
		t.Error("failed payment must leave the order unpaid")
	}
	if led.balances[user] != 100 {
		t.Errorf("balance: got %d, want 100", led.balances[user])
	}
}

func TestWithdraw(t *testing.T) {
	svc, led, _, _, _ := newTestService()
	owner := uuid.New()
	led.balances[owner] = 250
	ctx := context.Background()

	if _, err := svc.Withdraw(ctx, owner, models.OwnerKindScrapper, -10); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, owner, models.OwnerKindScrapper, 500); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("overdraw: expected ErrInsufficientFunds, got %v", err)
	}

	txn, err := svc.Withdraw(ctx, owner, models.OwnerKindScrapper, 200)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if txn.Category != models.CategoryWithdrawal || txn.BalanceAfter != 50 {
		t.Errorf("withdrawal txn: got %+v", txn)
	}
	if led.balances[owner] != 50 {
		t.Errorf("balance: got %d, want 50", led.balances[owner])
	}
}
