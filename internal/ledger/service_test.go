package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scraplink/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for AccountRepo and TransactionRepo. These let us test the
// real ledger logic without a database.
// ---------------------------------------------------------------------------

type mockAccounts struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{balances: make(map[uuid.UUID]int64)}
}

func (m *mockAccounts) GetAccount(_ context.Context, ownerID uuid.UUID) (*models.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[ownerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &models.WalletAccount{OwnerID: ownerID, Balance: bal}, nil
}

func (m *mockAccounts) GetAccountForUpdate(ctx context.Context, _ pgx.Tx, ownerID uuid.UUID) (*models.WalletAccount, error) {
	return m.GetAccount(ctx, ownerID)
}

func (m *mockAccounts) SetBalanceTx(_ context.Context, _ pgx.Tx, ownerID uuid.UUID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[ownerID]; !ok {
		return fmt.Errorf("account %s not found", ownerID)
	}
	m.balances[ownerID] = balance
	return nil
}

type mockTxns struct {
	mu      sync.Mutex
	entries []*models.WalletTransaction
}

func (m *mockTxns) GetByTrxID(_ context.Context, _ pgx.Tx, trxID string) (*models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.entries {
		if t.TrxID == trxID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTxns) InsertTxnTx(_ context.Context, _ pgx.Tx, t *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTxns) ListByOwner(_ context.Context, ownerID uuid.UUID, _, _ int) ([]*models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WalletTransaction
	for _, t := range m.entries {
		if t.OwnerID == ownerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTxns) byOwner(ownerID uuid.UUID) []*models.WalletTransaction {
	out, _ := m.ListByOwner(context.Background(), ownerID, 0, 0)
	return out
}

func newTestService(t *testing.T) (*Service, *mockAccounts, *mockTxns) {
	t.Helper()
	accounts := newMockAccounts()
	txns := &mockTxns{}
	return NewService(nil, accounts, txns), accounts, txns
}

// signedSum reconstructs a balance from the transaction trail.
func signedSum(entries []*models.WalletTransaction) int64 {
	var sum int64
	for _, e := range entries {
		if e.Direction == models.TxnDebit {
			sum -= e.Amount
		} else {
			sum += e.Amount
		}
	}
	return sum
}

// ---------------------------------------------------------------------------

func TestDebitChecked(t *testing.T) {
	svc, accounts, txns := newTestService(t)
	owner := uuid.New()
	accounts.balances[owner] = 500

	ctx := context.Background()
	txn, err := svc.Debit(ctx, nil, Entry{
		OwnerID: owner, OwnerKind: models.OwnerKindUser,
		Amount: 200, Category: models.CategoryWithdrawal,
	})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if txn.BalanceBefore != 500 || txn.BalanceAfter != 300 {
		t.Errorf("balance snapshot: got %d/%d, want 500/300", txn.BalanceBefore, txn.BalanceAfter)
	}
	if accounts.balances[owner] != 300 {
		t.Errorf("balance: got %d, want 300", accounts.balances[owner])
	}

	// Overdrawing fails and leaves no record.
	if _, err := svc.Debit(ctx, nil, Entry{
		OwnerID: owner, OwnerKind: models.OwnerKindUser,
		Amount: 1000, Category: models.CategoryWithdrawal,
	}); err != ErrInsufficientFunds {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}
	if n := len(txns.byOwner(owner)); n != 1 {
		t.Errorf("transactions after failed debit: got %d, want 1", n)
	}
	if accounts.balances[owner] != 300 {
		t.Errorf("balance after failed debit: got %d, want 300", accounts.balances[owner])
	}
}

func TestDebitOverdraftBypassesFloor(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	owner := uuid.New()
	accounts.balances[owner] = 50
	orderID := uuid.New()

	txn, err := svc.DebitOverdraft(context.Background(), nil, Entry{
		TrxID:   OrderTrxID(models.CategoryPaymentSent, orderID, owner),
		OwnerID: owner, OwnerKind: models.OwnerKindScrapper,
		Amount: 300, Category: models.CategoryPaymentSent, OrderID: &orderID,
	})
	if err != nil {
		t.Fatalf("DebitOverdraft: %v", err)
	}
	if txn.BalanceAfter != -250 {
		t.Errorf("balance after: got %d, want -250", txn.BalanceAfter)
	}
	if accounts.balances[owner] != -250 {
		t.Errorf("balance: got %d, want -250", accounts.balances[owner])
	}
}

func TestCreditAndReconciliation(t *testing.T) {
	svc, accounts, txns := newTestService(t)
	owner := uuid.New()
	accounts.balances[owner] = 0
	ctx := context.Background()

	ops := []struct {
		credit bool
		amount int64
	}{
		{true, 1000}, {false, 300}, {true, 50}, {false, 3},
	}
	for _, op := range ops {
		e := Entry{OwnerID: owner, OwnerKind: models.OwnerKindScrapper, Amount: op.amount, Category: models.CategoryRecharge}
		var err error
		if op.credit {
			_, err = svc.Credit(ctx, nil, e)
		} else {
			e.Category = models.CategoryWithdrawal
			_, err = svc.Debit(ctx, nil, e)
		}
		if err != nil {
			t.Fatalf("op %+v: %v", op, err)
		}
	}

	bal, err := svc.GetBalance(ctx, owner)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal != 747 {
		t.Errorf("balance: got %d, want 747", bal)
	}
	if sum := signedSum(txns.byOwner(owner)); sum != bal {
		t.Errorf("ledger sum %d does not reconcile with balance %d", sum, bal)
	}

	// Each record's before/after must chain without gaps.
	entries := txns.byOwner(owner)
	for i := 1; i < len(entries); i++ {
		if entries[i].BalanceBefore != entries[i-1].BalanceAfter {
			t.Errorf("entry %d: balance_before %d != previous balance_after %d",
				i, entries[i].BalanceBefore, entries[i-1].BalanceAfter)
		}
	}
}

func TestIdempotentTrxID(t *testing.T) {
	svc, accounts, txns := newTestService(t)
	owner := uuid.New()
	accounts.balances[owner] = 1000
	orderID := uuid.New()
	ctx := context.Background()

	e := Entry{
		TrxID:   OrderTrxID(models.CategoryCommission, orderID, owner),
		OwnerID: owner, OwnerKind: models.OwnerKindScrapper,
		Amount: 10, Category: models.CategoryCommission, OrderID: &orderID,
	}

	first, err := svc.DebitOverdraft(ctx, nil, e)
	if err != nil {
		t.Fatalf("first debit: %v", err)
	}
	second, err := svc.DebitOverdraft(ctx, nil, e)
	if err != nil {
		t.Fatalf("retried debit: %v", err)
	}

	if second.TrxID != first.TrxID || second.BalanceAfter != first.BalanceAfter {
		t.Errorf("retry returned a different transaction: %+v vs %+v", second, first)
	}
	if accounts.balances[owner] != 990 {
		t.Errorf("balance after retry: got %d, want 990 (charged once)", accounts.balances[owner])
	}
	if n := len(txns.byOwner(owner)); n != 1 {
		t.Errorf("transactions: got %d, want 1", n)
	}
}

func TestInvalidEntries(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	owner := uuid.New()
	accounts.balances[owner] = 100

	cases := []Entry{
		{OwnerID: owner, Amount: 0, Category: models.CategoryRecharge},
		{OwnerID: owner, Amount: -5, Category: models.CategoryRecharge},
		{OwnerID: owner, Amount: 10, Category: "TIP"},
	}
	for _, e := range cases {
		if _, err := svc.Credit(context.Background(), nil, e); err != ErrInvalidEntry {
			t.Errorf("entry %+v: expected ErrInvalidEntry, got %v", e, err)
		}
	}
}
