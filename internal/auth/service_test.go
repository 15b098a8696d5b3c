package auth

import (
	"context"
	"errors"
	"testing"

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

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

type mockUsers struct {
	byPhone map[string]*models.User
}

func newMockUsers() *mockUsers {
	return &mockUsers{byPhone: make(map[string]*models.User)}
}

func (m *mockUsers) CreateTx(_ context.Context, _ pgx.Tx, u *models.User) error {
	if _, exists := m.byPhone[u.Phone]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *u
	m.byPhone[u.Phone] = &cp
	return nil
}

func (m *mockUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	u, ok := m.byPhone[phone]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *mockUsers) GetByReferralCode(_ context.Context, code string) (*models.User, error) {
	for _, u := range m.byPhone {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type mockScrappers struct {
	created []*models.Scrapper
}

func (m *mockScrappers) CreateTx(_ context.Context, _ pgx.Tx, s *models.Scrapper) error {
	cp := *s
	m.created = append(m.created, &cp)
	return nil
}

type mockWallets struct {
	created []*models.WalletAccount
}

func (m *mockWallets) CreateAccountTx(_ context.Context, _ pgx.Tx, a *models.WalletAccount) error {
	cp := *a
	m.created = append(m.created, &cp)
	return nil
}

type mockLedger struct {
	credits []ledger.Entry
}

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error) {
	m.credits = append(m.credits, e)
	return &models.WalletTransaction{TrxID: e.TrxID, Amount: e.Amount}, nil
}

func newTestService() (*Service, *mockUsers, *mockScrappers, *mockWallets, *mockLedger) {
	users := newMockUsers()
	scrappers := &mockScrappers{}
	wallets := &mockWallets{}
	led := &mockLedger{}
	svc := NewService(mockPool{}, users, scrappers, wallets, led, "test-secret")
	return svc, users, scrappers, wallets, led
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegisterUser_ProvisionsWallet(t *testing.T) {
	svc, _, scrappers, wallets, _ := newTestService()

	user, err := svc.Register(context.Background(), RegisterInput{
		Name: "Asha", Phone: "9000000001", Password: "hunter22", Role: models.RoleUser,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ReferralCode == "" {
		t.Error("new user should get a referral code")
	}
	if len(wallets.created) != 1 || wallets.created[0].OwnerID != user.ID {
		t.Fatalf("expected one wallet account for the user, got %+v", wallets.created)
	}
	if wallets.created[0].OwnerKind != models.OwnerKindUser {
		t.Errorf("owner kind: got %s, want user", wallets.created[0].OwnerKind)
	}
	if len(scrappers.created) != 0 {
		t.Error("registering a user must not create a scrapper profile")
	}
}

func TestRegisterScrapper_ProvisionsProfile(t *testing.T) {
	svc, _, scrappers, wallets, _ := newTestService()

	user, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ravi", Phone: "9000000002", Password: "hunter22", Role: models.RoleScrapper,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(scrappers.created) != 1 {
		t.Fatalf("expected one scrapper profile, got %d", len(scrappers.created))
	}
	prof := scrappers.created[0]
	if prof.ID != user.ID {
		t.Error("scrapper profile should share the user id")
	}
	if prof.KYCStatus != models.KYCStatusPending {
		t.Errorf("new profile KYC: got %s, want pending", prof.KYCStatus)
	}
	if len(wallets.created) != 1 || wallets.created[0].OwnerKind != models.OwnerKindScrapper {
		t.Errorf("wallet owner kind: got %+v, want scrapper", wallets.created)
	}
}

func TestRegister_DuplicatePhone(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	in := RegisterInput{Name: "Asha", Phone: "9000000003", Password: "pw", Role: models.RoleUser}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrDuplicatePhone) {
		t.Errorf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "X", Phone: "9000000004", Password: "pw", Role: "admin",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRegister_ReferralBonus(t *testing.T) {
	svc, _, _, _, led := newTestService()
	ctx := context.Background()

	referrer, err := svc.Register(ctx, RegisterInput{
		Name: "Asha", Phone: "9000000005", Password: "pw", Role: models.RoleUser,
	})
	if err != nil {
		t.Fatalf("register referrer: %v", err)
	}

	referred, err := svc.Register(ctx, RegisterInput{
		Name: "Ravi", Phone: "9000000006", Password: "pw", Role: models.RoleUser,
		ReferralCode: referrer.ReferralCode,
	})
	if err != nil {
		t.Fatalf("register referred: %v", err)
	}
	if referred.ReferredBy == nil || *referred.ReferredBy != referrer.ID {
		t.Error("referred_by should point at the referrer")
	}

	if len(led.credits) != 1 {
		t.Fatalf("expected one referral credit, got %d", len(led.credits))
	}
	c := led.credits[0]
	if c.OwnerID != referrer.ID || c.Amount != models.ReferralBonusAmount || c.Category != models.CategoryReferralBonus {
		t.Errorf("referral credit: got %+v", c)
	}

	if _, err := svc.Register(ctx, RegisterInput{
		Name: "Z", Phone: "9000000007", Password: "pw", Role: models.RoleUser,
		ReferralCode: "SLNOPE1234",
	}); !errors.Is(err, ErrUnknownReferralCode) {
		t.Errorf("expected ErrUnknownReferralCode, got %v", err)
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		Name: "Asha", Phone: "9000000008", Password: "correct-horse", Role: models.RoleScrapper,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "9000000008", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "9999999999", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown phone: expected ErrInvalidCredentials, got %v", err)
	}

	token, loggedIn, err := svc.Login(ctx, "9000000008", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Error("login should return the registered user")
	}

	id, role, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != user.ID || role != models.RoleScrapper {
		t.Errorf("token claims: got %s/%s, want %s/scrapper", id, role, user.ID)
	}

	if _, _, err := svc.ValidateToken(ctx, token+"tampered"); err == nil {
		t.Error("tampered token should fail validation")
	}
}
