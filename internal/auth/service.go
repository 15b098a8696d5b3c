package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/scraplink/backend/internal/ledger"
	"github.com/scraplink/backend/internal/models"
)

var (
	// ErrDuplicatePhone is returned when registering a phone number that
	// already has an account.
	ErrDuplicatePhone = errors.New("phone number already registered")

	// ErrInvalidCredentials covers both unknown phone and wrong password, so
	// responses don't reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRole is returned for a role outside user|scrapper.
	ErrInvalidRole = errors.New("invalid role")

	// ErrUnknownReferralCode is returned when the supplied referral code
	// matches no account.
	ErrUnknownReferralCode = errors.New("unknown referral code")
)

// UserRepo is the user store the auth service needs.
type UserRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.User) error
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
}

// ScrapperRepo provisions the worker profile at registration.
type ScrapperRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.Scrapper) error
}

// WalletRepo provisions the wallet account at registration.
type WalletRepo interface {
	CreateAccountTx(ctx context.Context, tx pgx.Tx, a *models.WalletAccount) error
}

// Ledger credits the referral bonus.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.WalletTransaction, error)
}

// TxBeginner abstracts pgxpool.Pool for tests.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service handles registration, login and token validation. Registration
// provisions the wallet account (and scrapper profile) in the same
// transaction as the user row, so no account can exist without a wallet.
type Service struct {
	pool      TxBeginner
	users     UserRepo
	scrappers ScrapperRepo
	wallets   WalletRepo
	ledger    Ledger
	secret    []byte
	tokenTTL  time.Duration
}

func NewService(pool TxBeginner, users UserRepo, scrappers ScrapperRepo, wallets WalletRepo, wallet Ledger, secret string) *Service {
	return &Service{
		pool:      pool,
		users:     users,
		scrappers: scrappers,
		wallets:   wallets,
		ledger:    wallet,
		secret:    []byte(secret),
		tokenTTL:  24 * time.Hour,
	}
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Name         string
	Phone        string
	Email        string
	Password     string
	Role         string
	ReferralCode string // code of the referring account, optional
}

// Register creates the user, their wallet account, and for scrappers the
// worker profile, all in one transaction. A valid referral code credits the
// referrer's wallet with the signup bonus.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Role != models.RoleUser && in.Role != models.RoleScrapper {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var referrer *models.User
	if in.ReferralCode != "" {
		referrer, err = s.users.GetByReferralCode(ctx, in.ReferralCode)
		if err != nil {
			return nil, fmt.Errorf("resolve referral code: %w", err)
		}
		if referrer == nil {
			return nil, ErrUnknownReferralCode
		}
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         in.Name,
		Phone:        in.Phone,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		ReferralCode: newReferralCode(),
	}
	if referrer != nil {
		user.ReferredBy = &referrer.ID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.users.CreateTx(ctx, tx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePhone
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	ownerKind := models.OwnerKindUser
	if in.Role == models.RoleScrapper {
		ownerKind = models.OwnerKindScrapper
	}
	if err := s.wallets.CreateAccountTx(ctx, tx, &models.WalletAccount{
		OwnerID:   user.ID,
		OwnerKind: ownerKind,
	}); err != nil {
		return nil, fmt.Errorf("create wallet account: %w", err)
	}

	if in.Role == models.RoleScrapper {
		if err := s.scrappers.CreateTx(ctx, tx, &models.Scrapper{
			ID:        user.ID,
			Name:      in.Name,
			Phone:     in.Phone,
			Email:     in.Email,
			Status:    models.ScrapperStatusActive,
			KYCStatus: models.KYCStatusPending,
			Services:  []string{models.ServiceScrapPickup},
		}); err != nil {
			return nil, fmt.Errorf("create scrapper profile: %w", err)
		}
	}

	if referrer != nil {
		if _, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			TrxID:       fmt.Sprintf("TRX-%s-%s", models.CategoryReferralBonus, user.ID),
			OwnerID:     referrer.ID,
			OwnerKind:   ownerKindFor(referrer.Role),
			Amount:      models.ReferralBonusAmount,
			Category:    models.CategoryReferralBonus,
			Description: fmt.Sprintf("Referral bonus for inviting %s", in.Name),
			Gateway:     "SYSTEM",
		}); err != nil {
			return nil, fmt.Errorf("credit referral bonus: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the phone/password pair and returns a signed token.
func (s *Service) Login(ctx context.Context, phone, password string) (string, *models.User, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.issueToken(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *Service) issueToken(userID uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken parses and verifies a token, returning the caller's id and role.
func (s *Service) ValidateToken(_ context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}

func ownerKindFor(role string) string {
	if role == models.RoleScrapper {
		return models.OwnerKindScrapper
	}
	return models.OwnerKindUser
}

// newReferralCode derives a short shareable code.
func newReferralCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "SL" + strings.ToUpper(raw[:8])
}
