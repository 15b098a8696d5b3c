package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scraplink/backend/internal/models"
)

const scrapperColumns = `id, name, phone, email, is_online, status, kyc_status, services, vehicle, fcm_tokens, created_at, updated_at`

type ScrapperRepo struct {
	pool *pgxpool.Pool
}

func NewScrapperRepo(pool *pgxpool.Pool) *ScrapperRepo {
	return &ScrapperRepo{pool: pool}
}

func (r *ScrapperRepo) CreateTx(ctx context.Context, tx pgx.Tx, s *models.Scrapper) error {
	return tx.QueryRow(ctx, `
		INSERT INTO scrappers (id, name, phone, email, is_online, status, kyc_status, services, vehicle, fcm_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, s.ID, s.Name, s.Phone, s.Email, s.IsOnline, s.Status, s.KYCStatus, s.Services, s.Vehicle, s.FCMTokens).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *ScrapperRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Scrapper, error) {
	return scanScrapper(r.pool.QueryRow(ctx, `SELECT `+scrapperColumns+` FROM scrappers WHERE id = $1`, id))
}

func (r *ScrapperRepo) Update(ctx context.Context, s *models.Scrapper) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scrappers SET name = $2, email = $3, is_online = $4, status = $5, kyc_status = $6,
			services = $7, vehicle = $8, fcm_tokens = $9, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Name, s.Email, s.IsOnline, s.Status, s.KYCStatus, s.Services, s.Vehicle, s.FCMTokens)
	return err
}

func (r *ScrapperRepo) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scrappers SET is_online = $2, updated_at = now() WHERE id = $1
	`, id, online)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// FindEligible returns scrappers that should hear about a new order for the
// given service: online, active, KYC-verified, and offering that service.
func (r *ScrapperRepo) FindEligible(ctx context.Context, service string, limit int) ([]*models.Scrapper, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scrapperColumns+` FROM scrappers
		WHERE is_online AND status = $1 AND kyc_status = $2 AND $3 = ANY(services)
		ORDER BY updated_at DESC LIMIT $4
	`, models.ScrapperStatusActive, models.KYCStatusVerified, service, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Scrapper
	for rows.Next() {
		s, err := scanScrapper(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanScrapper(row pgx.Row) (*models.Scrapper, error) {
	var s models.Scrapper
	err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.Email, &s.IsOnline, &s.Status, &s.KYCStatus,
		&s.Services, &s.Vehicle, &s.FCMTokens, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
