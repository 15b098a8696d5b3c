package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser     = "user"
	RoleScrapper = "scrapper"
)

// ReferralBonusAmount is credited to the referrer when a referred signup completes.
const ReferralBonusAmount int64 = 50

type User struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	ReferralCode string     `json:"referral_code"`
	ReferredBy   *uuid.UUID `json:"referred_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
