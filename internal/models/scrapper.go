package models

import (
	"time"

	"github.com/google/uuid"
)

// Scrapper account status, KYC status and declared service capabilities.
const (
	ScrapperStatusActive    = "active"
	ScrapperStatusSuspended = "suspended"

	KYCStatusPending  = "pending"
	KYCStatusVerified = "verified"
	KYCStatusRejected = "rejected"

	ServiceScrapPickup  = "scrap_pickup"
	ServiceHomeCleaning = "home_cleaning"
)

// ServiceForKind maps an order kind to the scrapper capability that may serve it.
func ServiceForKind(kind string) string {
	if kind == OrderKindService {
		return ServiceHomeCleaning
	}
	return ServiceScrapPickup
}

// KindForService is the inverse of ServiceForKind.
func KindForService(service string) string {
	if service == ServiceHomeCleaning {
		return OrderKindService
	}
	return OrderKindScrap
}

type VehicleInfo struct {
	Type     string  `json:"type"`
	Number   string  `json:"number"`
	Capacity float64 `json:"capacity"`
}

// Scrapper is a field worker profile. Its ID equals the owning user's ID.
type Scrapper struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone"`
	Email     string      `json:"email"`
	IsOnline  bool        `json:"is_online"`
	Status    string      `json:"status"`
	KYCStatus string      `json:"kyc_status"`
	Services  []string    `json:"services"`
	Vehicle   VehicleInfo `json:"vehicle"`
	FCMTokens []string    `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Eligible reports whether the scrapper may be broadcast a new order of the
// given kind: online, active, KYC-verified, and offering the matching service.
func (s *Scrapper) Eligible(kind string) bool {
	if !s.IsOnline || s.Status != ScrapperStatusActive || s.KYCStatus != KYCStatusVerified {
		return false
	}
	want := ServiceForKind(kind)
	for _, svc := range s.Services {
		if svc == want {
			return true
		}
	}
	return false
}
