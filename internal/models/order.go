package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Order kind, status, assignment status and payment status enums.
const (
	OrderKindScrap   = "scrap_pickup"
	OrderKindService = "service"

	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"

	AssignmentUnassigned = "unassigned"
	AssignmentAccepted   = "accepted"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ValidOrderStatus reports whether s is a member of the closed order-status set.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a member of the closed payment-status set.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// ValidOrderKind reports whether k is a member of the closed order-kind set.
func ValidOrderKind(k string) bool {
	return k == OrderKindScrap || k == OrderKindService
}

// ScrapItem is one line of a scrap pickup order. Total is the pre-agreed
// price for the line in whole currency units.
type ScrapItem struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Rate   int64   `json:"rate,omitempty"`
	Total  int64   `json:"total"`
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	ScrapperID       *uuid.UUID      `json:"scrapper_id,omitempty"`
	Kind             string          `json:"kind"`
	ScrapItems       []ScrapItem     `json:"scrap_items,omitempty"`
	ServiceDetails   json.RawMessage `json:"service_details,omitempty"`
	ServiceFee       int64           `json:"service_fee,omitempty"`
	TotalAmount      int64           `json:"total_amount"`
	TotalWeight      float64         `json:"total_weight"`
	Status           string          `json:"status"`
	AssignmentStatus string          `json:"assignment_status"`
	PaymentStatus    string          `json:"payment_status"`
	PickupAddress    string          `json:"pickup_address"`
	PreferredTime    string          `json:"preferred_time,omitempty"`
	PickupSlot       string          `json:"pickup_slot,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	AcceptedAt       *time.Time      `json:"accepted_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AssignmentRecord is one append-only entry of an order's assignment history.
type AssignmentRecord struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	ScrapperID uuid.UUID `json:"scrapper_id"`
	Outcome    string    `json:"outcome"` // accepted | unassigned
	AssignedAt time.Time `json:"assigned_at"`
}
