package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet owner kinds, transaction directions, statuses and categories.
const (
	OwnerKindUser     = "user"
	OwnerKindScrapper = "scrapper"

	TxnDebit  = "DEBIT"
	TxnCredit = "CREDIT"

	TxnStatusSuccess = "SUCCESS"
	TxnStatusFailed  = "FAILED"

	CategoryPaymentSent     = "PAYMENT_SENT"
	CategoryPaymentReceived = "PAYMENT_RECEIVED"
	CategoryCommission      = "COMMISSION"
	CategoryRecharge        = "RECHARGE"
	CategoryWithdrawal      = "WITHDRAWAL"
	CategoryRefund          = "REFUND"
	CategoryReferralBonus   = "REFERRAL_BONUS"
)

// ValidTxnCategory reports whether c is a member of the closed category set.
func ValidTxnCategory(c string) bool {
	switch c {
	case CategoryPaymentSent, CategoryPaymentReceived, CategoryCommission,
		CategoryRecharge, CategoryWithdrawal, CategoryRefund, CategoryReferralBonus:
		return true
	}
	return false
}

// WalletAccount is a prepaid balance for one user or scrapper. Balance is a
// cached projection of the owner's transaction history; the transactions are
// the source of truth.
type WalletAccount struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	OwnerKind string    `json:"owner_kind"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletTransaction is an append-only ledger record. TrxID is deterministic
// per logical operation so retried requests cannot double-apply.
type WalletTransaction struct {
	ID            uuid.UUID  `json:"id"`
	TrxID         string     `json:"trx_id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	OwnerKind     string     `json:"owner_kind"`
	Direction     string     `json:"direction"` // DEBIT | CREDIT
	Amount        int64      `json:"amount"`
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	Description   string     `json:"description"`
	Gateway       string     `json:"gateway,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
