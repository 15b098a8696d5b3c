package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/scraplink/backend/internal/ledger"
	"github.com/scraplink/backend/internal/middleware"
	"github.com/scraplink/backend/internal/models"
)

// Handler serves the /api/wallet endpoints.
type Handler struct {
	Svc    *Service
	Logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Svc: svc, Logger: logger}
}

// Profile handles GET /api/wallet/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	acc, err := h.Svc.Profile(r.Context(), ident.ID)
	if err != nil {
		h.writeError(w, err, "wallet profile")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Transactions handles GET /api/wallet/transactions.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := h.Svc.Transactions(r.Context(), ident.ID, page, limit)
	if err != nil {
		h.writeError(w, err, "wallet transactions")
		return
	}
	if list == nil {
		list = []*models.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": list})
}

// --- POST /api/wallet/recharge/create ---

type rechargeRequest struct {
	Amount int64 `json:"amount"`
}

// CreateRecharge handles POST /api/wallet/recharge/create.
func (h *Handler) CreateRecharge(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Svc.CreateRecharge(r.Context(), ident.ID, req.Amount)
	if err != nil {
		h.writeError(w, err, "create recharge")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// --- POST /api/wallet/recharge/verify ---

type verifyRechargeRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
}

// VerifyRecharge handles POST /api/wallet/recharge/verify.
func (h *Handler) VerifyRecharge(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req verifyRechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		http.Error(w, `{"error":"gateway_order_id, payment_id and signature are required"}`, http.StatusBadRequest)
		return
	}

	txn, err := h.Svc.VerifyRecharge(r.Context(), ident.ID, ownerKindFor(ident.Role),
		req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.writeError(w, err, "verify recharge")
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// --- POST /api/wallet/pay-order ---

type payOrderRequest struct {
	OrderID string `json:"order_id"`
}

// PayOrder handles POST /api/wallet/pay-order.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		http.Error(w, `{"error":"invalid order_id"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Svc.PayOrder(r.Context(), ident.ID, orderID)
	if err != nil {
		h.writeError(w, err, "pay order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- POST /api/wallet/withdraw ---

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

// Withdraw handles POST /api/wallet/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	txn, err := h.Svc.Withdraw(r.Context(), ident.ID, ownerKindFor(ident.Role), req.Amount)
	if err != nil {
		h.writeError(w, err, "withdraw")
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// --- helpers ---

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotYourOrder):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrAlreadyPaid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNothingToPay), errors.Is(err, ErrBadSignature):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.Logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func ownerKindFor(role string) string {
	if role == models.RoleScrapper {
		return models.OwnerKindScrapper
	}
	return models.OwnerKindUser
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
