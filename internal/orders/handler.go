package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/scraplink/backend/internal/middleware"
	"github.com/scraplink/backend/internal/models"
)

// Handler serves the /api/orders endpoints.
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

// --- POST /api/orders ---

type createOrderRequest struct {
	Kind           string             `json:"kind"`
	ScrapItems     []models.ScrapItem `json:"scrap_items"`
	ServiceDetails json.RawMessage    `json:"service_details"`
	ServiceFee     int64              `json:"service_fee"`
	PickupAddress  string             `json:"pickup_address"`
	PreferredTime  string             `json:"preferred_time"`
	PickupSlot     string             `json:"pickup_slot"`
	Notes          string             `json:"notes"`
}

// Create handles POST /api/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Kind == models.OrderKindService && req.ServiceFee <= 0 {
		http.Error(w, `{"error":"service_fee must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.Kind != models.OrderKindService && len(req.ScrapItems) == 0 {
		http.Error(w, `{"error":"scrap_items are required"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Svc.Create(r.Context(), ident.ID, CreateInput{
		Kind:           req.Kind,
		ScrapItems:     req.ScrapItems,
		ServiceDetails: req.ServiceDetails,
		ServiceFee:     req.ServiceFee,
		PickupAddress:  req.PickupAddress,
		PreferredTime:  req.PreferredTime,
		PickupSlot:     req.PickupSlot,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "create order")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// --- GET /api/orders/my-orders ---

type orderListResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// List handles GET /api/orders/my-orders — the requester's own orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	list, total, err := h.Svc.ListByUser(r.Context(), ident.ID, q.Get("status"), page, limit)
	if err != nil {
		h.writeError(w, err, "list orders")
		return
	}
	if list == nil {
		list = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: list, Total: total, Page: page, Limit: limit})
}

// ListAvailable handles GET /api/orders/available — the scrapper's open feed.
func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	list, err := h.Svc.ListAvailable(r.Context(), ident.ID)
	if err != nil {
		h.writeError(w, err, "list available orders")
		return
	}
	if list == nil {
		list = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// ListAssigned handles GET /api/orders/my-assigned — orders held by the scrapper.
func (h *Handler) ListAssigned(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	list, err := h.Svc.ListByScrapper(r.Context(), ident.ID, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, err, "list assigned orders")
		return
	}
	if list == nil {
		list = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// --- GET /api/orders/{id} ---

// Get handles GET /api/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ident, orderID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}
	order, err := h.Svc.GetForActor(r.Context(), orderID, Actor{ID: ident.ID, Role: ident.Role})
	if err != nil {
		h.writeError(w, err, "get order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- PUT /api/orders/{id} ---

type updateOrderRequest struct {
	ScrapItems    []models.ScrapItem `json:"scrap_items"`
	PickupAddress string             `json:"pickup_address"`
	PreferredTime string             `json:"preferred_time"`
	PickupSlot    string             `json:"pickup_slot"`
	Notes         *string            `json:"notes"`
}

// Update handles PUT /api/orders/{id} — pending orders only.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ident, orderID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Svc.Update(r.Context(), orderID, ident.ID, UpdateInput{
		ScrapItems:    req.ScrapItems,
		PickupAddress: req.PickupAddress,
		PreferredTime: req.PreferredTime,
		PickupSlot:    req.PickupSlot,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "update order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- POST /api/orders/{id}/accept ---

// Accept handles POST /api/orders/{id}/accept (scrapper only, idempotent).
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	ident, orderID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}

	order, err := h.Svc.Accept(r.Context(), orderID, ident.ID)
	if err != nil {
		h.writeError(w, err, "accept order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- PUT /api/orders/{id}/status ---

type updateStatusRequest struct {
	Status        string  `json:"status"`
	PaymentStatus *string `json:"payment_status"`
	TotalAmount   *int64  `json:"total_amount"`
}

// UpdateStatus handles PUT /api/orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ident, orderID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		http.Error(w, `{"error":"status is required"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Svc.UpdateStatus(r.Context(), orderID,
		Actor{ID: ident.ID, Role: ident.Role},
		StatusUpdate{Status: req.Status, PaymentStatus: req.PaymentStatus, TotalAmount: req.TotalAmount})
	if err != nil {
		h.writeError(w, err, "update order status")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- POST /api/orders/{id}/cancel ---

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/orders/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ident, orderID, ok := h.identityAndID(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.Svc.Cancel(r.Context(), orderID, Actor{ID: ident.ID, Role: ident.Role}, req.Reason)
	if err != nil {
		h.writeError(w, err, "cancel order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- helpers ---

func (h *Handler) identityAndID(w http.ResponseWriter, r *http.Request) (*middleware.Identity, uuid.UUID, bool) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid order id"}`, http.StatusBadRequest)
		return nil, uuid.Nil, false
	}
	return ident, id, true
}

// writeError maps service errors onto the HTTP surface.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrScrapperNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInsufficientBalance):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrOrderNotAvailable),
		errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrNotPending):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.Logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
