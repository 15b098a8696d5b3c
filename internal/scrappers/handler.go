package scrappers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scraplink/backend/internal/middleware"
	"github.com/scraplink/backend/internal/models"
)

// Repo is the scrapper store the profile endpoints use.
type Repo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Scrapper, error)
	Update(ctx context.Context, s *models.Scrapper) error
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// Handler serves the /api/scrappers endpoints.
type Handler struct {
	Repo   Repo
	Logger *slog.Logger
}

func NewHandler(repo Repo, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Repo: repo, Logger: logger}
}

// GetMe handles GET /api/scrappers/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	scr, err := h.Repo.GetByID(r.Context(), ident.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"scrapper profile not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get scrapper profile", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scr)
}

// UpdateMe handles PUT /api/scrappers/me. KYC status is operator-managed and
// cannot be changed here.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	scr, err := h.Repo.GetByID(r.Context(), ident.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"scrapper profile not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get scrapper profile", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	var body struct {
		Name     *string            `json:"name"`
		Email    *string            `json:"email"`
		Services []string           `json:"services"`
		Vehicle  *models.VehicleInfo `json:"vehicle"`
		FCMToken *string            `json:"fcm_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	if body.Name != nil {
		scr.Name = *body.Name
	}
	if body.Email != nil {
		scr.Email = *body.Email
	}
	if body.Services != nil {
		for _, s := range body.Services {
			if s != models.ServiceScrapPickup && s != models.ServiceHomeCleaning {
				http.Error(w, `{"error":"unknown service"}`, http.StatusBadRequest)
				return
			}
		}
		scr.Services = body.Services
	}
	if body.Vehicle != nil {
		scr.Vehicle = *body.Vehicle
	}
	if body.FCMToken != nil && *body.FCMToken != "" {
		scr.FCMTokens = appendToken(scr.FCMTokens, *body.FCMToken)
	}

	if err := h.Repo.Update(r.Context(), scr); err != nil {
		h.Logger.Error("update scrapper profile", "error", err)
		http.Error(w, `{"error":"update failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scr)
}

// SetAvailability handles PUT /api/scrappers/me/availability.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		IsOnline *bool `json:"is_online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsOnline == nil {
		http.Error(w, `{"error":"is_online is required"}`, http.StatusBadRequest)
		return
	}

	if err := h.Repo.SetOnline(r.Context(), ident.ID, *body.IsOnline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"scrapper profile not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("set availability", "error", err)
		http.Error(w, `{"error":"update failed"}`, http.StatusInternalServerError)
		return
	}

	h.Logger.Info("scrapper availability changed", "scrapper_id", ident.ID, "is_online", *body.IsOnline)
	writeJSON(w, http.StatusOK, map[string]any{"is_online": *body.IsOnline})
}

func appendToken(tokens []string, token string) []string {
	for _, t := range tokens {
		if t == token {
			return tokens
		}
	}
	return append(tokens, token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
