package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scraplink/backend/internal/models"
)

type RegisterRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	ReferralCode string `json:"referral_code"`
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	ReferralCode string `json:"referral_code"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Phone == "" || req.Password == "" {
		http.Error(w, `{"error":"name, phone and password are required"}`, http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	user, err := h.svc.Register(r.Context(), RegisterInput{
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.Role,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicatePhone):
			http.Error(w, `{"error":"phone number already registered"}`, http.StatusConflict)
		case errors.Is(err, ErrInvalidRole):
			http.Error(w, `{"error":"invalid role"}`, http.StatusBadRequest)
		case errors.Is(err, ErrUnknownReferralCode):
			http.Error(w, `{"error":"unknown referral code"}`, http.StatusBadRequest)
		default:
			h.log.Error("register failed", "error", err)
			http.Error(w, `{"error":"registration failed"}`, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, userToResponse(user))
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Password == "" {
		http.Error(w, `{"error":"phone and password are required"}`, http.StatusBadRequest)
		return
	}

	token, user, err := h.svc.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		h.log.Error("login failed", "error", err)
		http.Error(w, `{"error":"login failed"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: userToResponse(user)})
}

func userToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Name:         u.Name,
		Phone:        u.Phone,
		Email:        u.Email,
		Role:         u.Role,
		ReferralCode: u.ReferralCode,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
