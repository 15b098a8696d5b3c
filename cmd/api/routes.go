package main

import (
	"net/http"

	"github.com/scraplink/backend/internal/auth"
	"github.com/scraplink/backend/internal/middleware"
	"github.com/scraplink/backend/internal/models"
	"github.com/scraplink/backend/internal/orders"
	"github.com/scraplink/backend/internal/scrappers"
	"github.com/scraplink/backend/internal/wallet"
)

// RegisterRoutes adds the /api endpoints to the given mux.
// Middleware chain: JWTAuth (role-gated where noted) -> handler.
func RegisterRoutes(
	mux *http.ServeMux,
	authSvc *auth.Service,
	authHandler *auth.Handler,
	orderHandler *orders.Handler,
	walletHandler *wallet.Handler,
	scrapperHandler *scrappers.Handler,
) {
	authed := middleware.JWTAuth(authSvc, "")
	userOnly := middleware.JWTAuth(authSvc, models.RoleUser)
	scrapperOnly := middleware.JWTAuth(authSvc, models.RoleScrapper)

	// Public
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Orders
	mux.Handle("POST /api/orders", userOnly(http.HandlerFunc(orderHandler.Create)))
	mux.Handle("GET /api/orders/my-orders", userOnly(http.HandlerFunc(orderHandler.List)))
	mux.Handle("GET /api/orders/available", scrapperOnly(http.HandlerFunc(orderHandler.ListAvailable)))
	mux.Handle("GET /api/orders/my-assigned", scrapperOnly(http.HandlerFunc(orderHandler.ListAssigned)))
	mux.Handle("GET /api/orders/{id}", authed(http.HandlerFunc(orderHandler.Get)))
	mux.Handle("PUT /api/orders/{id}", userOnly(http.HandlerFunc(orderHandler.Update)))
	mux.Handle("POST /api/orders/{id}/accept", scrapperOnly(http.HandlerFunc(orderHandler.Accept)))
	mux.Handle("PUT /api/orders/{id}/status", authed(http.HandlerFunc(orderHandler.UpdateStatus)))
	mux.Handle("POST /api/orders/{id}/cancel", authed(http.HandlerFunc(orderHandler.Cancel)))

	// Wallet
	mux.Handle("GET /api/wallet/profile", authed(http.HandlerFunc(walletHandler.Profile)))
	mux.Handle("GET /api/wallet/transactions", authed(http.HandlerFunc(walletHandler.Transactions)))
	mux.Handle("POST /api/wallet/recharge/create", authed(http.HandlerFunc(walletHandler.CreateRecharge)))
	mux.Handle("POST /api/wallet/recharge/verify", authed(http.HandlerFunc(walletHandler.VerifyRecharge)))
	mux.Handle("POST /api/wallet/pay-order", userOnly(http.HandlerFunc(walletHandler.PayOrder)))
	mux.Handle("POST /api/wallet/withdraw", authed(http.HandlerFunc(walletHandler.Withdraw)))

	// Scrapper profile
	mux.Handle("GET /api/scrappers/me", scrapperOnly(http.HandlerFunc(scrapperHandler.GetMe)))
	mux.Handle("PUT /api/scrappers/me", scrapperOnly(http.HandlerFunc(scrapperHandler.UpdateMe)))
	mux.Handle("PUT /api/scrappers/me/availability", scrapperOnly(http.HandlerFunc(scrapperHandler.SetAvailability)))
}
