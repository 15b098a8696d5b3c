package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/scraplink/backend/internal/auth"
	"github.com/scraplink/backend/internal/broadcast"
	"github.com/scraplink/backend/internal/config"
	"github.com/scraplink/backend/internal/ledger"
	"github.com/scraplink/backend/internal/orders"
	"github.com/scraplink/backend/internal/repository"
	"github.com/scraplink/backend/internal/scrappers"
	"github.com/scraplink/backend/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	scrapperRepo := repository.NewScrapperRepo(pool)
	orderRepo := repository.NewOrderRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)

	// Wallet ledger: the single writer of balances.
	ledgerSvc := ledger.NewService(pool, walletRepo, walletRepo)

	// Availability broadcast: order fan-out runs as a queued job, so the order
	// insert and its announcement commit together.
	var sender broadcast.NotificationSender
	if cfg.FCMServerKey != "" {
		sender = broadcast.NewFCMSender(cfg.FCMEndpoint, cfg.FCMServerKey)
	} else {
		slog.Warn("FCM_SERVER_KEY not set, push notifications are log-only")
		sender = &broadcast.LogSender{Logger: logger}
	}
	broadcaster := broadcast.NewBroadcaster(orderRepo, scrapperRepo, sender, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, broadcast.NewBroadcastOrderWorker(broadcaster))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueueBroadcast := func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
		_, err := riverClient.InsertTx(ctx, tx, broadcast.BroadcastOrderArgs{OrderID: orderID}, nil)
		return err
	}

	// Services
	authSvc := auth.NewService(pool, userRepo, scrapperRepo, walletRepo, ledgerSvc, cfg.JWTSecret)
	orderSvc := orders.NewService(pool, orderRepo, scrapperRepo, ledgerSvc, enqueueBroadcast, cfg.MinBalance, logger)
	gateway := wallet.NewSandboxGateway(cfg.PaymentSecret)
	walletSvc := wallet.NewService(ledgerSvc, walletRepo, orderRepo, gateway, logger)

	// Handlers
	authHandler := auth.NewHandler(authSvc, logger)
	orderHandler := orders.NewHandler(orderSvc, logger)
	walletHandler := wallet.NewHandler(walletSvc, logger)
	scrapperHandler := scrappers.NewHandler(scrapperRepo, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, authSvc, authHandler, orderHandler, walletHandler, scrapperHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes broadcast jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
