package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkurbatov/zayavki-bot/internal/config"
	"github.com/dkurbatov/zayavki-bot/internal/crm"
	"github.com/dkurbatov/zayavki-bot/internal/handler"
	"github.com/dkurbatov/zayavki-bot/internal/ops"
	"github.com/dkurbatov/zayavki-bot/internal/repository/sqlite"
	"github.com/dkurbatov/zayavki-bot/internal/service"
	"github.com/dkurbatov/zayavki-bot/internal/store"
	"github.com/dkurbatov/zayavki-bot/internal/telegram"
	"github.com/dkurbatov/zayavki-bot/internal/vault"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	credVault, err := vault.New(cfg.VaultKey)
	if err != nil {
		slog.Error("vault key rejected", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations applied")

	users, err := store.Load(context.Background(), db.Users())
	if err != nil {
		slog.Error("failed to load users", "error", err)
		os.Exit(1)
	}
	slog.Info("users loaded", "count", users.Len())

	metrics := ops.NewMetrics(prometheus.DefaultRegisterer)
	remote := crm.NewClient(cfg.CRMBaseURL, cfg.HTTPTimeout, cfg.AcademicYearID, metrics)

	sessions := service.NewSessionManager(users, remote, credVault, metrics)
	orders := service.NewOrderService(sessions, remote, cfg.CRMBaseURL)
	approvals := service.NewApprovalService(sessions, users, remote, metrics)
	registration := service.NewRegistrationService(sessions, users, credVault)
	notices := service.NewNoticeThrottle(30 * time.Minute)

	bot, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}
	dispatcher := handler.NewDispatcher(bot, users, users, registration, orders, approvals, notices)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions.RestoreAll(ctx)

	opsServer := ops.NewServer(cfg.OpsAddr)
	go opsServer.Start()

	bot.Run(ctx, dispatcher.Dispatch)

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("ops server shutdown error", "error", err)
	}
	slog.Info("stopped")
}
