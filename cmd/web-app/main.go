package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt5_backoffice/internal/api"
	"mt5_backoffice/internal/auth"
	"mt5_backoffice/internal/config"
	"mt5_backoffice/internal/ledger"
	"mt5_backoffice/internal/logging"
	"mt5_backoffice/internal/mt5"
	"mt5_backoffice/internal/pnl"
	"mt5_backoffice/internal/storage"
	"mt5_backoffice/internal/stream"
)

func main() {
	logger, closeLog := logging.New(getLogFile())
	defer closeLog()

	slog.SetDefault(logger)

	cfg := config.Load(logger)

	db, err := storage.NewStorage(cfg.DBPath, logger)
	if err != nil {
		logger.Error("❌ Failed to init storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	authService := auth.NewService(cfg.JWTSecret, 24*time.Hour)

	bridge := mt5.NewBridgeClient(logger, cfg.MT5CallTimeout)

	gateway := mt5.NewSession(bridge, mt5.Options{
		Host:             cfg.MT5Host,
		Port:             cfg.MT5Port,
		Login:            cfg.MT5Login,
		Password:         cfg.MT5Password,
		CallTimeout:      cfg.MT5CallTimeout,
		MaxRetries:       cfg.MT5MaxRetries,
		BackoffBase:      time.Second,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCoolDown:  cfg.BreakerCoolDown,
	}, logger)

	// Первое подключение: ошибка не фатальна, ретраи восстановят связь
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MT5CallTimeout)
	if err := gateway.Connect(ctx); err != nil {
		logger.Warn("⚠️  Initial MT5 connection failed, will retry on demand",
			slog.Any("error", err))
	}
	cancel()

	engine := pnl.NewEngine(gateway, logger)
	guard := ledger.NewGuard(db, gateway, logger)
	streamer := stream.NewStreamer(gateway, cfg.PollInterval, logger)

	handler := api.New(db, authService, gateway, engine, guard, streamer, logger)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler.SetupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket трансляции живут дольше любого таймаута
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("🚀 HTTP server started", slog.String("address", cfg.Address))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ HTTP server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("🛑 Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	streamer.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("❌ Server shutdown failed", slog.Any("error", err))
	}

	if err := gateway.Disconnect(); err != nil {
		logger.Warn("⚠️  MT5 disconnect failed", slog.Any("error", err))
	}

	logger.Info("✅ Shutdown complete")
}

func getLogFile() string {
	if path := os.Getenv("LOG_FILE"); path != "" {
		return path
	}

	return "./backoffice.log"
}
