// pnl-job считает дневной P&L за вчера по всем аккаунтам и сохраняет
// результаты в базу. Запускается как долгоживущий воркер с интервалом
// или разово с флагом -once.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt5_backoffice/internal/config"
	"mt5_backoffice/internal/logging"
	"mt5_backoffice/internal/metrics"
	"mt5_backoffice/internal/models"
	"mt5_backoffice/internal/mt5"
	"mt5_backoffice/internal/pnl"
	"mt5_backoffice/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single calculation and exit")
	date := flag.String("date", "", "calculate for specific date (YYYY-MM-DD), default yesterday")
	flag.Parse()

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "./pnl-job.log"
	}

	logger, closeLog := logging.New(logFile)
	defer closeLog()

	slog.SetDefault(logger)

	cfg := config.Load(logger)

	db, err := storage.NewStorage(cfg.DBPath, logger)
	if err != nil {
		logger.Error("❌ Failed to init storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

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
	defer gateway.Disconnect()

	engine := pnl.NewEngine(gateway, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		logger.Info("🛑 Stopping pnl-job...")
		cancel()
	}()

	if *once {
		if err := runOnce(ctx, engine, db, logger, *date); err != nil {
			os.Exit(1)
		}

		return
	}

	logger.Info("🚀 P&L worker started", slog.Duration("interval", cfg.PnLJobInterval))

	ticker := time.NewTicker(cfg.PnLJobInterval)
	defer ticker.Stop()

	// Первый прогон сразу, дальше по интервалу
	runOnce(ctx, engine, db, logger, "")

	for {
		select {
		case <-ticker.C:
			runOnce(ctx, engine, db, logger, "")
		case <-ctx.Done():
			logger.Info("✅ P&L worker stopped")
			return
		}
	}
}

func runOnce(ctx context.Context, engine *pnl.Engine, db *storage.Storage, logger *slog.Logger, rawDate string) error {
	date := time.Now().UTC().AddDate(0, 0, -1)

	if rawDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", rawDate, time.UTC)
		if err != nil {
			logger.Error("❌ Invalid date", slog.String("date", rawDate))
			return err
		}

		date = parsed
	}

	day := date.Format("2006-01-02")

	logger.Info("🔧 Calculating daily P&L", slog.String("date", day))

	perAccount, err := engine.CalculateAllAccounts(ctx, date)
	if err != nil {
		logger.Error("❌ P&L calculation failed", slog.String("date", day), slog.Any("error", err))
		metrics.PnLJobRuns.WithLabelValues("error").Inc()

		return err
	}

	saved := 0

	for i := range perAccount {
		if err := db.UpsertDailyPnL(toRecord(&perAccount[i])); err != nil {
			logger.Error("❌ Failed to save pnl record",
				slog.Int64("login", perAccount[i].Login), slog.Any("error", err))

			continue
		}

		saved++
	}

	total := pnl.AggregateInstitution(perAccount, date)
	if err := db.UpsertDailyPnL(toRecord(total)); err != nil {
		logger.Error("❌ Failed to save institution aggregate", slog.Any("error", err))
	}

	metrics.PnLJobRuns.WithLabelValues("success").Inc()

	logger.Info("✅ Daily P&L saved",
		slog.String("date", day),
		slog.Int("accounts", saved),
		slog.Float64("institution_net_pnl", total.NetPnL))

	return nil
}

func toRecord(p *mt5.DailyPnL) *models.DailyPnLRecord {
	return &models.DailyPnLRecord{
		Day:                p.Date,
		Login:              p.Login,
		PresentEquity:      p.PresentEquity,
		EquityPrevDay:      p.EquityPrevDay,
		Deposit:            p.Deposit,
		Withdrawal:         p.Withdrawal,
		NetDeposit:         p.NetDeposit,
		Credit:             p.Credit,
		Promotion:          p.Promotion,
		NetCreditPromotion: p.NetCreditPromotion,
		TotalIB:            p.TotalIB,
		Rebate:             p.Rebate,
		EquityPnL:          p.EquityPnL,
		NetPnL:             p.NetPnL,
		Group:              p.Group,
		Currency:           p.Currency,
	}
}
