package main

import (
	"context"
	"errors"
	"log" // Use standard log only for fatal errors before the logger is set up
	"net/http"
	"os/signal"
	"syscall"

	"tradegate/config"
	"tradegate/internal/adapters/binanceclient"
	"tradegate/internal/adapters/logger"
	"tradegate/internal/adapters/sqlite"
	"tradegate/internal/adapters/statestore"
	"tradegate/internal/app"
	"tradegate/internal/exitrules"
	"tradegate/internal/ledger"
	"tradegate/internal/monitoring"
	"tradegate/internal/ports"
	"tradegate/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, cleanup, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel, "format": cfg.LogFormat})

	// 3. Initialize Trade Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing trade journal")
		}
	}()

	// 4. Initialize Snapshot Store
	store, err := statestore.NewFileStore(cfg.SnapshotPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize snapshot store")
		log.Fatalf("FATAL: Failed to initialize snapshot store: %v", err)
	}

	// 5. Initialize Exchange Client (Binance Adapter)
	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}
	if err := exchange.Ping(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Exchange is unreachable")
		log.Fatalf("FATAL: Exchange is unreachable: %v", err)
	}

	// 6. Build the engine core
	led := ledger.New(ledger.Config{
		InitialCapital:   cfg.StartingCapital,
		WeeklyWindowDays: cfg.WeeklyWindowDays,
	}, appLogger)
	gate := risk.NewGate(risk.Config{
		RiskPerTrade:            cfg.RiskPerTrade,
		MaxSingleFraction:       cfg.MaxSingleFraction,
		SectorCapFraction:       cfg.SectorCapFraction,
		MaxCorrelation:          cfg.MaxCorrelation,
		CorrelationLookback:     cfg.CorrelationLookback,
		MinAlignedReturns:       cfg.MinAlignedReturns,
		BetaNormal:              cfg.BetaNormal,
		BetaAggressive:          cfg.BetaAggressive,
		VolumeConfirmRatio:      cfg.VolumeConfirmRatio,
		DailyDrawdownThreshold:  cfg.DailyDrawdownThreshold,
		WeeklyDrawdownThreshold: cfg.WeeklyDrawdownThreshold,
	}, appLogger)
	exits := exitrules.NewEngine(exitrules.Config{
		PartialCloseFraction: cfg.PartialCloseFraction,
		BreakevenBuffer:      cfg.BreakevenBuffer,
		BreakevenMinProfit:   cfg.BreakevenMinProfit,
		TrailingATRMultiple:  cfg.TrailingATRMultiple,
		FlashCrashThreshold:  cfg.FlashCrashThreshold,
		MaxHoldingSessions:   cfg.MaxHoldingSessions,
		WeekCutoffHour:       cfg.WeekCutoffHour,
	})
	metrics := monitoring.NewMetrics()

	orch, err := app.New(app.Config{
		RiskPerTrade:        cfg.RiskPerTrade,
		MaxSingleFraction:   cfg.MaxSingleFraction,
		EntryOffsetFraction: cfg.EntryOffsetFraction,
		BackupStopFraction:  cfg.BackupStopFraction,
		PanicDailyDrawdown:  cfg.PanicDailyDrawdown,
		MaxTotalDrawdown:    cfg.MaxTotalDrawdown,
		TickInterval:        cfg.TickInterval,
		QuoteTimeout:        cfg.QuoteTimeout,
	}, appLogger, led, gate, exits, exchange, exchange, journal, store, metrics)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize orchestrator")
		log.Fatalf("FATAL: Failed to initialize orchestrator: %v", err)
	}

	// 7. Restore persisted portfolio state
	if err := orch.RestoreFromStore(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to restore portfolio state")
		log.Fatalf("FATAL: Failed to restore portfolio state: %v", err)
	}

	// 8. Expose metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		appLogger.Info(ctx, "Metrics server listening", map[string]interface{}{"addr": cfg.MetricsAddr})
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(ctx, err, "Metrics server failed")
		}
	}()
	defer metricsSrv.Close()

	// 9. Run the tick loop until interrupted
	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(ctx, err, "Orchestrator exited with error")
		log.Fatalf("FATAL: Orchestrator exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

func buildLogger(cfg *config.Config) (ports.Logger, func(), error) {
	if cfg.LogFormat == "std" {
		return logger.NewStdLogger(logger.ParseLevel(cfg.LogLevel)), func() {}, nil
	}
	zl, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return zl, func() { _ = zl.Sync() }, nil
}
