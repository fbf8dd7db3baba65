// Package main is the entry point for the portfolio ledger service.
// The service tracks per-user portfolios (cash, positions, transactions),
// executes buy/sell orders against a live quote feed, and serves
// mark-to-market valuations over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/folio-hq/folio/internal/clients/alphavantage"
	"github.com/folio-hq/folio/internal/clients/yahoo"
	"github.com/folio-hq/folio/internal/config"
	"github.com/folio-hq/folio/internal/database"
	"github.com/folio-hq/folio/internal/events"
	"github.com/folio-hq/folio/internal/modules/ledger"
	ledgerhandlers "github.com/folio-hq/folio/internal/modules/ledger/handlers"
	"github.com/folio-hq/folio/internal/modules/valuation"
	valuationhandlers "github.com/folio-hq/folio/internal/modules/valuation/handlers"
	"github.com/folio-hq/folio/internal/reliability"
	"github.com/folio-hq/folio/internal/scheduler"
	"github.com/folio-hq/folio/internal/server"
	"github.com/folio-hq/folio/internal/services"
	"github.com/folio-hq/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting portfolio service")

	// Databases: the ledger holds the financial record, the cache holds
	// ephemeral quote data and is safe to lose.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := ledger.InitSchema(ledgerDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger schema")
	}

	eventBus := events.NewBus(log)

	// Quote chain: cached quotes first, then Yahoo, then Alpha Vantage
	// when a key is configured.
	priceService, err := services.NewPriceService(cacheDB.Conn(), cfg.PriceCacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price service")
	}
	priceService.AddProvider("yahoo", yahoo.NewClient(log))
	if cfg.AlphaVantageKey != "" {
		priceService.AddProvider("alphavantage", alphavantage.NewClient(cfg.AlphaVantageKey, log))
	}

	portfolioRepo := ledger.NewPortfolioRepository(ledgerDB.Conn(), log)
	ledgerService := ledger.NewService(portfolioRepo, eventBus, cfg.StartingCash, log)
	valuationService := valuation.NewService(priceService, cfg.PriceTimeout, log)

	ledgerHandlers := ledgerhandlers.NewHandler(ledgerService, cfg.DefaultUserID, log)
	valuationHandlers := valuationhandlers.NewHandler(
		ledgerService,
		valuationService,
		cfg.StartingCash,
		cfg.DefaultUserID,
		log,
	)

	srv := server.New(server.Config{
		Port:              cfg.Port,
		Log:               log,
		Config:            cfg,
		LedgerDB:          ledgerDB,
		CacheDB:           cacheDB,
		EventBus:          eventBus,
		LedgerHandlers:    ledgerHandlers,
		ValuationHandlers: valuationHandlers,
		DevMode:           cfg.DevMode,
	})

	databases := map[string]*database.DB{
		"ledger": ledgerDB,
		"cache":  cacheDB,
	}

	maintenanceJob := reliability.NewMaintenanceJob(databases, []reliability.CacheSweeper{priceService}, log)
	backupService := reliability.NewBackupService(databases, cfg.DataDir, cfg.BackupS3Bucket, cfg.BackupS3Prefix, log)

	sched := scheduler.New(log)
	if err := sched.Register("maintenance", cfg.MaintenanceSpec, maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	if err := sched.Register("backup", cfg.BackupSpec, scheduler.JobFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := backupService.Run(ctx); err != nil {
			return err
		}
		return backupService.PruneOld(30 * 24 * time.Hour)
	})); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}
	sched.Start()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Flush pending WAL frames so a cold start reads a clean database
	if err := ledgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Shutdown complete")
}
