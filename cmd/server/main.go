// Package main is the entry point for CardSentry, a billing-cycle tracking
// service for credit card accounts. It derives statement periods from
// provider snapshots and imported transactions, reconciles them against
// reported statement balances, and serves the results over a REST API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nvasko/cardsentry/internal/clientdata"
	"github.com/nvasko/cardsentry/internal/clients/provider"
	"github.com/nvasko/cardsentry/internal/config"
	"github.com/nvasko/cardsentry/internal/database"
	"github.com/nvasko/cardsentry/internal/domain"
	"github.com/nvasko/cardsentry/internal/events"
	"github.com/nvasko/cardsentry/internal/modules/accounts"
	"github.com/nvasko/cardsentry/internal/modules/classify"
	"github.com/nvasko/cardsentry/internal/modules/cycles"
	"github.com/nvasko/cardsentry/internal/modules/issuers"
	"github.com/nvasko/cardsentry/internal/modules/settings"
	"github.com/nvasko/cardsentry/internal/modules/transactions"
	"github.com/nvasko/cardsentry/internal/reliability"
	"github.com/nvasko/cardsentry/internal/scheduler"
	"github.com/nvasko/cardsentry/internal/server"
	"github.com/nvasko/cardsentry/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting CardSentry")

	// cards.db holds accounts, transactions, and derived cycles.
	cardsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cards.db"),
		Name:    "cards",
		Profile: database.ProfileStandard,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cards database")
	}
	defer cardsDB.Close()

	// client_data.db caches provider responses; losing it only costs API calls.
	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Name:    "client_data",
		Profile: database.ProfileCache,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open client data database")
	}
	defer clientDataDB.Close()

	for _, db := range []*database.DB{cardsDB, clientDataDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Repositories
	accountRepo := accounts.NewRepository(cardsDB.Conn(), log)
	transactionRepo := transactions.NewRepository(cardsDB.Conn(), log)
	cycleRepo := cycles.NewRepository(cardsDB.Conn(), log)
	settingsRepo := settings.NewRepository(cardsDB.Conn(), log)
	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())

	// Provider client with cache-first statement period lookups
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderToken, cacheRepo, log)

	// Issuer policy table, optionally extended from a YAML file
	policyTable := issuers.NewTable()
	if cfg.IssuerPoliciesPath != "" {
		policyTable, err = issuers.LoadTable(cfg.IssuerPoliciesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.IssuerPoliciesPath).Msg("Failed to load issuer policies")
		}
		log.Info().Str("path", cfg.IssuerPoliciesPath).Msg("Issuer policies loaded")
	}

	// Cycle engine
	generator := cycles.NewBoundaryGenerator(log)
	reconciler := cycles.NewReconciler(log)

	if tolerance, err := settingsRepo.GetFloat(settings.KeyPaymentMatchTolerance, 0); err == nil && tolerance > 0 {
		reconciler.SetTolerance(tolerance)
	}
	if graceDays, err := settingsRepo.GetInt(settings.KeyDueGraceDays, 0); err == nil && graceDays > 0 {
		generator.SetDueGraceDays(graceDays)
	}
	if ttlHours, err := settingsRepo.GetInt(settings.KeyStatementPeriodTTLHours, 0); err == nil && ttlHours > 0 {
		providerClient.SetStatementPeriodTTL(time.Duration(ttlHours) * time.Hour)
	}

	clock := domain.ClockFunc(time.Now)
	cycleService := cycles.NewService(generator, reconciler, classify.New(), providerClient, clock, log)

	eventBus := events.NewBus(log)
	orchestrator := cycles.NewOrchestrator(
		cycleService, accountRepo, transactionRepo, cycleRepo, policyTable, providerClient, eventBus, log,
	)

	// Background jobs
	sched := scheduler.New(log)
	refreshJob := scheduler.NewRefreshCyclesJob(orchestrator, log)

	if err := sched.AddJob("0 0 */6 * * *", refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register refresh job")
	}
	if err := sched.AddJob("0 30 4 * * *", clientdata.NewCleanupJob(cacheRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	if err := sched.AddJob("0 0 * * * *", scheduler.NewWALCheckpointJob([]*database.DB{cardsDB, clientDataDB}, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}

	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		backupService := reliability.NewBackupService(
			s3Client,
			[]*database.DB{cardsDB},
			cfg.DataDir,
			cfg.Backup.RetainCount,
			log,
		)
		if err := sched.AddJob("0 0 3 * * *", reliability.NewBackupJob(backupService, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Info().Msg("Backups disabled, no S3 bucket configured")
	}

	sched.Start()

	// HTTP server
	srv := server.New(server.Config{
		Log:          log,
		CardsDB:      cardsDB,
		ClientDataDB: clientDataDB,
		Config:       cfg,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		AccountRepo:  accountRepo,
		CycleRepo:    cycleRepo,
		Orchestrator: orchestrator,
		EventBus:     eventBus,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	// Prime the cycle chain shortly after startup so the dashboard is never
	// empty while waiting for the first scheduled run.
	go func() {
		time.Sleep(5 * time.Second)
		if err := sched.RunNow(refreshJob); err != nil {
			log.Warn().Err(err).Msg("Initial cycle refresh failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	// Stop scheduling new jobs first; in-progress jobs finish on their own.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
