// Package main is the entry point for the riskcore factor risk service.
// It wires the four-database layout, the risk pipeline services, the batch
// scheduler, and the HTTP API, then waits for a shutdown signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskcore/internal/clients/stooq"
	"github.com/aristath/riskcore/internal/config"
	"github.com/aristath/riskcore/internal/database"
	"github.com/aristath/riskcore/internal/modules/correlation"
	"github.com/aristath/riskcore/internal/modules/exposure"
	"github.com/aristath/riskcore/internal/modules/factors"
	"github.com/aristath/riskcore/internal/modules/greeks"
	"github.com/aristath/riskcore/internal/modules/marketdata"
	"github.com/aristath/riskcore/internal/modules/portfolio"
	"github.com/aristath/riskcore/internal/modules/quality"
	"github.com/aristath/riskcore/internal/modules/stress"
	"github.com/aristath/riskcore/internal/orchestrator"
	"github.com/aristath/riskcore/internal/reliability"
	"github.com/aristath/riskcore/internal/scheduler"
	"github.com/aristath/riskcore/internal/server"
	"github.com/aristath/riskcore/pkg/logger"
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
	log.Info().Msg("Starting riskcore")

	databases := openDatabases(cfg, log)
	defer func() {
		for name, db := range databases {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Str("database", name).Msg("Failed to close database")
			}
		}
	}()

	// Catalogs are seeded on every startup so edits to the YAML files take
	// effect after a restart
	factorRepo := factors.NewRepository(databases["market"].Conn(), log)
	seedFactorCatalog(cfg, factorRepo, log)

	stressRepo := stress.NewRepository(databases["risk"].Conn(), log)
	seedScenarioCatalog(cfg, stressRepo, log)

	// Market data
	priceRepo := marketdata.NewPriceRepository(databases["market"].Conn(), log)
	provider := stooq.NewClient(log)
	syncService := marketdata.NewSyncService(provider, priceRepo, log)

	// Portfolio aggregation
	portfolioRepo := portfolio.NewRepository(databases["portfolio"].Conn(), log)
	positionRepo := portfolio.NewPositionRepository(databases["portfolio"].Conn(), log)
	portfolioService := portfolio.NewService(portfolioRepo, positionRepo, log)

	// Greeks: no provider wired yet, delta adjustment stays disabled until
	// a vendor integration lands
	greeksRepo := greeks.NewRepository(databases["portfolio"].Conn(), log)
	greeksService := greeks.NewService(nil, greeksRepo, log)

	// Quality validation
	qualityCfg := quality.DefaultConfig()
	qualityCfg.MinimumCoverage = cfg.MinimumCoverage
	validator := quality.NewValidator(priceRepo, qualityCfg, log)

	// Factor exposure engine
	exposureRepo := exposure.NewRepository(databases["risk"].Conn(), log)
	regressionPool := exposure.NewWorkerPool(cfg.RegressionWorkers)
	exposureService := exposure.NewService(factorRepo, positionRepo, greeksRepo,
		syncService, exposureRepo, regressionPool, log)

	// Correlation engine
	correlationRepo := correlation.NewRepository(databases["risk"].Conn(), log)
	correlationService := correlation.NewService(factorRepo, syncService, correlationRepo, log)

	// Stress engine
	stressService := stress.NewService(exposureRepo, correlationRepo,
		portfolioRepo, factorRepo, stressRepo, log)

	// Batch orchestrator
	orchestratorRepo := orchestrator.NewRepository(databases["jobs"].Conn(), log)
	orchestratorService := orchestrator.NewService(
		portfolioRepo, positionRepo, factorRepo,
		syncService, correlationService, validator,
		portfolioService, greeksService, exposureService, stressService,
		nil, // no report sink wired yet
		orchestratorRepo,
		orchestrator.Config{
			Workers:         cfg.PortfolioWorkers,
			MinimumCoverage: cfg.MinimumCoverage,
			DeltaAdjust:     true,
		},
		log,
	)

	// Scheduler: nightly batch, weekly deep correlation refresh, backups
	// and maintenance
	sched := scheduler.New(log)
	registerJobs(sched, cfg, databases, orchestratorService, correlationService, log)
	sched.Start()
	defer sched.Stop()

	// HTTP server
	handlers := server.NewHandlers(orchestratorService, orchestratorRepo,
		validator, positionRepo, exposureRepo, stressRepo, correlationRepo,
		databases, log)
	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		Databases: databases,
		Handlers:  handlers,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("riskcore stopped")
}

// openDatabases opens and migrates the four-database layout. The jobs
// database holds ephemeral run history and uses the cache profile.
func openDatabases(cfg *config.Config, log zerolog.Logger) map[string]*database.DB {
	profiles := map[string]database.DatabaseProfile{
		"market":    database.ProfileStandard,
		"portfolio": database.ProfileStandard,
		"risk":      database.ProfileStandard,
		"jobs":      database.ProfileCache,
	}

	databases := make(map[string]*database.DB, len(profiles))
	for name, profile := range profiles {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(name),
			Profile: profile,
			Name:    name,
		})
		if err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
		}
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
		}
		databases[name] = db
		log.Info().Str("database", name).Str("path", db.Path()).Msg("Database ready")
	}
	return databases
}

// seedFactorCatalog loads and seeds the factor catalog. A missing catalog
// is fatal: the pipeline is meaningless without factors.
func seedFactorCatalog(cfg *config.Config, repo *factors.Repository, log zerolog.Logger) {
	path := filepath.Join(cfg.ConfigDir, "factors.yaml")
	catalog, err := factors.LoadCatalog(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load factor catalog")
	}
	if err := repo.Seed(catalog); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed factor catalog")
	}
	log.Info().Int("factors", len(catalog)).Msg("Factor catalog seeded")
}

// seedScenarioCatalog loads and seeds the stress scenario catalog. A
// malformed catalog is fatal at startup; at batch time it would only fail
// the stress stage.
func seedScenarioCatalog(cfg *config.Config, repo *stress.Repository, log zerolog.Logger) {
	path := filepath.Join(cfg.ConfigDir, "scenarios.yaml")
	catalog, err := stress.LoadCatalog(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load scenario catalog")
	}
	if err := repo.SeedScenarios(catalog); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed scenario catalog")
	}
	log.Info().Int("scenarios", len(catalog)).Msg("Scenario catalog seeded")
}

// registerJobs wires the recurring jobs: the nightly batch, the weekly
// deep correlation refresh, daily local backups with optional cloud
// replication, and database maintenance.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	databases map[string]*database.DB,
	orchestratorService *orchestrator.Service,
	correlationService *correlation.Service,
	log zerolog.Logger,
) {
	mustAdd := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}

	mustAdd(cfg.BatchSchedule, scheduler.NewNightlyBatchJob(orchestratorService, 0, log))
	mustAdd(cfg.WeeklySchedule, scheduler.NewWeeklyCorrelationJob(correlationService, 0, log))

	backupDir := filepath.Join(cfg.DataDir, "backups")
	backupService := reliability.NewBackupService(databases, backupDir, log)
	// 03:00, after the nightly batch window
	mustAdd("0 0 3 * * *", scheduler.NewFuncJob("daily_backup", backupService.DailyBackup))
	mustAdd("0 30 3 * * *", reliability.NewDailyMaintenanceJob(databases, backupDir, log))
	mustAdd("0 0 4 * * SUN", reliability.NewWeeklyMaintenanceJob(databases, log))

	if cfg.Backup.Bucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(),
			cfg.Backup.Region, cfg.Backup.Bucket, cfg.Backup.Prefix, log)
		if err != nil {
			log.Error().Err(err).Msg("Cloud backup disabled: failed to create S3 client")
			return
		}
		cloudBackup := reliability.NewCloudBackupService(s3Client, backupService, cfg.DataDir, log)
		mustAdd("0 15 3 * * *", scheduler.NewFuncJob("cloud_backup", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := cloudBackup.CreateAndUploadBackup(ctx); err != nil {
				return err
			}
			return cloudBackup.RotateOldBackups(ctx, 90)
		}))
	}
}
