package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/rueidis"
	"github.com/robalyx/decelerator/internal/database"
	"github.com/robalyx/decelerator/internal/database/migrations"
	"github.com/robalyx/decelerator/internal/fediverse/provider"
	"github.com/robalyx/decelerator/internal/redis"
	"github.com/robalyx/decelerator/internal/security"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/robalyx/decelerator/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	Providers    *provider.Factory  // Remote server API clients
	RedisManager *redis.Manager     // Redis connection manager
	StatusClient rueidis.Client     // Redis client for worker status reporting
	LogManager   *telemetry.Manager // Log management system
	shutdown     func(context.Context)
}

// Options tweaks how InitializeApp prepares the database.
type Options struct {
	// WorkerType names the worker log files.
	WorkerType string
	// AutoMigrate applies pending migrations without asking.
	AutoMigrate bool
	// SkipMigrationCheck opens the database without looking at migrations.
	SkipMigrationCheck bool
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string, opts Options) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager, err := telemetry.NewManager(ctx, serviceType, logDir, &cfg.Common, opts.WorkerType)
	if err != nil {
		return nil, err
	}

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		logManager.Stop()
		return nil, err
	}

	shutdown, err := telemetry.InitExporters(&cfg.Common, serviceType)
	if err != nil {
		logger.Error("Failed to initialize telemetry exporters", zap.Error(err))

		shutdown = func(context.Context) {}
	}

	sealer, err := security.NewSealer(cfg.Common.Security.TokenKey)
	if err != nil {
		logManager.Stop()
		return nil, err
	}

	// Redis manager provides connection pools for various subsystems
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.Database, sealer, dbLogger, opts)
	if err != nil {
		redisManager.Close()
		logManager.Stop()

		return nil, err
	}

	// Get Redis client for worker status reporting
	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		_ = db.Close()
		redisManager.Close()
		logManager.Stop()

		return nil, err
	}

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		Providers:    provider.New(cfg.Common.Remote, logger),
		RedisManager: redisManager,
		StatusClient: statusClient,
		LogManager:   logManager,
		shutdown:     shutdown,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Flush traces and error reports
	s.shutdown(ctx)

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Stop telemetry manager to flush Loki logs
	s.LogManager.Stop()

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.Database, sealer *security.Sealer, dbLogger *zap.Logger, opts Options,
) (database.Client, error) {
	bunDB, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	if opts.SkipMigrationCheck || opts.AutoMigrate {
		return database.NewClient(ctx, bunDB, sealer, dbLogger, opts.AutoMigrate)
	}

	migrator := migrate.NewMigrator(bunDB, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		_ = bunDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		_ = bunDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	runMigrations := false

	if unapplied := ms.Unapplied(); len(unapplied) > 0 {
		log.Printf("%d database migrations are pending. Would you like to run them now? (y/N)", len(unapplied))

		var response string

		_, _ = fmt.Scanln(&response)

		if response != "y" && response != "Y" {
			_ = bunDB.Close()
			log.Fatalf("Closing program due to incomplete migrations")
		}

		runMigrations = true
	}

	return database.NewClient(ctx, bunDB, sealer, dbLogger, runMigrations)
}
