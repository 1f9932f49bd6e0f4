package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/divingclub/clubattrs/internal/handlers"
	infracache "github.com/divingclub/clubattrs/internal/infrastructure/cache"
	"github.com/divingclub/clubattrs/internal/infrastructure/config"
	"github.com/divingclub/clubattrs/internal/infrastructure/database"
	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/divingclub/clubattrs/internal/infrastructure/metrics"
	"github.com/divingclub/clubattrs/internal/repositories/postgres"
	"github.com/divingclub/clubattrs/internal/services/attributes"
	"github.com/divingclub/clubattrs/internal/services/eligibility"
	"github.com/divingclub/clubattrs/pkg/cache/memorycache"
	"github.com/spf13/cobra"
)

var (
	envFlag            string
	skipMigrationsFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Club attribute and eligibility HTTP server",
	Long: `Serves the attribute definition, value, condition and eligibility API
over PostgreSQL, with Prometheus metrics.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	defaultEnv := os.Getenv("ENV")
	if defaultEnv == "" {
		defaultEnv = "dev"
	}
	rootCmd.Flags().StringVarP(&envFlag, "env", "e", defaultEnv, "Environment to use (dev, test, prod)")
	rootCmd.Flags().BoolVar(&skipMigrationsFlag, "skip-migrations", false, "Do not apply migrations at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	logger.Info("connected to database",
		"user", cfg.Database.User,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Database,
	)

	if !skipMigrationsFlag {
		if err := pg.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	definitionRepo := postgres.NewPostgresDefinitionRepository(pg.DB)
	valueRepo := postgres.NewPostgresAttributeRepository(pg.DB)
	conditionRepo := postgres.NewPostgresConditionRepository(pg.DB)

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector)

	expressions, err := attributes.NewExpressionEngine()
	if err != nil {
		return fmt.Errorf("failed to create expression engine: %w", err)
	}
	validator := attributes.NewValidator(expressions)

	registryOpts := []attributes.RegistryOption{
		attributes.WithValidator(validator),
		attributes.WithLogger(logger),
	}
	if cfg.Cache.Enabled {
		defCache, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    cfg.Cache.CacheTTL(),
			EnableMetrics: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create definition cache: %w", err)
		}
		defer defCache.Close()
		collector.SetCache(defCache)
		registryOpts = append(registryOpts, attributes.WithCache(defCache, cfg.Cache.CacheTTL()))
	}
	registry := attributes.NewRegistry(definitionRepo, registryOpts...)
	store := attributes.NewStore(valueRepo, validator, exporter, logger)

	engine := eligibility.NewEngine(
		eligibility.DefaultResolvers(nil),
		store,
		eligibility.Policy{
			UnknownOperator: eligibility.UnknownOperatorPolicy(cfg.Eligibility.UnknownOperator),
			EAVFallback:     cfg.Eligibility.EAVFallback,
			StrictEquality:  cfg.Eligibility.StrictEquality,
		},
		exporter,
		logger,
	)
	gate := eligibility.NewGate(engine, conditionRepo,
		eligibility.WithDefaultMessage(cfg.Eligibility.DefaultMessage),
		eligibility.WithDecisionRecorder(exporter),
		eligibility.WithGateLogger(logger),
	)

	if cfg.Cache.Enabled {
		watcher := infracache.NewDefinitionWatcher(cfg.Database.ConnectionString(), registry, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("definition change listener unavailable, relying on cache TTL", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	router := handlers.NewRouter(handlers.Dependencies{
		Registry:    registry,
		Store:       store,
		Conditions:  conditionRepo,
		Gate:        gate,
		Health:      pg,
		Collector:   collector,
		Exporter:    exporter,
		MetricsPath: cfg.Server.MetricsPath,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		logger.Info("initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timeout exceeded, forcing close", "error", err)
		_ = srv.Close()
	}

	logger.Info("shutdown complete")
	return nil
}
