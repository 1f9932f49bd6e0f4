package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/divingclub/clubattrs/internal/infrastructure/config"
	"github.com/divingclub/clubattrs/internal/infrastructure/database"
	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var (
	envFlag string
	pg      *database.Postgres
	logger  = logging.New("info", "text")
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for clubattrs",
	Long: `Database migration tool for clubattrs.
Manages PostgreSQL schema migrations embedded in the binary using golang-migrate.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupDatabase,
	PersistentPostRunE: closeDatabase,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("migration command failed", "error", err)
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	logger.Info("using environment", "env", envFlag)

	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to database",
		"user", cfg.Database.User,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Database,
	)
	return nil
}

func closeDatabase(cmd *cobra.Command, args []string) error {
	if pg == nil {
		return nil
	}
	return pg.Close()
}

func withMigrate(fn func(m *migrate.Migrate) error) error {
	m, err := database.NewMigrate(pg.DB)
	if err != nil {
		return err
	}
	return fn(m)
}

func runUp(cmd *cobra.Command, args []string) error {
	return withMigrate(func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to apply")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migration up completed")
		return nil
	})
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid steps %q", args[0])
		}
		steps = n
	}

	return withMigrate(func(m *migrate.Migrate) error {
		err := m.Steps(-steps)
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to rollback")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("migration down completed", "steps", steps)
		return nil
	})
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	return withMigrate(func(m *migrate.Migrate) error {
		err := m.Migrate(uint(version))
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("already at version", "version", version)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migration goto failed: %w", err)
		}
		logger.Info("migration goto completed", "version", version)
		return nil
	})
}

func runVersion(cmd *cobra.Command, args []string) error {
	return withMigrate(func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)
		return nil
	})
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	return withMigrate(func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migration force failed: %w", err)
		}
		logger.Info("migration forced", "version", version)
		return nil
	})
}
