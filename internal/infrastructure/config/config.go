package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Eligibility EligibilityConfig
	Log         LogConfig
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	MetricsPath     string
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig represents the definition cache configuration
type CacheConfig struct {
	Enabled        bool
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 16777216 = 16MB)
	TTLMinutes     int   // Time-to-live for cache entries in minutes
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// EligibilityConfig holds the condition evaluation policies.
type EligibilityConfig struct {
	UnknownOperator string // "allow" or "deny"
	EAVFallback     bool
	StrictEquality  bool
	DefaultMessage  string
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Config file is optional
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	SetDefaults()

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PATH", "/metrics")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "clubattrs")
	viper.SetDefault("DB_NAME", "clubattrs_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 16*1024*1024) // 16MB
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	viper.SetDefault("ELIGIBILITY_UNKNOWN_OPERATOR", "allow")
	viper.SetDefault("ELIGIBILITY_EAV_FALLBACK", true)
	viper.SetDefault("ELIGIBILITY_STRICT_EQUALITY", false)
	viper.SetDefault("ELIGIBILITY_DEFAULT_MESSAGE", "You do not meet the requirements for this action.")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:            viper.GetString("SERVER_HOST"),
			Port:            viper.GetInt("SERVER_PORT"),
			MetricsPath:     viper.GetString("METRICS_PATH"),
			ShutdownTimeout: viper.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetInt("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     dbPassword,
			Database:     viper.GetString("DB_NAME"),
			SSLMode:      viper.GetString("DB_SSLMODE"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Eligibility: EligibilityConfig{
			UnknownOperator: strings.ToLower(strings.TrimSpace(viper.GetString("ELIGIBILITY_UNKNOWN_OPERATOR"))),
			EAVFallback:     viper.GetBool("ELIGIBILITY_EAV_FALLBACK"),
			StrictEquality:  viper.GetBool("ELIGIBILITY_STRICT_EQUALITY"),
			DefaultMessage:  viper.GetString("ELIGIBILITY_DEFAULT_MESSAGE"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values viper cannot type-check on its own.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	switch c.Eligibility.UnknownOperator {
	case "", "allow", "deny":
	default:
		return fmt.Errorf("invalid ELIGIBILITY_UNKNOWN_OPERATOR: %q (want allow or deny)", c.Eligibility.UnknownOperator)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q (want json or text)", c.Log.Format)
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
