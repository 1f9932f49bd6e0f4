package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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
	"github.com/prometheus/client_golang/prometheus"
)

// E2ETestServer runs the full HTTP stack against the test database.
type E2ETestServer struct {
	Server   *httptest.Server
	Registry *attributes.Registry
	Cache    *memorycache.Cache
	DB       *sql.DB
	watcher  *infracache.DefinitionWatcher
	cancel   context.CancelFunc
}

// SetupE2ETest sets up an E2E test environment. The test is skipped when
// no database is configured or reachable.
func SetupE2ETest(t *testing.T) *E2ETestServer {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("failed to init config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Skipf("skipping e2e test: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("skipping e2e test: %v", err)
	}
	if err := pg.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	cleanupDatabase(t, pg.DB)

	logger := logging.Discard()
	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporterWithRegistry(collector, reg, reg)

	defCache, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
		DefaultTTL:    time.Hour,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	collector.SetCache(defCache)

	expressions, err := attributes.NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create expression engine: %v", err)
	}
	validator := attributes.NewValidator(expressions)

	definitionRepo := postgres.NewPostgresDefinitionRepository(pg.DB)
	conditionRepo := postgres.NewPostgresConditionRepository(pg.DB)
	registry := attributes.NewRegistry(definitionRepo,
		attributes.WithCache(defCache, time.Hour),
		attributes.WithValidator(validator),
	)
	store := attributes.NewStore(postgres.NewPostgresAttributeRepository(pg.DB), validator, exporter, logger)
	engine := eligibility.NewEngine(eligibility.DefaultResolvers(nil), store, eligibility.DefaultPolicy(), exporter, logger)
	gate := eligibility.NewGate(engine, conditionRepo, eligibility.WithDecisionRecorder(exporter))

	ctx, cancel := context.WithCancel(context.Background())
	watcher := infracache.NewDefinitionWatcher(cfg.Database.ConnectionString(), registry, logger)
	if err := watcher.Start(ctx); err != nil {
		cancel()
		t.Fatalf("failed to start definition watcher: %v", err)
	}

	server := httptest.NewServer(handlers.NewRouter(handlers.Dependencies{
		Registry:   registry,
		Store:      store,
		Conditions: conditionRepo,
		Gate:       gate,
		Health:     pg,
		Collector:  collector,
		Exporter:   exporter,
		Logger:     logger,
	}))

	return &E2ETestServer{
		Server:   server,
		Registry: registry,
		Cache:    defCache,
		DB:       pg.DB,
		watcher:  watcher,
		cancel:   cancel,
	}
}

// Teardown cleans up the E2E test environment
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	if e.Server != nil {
		e.Server.Close()
	}
	if e.watcher != nil {
		_ = e.watcher.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.DB != nil {
		cleanupDatabase(t, e.DB)
		e.DB.Close()
	}
}

// Do sends a JSON request and decodes the JSON response into out when out
// is non-nil. It returns the status code.
func (e *E2ETestServer) Do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// cleanupDatabase removes all data from test database
func cleanupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tables := []string{"attribute_values", "conditions", "attribute_definitions"}
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s", table)
		if _, err := db.ExecContext(ctx, query); err != nil {
			t.Logf("warning: failed to clean up table %s: %v", table, err)
		}
	}
}

// waitFor polls cond until it holds or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}
