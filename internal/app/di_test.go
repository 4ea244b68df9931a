package app

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/billingsync/internal/config"
	"github.com/allisson/billingsync/internal/metrics"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		LogLevel:                       "info",
		DBDriver:                       driver,
		ServerHost:                     "localhost",
		ServerPort:                     8080,
		MetricsNamespace:               "billingsync",
		RateLimitWebhookEnabled:        true,
		RateLimitWebhookRequestsPerSec: 20,
		RateLimitWebhookBurst:          40,
		StripeSecretKey:                "sk_test_123",
		StripeWebhookSecret:            "whsec_123",
		StoreBreakerFailureThreshold:   5,
		StoreBreakerOpenTimeout:        30 * time.Second,
		StoreRetryMaxAttempts:          2,
		StoreRetryInitialInterval:      100 * time.Millisecond,
		StoreRetryMaxInterval:          2 * time.Second,
		WebhookProcessingTTL:           10 * time.Minute,
		BillingRepairPollInterval:      30 * time.Second,
		BillingRepairBackoffFactor:     2,
		BillingRepairMaxPerRun:         25,
		BillingRepairMaxAttempts:       5,
		BillingRepairScanLimit:         25,
		WebhookReconcilePollInterval:   5 * time.Minute,
		WebhookReconcileBackoffFactor:  2,
		WebhookReconcileLookback:       72 * time.Hour,
	}
}

// newContainerWithDB returns a container whose database is already initialized with db.
func newContainerWithDB(t *testing.T, cfg *config.Config, db *sql.DB) *Container {
	t.Helper()
	container := NewContainer(cfg)
	container.dbInit.Do(func() {
		container.db = db
	})
	return container
}

func TestNewContainer(t *testing.T) {
	cfg := testConfig("postgres")

	container := NewContainer(cfg)

	require.NotNil(t, container)
	assert.Same(t, cfg, container.Config())
}

func TestContainerLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "invalid"} {
		t.Run(level, func(t *testing.T) {
			container := NewContainer(&config.Config{LogLevel: level})

			logger := container.Logger()
			require.NotNil(t, logger)
			assert.Same(t, logger, container.Logger())
		})
	}
}

func TestContainerDB_InitializationError(t *testing.T) {
	container := NewContainer(&config.Config{DBDriver: "invalid_driver"})

	_, err := container.DB()
	assert.Error(t, err)

	_, err = container.DB()
	assert.Error(t, err, "the stored error is returned on later calls")

	_, err = container.TxManager()
	assert.Error(t, err)
}

func TestContainer_MetricsDisabled(t *testing.T) {
	container := NewContainer(testConfig("postgres"))

	provider, err := container.MetricsProvider()
	require.NoError(t, err)
	assert.Nil(t, provider)

	businessMetrics, err := container.BusinessMetrics()
	require.NoError(t, err)
	assert.IsType(t, metrics.NewNoOpBusinessMetrics(), businessMetrics)

	alerts, err := container.AlertRecorder()
	require.NoError(t, err)
	assert.NotNil(t, alerts)

	metricsServer, err := container.MetricsServer()
	require.NoError(t, err)
	assert.Nil(t, metricsServer)
}

func TestContainer_MetricsEnabled(t *testing.T) {
	cfg := testConfig("postgres")
	cfg.MetricsEnabled = true
	cfg.MetricsPort = 9090
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	container := newContainerWithDB(t, cfg, db)
	t.Cleanup(func() {
		_ = container.Shutdown(context.Background())
	})

	provider, err := container.MetricsProvider()
	require.NoError(t, err)
	require.NotNil(t, provider)

	metricsServer, err := container.MetricsServer()
	require.NoError(t, err)
	require.NotNil(t, metricsServer)

	w := httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/workers", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "billing_profile_repair")
	assert.Contains(t, w.Body.String(), "webhook_reconciliation")

	_, err = container.BusinessMetrics()
	require.NoError(t, err)
	_, err = container.AlertRecorder()
	require.NoError(t, err)
}

func TestContainer_Singletons(t *testing.T) {
	container := NewContainer(testConfig("postgres"))

	assert.NotNil(t, container.StoreExecutor())
	assert.Equal(t, container.StoreExecutor(), container.StoreExecutor())
	assert.NotNil(t, container.AdminTokenService())
	assert.Equal(t, container.AdminTokenService(), container.AdminTokenService())
}

func TestContainer_WiresComponents(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			container := newContainerWithDB(t, testConfig(driver), db)
			t.Cleanup(func() {
				_ = container.Shutdown(context.Background())
			})

			ledger, err := container.WebhookLedger()
			require.NoError(t, err)
			assert.NotNil(t, ledger)

			store, err := container.ConsistencyStore()
			require.NoError(t, err)
			assert.NotNil(t, store)

			profiles, err := container.ProfileUseCase()
			require.NoError(t, err)
			assert.NotNil(t, profiles)

			repairWorker, err := container.RepairWorker()
			require.NoError(t, err)
			assert.Equal(t, "billing_profile_repair", repairWorker.Name())

			reconciliationWorker, err := container.ReconciliationWorker()
			require.NoError(t, err)
			assert.Equal(t, "webhook_reconciliation", reconciliationWorker.Name())

			server, err := container.HTTPServer()
			require.NoError(t, err)
			assert.NotNil(t, server)

			again, err := container.HTTPServer()
			require.NoError(t, err)
			assert.Same(t, server, again)
		})
	}
}

func TestContainer_UnsupportedDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	container := newContainerWithDB(t, testConfig("sqlite"), db)
	t.Cleanup(func() {
		_ = container.Shutdown(context.Background())
	})

	_, err = container.WebhookEventRepository()
	assert.ErrorContains(t, err, "unsupported database driver: sqlite")

	_, err = container.UnresolvedEventRepository()
	assert.Error(t, err)

	_, err = container.BillingProfileRepairRepository()
	assert.Error(t, err)

	_, err = container.BillingProfileRepository()
	assert.Error(t, err)

	_, err = container.HTTPServer()
	assert.Error(t, err)
}

func TestContainer_RedisCacheUnavailable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	cfg := testConfig("postgres")
	cfg.WebhookLedgerCacheEnabled = true
	cfg.RedisAddr = "127.0.0.1:1"
	container := newContainerWithDB(t, cfg, db)
	t.Cleanup(func() {
		_ = container.Shutdown(context.Background())
	})

	_, err = container.WebhookLedger()
	assert.ErrorContains(t, err, "redis")
}

func TestContainerShutdown(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "info"})

	assert.NoError(t, container.Shutdown(context.Background()))
}
