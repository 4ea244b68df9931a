// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	authService "github.com/allisson/billingsync/internal/auth/service"
	billingUseCase "github.com/allisson/billingsync/internal/billing/usecase"
	"github.com/allisson/billingsync/internal/config"
	consistencyUseCase "github.com/allisson/billingsync/internal/consistency/usecase"
	"github.com/allisson/billingsync/internal/database"
	"github.com/allisson/billingsync/internal/http"
	"github.com/allisson/billingsync/internal/metrics"
	"github.com/allisson/billingsync/internal/processor"
	"github.com/allisson/billingsync/internal/resilience"
	webhookUseCase "github.com/allisson/billingsync/internal/webhook/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// ctx scopes background goroutines owned by container components; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	redisClient     *redis.Client
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	alertRecorder   metrics.AlertRecorder
	storeExecutor   resilience.Executor

	// Managers
	txManager database.TxManager

	// Services
	adminTokenService authService.AdminTokenService
	paymentProcessor  processor.Client

	// Repositories
	webhookEventRepository    webhookUseCase.WebhookEventRepository
	unresolvedEventRepository consistencyUseCase.UnresolvedEventRepository
	repairRepository          consistencyUseCase.BillingProfileRepairRepository
	billingProfileRepository  billingUseCase.BillingProfileRepository

	// Use Cases
	webhookLedger    webhookUseCase.WebhookLedger
	consistencyStore consistencyUseCase.ConsistencyStore
	profileUseCase   billingUseCase.ProfileUseCase
	webhookHandlers  *billingUseCase.WebhookHandlers
	dispatcher       *webhookUseCase.Dispatcher

	// Servers and Workers
	httpServer           *http.Server
	metricsServer        *http.MetricsServer
	repairWorker         *billingUseCase.RepairWorker
	reconciliationWorker *webhookUseCase.ReconciliationWorker

	// Initialization flags and mutex for thread-safety
	mu                            sync.Mutex
	loggerInit                    sync.Once
	dbInit                        sync.Once
	redisClientInit               sync.Once
	metricsProviderInit           sync.Once
	businessMetricsInit           sync.Once
	alertRecorderInit             sync.Once
	storeExecutorInit             sync.Once
	txManagerInit                 sync.Once
	adminTokenServiceInit         sync.Once
	paymentProcessorInit          sync.Once
	webhookEventRepositoryInit    sync.Once
	unresolvedEventRepositoryInit sync.Once
	repairRepositoryInit          sync.Once
	billingProfileRepositoryInit  sync.Once
	webhookLedgerInit             sync.Once
	consistencyStoreInit          sync.Once
	profileUseCaseInit            sync.Once
	webhookHandlersInit           sync.Once
	dispatcherInit                sync.Once
	httpServerInit                sync.Once
	metricsServerInit             sync.Once
	repairWorkerInit              sync.Once
	reconciliationWorkerInit      sync.Once
	initErrors                    map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	ctx, cancel := context.WithCancel(context.Background())
	return &Container{
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// RedisClient returns the Redis client used by the processed-event cache.
func (c *Container) RedisClient() (*redis.Client, error) {
	var err error
	c.redisClientInit.Do(func() {
		c.redisClient, err = c.initRedisClient()
		if err != nil {
			c.initErrors["redisClient"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["redisClient"]; exists {
		return nil, storedErr
	}
	return c.redisClient, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op recorder is returned
// when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// AlertRecorder returns the operator alert sink. Alerts are only logged when metrics are disabled.
func (c *Container) AlertRecorder() (metrics.AlertRecorder, error) {
	var err error
	c.alertRecorderInit.Do(func() {
		c.alertRecorder, err = c.initAlertRecorder()
		if err != nil {
			c.initErrors["alertRecorder"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["alertRecorder"]; exists {
		return nil, storedErr
	}
	return c.alertRecorder, nil
}

// StoreExecutor returns the circuit breaker and retry executor shared by all store calls.
func (c *Container) StoreExecutor() resilience.Executor {
	c.storeExecutorInit.Do(func() {
		c.storeExecutor = c.initStoreExecutor()
	})
	return c.storeExecutor
}

// AdminTokenService returns the operator token service.
func (c *Container) AdminTokenService() authService.AdminTokenService {
	c.adminTokenServiceInit.Do(func() {
		c.adminTokenService = authService.NewAdminTokenService()
	})
	return c.adminTokenService
}

// HTTPServer returns the HTTP server with its router configured.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()

	var shutdownErrors []error

	if c.repairWorker != nil {
		c.repairWorker.Stop()
	}
	if c.reconciliationWorker != nil {
		c.reconciliationWorker.Stop()
	}

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initRedisClient connects to Redis and verifies the connection.
func (c *Container) initRedisClient() (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.config.RedisAddr,
		Password: c.config.RedisPassword,
		DB:       c.config.RedisDB,
	})
	if err := client.Ping(c.ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// initMetricsProvider creates the metrics provider when metrics are enabled.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initAlertRecorder creates the alert sink.
func (c *Container) initAlertRecorder() (metrics.AlertRecorder, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for alert recorder: %w", err)
	}
	if provider == nil {
		return metrics.NewLoggingAlertRecorder(c.Logger()), nil
	}
	return metrics.NewAlertRecorder(provider.MeterProvider(), c.config.MetricsNamespace, c.Logger())
}

// initStoreExecutor creates the store executor from the resilience settings.
func (c *Container) initStoreExecutor() resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		Name:                 "store",
		FailureThreshold:     uint32(max(c.config.StoreBreakerFailureThreshold, 0)),
		OpenTimeout:          c.config.StoreBreakerOpenTimeout,
		RetryMaxAttempts:     uint64(max(c.config.StoreRetryMaxAttempts, 0)),
		RetryInitialInterval: c.config.StoreRetryInitialInterval,
		RetryMaxInterval:     c.config.StoreRetryMaxInterval,
	}, c.Logger())
}

// initHTTPServer creates the HTTP server and registers its routes.
func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	webhookHandler, err := c.WebhookHTTPHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook handler for http server: %w", err)
	}

	consistencyHandler, err := c.ConsistencyHTTPHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get consistency handler for http server: %w", err)
	}

	repairWorker, err := c.RepairWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to get repair worker for http server: %w", err)
	}

	reconciliationWorker, err := c.ReconciliationWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation worker for http server: %w", err)
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(
		c.ctx,
		c.config,
		webhookHandler,
		consistencyHandler,
		c.AdminTokenService(),
		[]http.WorkerStatusProvider{repairWorker, reconciliationWorker},
		metricsProvider,
	)
	return server, nil
}

// initMetricsServer creates the metrics server when metrics are enabled.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	repairWorker, err := c.RepairWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to get repair worker for metrics server: %w", err)
	}

	reconciliationWorker, err := c.ReconciliationWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation worker for metrics server: %w", err)
	}

	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
		[]http.WorkerStatusProvider{repairWorker, reconciliationWorker},
	), nil
}
