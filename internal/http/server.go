// Package http provides the HTTP server, its router and the shared request middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authHTTP "github.com/allisson/billingsync/internal/auth/http"
	authService "github.com/allisson/billingsync/internal/auth/service"
	"github.com/allisson/billingsync/internal/config"
	consistencyHTTP "github.com/allisson/billingsync/internal/consistency/http"
	"github.com/allisson/billingsync/internal/metrics"
	webhookHTTP "github.com/allisson/billingsync/internal/webhook/http"
	"github.com/allisson/billingsync/internal/worker"
)

const readinessTimeout = 2 * time.Second

// WorkerStatusProvider exposes the health snapshot of a background worker.
type WorkerStatusProvider interface {
	Status() worker.Status
}

// Server represents the HTTP server.
type Server struct {
	db      *sql.DB
	server  *http.Server
	router  *gin.Engine
	workers []WorkerStatusProvider
	logger  *slog.Logger
}

// NewServer creates a new HTTP server. SetupRouter must be called before Start.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers the health, webhook and operator routes.
//
// The webhook endpoint is public and rate limited per IP. Operator endpoints under
// /v1/admin require the admin bearer token and are the only routes that answer CORS
// requests from the dashboard origins. The limiter cleanup stops when ctx is done.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	webhookHandler *webhookHTTP.WebhookHandler,
	consistencyHandler *consistencyHTTP.ConsistencyHandler,
	adminTokenService authService.AdminTokenService,
	workers []WorkerStatusProvider,
	metricsProvider *metrics.Provider,
) {
	s.workers = workers

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")

	webhooks := v1.Group("/webhooks")
	if cfg.RateLimitWebhookEnabled {
		webhooks.Use(authHTTP.IPRateLimitMiddleware(
			ctx,
			cfg.RateLimitWebhookRequestsPerSec,
			cfg.RateLimitWebhookBurst,
			s.logger,
		))
	}
	webhooks.POST("/stripe", webhookHandler.ReceiveHandler)

	admin := v1.Group("/admin")
	if corsMiddleware := newAdminCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		admin.Use(corsMiddleware)
		// Preflights carry no bearer token and must be answered before authentication.
		admin.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
	admin.Use(authHTTP.AdminAuthenticationMiddleware(cfg.AdminTokenHash, adminTokenService, s.logger))
	{
		admin.GET("/workers", s.workersHandler)
		admin.GET("/webhooks/backlog", webhookHandler.BacklogHandler)
		admin.GET("/payments/unresolved", consistencyHandler.ListUnresolvedHandler)
		admin.GET("/billing/repairs", consistencyHandler.ListRepairsHandler)
		admin.POST("/billing/repairs/:repair_key/resolve", consistencyHandler.ResolveRepairHandler)
	}

	s.router = router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// GetHandler returns the configured router, or nil before SetupRouter.
func (s *Server) GetHandler() http.Handler {
	if s.router == nil {
		return nil
	}
	return s.router
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports readiness based on database connectivity.
func (s *Server) readinessHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": "ok"},
	})
}

// workersHandler returns the health snapshot of each background worker in this process.
// GET /v1/admin/workers
func (s *Server) workersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": workerStatuses(s.workers)})
}
