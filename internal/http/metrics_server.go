package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/billingsync/internal/metrics"
	"github.com/allisson/billingsync/internal/worker"
)

// MetricsServer serves Prometheus metrics and worker health on the internal metrics
// port. Its routes are unauthenticated.
type MetricsServer struct {
	server  *http.Server
	workers []WorkerStatusProvider
	logger  *slog.Logger
}

// NewMetricsServer creates a MetricsServer exposing /metrics, /health and /workers.
func NewMetricsServer(
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
	workers []WorkerStatusProvider,
) *MetricsServer {
	s := &MetricsServer{workers: workers, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if metricsProvider != nil {
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}
	router.GET("/health", s.healthHandler)
	router.GET("/workers", s.workersHandler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// GetHandler returns the router.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *MetricsServer) Start(ctx context.Context) error {
	s.logger.Info("starting metrics server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics HTTP server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports 503 while any started worker is backing off after a crashed tick.
func (s *MetricsServer) healthHandler(c *gin.Context) {
	var failing []string
	for _, w := range s.workers {
		if status := w.Status(); status.Started && status.ConsecutiveFailures > 0 {
			failing = append(failing, status.Name)
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing_workers": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *MetricsServer) workersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": workerStatuses(s.workers)})
}

func workerStatuses(workers []WorkerStatusProvider) []worker.Status {
	statuses := make([]worker.Status, 0, len(workers))
	for _, w := range workers {
		statuses = append(statuses, w.Status())
	}
	return statuses
}
