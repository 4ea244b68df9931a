// Package resilience wraps store calls in a circuit breaker with bounded retries.
//
// Every durable read or transaction issued by the ledger, the consistency store and the
// billing profile store runs through an Executor. Transient failures are retried with
// exponential backoff; domain errors (not found, conflict, invalid input) are returned
// immediately and never count against the breaker. While the breaker is open, calls
// fail fast with errors.ErrUnavailable.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	apperrors "github.com/allisson/billingsync/internal/errors"
)

// Executor runs an operation against a fallible backing store.
type Executor interface {
	Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error
}

// Config holds circuit breaker and retry settings.
type Config struct {
	// Name identifies the breaker in logs.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before allowing a probe.
	OpenTimeout time.Duration
	// HalfOpenMaxRequests is the number of probes allowed while half-open.
	HalfOpenMaxRequests uint32
	// RetryMaxAttempts is the number of retries after the first attempt.
	RetryMaxAttempts uint64
	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration
	// RetryMaxInterval caps a single backoff delay.
	RetryMaxInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "store"
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests == 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 100 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 2 * time.Second
	}
	return c
}

type breakerExecutor struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewExecutor creates an Executor backed by a gobreaker circuit breaker and
// exponential backoff retries.
func NewExecutor(cfg Config, logger *slog.Logger) Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	e := &breakerExecutor{cfg: cfg, logger: logger}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.IsPermanent(err)
		},
	})
	return e
}

// Execute runs fn, retrying transient failures while the breaker is closed.
func (e *breakerExecutor) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.RetryInitialInterval
	policy.MaxInterval = e.cfg.RetryMaxInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			_, err := e.breaker.Execute(func() (interface{}, error) {
				return nil, fn(ctx)
			})
			switch {
			case err == nil:
				return nil
			case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
				return backoff.Permanent(apperrors.Wrap(apperrors.ErrUnavailable, operation+": "+err.Error()))
			case apperrors.IsPermanent(err):
				return backoff.Permanent(err)
			default:
				return err
			}
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, e.cfg.RetryMaxAttempts), ctx),
		func(err error, delay time.Duration) {
			e.logger.Debug("retrying store operation",
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
		},
	)
}

type directExecutor struct{}

// Direct returns an Executor that calls fn exactly once.
func Direct() Executor {
	return directExecutor{}
}

func (directExecutor) Execute(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
