// Package worker provides the polling loop shared by the background consistency workers.
//
// A Poller owns a single pending timer. Each tick calls the worker's run function; a
// tick that returns an error or panics counts as a crashed tick and multiplies the
// poll interval by the backoff factor, capped at the maximum. A successful tick
// resets the interval to its base value. Ticks never overlap within one Poller.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allisson/billingsync/internal/metrics"
)

const (
	defaultBackoffFactor      = 2.0
	minDefaultMaxPollInterval = 120 * time.Second
	maxPollIntervalMultiplier = 8
)

// RunFunc performs one unit of worker work.
type RunFunc func(ctx context.Context) error

// Config holds polling and backoff settings for a worker.
type Config struct {
	Name             string
	BasePollInterval time.Duration
	// MaxPollInterval defaults to max(8 x BasePollInterval, 120s) when zero.
	MaxPollInterval time.Duration
	// BackoffFactor defaults to 2 when not greater than 1.
	BackoffFactor float64
}

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.BasePollInterval <= 0 {
		c.BasePollInterval = 30 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = max(c.BasePollInterval*maxPollIntervalMultiplier, minDefaultMaxPollInterval)
	}
	if c.MaxPollInterval < c.BasePollInterval {
		c.MaxPollInterval = c.BasePollInterval
	}
	return c
}

// Status is a point-in-time health snapshot of a worker.
type Status struct {
	Name                string     `json:"name"`
	Started             bool       `json:"started"`
	Running             bool       `json:"running"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastSuccessfulRunAt *time.Time `json:"last_successful_run_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	PollInterval        string     `json:"poll_interval"`
}

// Poller schedules a RunFunc with adaptive backoff.
type Poller struct {
	cfg        Config
	run        RunFunc
	alerts     metrics.AlertRecorder
	bizMetrics metrics.BusinessMetrics
	logger     *slog.Logger
	now        func() time.Time

	mu                  sync.Mutex
	ctx                 context.Context
	gen                 uint64
	stopOnCancel        func() bool
	started             bool
	running             bool
	timer               *time.Timer
	pollInterval        time.Duration
	consecutiveFailures int
	lastRunAt           *time.Time
	lastSuccessfulRunAt *time.Time
	ticks               sync.WaitGroup
}

// NewPoller creates a stopped Poller.
func NewPoller(
	cfg Config,
	run RunFunc,
	alerts metrics.AlertRecorder,
	bizMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Poller {
	cfg = cfg.WithDefaults()
	if alerts == nil {
		alerts = metrics.NewNoOpAlertRecorder()
	}
	if bizMetrics == nil {
		bizMetrics = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:          cfg,
		run:          run,
		alerts:       alerts,
		bizMetrics:   bizMetrics,
		logger:       logger.With(slog.String("worker", cfg.Name)),
		now:          time.Now,
		pollInterval: cfg.BasePollInterval,
	}
}

// Start schedules the first tick immediately. Calling Start on a started Poller is a no-op.
// Cancelling ctx stops the Poller: the pending timer is dropped and an in-flight tick
// finishes on a context that is not cancelled with ctx.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true
	p.ctx = ctx
	p.gen++
	gen := p.gen
	p.stopOnCancel = context.AfterFunc(ctx, func() { p.halt(gen) })

	p.logger.Info("worker started",
		slog.Duration("base_poll_interval", p.cfg.BasePollInterval),
		slog.Duration("max_poll_interval", p.cfg.MaxPollInterval),
	)
	p.scheduleLocked(0)
}

// Stop cancels the next scheduled tick and waits for an in-flight tick to complete.
func (p *Poller) Stop() {
	p.mu.Lock()
	wasStarted := p.started
	if p.stopOnCancel != nil {
		p.stopOnCancel()
		p.stopOnCancel = nil
	}
	p.stopLocked()
	p.mu.Unlock()

	p.ticks.Wait()
	if wasStarted {
		p.logger.Info("worker stopped")
	}
}

// halt stops generation gen after its context is cancelled. It does not wait for an
// in-flight tick.
func (p *Poller) halt(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.gen != gen {
		return
	}
	p.stopLocked()
	p.logger.Info("worker context cancelled, scheduling stopped")
}

// stopLocked marks the Poller stopped and drops the pending timer. Caller must hold p.mu.
func (p *Poller) stopLocked() {
	p.started = false
	if p.timer != nil && p.timer.Stop() {
		p.ticks.Done()
	}
	p.timer = nil
}

// RunOnce executes a single guarded tick. It returns ran=false when another tick is
// already in flight. A returned error means the tick crashed and backoff was applied.
func (p *Poller) RunOnce(ctx context.Context) (ran bool, err error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false, nil
	}
	p.running = true
	startedAt := p.now()
	p.lastRunAt = &startedAt
	p.mu.Unlock()

	err = p.safeRun(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false

	status := "success"
	if err == nil {
		finishedAt := p.now()
		p.lastSuccessfulRunAt = &finishedAt
		p.consecutiveFailures = 0
		p.pollInterval = p.cfg.BasePollInterval
	} else {
		status = "error"
		p.consecutiveFailures++
		p.pollInterval = p.nextIntervalLocked()

		p.logger.Error("worker tick crashed",
			slog.Any("error", err),
			slog.Int("consecutive_failures", p.consecutiveFailures),
			slog.Duration("next_poll_interval", p.pollInterval),
		)
		p.alerts.RecordAlert(ctx, metrics.AlertWorkerLoopCrash, map[string]any{
			"worker":                p.cfg.Name,
			"error":                 err.Error(),
			"consecutive_failures":  p.consecutiveFailures,
			"next_poll_interval_ms": p.pollInterval.Milliseconds(),
		})
	}
	p.bizMetrics.RecordWorkerRun(ctx, p.cfg.Name, status, p.now().Sub(startedAt), p.pollInterval)

	return true, err
}

// Status returns the current health snapshot.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Status{
		Name:                p.cfg.Name,
		Started:             p.started,
		Running:             p.running,
		LastRunAt:           copyTime(p.lastRunAt),
		LastSuccessfulRunAt: copyTime(p.lastSuccessfulRunAt),
		ConsecutiveFailures: p.consecutiveFailures,
		PollInterval:        p.pollInterval.String(),
	}
}

// PollInterval returns the delay before the next scheduled tick.
func (p *Poller) PollInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pollInterval
}

// Name returns the worker name.
func (p *Poller) Name() string {
	return p.cfg.Name
}

func (p *Poller) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return p.run(ctx)
}

// tick runs one scheduled tick of generation gen. A timer that fired after its
// generation was stopped does nothing.
func (p *Poller) tick(gen uint64) {
	defer p.ticks.Done()

	p.mu.Lock()
	if !p.started || p.gen != gen {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	p.mu.Unlock()

	// ctx only governs scheduling; a tick already underway runs to completion.
	_, _ = p.RunOnce(context.WithoutCancel(ctx))

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.gen != gen {
		return
	}
	if ctx.Err() != nil {
		p.stopLocked()
		return
	}
	p.scheduleLocked(p.pollInterval)
}

// scheduleLocked arms the timer for the current generation. Caller must hold p.mu.
func (p *Poller) scheduleLocked(delay time.Duration) {
	gen := p.gen
	p.ticks.Add(1)
	p.timer = time.AfterFunc(delay, func() { p.tick(gen) })
}

func (p *Poller) nextIntervalLocked() time.Duration {
	next := time.Duration(float64(p.pollInterval) * p.cfg.BackoffFactor)
	if next > p.cfg.MaxPollInterval || next <= 0 {
		next = p.cfg.MaxPollInterval
	}
	return next
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
