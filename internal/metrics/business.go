package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics records business operation and worker tick metrics.
type BusinessMetrics interface {
	// RecordOperation records a business operation with its status.
	// Domain examples: "webhook", "consistency", "billing"
	// Operation examples: "claim_event", "enqueue_repair", "upsert_profile"
	// Status examples: "success", "error"
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration records the duration of a business operation with its status.
	// Duration is recorded in seconds as a histogram for percentile calculations.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordWorkerRun records one worker tick and the worker's current poll interval.
	RecordWorkerRun(ctx context.Context, worker, status string, duration, pollInterval time.Duration)
}

// businessMetrics implements BusinessMetrics using OpenTelemetry metrics.
type businessMetrics struct {
	operationCounter  metric.Int64Counter
	durationHisto     metric.Float64Histogram
	workerRunCounter  metric.Int64Counter
	workerRunHisto    metric.Float64Histogram
	workerPollingGage metric.Float64Gauge
}

// NewBusinessMetrics creates a new BusinessMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names (e.g., "billingsync").
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of business operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of business operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	workerRunCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_worker_runs_total", namespace),
		metric.WithDescription("Total number of background worker ticks"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker run counter: %w", err)
	}

	workerRunHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_worker_run_duration_seconds", namespace),
		metric.WithDescription("Duration of background worker ticks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker run histogram: %w", err)
	}

	workerPollingGage, err := meter.Float64Gauge(
		fmt.Sprintf("%s_worker_poll_interval_seconds", namespace),
		metric.WithDescription("Current poll interval of background workers in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker poll interval gauge: %w", err)
	}

	return &businessMetrics{
		operationCounter:  operationCounter,
		durationHisto:     durationHisto,
		workerRunCounter:  workerRunCounter,
		workerRunHisto:    workerRunHisto,
		workerPollingGage: workerPollingGage,
	}, nil
}

// RecordOperation increments the operation counter with domain, operation, and status labels.
func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordDuration records the operation duration in seconds with domain, operation, and status labels.
func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordWorkerRun records a worker tick outcome and the interval until the next tick.
func (b *businessMetrics) RecordWorkerRun(
	ctx context.Context,
	worker, status string,
	duration, pollInterval time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("worker", worker),
		attribute.String("status", status),
	)
	b.workerRunCounter.Add(ctx, 1, attrs)
	b.workerRunHisto.Record(ctx, duration.Seconds(), attrs)
	b.workerPollingGage.Record(ctx, pollInterval.Seconds(),
		metric.WithAttributes(attribute.String("worker", worker)),
	)
}

// NoOpBusinessMetrics is a no-op implementation of BusinessMetrics for when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

// RecordOperation does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	// No-op
}

// RecordDuration does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	// No-op
}

// RecordWorkerRun does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) RecordWorkerRun(
	ctx context.Context,
	worker, status string,
	duration, pollInterval time.Duration,
) {
	// No-op
}
