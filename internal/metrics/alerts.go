package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Alert names raised by the billing consistency workers.
const (
	AlertWorkerLoopCrash                = "worker_loop_crash"
	AlertBillingProfileRepairEscalated  = "billing_profile_repair_escalated"
	AlertWebhookLookbackEdgeWarning     = "webhook_lookback_edge_warning"
	AlertStripeWebhookBacklogWarning    = "stripe_webhook_backlog_warning"
	AlertPaymentUnresolvedEventsWarning = "payment_unresolved_events_warning"
	AlertWebhookReconciliationRecovered = "webhook_reconciliation_recovered_total"
)

// AlertRecorder records operator-facing alerts.
//
// Implementations must never block or panic: workers call RecordAlert from inside a
// tick and treat it as fire-and-forget.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, name string, metadata map[string]any)
}

// alertRecorder counts alerts through OpenTelemetry and mirrors them to the log.
type alertRecorder struct {
	counter metric.Int64Counter
	logger  *slog.Logger
}

// NewAlertRecorder creates an AlertRecorder exporting a "<namespace>_alerts_total"
// counter labeled by alert name. Every alert is also logged at warn level with its
// metadata so it can be correlated without a metrics backend.
func NewAlertRecorder(
	meterProvider metric.MeterProvider,
	namespace string,
	logger *slog.Logger,
) (AlertRecorder, error) {
	meter := meterProvider.Meter(namespace)

	counter, err := meter.Int64Counter(
		fmt.Sprintf("%s_alerts_total", namespace),
		metric.WithDescription("Total number of operator alerts raised by background workers"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert counter: %w", err)
	}

	return &alertRecorder{counter: counter, logger: logger}, nil
}

// RecordAlert increments the alert counter and logs the alert metadata.
func (a *alertRecorder) RecordAlert(ctx context.Context, name string, metadata map[string]any) {
	a.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("alert", name)))

	if a.logger != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "alert raised", alertAttrs(name, metadata)...)
	}
}

// LoggingAlertRecorder only logs alerts; used when metrics are disabled.
type LoggingAlertRecorder struct {
	logger *slog.Logger
}

// NewLoggingAlertRecorder creates an AlertRecorder that writes alerts to the logger.
func NewLoggingAlertRecorder(logger *slog.Logger) *LoggingAlertRecorder {
	return &LoggingAlertRecorder{logger: logger}
}

// RecordAlert logs the alert at warn level.
func (l *LoggingAlertRecorder) RecordAlert(ctx context.Context, name string, metadata map[string]any) {
	if l.logger == nil {
		return
	}
	l.logger.LogAttrs(ctx, slog.LevelWarn, "alert raised", alertAttrs(name, metadata)...)
}

// NoOpAlertRecorder discards alerts.
type NoOpAlertRecorder struct{}

// NewNoOpAlertRecorder creates a no-op AlertRecorder.
func NewNoOpAlertRecorder() AlertRecorder {
	return &NoOpAlertRecorder{}
}

// RecordAlert does nothing.
func (n *NoOpAlertRecorder) RecordAlert(ctx context.Context, name string, metadata map[string]any) {
	// No-op
}

// alertAttrs renders metadata in a stable key order.
func alertAttrs(name string, metadata map[string]any) []slog.Attr {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.String("alert", name))
	for _, key := range keys {
		attrs = append(attrs, slog.Any(key, metadata[key]))
	}
	return attrs
}
