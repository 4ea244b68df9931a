package usecase

import (
	"context"
	"log/slog"

	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// cachedWebhookLedger answers processed checks from a cache. Only the terminal processed
// state is cached, so a stale cache entry can never hide work that still has to run.
type cachedWebhookLedger struct {
	next   WebhookLedger
	cache  ProcessedCache
	logger *slog.Logger
}

// NewCachedWebhookLedger wraps a WebhookLedger with a processed-flag cache. Cache
// failures are logged and fall through to the ledger.
func NewCachedWebhookLedger(ledger WebhookLedger, cache ProcessedCache, logger *slog.Logger) WebhookLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedWebhookLedger{next: ledger, cache: cache, logger: logger}
}

func (c *cachedWebhookLedger) ClaimEvent(
	ctx context.Context,
	eventID string,
	input webhookDomain.ClaimInput,
) (webhookDomain.ClaimState, error) {
	state, err := c.next.ClaimEvent(ctx, eventID, input)
	if err == nil && state == webhookDomain.ClaimStateProcessed {
		c.remember(ctx, eventID)
	}
	return state, err
}

func (c *cachedWebhookLedger) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	processed, err := c.cache.IsProcessed(ctx, eventID)
	if err != nil {
		c.logger.Warn("processed cache read failed", slog.String("event_id", eventID), slog.Any("error", err))
	} else if processed {
		return true, nil
	}

	processed, err = c.next.HasProcessedEvent(ctx, eventID)
	if err == nil && processed {
		c.remember(ctx, eventID)
	}
	return processed, err
}

func (c *cachedWebhookLedger) MarkProcessed(ctx context.Context, eventID string) error {
	if err := c.next.MarkProcessed(ctx, eventID); err != nil {
		return err
	}
	c.remember(ctx, eventID)
	return nil
}

func (c *cachedWebhookLedger) MarkFailed(ctx context.Context, eventID string, cause error) error {
	return c.next.MarkFailed(ctx, eventID, cause)
}

func (c *cachedWebhookLedger) GetBacklogSummary(ctx context.Context) (*webhookDomain.BacklogSummary, error) {
	return c.next.GetBacklogSummary(ctx)
}

func (c *cachedWebhookLedger) remember(ctx context.Context, eventID string) {
	if err := c.cache.SetProcessed(ctx, eventID); err != nil {
		c.logger.Warn("processed cache write failed", slog.String("event_id", eventID), slog.Any("error", err))
	}
}
