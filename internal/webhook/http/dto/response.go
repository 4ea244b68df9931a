// Package dto provides data transfer objects for the webhook HTTP endpoints.
package dto

import (
	webhookDomain "github.com/allisson/billingsync/internal/webhook/domain"
)

// WebhookReceivedResponse acknowledges a webhook delivery.
type WebhookReceivedResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// BacklogResponse reports ledger records that have not reached processed.
type BacklogResponse struct {
	ProcessingCount  int64 `json:"processing_count"`
	FailedCount      int64 `json:"failed_count"`
	UnprocessedCount int64 `json:"unprocessed_count"`
	// OldestUnprocessedAgeMs is omitted when there is no backlog.
	OldestUnprocessedAgeMs *int64 `json:"oldest_unprocessed_age_ms,omitempty"`
}

// MapBacklogSummaryToResponse converts a backlog summary to an API response.
func MapBacklogSummaryToResponse(summary *webhookDomain.BacklogSummary) BacklogResponse {
	response := BacklogResponse{
		ProcessingCount:  summary.ProcessingCount,
		FailedCount:      summary.FailedCount,
		UnprocessedCount: summary.UnprocessedCount,
	}
	if summary.OldestUnprocessedAge != nil {
		ageMs := summary.OldestUnprocessedAge.Milliseconds()
		response.OldestUnprocessedAgeMs = &ageMs
	}
	return response
}
