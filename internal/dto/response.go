package dto

import (
	"github.com/meterline/meterline/internal/domain"
	"github.com/meterline/meterline/internal/storage"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"events is required"`
}

// IngestResponse reports the outcome of one ingestion attempt.
type IngestResponse struct {
	Success     bool                    `json:"success"`
	IsDuplicate bool                    `json:"is_duplicate"`
	Event       *domain.CanonicalEvent  `json:"event,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// IngestBulkResponse summarizes a batch, one result per input in order.
type IngestBulkResponse struct {
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
	Results  []IngestResponse `json:"results"`
}

// ListEventsResponse is a page of events plus the page's own size.
type ListEventsResponse struct {
	Events []*domain.CanonicalEvent `json:"events"`
	Count  int                      `json:"count"`
}

// CountEventsResponse reports a filtered event count.
type CountEventsResponse struct {
	Count int `json:"count"`
}

// StatsResponse carries aggregation rows for the requested grouping.
type StatsResponse struct {
	GroupBy string                 `json:"group_by,omitempty"`
	Results []storage.AggregateRow `json:"results"`
}
