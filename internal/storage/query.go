package storage

import (
	"time"

	"github.com/meterline/meterline/internal/domain"
)

// Filter selects events by equality on clientId/status/metric and a half-open
// [From, To) range over the event timestamp. Zero values match everything.
type Filter struct {
	ClientID string
	Status   domain.Status
	Metric   string
	From     time.Time
	To       time.Time
}

// Matches reports whether the event satisfies every set filter field.
func (f Filter) Matches(e *domain.CanonicalEvent) bool {
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Metric != "" && e.Metric != f.Metric {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// SortField names an event attribute results can be ordered by.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByCreatedAt SortField = "created_at"
	SortByAmount    SortField = "amount"
)

// Sort describes result ordering for List.
type Sort struct {
	Field SortField
	Desc  bool
}

// GroupBy selects the grouping dimension for Aggregate.
type GroupBy string

const (
	GroupByNone   GroupBy = ""
	GroupByClient GroupBy = "client"
	GroupByMetric GroupBy = "metric"
	GroupByBoth   GroupBy = "both"
)

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByNone, GroupByClient, GroupByMetric, GroupByBoth:
		return true
	}
	return false
}

// AggregateRow holds the amount statistics for one group. ClientID and Metric
// are set according to the grouping dimension.
type AggregateRow struct {
	ClientID      string  `json:"client_id,omitempty"`
	Metric        string  `json:"metric,omitempty"`
	TotalAmount   float64 `json:"total_amount"`
	TotalCount    int     `json:"total_count"`
	AverageAmount float64 `json:"average_amount"`
	MinAmount     float64 `json:"min_amount"`
	MaxAmount     float64 `json:"max_amount"`
}
