// Package service validates query requests from the transport layer and maps
// them onto the store's filter, sort and aggregation primitives.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/domain"
	"github.com/meterline/meterline/internal/storage"
)

// MaxPageSize caps the page size for event listings.
const MaxPageSize = 1000

// EventQuery carries the raw query parameters from the transport layer.
type EventQuery struct {
	ClientID  string
	Status    string
	Metric    string
	From      time.Time
	To        time.Time
	SortField string
	SortDesc  bool
	Limit     int
	Skip      int
}

// QueryService answers read-only questions about stored events. It holds no
// write access; only the ingestion pipeline mutates the stores.
type QueryService struct {
	events storage.EventRepository
	log    *zap.Logger
}

// NewQueryService creates a query service over the event repository.
func NewQueryService(events storage.EventRepository, log *zap.Logger) *QueryService {
	return &QueryService{
		events: events,
		log:    log,
	}
}

// ListEvents returns a page of events matching the query.
func (s *QueryService) ListEvents(ctx context.Context, q EventQuery) ([]*domain.CanonicalEvent, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	sortBy, err := buildSort(q)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	skip := q.Skip
	if skip < 0 {
		skip = 0
	}

	events, err := s.events.List(ctx, filter, sortBy, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events, nil
}

// CountEvents returns the number of events matching the query's filter.
func (s *QueryService) CountEvents(ctx context.Context, q EventQuery) (int, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return 0, err
	}

	count, err := s.events.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// Aggregate computes amount statistics over processed events matching the
// query, grouped by the requested dimension.
func (s *QueryService) Aggregate(ctx context.Context, q EventQuery, groupBy string) ([]storage.AggregateRow, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	grouping := storage.GroupBy(groupBy)
	if !grouping.Valid() {
		return nil, fmt.Errorf("invalid group_by value: %s (supported: client, metric, both)", groupBy)
	}

	s.log.Debug("aggregating events",
		zap.String("client_id", q.ClientID),
		zap.String("metric", q.Metric),
		zap.String("group_by", groupBy))

	rows, err := s.events.Aggregate(ctx, filter, grouping)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}

	return rows, nil
}

// Ping reports storage health for the health endpoint.
func (s *QueryService) Ping(ctx context.Context) error {
	return s.events.Ping(ctx)
}

func buildFilter(q EventQuery) (storage.Filter, error) {
	status := domain.Status(q.Status)
	if q.Status != "" && !status.Valid() {
		return storage.Filter{}, fmt.Errorf("invalid status value: %s (supported: processed, rejected, failed)", q.Status)
	}

	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return storage.Filter{}, fmt.Errorf("from must be less than or equal to to")
	}

	return storage.Filter{
		ClientID: q.ClientID,
		Status:   status,
		Metric:   q.Metric,
		From:     q.From,
		To:       q.To,
	}, nil
}

func buildSort(q EventQuery) (storage.Sort, error) {
	switch storage.SortField(q.SortField) {
	case storage.SortByTimestamp, storage.SortByCreatedAt, storage.SortByAmount:
		return storage.Sort{Field: storage.SortField(q.SortField), Desc: q.SortDesc}, nil
	case "":
		return storage.Sort{Field: storage.SortByTimestamp, Desc: q.SortDesc}, nil
	default:
		return storage.Sort{}, fmt.Errorf("invalid sort value: %s (supported: timestamp, created_at, amount)", q.SortField)
	}
}
