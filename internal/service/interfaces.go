package service

import (
	"context"

	"github.com/meterline/meterline/internal/domain"
	"github.com/meterline/meterline/internal/storage"
)

// Querier defines the read-only query operations exposed to the transport
// layer.
type Querier interface {
	ListEvents(ctx context.Context, q EventQuery) ([]*domain.CanonicalEvent, error)
	CountEvents(ctx context.Context, q EventQuery) (int, error)
	Aggregate(ctx context.Context, q EventQuery, groupBy string) ([]storage.AggregateRow, error)
	Ping(ctx context.Context) error
}

var _ Querier = (*QueryService)(nil)
