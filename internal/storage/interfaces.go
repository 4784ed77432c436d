package storage

import (
	"context"

	"github.com/meterline/meterline/internal/domain"
)

// EventRepository defines the canonical-event persistence operations the
// pipeline and query layers depend on.
type EventRepository interface {
	Insert(ctx context.Context, event *domain.CanonicalEvent) error
	Get(ctx context.Context, id string) (*domain.CanonicalEvent, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter, sortBy Sort, limit, skip int) ([]*domain.CanonicalEvent, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Aggregate(ctx context.Context, filter Filter, groupBy GroupBy) ([]AggregateRow, error)
	Ping(ctx context.Context) error
}

// IdentityRepository defines the identity-gate operations. RegisterIfAbsent
// must be linearizable per hash: concurrent callers racing on one hash see
// exactly one true result.
type IdentityRepository interface {
	Lookup(ctx context.Context, hash string) (*domain.IdentityRecord, error)
	RegisterIfAbsent(ctx context.Context, hash, clientID, eventID string) (bool, error)
}

var (
	_ EventRepository    = (*EventStore)(nil)
	_ IdentityRepository = (*IdentityStore)(nil)
)
