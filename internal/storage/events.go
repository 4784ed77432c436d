package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/domain"
)

const eventPrefix = "evt:"

func eventKey(id string) []byte {
	return []byte(eventPrefix + id)
}

// EventStore persists canonical events keyed by event id.
type EventStore struct {
	db  *badger.DB
	log *zap.Logger
}

// NewEventStore creates an event store over an open database.
func NewEventStore(db *badger.DB, log *zap.Logger) *EventStore {
	return &EventStore{
		db:  db,
		log: log,
	}
}

// Insert writes the event. An existing event with the same id is overwritten;
// ids are generated UUIDs, so in practice this only happens when the pipeline
// rewrites its own record.
func (s *EventStore) Insert(ctx context.Context, event *domain.CanonicalEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write event %s: %w", event.ID, err)
	}

	return nil
}

// Get returns the event with the given id, or domain.ErrNotFound.
func (s *EventStore) Get(ctx context.Context, id string) (*domain.CanonicalEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var event domain.CanonicalEvent
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read event %s: %w", id, err)
	}

	return &event, nil
}

// Delete removes the event with the given id. Deleting a missing id is a
// no-op; the race-repair path may retry a delete it already performed.
func (s *EventStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(eventKey(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}

	return nil
}

// List returns events matching the filter, ordered by sortBy, with skip/limit
// pagination applied after sorting. A limit of 0 means no limit.
func (s *EventStore) List(ctx context.Context, filter Filter, sortBy Sort, limit, skip int) ([]*domain.CanonicalEvent, error) {
	events, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	sortEvents(events, sortBy)

	if skip >= len(events) {
		return []*domain.CanonicalEvent{}, nil
	}
	events = events[skip:]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}

	return events, nil
}

// Count returns the number of events matching the filter.
func (s *EventStore) Count(ctx context.Context, filter Filter) (int, error) {
	events, err := s.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// Aggregate computes amount statistics over processed events matching the
// filter, grouped by the requested dimension. Only processed events ever
// contribute; the status filter is forced regardless of the caller's filter.
// Grouped results are ordered by total amount descending.
func (s *EventStore) Aggregate(ctx context.Context, filter Filter, groupBy GroupBy) ([]AggregateRow, error) {
	filter.Status = domain.StatusProcessed

	events, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		row AggregateRow
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	for _, e := range events {
		key := groupKey(e, groupBy)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			switch groupBy {
			case GroupByClient:
				b.row.ClientID = e.ClientID
			case GroupByMetric:
				b.row.Metric = e.Metric
			case GroupByBoth:
				b.row.ClientID = e.ClientID
				b.row.Metric = e.Metric
			}
			b.row.MinAmount = e.Amount
			b.row.MaxAmount = e.Amount
			buckets[key] = b
			order = append(order, key)
		}
		b.row.TotalAmount += e.Amount
		b.row.TotalCount++
		if e.Amount < b.row.MinAmount {
			b.row.MinAmount = e.Amount
		}
		if e.Amount > b.row.MaxAmount {
			b.row.MaxAmount = e.Amount
		}
	}

	rows := make([]AggregateRow, 0, len(buckets))
	for _, key := range order {
		row := buckets[key].row
		if row.TotalCount > 0 {
			row.AverageAmount = row.TotalAmount / float64(row.TotalCount)
		}
		rows = append(rows, row)
	}

	if groupBy == GroupByNone {
		if len(rows) == 0 {
			rows = []AggregateRow{{}}
		}
		return rows, nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalAmount > rows[j].TotalAmount
	})

	return rows, nil
}

// Ping verifies the database is open and readable.
func (s *EventStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("database is closed")
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// scan iterates the event collection under one read transaction and returns
// the events matching the filter.
func (s *EventStore) scan(ctx context.Context, filter Filter) ([]*domain.CanonicalEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := make([]*domain.CanonicalEvent, 0)
	prefix := []byte(eventPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var event domain.CanonicalEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("failed to decode event %s: %w", it.Item().Key(), err)
			}
			if filter.Matches(&event) {
				e := event
				events = append(events, &e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	return events, nil
}

func sortEvents(events []*domain.CanonicalEvent, sortBy Sort) {
	less := func(a, b *domain.CanonicalEvent) bool {
		switch sortBy.Field {
		case SortByAmount:
			return a.Amount < b.Amount
		case SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if sortBy.Desc {
			return less(events[j], events[i])
		}
		return less(events[i], events[j])
	})
}

func groupKey(e *domain.CanonicalEvent, groupBy GroupBy) string {
	switch groupBy {
	case GroupByClient:
		return e.ClientID
	case GroupByMetric:
		return e.Metric
	case GroupByBoth:
		return e.ClientID + "\x00" + e.Metric
	default:
		return ""
	}
}
