// Package pipeline orchestrates idempotent event ingestion: normalization,
// duplicate detection, the two-phase event/identity write, and failure
// classification.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/canonical"
	"github.com/meterline/meterline/internal/domain"
	"github.com/meterline/meterline/internal/metrics"
	"github.com/meterline/meterline/internal/storage"
)

// IngestResult is the outcome of one ingestion attempt. Event is set whenever
// a record exists to show for the attempt (processed, duplicate, rejected or
// failed); Err is set for every non-processed, non-duplicate outcome.
type IngestResult struct {
	Event       *domain.CanonicalEvent
	IsDuplicate bool
	Err         error
}

// Success reports whether the attempt ended processed or suppressed as a
// duplicate of a processed event.
func (r IngestResult) Success() bool {
	return r.Err == nil
}

// Ingestor is the pipeline contract exposed to the transport layer.
type Ingestor interface {
	IngestOne(ctx context.Context, raw json.RawMessage, simulateFailure bool) IngestResult
	IngestBatch(ctx context.Context, raws []json.RawMessage, simulateFailure bool) []IngestResult
}

// Pipeline implements Ingestor over the event and identity stores. It is the
// only component that writes to either store.
type Pipeline struct {
	normalizer *canonical.Normalizer
	events     storage.EventRepository
	identities storage.IdentityRepository
	log        *zap.Logger

	now   func() time.Time
	newID func() string
}

// New creates an ingestion pipeline.
func New(events storage.EventRepository, identities storage.IdentityRepository, log *zap.Logger) *Pipeline {
	return &Pipeline{
		normalizer: canonical.NewNormalizer(),
		events:     events,
		identities: identities,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// IngestOne runs a single raw payload through the pipeline.
//
// The attempt walks normalization, duplicate check, event write and identity
// registration in order. The two writes are deliberately not atomic with each
// other; when concurrent attempts race on one identity, registration picks
// exactly one winner and every loser deletes its own record and returns the
// winner as a duplicate.
func (p *Pipeline) IngestOne(ctx context.Context, raw json.RawMessage, simulateFailure bool) IngestResult {
	start := time.Now()
	result := p.ingest(ctx, raw, simulateFailure)
	metrics.ObserveIngest(outcomeLabel(result), time.Since(start))
	return result
}

// IngestBatch processes each payload independently, in order. One failure
// never aborts the remainder.
func (p *Pipeline) IngestBatch(ctx context.Context, raws []json.RawMessage, simulateFailure bool) []IngestResult {
	results := make([]IngestResult, 0, len(raws))

	for i, raw := range raws {
		result := p.IngestOne(ctx, raw, simulateFailure)
		if result.Err != nil {
			p.log.Warn("batch item failed",
				zap.Int("index", i),
				zap.Error(result.Err))
		}
		results = append(results, result)
	}

	return results
}

func (p *Pipeline) ingest(ctx context.Context, raw json.RawMessage, simulateFailure bool) IngestResult {
	fields, err := p.normalizer.Normalize(raw)
	if err != nil {
		return p.reject(ctx, raw, err)
	}

	hash := canonical.IdentityHash(fields)

	// Duplicate check. Resubmitting an identical logical event is a no-op
	// that returns the original record.
	existing, err := p.identities.Lookup(ctx, hash)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return IngestResult{Err: fmt.Errorf("identity lookup failed: %w", err)}
	}
	if err == nil {
		return p.resolveDuplicate(ctx, existing)
	}

	// Fault injection sits after the duplicate check so already-processed
	// events stay idempotent under a simulated outage.
	if simulateFailure {
		return p.fail(ctx, raw, fields, hash, domain.ErrSimulatedFailure)
	}

	event := &domain.CanonicalEvent{
		ID:              p.newID(),
		ClientID:        fields.ClientID,
		Metric:          fields.Metric,
		Amount:          fields.Amount,
		Timestamp:       fields.Timestamp,
		IdentityHash:    hash,
		Status:          domain.StatusProcessed,
		OriginalPayload: raw,
		CreatedAt:       p.now().UTC(),
		ProcessedAt:     p.now().UTC(),
	}

	if err := p.events.Insert(ctx, event); err != nil {
		return p.recoverWriteFailure(ctx, raw, fields, hash, err)
	}

	registered, err := p.identities.RegisterIfAbsent(ctx, hash, event.ClientID, event.ID)
	if err != nil {
		// The registration may have partially succeeded before the fault;
		// re-check before classifying the attempt as failed.
		if err := p.events.Delete(ctx, event.ID); err != nil {
			p.log.Error("failed to remove event after registration error",
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
		return p.recoverWriteFailure(ctx, raw, fields, hash, err)
	}

	if !registered {
		// Another concurrent attempt owns this identity now. Remove the
		// losing record and hand back the winner.
		return p.repairLostRace(ctx, event, hash)
	}

	p.log.Info("event processed",
		zap.String("event_id", event.ID),
		zap.String("client_id", event.ClientID),
		zap.String("metric", event.Metric),
		zap.String("identity_hash", hash))

	return IngestResult{Event: event}
}

// reject persists a rejected record for a payload that failed normalization.
// The record gets a synthetic per-attempt hash so rejected attempts never
// collide with each other or with a real identity.
func (p *Pipeline) reject(ctx context.Context, raw json.RawMessage, cause error) IngestResult {
	id := p.newID()
	event := &domain.CanonicalEvent{
		ID:              id,
		Metric:          canonical.DefaultMetric,
		IdentityHash:    canonical.SyntheticHash(id),
		Status:          domain.StatusRejected,
		RejectionReason: cause.Error(),
		OriginalPayload: raw,
		CreatedAt:       p.now().UTC(),
	}

	if err := p.events.Insert(ctx, event); err != nil {
		// Best-effort write: without a stored record, the caller gets a
		// pipeline-level error instead.
		return IngestResult{Err: fmt.Errorf("failed to persist rejected event: %w", err)}
	}

	p.log.Warn("event rejected",
		zap.String("event_id", id),
		zap.String("reason", cause.Error()))

	return IngestResult{Event: event, Err: cause}
}

// fail persists a failed record for a storage fault. The real identity hash
// is kept for audit but is never registered, so a later resubmission of the
// same payload is free to succeed.
func (p *Pipeline) fail(ctx context.Context, raw json.RawMessage, fields canonical.Fields, hash string, cause error) IngestResult {
	event := &domain.CanonicalEvent{
		ID:              p.newID(),
		ClientID:        fields.ClientID,
		Metric:          fields.Metric,
		Amount:          fields.Amount,
		Timestamp:       fields.Timestamp,
		IdentityHash:    hash,
		Status:          domain.StatusFailed,
		RejectionReason: cause.Error(),
		OriginalPayload: raw,
		CreatedAt:       p.now().UTC(),
	}

	if err := p.events.Insert(ctx, event); err != nil {
		return IngestResult{Err: fmt.Errorf("storage fault (%v), and failed to persist failure record: %w", cause, err)}
	}

	p.log.Error("event failed",
		zap.String("event_id", event.ID),
		zap.String("client_id", fields.ClientID),
		zap.String("identity_hash", hash),
		zap.Error(cause))

	return IngestResult{Event: event, Err: cause}
}

// recoverWriteFailure handles an unexpected error from either write in the
// two-phase protocol. The identity may have been claimed before the fault, so
// it is re-checked first; only a genuinely unclaimed identity classifies the
// attempt as failed.
func (p *Pipeline) recoverWriteFailure(ctx context.Context, raw json.RawMessage, fields canonical.Fields, hash string, cause error) IngestResult {
	existing, err := p.identities.Lookup(ctx, hash)
	if err == nil {
		return p.resolveDuplicate(ctx, existing)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		p.log.Error("identity re-check failed after write error",
			zap.String("identity_hash", hash),
			zap.Error(err))
	}

	return p.fail(ctx, raw, fields, hash, cause)
}

// resolveDuplicate loads the event owning an identity and returns it as a
// suppressed duplicate.
func (p *Pipeline) resolveDuplicate(ctx context.Context, record *domain.IdentityRecord) IngestResult {
	event, err := p.events.Get(ctx, record.EventID)
	if err != nil {
		return IngestResult{Err: fmt.Errorf("identity %s references missing event %s: %w",
			record.IdentityHash, record.EventID, domain.ErrRaceRepair)}
	}

	p.log.Info("duplicate suppressed",
		zap.String("event_id", event.ID),
		zap.String("identity_hash", record.IdentityHash))

	return IngestResult{Event: event, IsDuplicate: true}
}

// repairLostRace removes the losing record and returns the event that won the
// identity. A missing winner is an inconsistent-state error, never guessed
// around.
func (p *Pipeline) repairLostRace(ctx context.Context, loser *domain.CanonicalEvent, hash string) IngestResult {
	if err := p.events.Delete(ctx, loser.ID); err != nil {
		return IngestResult{Err: fmt.Errorf("failed to remove event %s after losing registration race: %w", loser.ID, err)}
	}

	winner, err := p.identities.Lookup(ctx, hash)
	if err != nil {
		return IngestResult{Err: fmt.Errorf("winning identity %s vanished: %w", hash, domain.ErrRaceRepair)}
	}

	p.log.Info("lost registration race, returning winner",
		zap.String("losing_event_id", loser.ID),
		zap.String("winning_event_id", winner.EventID),
		zap.String("identity_hash", hash))

	metrics.RaceLostTotal.Inc()

	return p.resolveDuplicate(ctx, winner)
}

func outcomeLabel(r IngestResult) string {
	switch {
	case r.IsDuplicate:
		return "duplicate"
	case r.Event != nil && r.Event.Status == domain.StatusRejected:
		return "rejected"
	case r.Event != nil && r.Event.Status == domain.StatusFailed:
		return "failed"
	case r.Err != nil:
		return "error"
	default:
		return "processed"
	}
}
