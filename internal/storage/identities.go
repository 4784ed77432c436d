package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/domain"
)

const identityPrefix = "idn:"

func identityKey(hash string) []byte {
	return []byte(identityPrefix + hash)
}

// errAlreadyRegistered signals inside a registration transaction that the
// hash is already owned.
var errAlreadyRegistered = errors.New("identity already registered")

// IdentityStore maps identity hashes to the events that own them. It is the
// single-writer-wins gate: for any hash, exactly one registration succeeds.
type IdentityStore struct {
	db  *badger.DB
	log *zap.Logger
}

// NewIdentityStore creates an identity store over an open database.
func NewIdentityStore(db *badger.DB, log *zap.Logger) *IdentityStore {
	return &IdentityStore{
		db:  db,
		log: log,
	}
}

// Lookup returns the identity record for the hash, or domain.ErrNotFound.
func (s *IdentityStore) Lookup(ctx context.Context, hash string) (*domain.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record domain.IdentityRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up identity %s: %w", hash, err)
	}

	return &record, nil
}

// RegisterIfAbsent atomically claims the hash for eventID. It returns true
// for exactly one caller per hash; every other caller, concurrent or later,
// gets false and must treat the hash as owned by the existing record. An
// existing record is never overwritten.
//
// The conditional insert runs inside a single badger transaction. When two
// transactions race on the same absent key, badger's conflict detection
// aborts one of them; the loser retries, finds the key present, and reports
// false.
func (s *IdentityStore) RegisterIfAbsent(ctx context.Context, hash, clientID, eventID string) (bool, error) {
	record := domain.IdentityRecord{
		IdentityHash: hash,
		ClientID:     clientID,
		EventID:      eventID,
		RecordedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to encode identity record: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(identityKey(hash))
			if err == nil {
				return errAlreadyRegistered
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Set(identityKey(hash), data)
		})

		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errAlreadyRegistered):
			return false, nil
		case errors.Is(err, badger.ErrConflict):
			// Lost a commit race on this key; re-run to observe the winner.
			s.log.Debug("identity registration conflict, retrying",
				zap.String("identity_hash", hash))
			continue
		default:
			return false, fmt.Errorf("failed to register identity %s: %w", hash, err)
		}
	}
}
