package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/domain"
)

func TestIdentityStore_RegisterAndLookup(t *testing.T) {
	store := NewIdentityStore(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	registered, err := store.RegisterIfAbsent(ctx, "hash-1", "client_A", "evt-1")
	require.NoError(t, err)
	assert.True(t, registered)

	record, err := store.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", record.IdentityHash)
	assert.Equal(t, "client_A", record.ClientID)
	assert.Equal(t, "evt-1", record.EventID)
	assert.False(t, record.RecordedAt.IsZero())
}

func TestIdentityStore_LookupMissing(t *testing.T) {
	store := NewIdentityStore(openTestDB(t), zap.NewNop())

	_, err := store.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityStore_SecondRegistrationLoses(t *testing.T) {
	store := NewIdentityStore(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	registered, err := store.RegisterIfAbsent(ctx, "hash-1", "client_A", "evt-1")
	require.NoError(t, err)
	require.True(t, registered)

	registered, err = store.RegisterIfAbsent(ctx, "hash-1", "client_A", "evt-2")
	require.NoError(t, err)
	assert.False(t, registered)

	// The original owner is untouched.
	record, err := store.Lookup(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", record.EventID)
}

func TestIdentityStore_ConcurrentRegistrationSingleWinner(t *testing.T) {
	store := NewIdentityStore(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	const callers = 32
	var wins atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			registered, err := store.RegisterIfAbsent(ctx, "hash-contended", "client_A", fmt.Sprintf("evt-%d", i))
			assert.NoError(t, err)
			if registered {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load(), "exactly one caller must win the registration")

	record, err := store.Lookup(ctx, "hash-contended")
	require.NoError(t, err)
	assert.NotEmpty(t, record.EventID)
}

func TestIdentityStore_IndependentHashes(t *testing.T) {
	store := NewIdentityStore(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		registered, err := store.RegisterIfAbsent(ctx, fmt.Sprintf("hash-%d", i), "client_A", fmt.Sprintf("evt-%d", i))
		require.NoError(t, err)
		assert.True(t, registered, "hash %d", i)
	}
}
