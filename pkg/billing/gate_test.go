package billing_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftcoach/billing/pkg/billing"
)

// flakyStore wraps a MemoryStore and fails reads on demand.
type flakyStore struct {
	*billing.MemoryStore
	failGet atomic.Bool
}

func (s *flakyStore) Get(ctx context.Context, userID uuid.UUID) (*billing.Record, error) {
	if s.failGet.Load() {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.Get(ctx, userID)
}

func newTestGateCache(t *testing.T) *billing.GateCache {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return billing.NewGateCache(client, time.Minute)
}

func TestIsEntitled_ErrorVerdictNotCached(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: billing.NewMemoryStore()}
	cache := newTestGateCache(t)
	svc := newTestService(t, new(mockProvider), store, billing.WithGateCache(cache))
	ctx := context.Background()
	userID := uuid.New()

	rec := billing.NewRecord(userID)
	rec.Tier = billing.TierLifetime
	require.NoError(t, store.Save(ctx, rec))

	// Store outage: denied, but the denial must not stick in the cache.
	store.failGet.Store(true)
	assert.False(t, svc.IsEntitled(ctx, userID))

	store.failGet.Store(false)
	assert.True(t, svc.IsEntitled(ctx, userID),
		"recovered store must win over the earlier errored denial")
}

func TestIsEntitled_CachedVerdictServedWithoutStore(t *testing.T) {
	t.Parallel()

	store := &flakyStore{MemoryStore: billing.NewMemoryStore()}
	cache := newTestGateCache(t)
	svc := newTestService(t, new(mockProvider), store, billing.WithGateCache(cache))
	ctx := context.Background()
	userID := uuid.New()

	rec := billing.NewRecord(userID)
	rec.Tier = billing.TierLifetime
	require.NoError(t, store.Save(ctx, rec))

	// Warm the cache, then cut the store off.
	require.True(t, svc.IsEntitled(ctx, userID))
	store.failGet.Store(true)

	assert.True(t, svc.IsEntitled(ctx, userID), "verdict should come from the cache")
}

func TestIsEntitled_CommittedWriteInvalidatesCache(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	cache := newTestGateCache(t)
	svc := newTestService(t, new(mockProvider), store, billing.WithGateCache(cache))
	ctx := context.Background()
	userID := uuid.New()

	// Cache the free-tier denial.
	require.False(t, svc.IsEntitled(ctx, userID))

	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		ID:      "evt_grant",
		Type:    billing.EventCheckoutCompleted,
		Plan:    billing.PlanOneTime,
		UserRef: userID.String(),
	}))

	assert.True(t, svc.IsEntitled(ctx, userID),
		"committed grant must not be shadowed by the cached denial")
}
