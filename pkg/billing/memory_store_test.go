package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftcoach/billing/pkg/billing"
)

func TestMemoryStore_GetNotFound(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)
}

func TestMemoryStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	userID := uuid.New()

	rec := billing.NewRecord(userID)
	rec.Tier = billing.TierLifetime
	require.NoError(t, store.Save(context.Background(), rec))
	assert.Equal(t, int64(1), rec.Version)
	assert.False(t, rec.UpdatedAt.IsZero())

	got, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierLifetime, got.Tier)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_InsertConflict(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	userID := uuid.New()

	require.NoError(t, store.Save(context.Background(), billing.NewRecord(userID)))

	err := store.Save(context.Background(), billing.NewRecord(userID))
	assert.ErrorIs(t, err, billing.ErrVersionConflict)
}

func TestMemoryStore_UpdateVersionCheck(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	rec := billing.NewRecord(userID)
	require.NoError(t, store.Save(ctx, rec))

	// Stale version loses.
	stale := *rec
	stale.Version = 99
	assert.ErrorIs(t, store.Save(ctx, &stale), billing.ErrVersionConflict)

	// Matching version wins and bumps.
	rec.Tier = billing.TierRecurring
	require.NoError(t, store.Save(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)
}

func TestMemoryStore_FindBySubscriptionRef(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	rec := billing.NewRecord(userID)
	rec.Tier = billing.TierRecurring
	rec.ProviderSubscriptionRef = "sub_123"
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.FindBySubscriptionRef(ctx, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)

	_, err = store.FindBySubscriptionRef(ctx, "sub_missing")
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)

	_, err = store.FindBySubscriptionRef(ctx, "")
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)
}

func TestMemoryStore_ConcurrentWritersSerialize(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, billing.NewRecord(userID)))

	// Every writer saves its own copy of the same version-1 pre-image, so
	// exactly one CAS can win regardless of scheduling.
	base, err := store.Get(ctx, userID)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed, conflicts := 0, 0

	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := *base
			rec.Tier = billing.TierRecurring
			switch err := store.Save(ctx, &rec); {
			case err == nil:
				mu.Lock()
				committed++
				mu.Unlock()
			case errors.Is(err, billing.ErrVersionConflict):
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, committed)
	assert.Equal(t, writers-1, conflicts)

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, billing.TierRecurring, got.Tier)
}
