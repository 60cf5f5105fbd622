package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IsEntitled is the feature gate. It fails closed: a store error, a missing
// record, or an expired period all read as not entitled. Missing records are
// the common case for free users and are not logged.
func (s *service) IsEntitled(ctx context.Context, userID uuid.UUID) bool {
	if s.cache != nil {
		if entitled, ok := s.cache.get(ctx, userID); ok {
			return entitled
		}
	}

	entitled, authoritative := s.entitledFromStore(ctx, userID)

	// A denial caused by a store error is not cached; it would lock a
	// paying user out for the whole TTL after a transient outage.
	if s.cache != nil && authoritative {
		s.cache.put(ctx, userID, entitled)
	}
	return entitled
}

func (s *service) entitledFromStore(ctx context.Context, userID uuid.UUID) (entitled, authoritative bool) {
	rec, err := s.GetRecord(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "entitlement check failed, denying access",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
		return false, false
	}
	return rec.EntitledAt(time.Now()), true
}

// GateCache is a short-lived Redis cache in front of the entitlement gate.
// Entries are invalidated on every committed record write, so the TTL only
// bounds staleness across processes that missed an invalidation. Cache
// failures degrade to direct store reads.
type GateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGateCache(client *redis.Client, ttl time.Duration) *GateCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &GateCache{client: client, ttl: ttl}
}

// Invalidate drops the cached verdict for a user. Called by the processor
// after every committed write.
func (c *GateCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, gateKey(userID)).Err()
}

func (c *GateCache) get(ctx context.Context, userID uuid.UUID) (entitled, ok bool) {
	val, err := c.client.Get(ctx, gateKey(userID)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

func (c *GateCache) put(ctx context.Context, userID uuid.UUID, entitled bool) {
	val := "0"
	if entitled {
		val = "1"
	}
	c.client.Set(ctx, gateKey(userID), val, c.ttl)
}

func gateKey(userID uuid.UUID) string {
	return fmt.Sprintf("billing:gate:%s", userID)
}
