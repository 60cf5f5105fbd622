package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deferrer parks events whose target record does not exist yet so they can
// be retried once the competing write lands.
type Deferrer interface {
	Defer(ctx context.Context, ev Event, readyAt time.Time) error
}

// RedisDeferralQueue holds deferred events in a sorted set scored by their
// ready time. A single polling worker pops due events and re-drives them
// through the processor; events that miss again go back through the same
// deferral path with their attempt counter already bumped.
type RedisDeferralQueue struct {
	client     *redis.Client
	key        string
	log        *slog.Logger
	retryDelay time.Duration
}

// DeferralQueueOption configures a RedisDeferralQueue.
type DeferralQueueOption func(*RedisDeferralQueue)

// WithRequeueDelay sets how long an event waits after its handler failed
// transiently before it becomes due again.
func WithRequeueDelay(d time.Duration) DeferralQueueOption {
	return func(q *RedisDeferralQueue) {
		if d > 0 {
			q.retryDelay = d
		}
	}
}

func NewRedisDeferralQueue(client *redis.Client, log *slog.Logger, opts ...DeferralQueueOption) *RedisDeferralQueue {
	if log == nil {
		log = slog.New(discardHandler{})
	}
	q := &RedisDeferralQueue{
		client:     client,
		key:        "billing:deferred",
		log:        log,
		retryDelay: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Defer stores the event with its ready time as score. The member is the
// JSON-encoded event, so redelivery preserves the attempt counter.
func (q *RedisDeferralQueue) Defer(ctx context.Context, ev Event, readyAt time.Time) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode deferred event: %w", err)
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: payload,
	}).Err()
}

// Run polls for due events until the context is canceled. A handler error
// means the failure was transient (the handler acknowledges everything else
// itself), so the event is put back on the queue to become due again after
// the requeue delay.
func (q *RedisDeferralQueue) Run(ctx context.Context, handler func(context.Context, Event) error, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := q.drainDue(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				q.log.ErrorContext(ctx, "deferral queue drain failed", slog.Any("error", err))
			}
		}
	}
}

// drainDue atomically pops all events whose ready time has passed and hands
// them to the handler one by one.
func (q *RedisDeferralQueue) drainDue(ctx context.Context, handler func(context.Context, Event) error) error {
	now := fmt.Sprintf("%d", time.Now().Unix())

	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("read due events: %w", err)
	}

	for _, member := range members {
		// Remove first so two workers cannot process the same event.
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return fmt.Errorf("remove due event: %w", err)
		}
		if removed == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(member), &ev); err != nil {
			q.log.WarnContext(ctx, "discarding undecodable deferred event",
				slog.Any("error", err))
			continue
		}

		if err := handler(ctx, ev); err != nil {
			q.log.ErrorContext(ctx, "deferred event processing failed, requeuing",
				slog.String("event_id", ev.ID),
				slog.Any("error", err))
			// The member was already removed and the provider acked long
			// ago; requeue the original member so the event is not lost.
			if qerr := q.client.ZAdd(ctx, q.key, redis.Z{
				Score:  float64(time.Now().Add(q.retryDelay).Unix()),
				Member: member,
			}).Err(); qerr != nil {
				q.log.ErrorContext(ctx, "failed to requeue deferred event",
					slog.String("event_id", ev.ID),
					slog.Any("error", qerr))
			}
		}
	}
	return nil
}
