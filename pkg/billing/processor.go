package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// HandleWebhook verifies a raw provider callback and processes the resulting
// event. Verification happens before anything is read or written; a rejected
// payload leaves no trace beyond a log line.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.VerifyWebhook(ctx, payload, signature)
	if err != nil {
		s.log.WarnContext(ctx, "webhook rejected", slog.Any("error", err))
		return err
	}
	return s.ProcessEvent(ctx, *ev)
}

// ProcessEvent routes a verified event to the matching handler. Events are
// acknowledged (nil error) whenever redelivery cannot help: no-ops, unknown
// types, orphans handed to the deferral queue. Errors are returned only for
// transient failures worth a provider retry.
func (s *service) ProcessEvent(ctx context.Context, ev Event) error {
	log := s.log.With(
		slog.String("event_id", ev.ID),
		slog.String("event_type", string(ev.Type)))

	switch ev.Type {
	case EventCheckoutCompleted:
		return s.processCheckoutCompleted(ctx, log, ev)
	case EventPaymentSucceeded, EventSubscriptionDeleted:
		return s.processSubscriptionEvent(ctx, log, ev)
	default:
		log.DebugContext(ctx, "ignoring unhandled event",
			slog.String("provider_event", ev.ProviderEvent))
		return nil
	}
}

// processCheckoutCompleted activates the purchased tier. The user is resolved
// from the echoed checkout reference; for recurring plans the subscription is
// re-fetched from the provider because completion events do not reliably
// carry final billing-period data.
func (s *service) processCheckoutCompleted(ctx context.Context, log *slog.Logger, ev Event) error {
	userID, err := uuid.Parse(ev.UserRef)
	if err != nil {
		log.WarnContext(ctx, "checkout completion with unusable user reference",
			slog.String("user_ref", ev.UserRef))
		return nil
	}
	if !ev.Plan.Valid() {
		log.WarnContext(ctx, "checkout completion with unknown plan",
			slog.String("plan", string(ev.Plan)))
		return nil
	}

	if ev.Plan == PlanRecurring {
		if ev.SubscriptionRef == "" {
			log.WarnContext(ctx, "recurring checkout completion without subscription ref")
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		sub, err := s.provider.FetchSubscription(fetchCtx, ev.SubscriptionRef)
		cancel()
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			log.WarnContext(ctx, "checkout references unknown subscription, discarding",
				slog.String("subscription_ref", ev.SubscriptionRef))
			return nil
		case err != nil:
			log.ErrorContext(ctx, "subscription fetch failed", slog.Any("error", err))
			return errors.Join(ErrProviderUnavailable, err)
		}

		ev.SubscriptionRef = sub.Ref
		if sub.CustomerRef != "" {
			ev.CustomerRef = sub.CustomerRef
		}
		if !sub.PeriodEnd.IsZero() {
			pe := sub.PeriodEnd
			ev.PeriodEnd = &pe
		}
	}

	return s.apply(ctx, log, userID, ev)
}

// processSubscriptionEvent handles renewal and cancellation, both keyed by
// subscription ref. A lookup miss gets one delayed in-process retry to absorb
// small reorderings, then the event is parked on the deferral queue; with no
// queue, or once attempts are exhausted, it is logged and dropped so access
// fails closed.
func (s *service) processSubscriptionEvent(ctx context.Context, log *slog.Logger, ev Event) error {
	if ev.SubscriptionRef == "" {
		log.WarnContext(ctx, "subscription event without subscription ref")
		return nil
	}
	log = log.With(slog.String("subscription_ref", ev.SubscriptionRef))

	rec, err := s.lookupBySubscriptionRef(ctx, ev.SubscriptionRef)
	if errors.Is(err, ErrRecordNotFound) {
		return s.deferOrDrop(ctx, log, ev)
	}
	if err != nil {
		log.ErrorContext(ctx, "subscription lookup failed", slog.Any("error", err))
		return errors.Join(ErrPersistenceFailure, err)
	}

	return s.apply(ctx, log, rec.UserID, ev)
}

// lookupBySubscriptionRef finds the record owning a subscription ref, with a
// single delayed retry on miss.
func (s *service) lookupBySubscriptionRef(ctx context.Context, ref string) (*Record, error) {
	rec, err := s.store.FindBySubscriptionRef(ctx, ref)
	if !errors.Is(err, ErrRecordNotFound) {
		return rec, err
	}

	select {
	case <-time.After(s.lookupRetryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.store.FindBySubscriptionRef(ctx, ref)
}

// deferOrDrop parks an orphaned event for later redelivery. Both outcomes
// acknowledge the event: the provider cannot help with an ordering problem
// on our side.
func (s *service) deferOrDrop(ctx context.Context, log *slog.Logger, ev Event) error {
	if s.deferrer == nil || ev.Attempt >= s.maxDeferrals {
		log.WarnContext(ctx, "dropping orphaned subscription event",
			slog.Int("attempt", ev.Attempt))
		return nil
	}

	ev.Attempt++
	if err := s.deferrer.Defer(ctx, ev, time.Now().Add(s.deferralDelay)); err != nil {
		log.ErrorContext(ctx, "failed to defer orphaned event", slog.Any("error", err))
		return nil
	}
	log.InfoContext(ctx, "deferred orphaned subscription event",
		slog.Int("attempt", ev.Attempt))
	return nil
}

// apply runs the read-transition-save loop under optimistic concurrency. On a
// version conflict the record is re-read and the event re-applied; the
// transition absorbs replays, so a concurrent writer that already produced
// the target state turns the retry into a no-op.
func (s *service) apply(ctx context.Context, log *slog.Logger, userID uuid.UUID, ev Event) error {
	log = log.With(slog.String("user_id", userID.String()))

	for attempt := 0; attempt < s.maxConflictRetries; attempt++ {
		rec, err := s.store.Get(ctx, userID)
		switch {
		case errors.Is(err, ErrRecordNotFound):
			rec = NewRecord(userID)
		case err != nil:
			log.ErrorContext(ctx, "record read failed", slog.Any("error", err))
			return errors.Join(ErrPersistenceFailure, err)
		}

		next, changed := Transition(*rec, ev)
		if !changed {
			log.DebugContext(ctx, "event produced no state change")
			return nil
		}

		if err := s.store.Save(ctx, &next); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				log.DebugContext(ctx, "version conflict, re-applying",
					slog.Int("attempt", attempt+1))
				continue
			}
			log.ErrorContext(ctx, "record write failed", slog.Any("error", err))
			return errors.Join(ErrPersistenceFailure, err)
		}

		s.afterCommit(ctx, log, rec, &next)
		return nil
	}

	log.ErrorContext(ctx, "giving up after repeated version conflicts",
		slog.Int("max_retries", s.maxConflictRetries))
	return ErrPersistenceFailure
}

// afterCommit runs post-write side effects. Failures here are logged only;
// the state change is already durable.
func (s *service) afterCommit(ctx context.Context, log *slog.Logger, prev, next *Record) {
	log.InfoContext(ctx, "subscription record updated",
		slog.String("from_tier", string(prev.Tier)),
		slog.String("to_tier", string(next.Tier)),
		slog.Int64("version", next.Version))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, next.UserID); err != nil {
			log.WarnContext(ctx, "gate cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.notifier != nil && prev.Tier != next.Tier {
		if err := s.notifier.TierChanged(ctx, next.UserID, prev.Tier, next.Tier); err != nil {
			log.WarnContext(ctx, "tier change notification failed", slog.Any("error", err))
		}
	}
}
