package billing

import "time"

// Transition is the core state machine: a pure mapping from the current
// record and a verified event to the next record. It performs no I/O, which
// makes replays naturally idempotent — re-applying an event to the state it
// already produced reports changed=false and the caller skips the write.
//
// The caller is responsible for routing: renewal and cancellation events
// must already have been matched to the record via their subscription ref.
func Transition(rec Record, ev Event) (Record, bool) {
	switch ev.Type {
	case EventCheckoutCompleted:
		if ev.Plan == PlanOneTime {
			return applyLifetimePurchase(rec, ev)
		}
		return applyRecurringCheckout(rec, ev)

	case EventPaymentSucceeded:
		return applyRenewal(rec, ev)

	case EventSubscriptionDeleted:
		return applyCancellation(rec, ev)

	default:
		return rec, false
	}
}

// applyLifetimePurchase grants a terminal lifetime tier. Any recurring
// remnants are cleared; a later cancellation of the stale recurring
// agreement must not touch this record.
func applyLifetimePurchase(rec Record, ev Event) (Record, bool) {
	next := rec
	next.Tier = TierLifetime
	next.PeriodEnd = nil
	next.ProviderSubscriptionRef = ""
	if ev.CustomerRef != "" {
		next.ProviderCustomerRef = ev.CustomerRef
	}
	return next, !equivalent(rec, next)
}

// applyRecurringCheckout activates a recurring subscription. The event is
// expected to be enriched with the re-fetched subscription data (period end,
// customer and subscription refs) before it reaches the transition.
func applyRecurringCheckout(rec Record, ev Event) (Record, bool) {
	next := rec
	next.Tier = TierRecurring
	next.PeriodEnd = ev.PeriodEnd
	next.ProviderSubscriptionRef = ev.SubscriptionRef
	if ev.CustomerRef != "" {
		next.ProviderCustomerRef = ev.CustomerRef
	}
	return next, !equivalent(rec, next)
}

// applyRenewal refreshes the paid period. It also self-heals a record that
// drifted to free because an earlier event was missed: the lookup matched
// on subscription ref, so the agreement is demonstrably alive. A lifetime
// grant is never downgraded by renewal traffic.
func applyRenewal(rec Record, ev Event) (Record, bool) {
	if rec.Tier == TierLifetime {
		return rec, false
	}

	next := rec
	next.Tier = TierRecurring
	if ev.SubscriptionRef != "" {
		next.ProviderSubscriptionRef = ev.SubscriptionRef
	}
	if ev.CustomerRef != "" {
		next.ProviderCustomerRef = ev.CustomerRef
	}
	if ev.PeriodEnd != nil {
		next.PeriodEnd = ev.PeriodEnd
	}
	return next, !equivalent(rec, next)
}

// applyCancellation ends a recurring agreement. Lifetime records are left
// untouched: a cancellation for a superseded recurring ref after a one-time
// purchase must not revoke the grant. A mismatched ref means the event is
// stale or foreign and is ignored.
func applyCancellation(rec Record, ev Event) (Record, bool) {
	if rec.Tier == TierLifetime {
		return rec, false
	}
	if rec.ProviderSubscriptionRef == "" || rec.ProviderSubscriptionRef != ev.SubscriptionRef {
		return rec, false
	}

	next := rec
	next.Tier = TierFree
	next.PeriodEnd = nil
	next.ProviderSubscriptionRef = ""
	return next, true
}

// equivalent compares the event-controlled fields of two records, ignoring
// the version/updated bookkeeping the store maintains.
func equivalent(a, b Record) bool {
	return a.Tier == b.Tier &&
		a.ProviderCustomerRef == b.ProviderCustomerRef &&
		a.ProviderSubscriptionRef == b.ProviderSubscriptionRef &&
		sameTime(a.PeriodEnd, b.PeriodEnd)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
