package billing

import (
	"log/slog"
	"time"
)

// Option configures a Service instance.
type Option func(*service)

// WithLogger sets the service logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDeferrer enables re-queuing of events that reference a subscription
// not yet materialized in the store. Without a deferrer such events are
// logged and discarded after the single in-process retry.
func WithDeferrer(d Deferrer) Option {
	return func(s *service) {
		if d != nil {
			s.deferrer = d
		}
	}
}

// WithNotifier registers a notifier invoked after committed tier changes.
func WithNotifier(n Notifier) Option {
	return func(s *service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithGateCache registers a gate cache to invalidate on committed writes.
func WithGateCache(c *GateCache) Option {
	return func(s *service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithCheckoutTimeout bounds the provider checkout-session creation call.
func WithCheckoutTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.checkoutTimeout = d
		}
	}
}

// WithFetchTimeout bounds the subscription re-fetch during
// checkout-completion processing.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithLookupRetryDelay sets the wait before the single in-process retry of
// a failed subscription-ref lookup.
func WithLookupRetryDelay(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.lookupRetryDelay = d
		}
	}
}

// WithDeferralDelay sets how long a deferred event waits before redelivery.
func WithDeferralDelay(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.deferralDelay = d
		}
	}
}

// WithMaxDeferrals caps deferral attempts per event. Exhausted events are
// logged and dropped, leaving the record as previously committed.
func WithMaxDeferrals(n int) Option {
	return func(s *service) {
		if n >= 0 {
			s.maxDeferrals = n
		}
	}
}

// WithMaxConflictRetries caps re-read-and-reapply rounds on version
// conflicts before the write is reported as failed.
func WithMaxConflictRetries(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxConflictRetries = n
		}
	}
}
