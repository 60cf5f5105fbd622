// Package billing reconciles payment-provider webhook events into a local
// subscription record per user and answers the single question the rest of
// the application asks: is this user entitled to premium features right now.
//
// The design splits responsibilities sharply:
//
//   - Provider implementations (Stripe, Paddle) verify and normalize raw
//     callbacks into a closed Event set.
//   - Transition is a pure function from (Record, Event) to the next Record.
//     All tier rules live there, and replays are absorbed by construction.
//   - The processor owns the read-transition-save loop under optimistic
//     concurrency and the out-of-order handling (delayed retry, deferral
//     queue, fail-closed drop).
//   - Store implementations (Postgres, MongoDB, in-memory) provide the
//     compare-and-set write that makes concurrent webhook delivery safe.
//
// Webhook delivery is assumed hostile: unverified payloads are rejected
// before any parsing, duplicates and reordering are normal operation, and
// any uncertainty resolves toward denying access rather than granting it.
package billing
