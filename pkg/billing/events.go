package billing

import "time"

// EventType is the normalized billing event type. The set is closed; every
// provider implementation maps its own event names onto it, and anything
// outside the set becomes EventUnhandled so new provider events degrade to
// acknowledged no-ops instead of failures.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventPaymentSucceeded    EventType = "invoice.payment_succeeded"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventUnhandled           EventType = "unhandled"
)

// Event is a verified, normalized provider callback. Only fields relevant to
// the event type are populated.
type Event struct {
	ID            string    `json:"id"`             // provider-issued event ID
	Type          EventType `json:"type"`           // normalized type
	ProviderEvent string    `json:"provider_event"` // original provider event name

	// UserRef is the reference we attached at checkout time and the provider
	// echoed back. It is the only trusted user correlation on checkout
	// completion; client-supplied identifiers in the payload are ignored.
	UserRef string `json:"user_ref,omitempty"`

	Plan            PlanID     `json:"plan,omitempty"`             // set on checkout completion
	CustomerRef     string     `json:"customer_ref,omitempty"`     // provider's customer ID
	SubscriptionRef string     `json:"subscription_ref,omitempty"` // provider's subscription ID
	PeriodEnd       *time.Time `json:"period_end,omitempty"`       // end of the paid period

	// Attempt counts internal re-deliveries through the deferral queue.
	// Zero on first delivery from the provider.
	Attempt int `json:"attempt,omitempty"`
}
