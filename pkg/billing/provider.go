package billing

import (
	"context"
	"time"
)

// Provider is the injected payment-provider capability. Implementations wrap
// the official provider SDKs and keep provider-specific quirks (event names,
// signature headers, customer ID mapping) out of the processor.
//
// All implementations must be stateless and safe for concurrent use; webhook
// bursts are handled in parallel.
type Provider interface {
	// CreateCheckoutSession opens a hosted checkout flow. The request's
	// UserRef must be attached so the provider echoes it back verbatim on
	// completion; it is the only trusted user correlation at callback time.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// FetchSubscription re-reads the subscription object from the provider.
	// Checkout-completion events are not guaranteed to carry final
	// billing-period data, so the processor fetches instead of trusting
	// embedded fields. Returns ErrSubscriptionNotFound for unknown refs.
	FetchSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error)

	// VerifyWebhook authenticates a raw callback body against its signature
	// header and parses it into a normalized event. Verification failures
	// return ErrSignatureInvalid or ErrEventExpired; no parsing happens on
	// an unverified body. Unknown event types yield an EventUnhandled event,
	// not an error.
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID   string // provider's price identifier
	UserRef   string // internal user ID, echoed back by the provider
	Recurring bool   // subscription vs one-time payment mode
}

// CheckoutSession is the opaque redirect handle for a hosted checkout flow.
type CheckoutSession struct {
	ID        string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProviderSubscription is the provider's view of a recurring agreement.
type ProviderSubscription struct {
	Ref         string
	CustomerRef string
	Status      string
	PeriodEnd   time.Time
}
