package billing

import "errors"

var (
	// Checkout initiation.
	ErrMissingUserID = errors.New("user ID is required")
	ErrInvalidPlan   = errors.New("unknown billing plan")

	// Provider interaction. ErrProviderUnavailable is transient; the caller
	// may retry.
	ErrProviderUnavailable  = errors.New("billing provider unavailable")
	ErrSubscriptionNotFound = errors.New("subscription not found at provider")
	ErrNoCheckoutURL        = errors.New("no checkout URL returned from provider")

	// Webhook verification. Both mean the payload was never processed.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrEventExpired     = errors.New("webhook event expired")

	// Entitlement store.
	ErrRecordNotFound     = errors.New("subscription record not found")
	ErrVersionConflict    = errors.New("subscription record version conflict")
	ErrPersistenceFailure = errors.New("failed to persist subscription record")

	// Plan catalog.
	ErrFailedToLoadPlans        = errors.New("failed to load billing plans")
	ErrInvalidPlanConfiguration = errors.New("invalid billing plan configuration")

	// Provider configuration.
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
)
