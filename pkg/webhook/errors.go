package webhook

import "errors"

// Stable error identities for signature verification. Callers classify with
// errors.Is; both invalid signatures and expired events must be rejected
// before any payload parsing or state access.
var (
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrEventExpired         = errors.New("webhook event expired")
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
)
