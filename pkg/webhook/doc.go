// Package webhook implements verification of signed payment-provider
// callbacks.
//
// Providers sign the raw request body with HMAC-SHA256 over
// "<timestamp>.<body>" using a shared secret and transmit the result in a
// header of the form "t=<unix>,v1=<hex>". Verify recomputes the signature,
// compares it in constant time, and enforces a freshness window so captured
// payloads cannot be replayed later.
//
// Usage:
//
//	err := webhook.Verify(secret, body, r.Header.Get("Stripe-Signature"), 5*time.Minute)
//	if errors.Is(err, webhook.ErrSignatureInvalid) {
//	    // reject, do not parse the body
//	}
package webhook
