package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed payload.
// Events older than this are rejected as potential replays.
const DefaultTolerance = 5 * time.Minute

// SignatureHeader is the parsed form of a provider signature header.
// The wire format follows the Stripe scheme: "t=<unix>,v1=<hex hmac>".
// Multiple v1 entries are allowed to support secret rotation on the
// provider side; any matching entry passes verification.
type SignatureHeader struct {
	Timestamp  int64
	Signatures []string
}

// ParseSignatureHeader splits a raw signature header into its timestamp and
// signature components. Unknown scheme prefixes are ignored so future
// provider scheme versions do not break parsing.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	if header == "" {
		return SignatureHeader{}, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	var parsed SignatureHeader
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return SignatureHeader{}, fmt.Errorf("%w: malformed timestamp", ErrSignatureInvalid)
			}
			parsed.Timestamp = ts
		case "v1":
			parsed.Signatures = append(parsed.Signatures, v)
		}
	}

	if parsed.Timestamp == 0 || len(parsed.Signatures) == 0 {
		return SignatureHeader{}, fmt.Errorf("%w: incomplete signature header", ErrSignatureInvalid)
	}
	return parsed, nil
}

// Verify authenticates a raw payload against its signature header using the
// shared secret. The expected signature is HMAC-SHA256 over
// "<timestamp>.<payload>" and is compared in constant time. Payloads whose
// timestamp falls outside the tolerance window are rejected with
// ErrEventExpired before any signature comparison happens.
func Verify(secret string, payload []byte, header string, tolerance time.Duration) error {
	return verifyAt(secret, payload, header, tolerance, time.Now())
}

func verifyAt(secret string, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrSignatureInvalid)
	}

	sig, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	age := now.Sub(time.Unix(sig.Timestamp, 0))
	if age > tolerance {
		return fmt.Errorf("%w: event is %s old", ErrEventExpired, age.Truncate(time.Second))
	}
	// Allow modest clock skew but reject far-future timestamps outright.
	if age < -1*time.Minute {
		return fmt.Errorf("%w: timestamp is in the future", ErrEventExpired)
	}

	expected := ComputeSignature(secret, payload, sig.Timestamp)
	for _, candidate := range sig.Signatures {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", ErrSignatureInvalid)
}

// ComputeSignature returns the hex HMAC-SHA256 of "<timestamp>.<payload>".
func ComputeSignature(secret string, payload []byte, timestamp int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", timestamp)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign produces a complete signature header for a payload. Used by tests and
// by tooling that replays captured events against a local endpoint.
func Sign(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(secret, payload, ts))
}
