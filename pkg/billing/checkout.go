package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// StartCheckout resolves the plan to a provider price and opens a hosted
// checkout session. The user ID travels as an opaque reference the provider
// echoes back verbatim on completion; that echo is the only user correlation
// the webhook path will trust.
func (s *service) StartCheckout(ctx context.Context, userID uuid.UUID, plan PlanID) (*CheckoutSession, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	p, ok := s.plans[plan]
	if !ok {
		return nil, ErrInvalidPlan
	}

	ctx, cancel := context.WithTimeout(ctx, s.checkoutTimeout)
	defer cancel()

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		PriceID:   p.PriceID,
		UserRef:   userID.String(),
		Recurring: p.Recurring,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session creation failed",
			slog.String("user_id", userID.String()),
			slog.String("plan", string(plan)),
			slog.Any("error", err))
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	s.log.InfoContext(ctx, "checkout session created",
		slog.String("user_id", userID.String()),
		slog.String("plan", string(plan)),
		slog.String("session_id", sess.ID))
	return sess, nil
}
