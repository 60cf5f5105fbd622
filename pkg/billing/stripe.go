package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
	stripeclient "github.com/stripe/stripe-go/v79/client"

	"github.com/draftcoach/billing/pkg/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	APIKey        string        `env:"STRIPE_API_KEY,required"`
	WebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	SuccessURL    string        `env:"STRIPE_SUCCESS_URL,required"`
	CancelURL     string        `env:"STRIPE_CANCEL_URL,required"`
	Tolerance     time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
}

// StripeProvider implements Provider on top of the Stripe API.
type StripeProvider struct {
	api    *stripeclient.API
	config StripeConfig
}

func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	api := &stripeclient.API{}
	api.Init(config.APIKey, nil)

	return &StripeProvider{api: api, config: config}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	mode := stripe.CheckoutSessionModePayment
	if req.Recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(req.UserRef),
		SuccessURL:        stripe.String(p.config.SuccessURL),
		CancelURL:         stripe.String(p.config.CancelURL),
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:        sess.ID,
		URL:       sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

func (p *StripeProvider) FetchSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(subscriptionRef, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("fetch stripe subscription: %w", err)
	}

	out := &ProviderSubscription{
		Ref:    sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerRef = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		out.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return out, nil
}

// VerifyWebhook authenticates the payload against the Stripe-Signature
// header and normalizes the event. Only the three lifecycle events the
// processor acts on are mapped; everything else becomes EventUnhandled.
func (p *StripeProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if err := webhook.Verify(p.config.WebhookSecret, payload, signature, p.config.Tolerance); err != nil {
		switch {
		case errors.Is(err, webhook.ErrEventExpired):
			return nil, errors.Join(ErrEventExpired, err)
		default:
			return nil, errors.Join(ErrSignatureInvalid, err)
		}
	}

	var raw stripe.Event
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrSignatureInvalid, fmt.Errorf("parse stripe event: %w", err))
	}

	ev := &Event{
		ID:            raw.ID,
		ProviderEvent: string(raw.Type),
	}

	switch EventType(raw.Type) {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("parse checkout session: %w", err)
		}
		ev.Type = EventCheckoutCompleted
		ev.UserRef = sess.ClientReferenceID
		if sess.Mode == stripe.CheckoutSessionModeSubscription {
			ev.Plan = PlanRecurring
		} else {
			ev.Plan = PlanOneTime
		}
		if sess.Customer != nil {
			ev.CustomerRef = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.SubscriptionRef = sess.Subscription.ID
		}

	case EventPaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("parse invoice: %w", err)
		}
		ev.Type = EventPaymentSucceeded
		if inv.Customer != nil {
			ev.CustomerRef = inv.Customer.ID
		}
		if inv.Subscription != nil {
			ev.SubscriptionRef = inv.Subscription.ID
		}
		if end := invoicePeriodEnd(&inv); !end.IsZero() {
			ev.PeriodEnd = &end
		}

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("parse subscription: %w", err)
		}
		ev.Type = EventSubscriptionDeleted
		ev.SubscriptionRef = sub.ID
		if sub.Customer != nil {
			ev.CustomerRef = sub.Customer.ID
		}

	default:
		ev.Type = EventUnhandled
	}

	return ev, nil
}

// invoicePeriodEnd returns the latest line-item period end on the invoice.
// Renewal invoices carry the new billing period there.
func invoicePeriodEnd(inv *stripe.Invoice) time.Time {
	var end int64
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	if end == 0 {
		return time.Time{}
	}
	return time.Unix(end, 0).UTC()
}

var _ Provider = (*StripeProvider)(nil)
