package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	CheckoutURL   string `env:"PADDLE_CHECKOUT_URL"`
}

// PaddleProvider implements Provider on top of the Paddle Billing API.
// Paddle has no first-class checkout session object; a draft transaction
// with a hosted checkout URL plays that role.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	plan := PlanOneTime
	if req.Recurring {
		plan = PlanRecurring
	}

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		// Echoed back on every webhook for this transaction; the only
		// trusted user correlation at callback time.
		CustomData: paddle.CustomData{
			"user_ref": req.UserRef,
			"plan":     string(plan),
		},
	}
	if p.config.CheckoutURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(p.config.CheckoutURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("create paddle transaction: %w", err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{
		ID:  transaction.ID,
		URL: *transaction.Checkout.URL,
		// Paddle checkout links expire after 24 hours.
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *PaddleProvider) FetchSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionRef,
	})
	if err != nil {
		// The SDK does not expose a typed not-found error; match the API
		// error code in the message.
		if strings.Contains(err.Error(), "not_found") {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("fetch paddle subscription: %w", err)
	}

	out := &ProviderSubscription{
		Ref:         sub.ID,
		CustomerRef: sub.CustomerID,
		Status:      string(sub.Status),
	}
	if sub.CurrentBillingPeriod != nil {
		if end, err := time.Parse(time.RFC3339, sub.CurrentBillingPeriod.EndsAt); err == nil {
			out.PeriodEnd = end.UTC()
		}
	}
	return out, nil
}

// VerifyWebhook authenticates the Paddle-Signature header via the SDK
// verifier and maps Paddle's event names onto the normalized set.
func (p *PaddleProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var raw struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrSignatureInvalid, fmt.Errorf("parse paddle event: %w", err))
	}

	ev := &Event{
		ID:            raw.EventID,
		ProviderEvent: raw.EventType,
	}

	switch raw.EventType {
	case "transaction.completed":
		ev.Type = EventCheckoutCompleted
		if custom, ok := raw.Data["custom_data"].(map[string]any); ok {
			if ref, ok := custom["user_ref"].(string); ok {
				ev.UserRef = ref
			}
			if plan, ok := custom["plan"].(string); ok {
				ev.Plan = PlanID(plan)
			}
		}
		if subID, ok := raw.Data["subscription_id"].(string); ok {
			ev.SubscriptionRef = subID
		}
		if custID, ok := raw.Data["customer_id"].(string); ok {
			ev.CustomerRef = custID
		}

	case "transaction.payment_succeeded":
		ev.Type = EventPaymentSucceeded
		if subID, ok := raw.Data["subscription_id"].(string); ok {
			ev.SubscriptionRef = subID
		}
		if custID, ok := raw.Data["customer_id"].(string); ok {
			ev.CustomerRef = custID
		}
		if period, ok := raw.Data["billing_period"].(map[string]any); ok {
			if endsAt, ok := period["ends_at"].(string); ok {
				if end, err := time.Parse(time.RFC3339, endsAt); err == nil {
					utc := end.UTC()
					ev.PeriodEnd = &utc
				}
			}
		}

	case "subscription.canceled":
		ev.Type = EventSubscriptionDeleted
		if subID, ok := raw.Data["id"].(string); ok {
			ev.SubscriptionRef = subID
		}
		if custID, ok := raw.Data["customer_id"].(string); ok {
			ev.CustomerRef = custID
		}

	default:
		ev.Type = EventUnhandled
	}

	return ev, nil
}

var _ Provider = (*PaddleProvider)(nil)
