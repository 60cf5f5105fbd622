package billing

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	billingsvc "github.com/draftcoach/billing/pkg/billing"
)

// DefaultSignatureHeader is where Stripe puts the webhook signature. Paddle
// deployments override it via RouterOptions.
const DefaultSignatureHeader = "Stripe-Signature"

// DefaultMaxWebhookBody caps webhook payload size. Provider events are small;
// anything larger is hostile.
const DefaultMaxWebhookBody = 1 << 20

// RouterOptions configures the billing module router.
type RouterOptions struct {
	Service billingsvc.Service
	Logger  *slog.Logger

	// SignatureHeader names the webhook signature header. Defaults to
	// DefaultSignatureHeader.
	SignatureHeader string

	// MaxWebhookBody caps the accepted webhook payload size in bytes.
	// Defaults to DefaultMaxWebhookBody.
	MaxWebhookBody int64
}

// Router mounts the billing HTTP surface:
//
//	POST /checkout              start a hosted checkout session
//	POST /webhook               provider event callback
//	GET  /entitlement/{user_id} current entitlement verdict
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//	    Service: svc,
//	    Logger:  log,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("billing: Service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = DefaultSignatureHeader
	}
	if opts.MaxWebhookBody <= 0 {
		opts.MaxWebhookBody = DefaultMaxWebhookBody
	}

	h := &handlers{
		svc:             opts.Service,
		log:             opts.Logger,
		signatureHeader: opts.SignatureHeader,
		maxWebhookBody:  opts.MaxWebhookBody,
	}

	r := chi.NewRouter()
	r.Post("/checkout", h.startCheckout)
	r.Post("/webhook", h.handleWebhook)
	r.Get("/entitlement/{user_id}", h.getEntitlement)
	return r
}
