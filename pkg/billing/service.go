package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service is the public interface of the billing core.
type Service interface {
	// StartCheckout opens a hosted checkout session for the user and plan
	// and returns the redirect handle. Never mutates the record.
	StartCheckout(ctx context.Context, userID uuid.UUID, plan PlanID) (*CheckoutSession, error)

	// HandleWebhook verifies a raw provider callback and processes the
	// resulting event. Verification failures mean nothing was read or
	// written.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	// ProcessEvent applies an already-verified event. Exposed so the
	// deferral worker can re-drive events through the same path.
	ProcessEvent(ctx context.Context, ev Event) error

	// IsEntitled reports whether the user currently has premium access.
	// Fails closed: any read error means not entitled.
	IsEntitled(ctx context.Context, userID uuid.UUID) bool

	// GetRecord returns the user's subscription record.
	GetRecord(ctx context.Context, userID uuid.UUID) (*Record, error)
}

type service struct {
	plans    map[PlanID]Plan
	provider Provider
	store    Store
	log      *slog.Logger

	deferrer Deferrer
	notifier Notifier
	cache    *GateCache

	checkoutTimeout    time.Duration
	fetchTimeout       time.Duration
	lookupRetryDelay   time.Duration
	deferralDelay      time.Duration
	maxDeferrals       int
	maxConflictRetries int
}

// NewService creates the billing service. Required dependencies are enforced
// with panics to fail fast on misconfiguration; optional collaborators
// (deferral queue, notifier, gate cache) are supplied via options.
func NewService(ctx context.Context, src CatalogSource, provider Provider, store Store, opts ...Option) (Service, error) {
	if src == nil {
		panic("billing: CatalogSource is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	s := &service{
		plans:              plans,
		provider:           provider,
		store:              store,
		log:                slog.New(discardHandler{}),
		checkoutTimeout:    10 * time.Second,
		fetchTimeout:       10 * time.Second,
		lookupRetryDelay:   500 * time.Millisecond,
		deferralDelay:      30 * time.Second,
		maxDeferrals:       3,
		maxConflictRetries: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetRecord returns the user's record, materializing the implicit free
// record for users that never touched billing.
func (s *service) GetRecord(ctx context.Context, userID uuid.UUID) (*Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return NewRecord(userID), nil
	}
	return rec, err
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
