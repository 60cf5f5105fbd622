package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftcoach/billing/pkg/billing"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProvider) FetchSubscription(ctx context.Context, ref string) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}

type recordingDeferrer struct {
	mu     sync.Mutex
	events []billing.Event
}

func (d *recordingDeferrer) Defer(ctx context.Context, ev billing.Event, readyAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func (d *recordingDeferrer) deferred() []billing.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]billing.Event(nil), d.events...)
}

func testCatalog() billing.StaticCatalog {
	return billing.StaticCatalog{
		billing.PlanRecurring: {
			ID:        billing.PlanRecurring,
			Name:      "Monthly",
			PriceID:   "price_monthly",
			Amount:    2000,
			Currency:  "USD",
			Recurring: true,
		},
		billing.PlanOneTime: {
			ID:       billing.PlanOneTime,
			Name:     "Lifetime",
			PriceID:  "price_lifetime",
			Amount:   20000,
			Currency: "USD",
		},
	}
}

func newTestService(t *testing.T, provider billing.Provider, store billing.Store, opts ...billing.Option) billing.Service {
	t.Helper()
	opts = append([]billing.Option{billing.WithLookupRetryDelay(time.Millisecond)}, opts...)
	svc, err := billing.NewService(context.Background(), testCatalog(), provider, store, opts...)
	require.NoError(t, err)
	return svc
}

func TestProcessEvent_LifetimeCheckout(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	svc := newTestService(t, provider, store)
	userID := uuid.New()

	err := svc.ProcessEvent(context.Background(), billing.Event{
		ID:          "evt_1",
		Type:        billing.EventCheckoutCompleted,
		Plan:        billing.PlanOneTime,
		UserRef:     userID.String(),
		CustomerRef: "cus_1",
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierLifetime, rec.Tier)
	assert.Equal(t, "cus_1", rec.ProviderCustomerRef)
	assert.True(t, svc.IsEntitled(context.Background(), userID))
	provider.AssertNotCalled(t, "FetchSubscription", mock.Anything, mock.Anything)
}

func TestProcessEvent_RecurringCheckoutFetchesSubscription(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	userID := uuid.New()
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()

	provider.On("FetchSubscription", mock.Anything, "sub_1").Return(&billing.ProviderSubscription{
		Ref:         "sub_1",
		CustomerRef: "cus_1",
		Status:      "active",
		PeriodEnd:   periodEnd,
	}, nil)

	svc := newTestService(t, provider, store)

	err := svc.ProcessEvent(context.Background(), billing.Event{
		ID:              "evt_1",
		Type:            billing.EventCheckoutCompleted,
		Plan:            billing.PlanRecurring,
		UserRef:         userID.String(),
		SubscriptionRef: "sub_1",
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierRecurring, rec.Tier)
	assert.Equal(t, "sub_1", rec.ProviderSubscriptionRef)
	require.NotNil(t, rec.PeriodEnd)
	assert.True(t, rec.PeriodEnd.Equal(periodEnd))
	provider.AssertExpectations(t)
}

func TestProcessEvent_RecurringCheckoutProviderDown(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	provider.On("FetchSubscription", mock.Anything, "sub_1").
		Return(nil, errors.New("connection refused"))

	svc := newTestService(t, provider, store)
	userID := uuid.New()

	err := svc.ProcessEvent(context.Background(), billing.Event{
		Type:            billing.EventCheckoutCompleted,
		Plan:            billing.PlanRecurring,
		UserRef:         userID.String(),
		SubscriptionRef: "sub_1",
	})
	require.ErrorIs(t, err, billing.ErrProviderUnavailable)

	_, err = store.Get(context.Background(), userID)
	assert.ErrorIs(t, err, billing.ErrRecordNotFound, "failed fetch must not mutate state")
}

func TestProcessEvent_CheckoutUnknownSubscriptionDiscarded(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	provider.On("FetchSubscription", mock.Anything, "sub_gone").
		Return(nil, billing.ErrSubscriptionNotFound)

	svc := newTestService(t, provider, store)
	userID := uuid.New()

	err := svc.ProcessEvent(context.Background(), billing.Event{
		Type:            billing.EventCheckoutCompleted,
		Plan:            billing.PlanRecurring,
		UserRef:         userID.String(),
		SubscriptionRef: "sub_gone",
	})
	assert.NoError(t, err, "unknown subscription is acknowledged, not retried")

	_, err = store.Get(context.Background(), userID)
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)
}

func TestProcessEvent_UnusableUserRefAcknowledged(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	svc := newTestService(t, new(mockProvider), store)

	err := svc.ProcessEvent(context.Background(), billing.Event{
		Type:    billing.EventCheckoutCompleted,
		Plan:    billing.PlanOneTime,
		UserRef: "not-a-uuid",
	})
	assert.NoError(t, err)
}

func TestProcessEvent_RenewalAndCancellation(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	svc := newTestService(t, new(mockProvider), store)
	ctx := context.Background()
	userID := uuid.New()

	rec := billing.NewRecord(userID)
	rec.Tier = billing.TierRecurring
	rec.PeriodEnd = timePtr(time.Now().Add(24 * time.Hour))
	rec.ProviderSubscriptionRef = "sub_1"
	require.NoError(t, store.Save(ctx, rec))

	newEnd := time.Now().Add(60 * 24 * time.Hour).UTC()
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		Type:            billing.EventPaymentSucceeded,
		SubscriptionRef: "sub_1",
		PeriodEnd:       timePtr(newEnd),
	}))

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got.PeriodEnd)
	assert.True(t, got.PeriodEnd.Equal(newEnd))

	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		Type:            billing.EventSubscriptionDeleted,
		SubscriptionRef: "sub_1",
	}))

	got, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierFree, got.Tier)
	assert.False(t, svc.IsEntitled(ctx, userID))
}

func TestProcessEvent_DuplicateDeliveryIsNoop(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	svc := newTestService(t, new(mockProvider), store)
	ctx := context.Background()
	userID := uuid.New()

	ev := billing.Event{
		ID:      "evt_dup",
		Type:    billing.EventCheckoutCompleted,
		Plan:    billing.PlanOneTime,
		UserRef: userID.String(),
	}
	require.NoError(t, svc.ProcessEvent(ctx, ev))

	first, err := store.Get(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, svc.ProcessEvent(ctx, ev))

	second, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version, "replay must not produce a write")
}

func TestProcessEvent_OrphanedRenewalDeferred(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	deferrer := &recordingDeferrer{}
	svc := newTestService(t, new(mockProvider), store, billing.WithDeferrer(deferrer))

	err := svc.ProcessEvent(context.Background(), billing.Event{
		ID:              "evt_orphan",
		Type:            billing.EventPaymentSucceeded,
		SubscriptionRef: "sub_unknown",
	})
	assert.NoError(t, err, "deferred events are acknowledged")

	deferred := deferrer.deferred()
	require.Len(t, deferred, 1)
	assert.Equal(t, 1, deferred[0].Attempt)
}

func TestProcessEvent_OrphanExhaustsDeferralsAndDrops(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	deferrer := &recordingDeferrer{}
	svc := newTestService(t, new(mockProvider), store,
		billing.WithDeferrer(deferrer), billing.WithMaxDeferrals(2))

	ev := billing.Event{
		Type:            billing.EventPaymentSucceeded,
		SubscriptionRef: "sub_unknown",
		Attempt:         2,
	}
	require.NoError(t, svc.ProcessEvent(context.Background(), ev))
	assert.Empty(t, deferrer.deferred(), "exhausted events are dropped, not re-queued")
}

func TestProcessEvent_OrphanWithoutDeferrerDropped(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	svc := newTestService(t, new(mockProvider), store)

	err := svc.ProcessEvent(context.Background(), billing.Event{
		Type:            billing.EventSubscriptionDeleted,
		SubscriptionRef: "sub_unknown",
	})
	assert.NoError(t, err)
}

func TestProcessEvent_OutOfOrderCheckoutThenDeferredRenewal(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	deferrer := &recordingDeferrer{}
	userID := uuid.New()
	checkoutEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	renewalEnd := time.Now().Add(60 * 24 * time.Hour).UTC()

	provider.On("FetchSubscription", mock.Anything, "sub_1").Return(&billing.ProviderSubscription{
		Ref:       "sub_1",
		Status:    "active",
		PeriodEnd: checkoutEnd,
	}, nil)

	svc := newTestService(t, provider, store, billing.WithDeferrer(deferrer))
	ctx := context.Background()

	// Renewal lands before the checkout completion it depends on.
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		Type:            billing.EventPaymentSucceeded,
		SubscriptionRef: "sub_1",
		PeriodEnd:       timePtr(renewalEnd),
	}))
	require.Len(t, deferrer.deferred(), 1)

	// Checkout completion arrives and materializes the record.
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		Type:            billing.EventCheckoutCompleted,
		Plan:            billing.PlanRecurring,
		UserRef:         userID.String(),
		SubscriptionRef: "sub_1",
	}))

	// Redelivery of the deferred renewal now finds its record.
	require.NoError(t, svc.ProcessEvent(ctx, deferrer.deferred()[0]))

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierRecurring, rec.Tier)
	require.NotNil(t, rec.PeriodEnd)
	assert.True(t, rec.PeriodEnd.Equal(renewalEnd))
}

func TestProcessEvent_RecurringLifecycle(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	userID := uuid.New()
	ctx := context.Background()
	firstEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	secondEnd := time.Now().Add(60 * 24 * time.Hour).UTC()

	provider.On("FetchSubscription", mock.Anything, "sub_1").Return(&billing.ProviderSubscription{
		Ref:         "sub_1",
		CustomerRef: "cus_1",
		Status:      "active",
		PeriodEnd:   firstEnd,
	}, nil)

	svc := newTestService(t, provider, store)

	// Subscribe.
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		ID:              "evt_checkout",
		Type:            billing.EventCheckoutCompleted,
		Plan:            billing.PlanRecurring,
		UserRef:         userID.String(),
		SubscriptionRef: "sub_1",
	}))
	assert.True(t, svc.IsEntitled(ctx, userID))

	// Renew.
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		ID:              "evt_renewal",
		Type:            billing.EventPaymentSucceeded,
		SubscriptionRef: "sub_1",
		PeriodEnd:       timePtr(secondEnd),
	}))
	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, rec.PeriodEnd)
	assert.True(t, rec.PeriodEnd.Equal(secondEnd))
	assert.True(t, svc.IsEntitled(ctx, userID))

	// Cancel.
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		ID:              "evt_cancel",
		Type:            billing.EventSubscriptionDeleted,
		SubscriptionRef: "sub_1",
	}))
	rec, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierFree, rec.Tier)
	assert.False(t, svc.IsEntitled(ctx, userID))

	// A late duplicate of the cancellation changes nothing.
	require.NoError(t, svc.ProcessEvent(ctx, billing.Event{
		ID:              "evt_cancel",
		Type:            billing.EventSubscriptionDeleted,
		SubscriptionRef: "sub_1",
	}))
	final, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, rec.Version, final.Version)
}

func TestProcessEvent_ConcurrentEventsConverge(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	svc := newTestService(t, new(mockProvider), store)
	ctx := context.Background()
	userID := uuid.New()

	rec := billing.NewRecord(userID)
	rec.Tier = billing.TierRecurring
	rec.ProviderSubscriptionRef = "sub_1"
	require.NoError(t, store.Save(ctx, rec))

	newEnd := time.Now().Add(60 * 24 * time.Hour).UTC()
	renewal := billing.Event{
		Type:            billing.EventPaymentSucceeded,
		SubscriptionRef: "sub_1",
		PeriodEnd:       timePtr(newEnd),
	}

	// The same renewal delivered concurrently: conflicts re-apply and the
	// replay absorbs into a no-op.
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.ProcessEvent(ctx, renewal))
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierRecurring, got.Tier)
	require.NotNil(t, got.PeriodEnd)
	assert.True(t, got.PeriodEnd.Equal(newEnd))
	assert.Equal(t, int64(2), got.Version, "only one delivery commits a write")
}

func TestHandleWebhook_RejectedSignatureTouchesNothing(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	payload := []byte(`{"type":"checkout.session.completed"}`)
	provider.On("VerifyWebhook", mock.Anything, payload, "bad-sig").
		Return(nil, billing.ErrSignatureInvalid)

	svc := newTestService(t, provider, store)

	err := svc.HandleWebhook(context.Background(), payload, "bad-sig")
	assert.ErrorIs(t, err, billing.ErrSignatureInvalid)
	provider.AssertExpectations(t)
}

func TestHandleWebhook_UnhandledEventAcknowledged(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := new(mockProvider)
	payload := []byte(`{"type":"customer.created"}`)
	provider.On("VerifyWebhook", mock.Anything, payload, "sig").Return(&billing.Event{
		ID:            "evt_1",
		Type:          billing.EventUnhandled,
		ProviderEvent: "customer.created",
	}, nil)

	svc := newTestService(t, provider, store)

	assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
}
