package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lumenapps/lumen-backend/internal/subscriptions"
	"github.com/lumenapps/lumen-backend/pkg/db/models"
	"github.com/lumenapps/lumen-backend/pkg/enums"
	pkgerrors "github.com/lumenapps/lumen-backend/pkg/errors"
)

func newTestService(t *testing.T, repo *stubRepo) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		SubscriptionRepo:  repo,
		TransactionRunner: &stubTxRunner{},
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service
}

func eventWithRaw(t *testing.T, eventType stripe.EventType, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal event object: %v", err)
	}
	// Round-trip through EventData.UnmarshalJSON so fixtures carry the
	// same populated Raw and Object a delivered event would.
	var data stripe.EventData
	if err := json.Unmarshal([]byte(`{"object":`+string(raw)+`}`), &data); err != nil {
		t.Fatalf("build event data: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &data,
	}
}

func webSubscription(stripeID string) *models.Subscription {
	return &models.Subscription{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		ProductID:            "prod_premium",
		Platform:             enums.PlatformWeb,
		Status:               enums.SubscriptionStatusActive,
		StripeSubscriptionID: &stripeID,
	}
}

func TestService_CheckoutCompletedCreatesSubscription(t *testing.T) {
	repo := &stubRepo{}
	service := newTestService(t, repo)
	userID := uuid.New()

	event := eventWithRaw(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":                  "cs_test",
		"mode":                "subscription",
		"client_reference_id": userID.String(),
		"subscription":        "sub_new",
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected subscription created, got %d", len(repo.created))
	}
	created := repo.created[0]
	if created.UserID != userID {
		t.Fatalf("user id mismatch")
	}
	if created.StripeSubscriptionID == nil || *created.StripeSubscriptionID != "sub_new" {
		t.Fatalf("stripe subscription id not recorded")
	}
	if created.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", created.Status)
	}
	if created.ProductID != "pending" {
		t.Fatalf("expected placeholder product id, got %q", created.ProductID)
	}
}

func TestService_CheckoutCompletedReusesExistingUserRecord(t *testing.T) {
	userID := uuid.New()
	existing := &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: "premium_monthly",
		Platform:  enums.PlatformIOS,
		Status:    enums.SubscriptionStatusExpired,
	}
	repo := &stubRepo{existing: existing}
	service := newTestService(t, repo)

	event := eventWithRaw(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":           "cs_switch",
		"mode":         "subscription",
		"metadata":     map[string]string{"user_id": userID.String()},
		"subscription": "sub_switch",
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("must not create a second record for the user")
	}
	if len(repo.updated) != 1 {
		t.Fatalf("expected existing record updated")
	}
	if existing.Platform != enums.PlatformWeb {
		t.Fatalf("expected platform switched to web")
	}
	if existing.StripeSubscriptionID == nil || *existing.StripeSubscriptionID != "sub_switch" {
		t.Fatalf("expected stripe id attached")
	}
}

func TestService_CheckoutCompletedWithoutUserReferenceFails(t *testing.T) {
	repo := &stubRepo{}
	service := newTestService(t, repo)

	event := eventWithRaw(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":           "cs_orphan",
		"mode":         "subscription",
		"subscription": "sub_orphan",
	})

	err := service.HandleEvent(context.Background(), event)
	if err == nil {
		t.Fatalf("expected an error for a session without a user reference")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no record created")
	}
}

func TestService_SubscriptionUpdatedMapsStatusAndPeriod(t *testing.T) {
	existing := webSubscription("sub_update")
	repo := &stubRepo{existing: existing}
	service := newTestService(t, repo)

	event := eventWithRaw(t, stripe.EventTypeCustomerSubscriptionUpdated, &stripe.Subscription{
		ID:     "sub_update",
		Status: stripe.SubscriptionStatusPastDue,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				CurrentPeriodStart: 1700000000,
				CurrentPeriodEnd:   1702592000,
				Price:              &stripe.Price{ID: "price_premium"},
			}},
		},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("expected update")
	}
	if existing.Status != enums.SubscriptionStatusPending {
		t.Fatalf("expected pending for past_due, got %s", existing.Status)
	}
	if existing.ProductID != "price_premium" {
		t.Fatalf("expected product id from line item, got %q", existing.ProductID)
	}
	if existing.CurrentPeriodEnd == nil || existing.ExpiresAt == nil {
		t.Fatalf("expected period fields populated")
	}
}

func TestService_SubscriptionEventForUnknownIDIsNoOp(t *testing.T) {
	repo := &stubRepo{}
	service := newTestService(t, repo)

	event := eventWithRaw(t, stripe.EventTypeCustomerSubscriptionUpdated, &stripe.Subscription{
		ID:     "sub_unknown",
		Status: stripe.SubscriptionStatusActive,
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown subscription must not error: %v", err)
	}
	if len(repo.created) != 0 || len(repo.updated) != 0 {
		t.Fatalf("unknown subscription must not write")
	}
}

func TestService_FixedStatusTransitions(t *testing.T) {
	cases := []struct {
		name      string
		eventType stripe.EventType
		object    map[string]any
		want      enums.SubscriptionStatus
	}{
		{
			name:      "deleted expires",
			eventType: stripe.EventTypeCustomerSubscriptionDeleted,
			object:    map[string]any{"id": "sub_fixed"},
			want:      enums.SubscriptionStatusExpired,
		},
		{
			name:      "paused cancels",
			eventType: stripe.EventTypeCustomerSubscriptionPaused,
			object:    map[string]any{"id": "sub_fixed"},
			want:      enums.SubscriptionStatusCancelled,
		},
		{
			name:      "resumed activates",
			eventType: stripe.EventTypeCustomerSubscriptionResumed,
			object:    map[string]any{"id": "sub_fixed"},
			want:      enums.SubscriptionStatusActive,
		},
		{
			name:      "invoice paid activates",
			eventType: stripe.EventTypeInvoicePaid,
			object:    map[string]any{"id": "in_1", "subscription": "sub_fixed"},
			want:      enums.SubscriptionStatusActive,
		},
		{
			name:      "invoice failure pends",
			eventType: stripe.EventTypeInvoicePaymentFailed,
			object:    map[string]any{"id": "in_2", "subscription": "sub_fixed"},
			want:      enums.SubscriptionStatusPending,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing := webSubscription("sub_fixed")
			existing.Status = enums.SubscriptionStatusTrial
			repo := &stubRepo{existing: existing}
			service := newTestService(t, repo)

			if err := service.HandleEvent(context.Background(), eventWithRaw(t, tc.eventType, tc.object)); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if existing.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, existing.Status)
			}
		})
	}
}

func TestService_InvoicePaidResolvesNestedSubscriptionDetails(t *testing.T) {
	existing := webSubscription("sub_nested")
	existing.Status = enums.SubscriptionStatusPending
	repo := &stubRepo{existing: existing}
	service := newTestService(t, repo)

	event := eventWithRaw(t, stripe.EventTypeInvoicePaid, map[string]any{
		"id": "in_nested",
		"parent": map[string]any{
			"type": "subscription_details",
			"subscription_details": map[string]any{
				"subscription": "sub_nested",
			},
		},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if existing.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", existing.Status)
	}
}

func TestService_OneOffInvoiceIsNoOp(t *testing.T) {
	cases := []struct {
		name   string
		object map[string]any
	}{
		{name: "no parent key", object: map[string]any{"id": "in_oneoff"}},
		{name: "null parent", object: map[string]any{"id": "in_oneoff", "parent": nil}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing := webSubscription("sub_untouched")
			repo := &stubRepo{existing: existing}
			service := newTestService(t, repo)

			event := eventWithRaw(t, stripe.EventTypeInvoicePaid, tc.object)
			if err := service.HandleEvent(context.Background(), event); err != nil {
				t.Fatalf("one-off invoice must not error: %v", err)
			}
			if len(repo.updated) != 0 {
				t.Fatalf("one-off invoice must not write")
			}
		})
	}
}

func TestService_InformationalAndUnknownEventsAreNoOps(t *testing.T) {
	existing := webSubscription("sub_quiet")
	repo := &stubRepo{existing: existing}
	service := newTestService(t, repo)

	for _, eventType := range []stripe.EventType{
		stripe.EventTypeCustomerSubscriptionTrialWillEnd,
		stripe.EventType("product.created"),
	} {
		if err := service.HandleEvent(context.Background(), eventWithRaw(t, eventType, map[string]any{"id": "sub_quiet"})); err != nil {
			t.Fatalf("%s must not error: %v", eventType, err)
		}
	}
	if len(repo.updated) != 0 {
		t.Fatalf("expected no writes")
	}
}

type stubRepo struct {
	existing *models.Subscription
	created  []*models.Subscription
	updated  []*models.Subscription
}

func (s *stubRepo) WithTx(tx *gorm.DB) subscriptions.Repository { return s }

func (s *stubRepo) Create(ctx context.Context, subscription *models.Subscription) error {
	s.created = append(s.created, subscription)
	return nil
}

func (s *stubRepo) Update(ctx context.Context, subscription *models.Subscription) error {
	s.updated = append(s.updated, subscription)
	return nil
}

func (s *stubRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if s.existing != nil && s.existing.UserID == userID {
		return s.existing, nil
	}
	return nil, nil
}

func (s *stubRepo) FindByOriginalTransactionID(ctx context.Context, originalTransactionID string) (*models.Subscription, error) {
	if s.existing != nil && s.existing.OriginalTransactionID != nil && *s.existing.OriginalTransactionID == originalTransactionID {
		return s.existing, nil
	}
	return nil, nil
}

func (s *stubRepo) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if s.existing != nil && s.existing.StripeSubscriptionID != nil && *s.existing.StripeSubscriptionID == stripeSubscriptionID {
		return s.existing, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateReceipt(ctx context.Context, receipt *models.Receipt) error { return nil }

func (s *stubRepo) FindReceiptByTransactionID(ctx context.Context, transactionID string) (*models.Receipt, error) {
	return nil, nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
