package subscriptions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/lumenapps/lumen-backend/pkg/enums"
)

func TestMapStripeStatus(t *testing.T) {
	cases := []struct {
		name  string
		value stripe.SubscriptionStatus
		want  enums.SubscriptionStatus
	}{
		{name: "active", value: stripe.SubscriptionStatusActive, want: enums.SubscriptionStatusActive},
		{name: "trialing", value: stripe.SubscriptionStatusTrialing, want: enums.SubscriptionStatusTrial},
		{name: "past due", value: stripe.SubscriptionStatusPastDue, want: enums.SubscriptionStatusPending},
		{name: "unpaid", value: stripe.SubscriptionStatusUnpaid, want: enums.SubscriptionStatusPending},
		{name: "canceled", value: stripe.SubscriptionStatusCanceled, want: enums.SubscriptionStatusCancelled},
		{name: "incomplete", value: stripe.SubscriptionStatusIncomplete, want: enums.SubscriptionStatusCancelled},
		{name: "incomplete expired", value: stripe.SubscriptionStatusIncompleteExpired, want: enums.SubscriptionStatusCancelled},
		{name: "paused", value: stripe.SubscriptionStatusPaused, want: enums.SubscriptionStatusCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MapStripeStatus(tc.value); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMapStripeStatus_UnknownDefaultsToExpired(t *testing.T) {
	if got := MapStripeStatus("brand_new_status"); got != enums.SubscriptionStatusExpired {
		t.Fatalf("expected expired for unknown status, got %s", got)
	}
}

func TestBuildSubscriptionFromStripe(t *testing.T) {
	userID := uuid.New()
	stripeSub := &stripe.Subscription{
		ID:     "sub_build",
		Status: stripe.SubscriptionStatusTrialing,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				CurrentPeriodStart: 1700000000,
				CurrentPeriodEnd:   1702592000,
				Price:              &stripe.Price{ID: "price_premium"},
			}},
		},
	}

	sub, err := BuildSubscriptionFromStripe(stripeSub, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.UserID != userID {
		t.Fatalf("user id mismatch")
	}
	if sub.Status != enums.SubscriptionStatusTrial {
		t.Fatalf("expected trial, got %s", sub.Status)
	}
	if sub.Platform != enums.PlatformWeb {
		t.Fatalf("expected web platform, got %s", sub.Platform)
	}
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != "sub_build" {
		t.Fatalf("stripe subscription id not carried over")
	}
	if sub.ProductID != "price_premium" {
		t.Fatalf("expected price fallback for product id, got %q", sub.ProductID)
	}
	wantEnd := time.Unix(1702592000, 0).UTC()
	if sub.ExpiresAt == nil || !sub.ExpiresAt.Equal(wantEnd) {
		t.Fatalf("expected expiry %v, got %v", wantEnd, sub.ExpiresAt)
	}
	if sub.CancelledAt != nil {
		t.Fatalf("expected nil cancelledAt")
	}
}

func TestBuildSubscriptionFromStripe_RequiresUser(t *testing.T) {
	if _, err := BuildSubscriptionFromStripe(&stripe.Subscription{ID: "sub"}, uuid.Nil); err == nil {
		t.Fatalf("expected error for nil user id")
	}
}

func TestUpdateSubscriptionFromStripe_SetsCancelledAt(t *testing.T) {
	userID := uuid.New()
	target, err := BuildSubscriptionFromStripe(&stripe.Subscription{ID: "sub_upd", Status: stripe.SubscriptionStatusActive}, userID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	canceled := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if err := UpdateSubscriptionFromStripe(target, &stripe.Subscription{
		ID:         "sub_upd",
		Status:     stripe.SubscriptionStatusCanceled,
		CanceledAt: canceled.Unix(),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if target.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", target.Status)
	}
	if target.CancelledAt == nil || !target.CancelledAt.Equal(canceled) {
		t.Fatalf("expected cancelledAt %v, got %v", canceled, target.CancelledAt)
	}
}

func TestDetermineProductID_PrefersProductOverPrice(t *testing.T) {
	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				Price: &stripe.Price{ID: "price_x", Product: &stripe.Product{ID: "prod_x"}},
			}},
		},
	}
	if got := DetermineProductID(sub); got != "prod_x" {
		t.Fatalf("expected prod_x, got %q", got)
	}
	if got := DetermineProductID(&stripe.Subscription{}); got != "" {
		t.Fatalf("expected empty product id, got %q", got)
	}
}

func TestPeriodForProduct(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		product string
		want    time.Time
	}{
		{name: "yearly", product: "premium_yearly", want: from.AddDate(1, 0, 0)},
		{name: "annual", product: "PREMIUM_ANNUAL", want: from.AddDate(1, 0, 0)},
		{name: "monthly", product: "premium_monthly", want: from.AddDate(0, 1, 0)},
		{name: "weekly", product: "premium_weekly", want: from.AddDate(0, 0, 7)},
		{name: "unrecognized defaults to a month", product: "premium_lifetime", want: from.AddDate(0, 1, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PeriodForProduct(tc.product, from); !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
