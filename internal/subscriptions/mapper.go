package subscriptions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/lumenapps/lumen-backend/pkg/db/models"
	"github.com/lumenapps/lumen-backend/pkg/enums"
	pkgerrors "github.com/lumenapps/lumen-backend/pkg/errors"
)

// MapStripeStatus folds Stripe's native subscription status vocabulary into
// the canonical enum. Unknown statuses map to expired so a new Stripe status
// never grants entitlement by accident.
func MapStripeStatus(raw stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch raw {
	case stripe.SubscriptionStatusActive:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusTrial
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionStatusPending
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusIncomplete,
		stripe.SubscriptionStatusIncompleteExpired,
		stripe.SubscriptionStatusPaused:
		return enums.SubscriptionStatusCancelled
	default:
		return enums.SubscriptionStatusExpired
	}
}

// BuildSubscriptionFromStripe maps a Stripe subscription into the canonical model.
func BuildSubscriptionFromStripe(stripeSub *stripe.Subscription, userID uuid.UUID) (*models.Subscription, error) {
	if stripeSub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	startTS, endTS := periodFromSubscription(stripeSub)
	stripeID := stripeSub.ID

	return &models.Subscription{
		UserID:               userID,
		ProductID:            DetermineProductID(stripeSub),
		Platform:             enums.PlatformWeb,
		Status:               MapStripeStatus(stripeSub.Status),
		StripeSubscriptionID: trimmedPtr(stripeID),
		CurrentPeriodStart:   toTimePtr(startTS),
		CurrentPeriodEnd:     toTimePtr(endTS),
		ExpiresAt:            toTimePtr(endTS),
		CancelledAt:          toTimePtr(stripeSub.CanceledAt),
	}, nil
}

// UpdateSubscriptionFromStripe mutates the provided subscription with new Stripe data.
func UpdateSubscriptionFromStripe(target *models.Subscription, stripeSub *stripe.Subscription) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	target.Status = MapStripeStatus(stripeSub.Status)
	if id := trimmedPtr(stripeSub.ID); id != nil {
		target.StripeSubscriptionID = id
	}
	if product := DetermineProductID(stripeSub); product != "" {
		target.ProductID = product
	}
	startTS, endTS := periodFromSubscription(stripeSub)
	target.CurrentPeriodStart = toTimePtr(startTS)
	target.CurrentPeriodEnd = toTimePtr(endTS)
	target.ExpiresAt = toTimePtr(endTS)
	target.CancelledAt = toTimePtr(stripeSub.CanceledAt)
	return nil
}

// DetermineProductID picks the product identifier from the first line item.
func DetermineProductID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return ""
	}
	if item.Price.Product != nil && item.Price.Product.ID != "" {
		return item.Price.Product.ID
	}
	return item.Price.ID
}

// PeriodForProduct infers a billing period from the product naming convention.
// Used only on the client-declared verification path where no provider period
// fields are available.
func PeriodForProduct(productID string, from time.Time) time.Time {
	normalized := strings.ToLower(strings.TrimSpace(productID))
	switch {
	case strings.Contains(normalized, "yearly"), strings.Contains(normalized, "annual"):
		return from.AddDate(1, 0, 0)
	case strings.Contains(normalized, "weekly"):
		return from.AddDate(0, 0, 7)
	case strings.Contains(normalized, "monthly"):
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0, 0
	}
	item := sub.Items.Data[0]
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}
