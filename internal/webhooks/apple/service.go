package applewebhook

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lumenapps/lumen-backend/internal/subscriptions"
	"github.com/lumenapps/lumen-backend/pkg/appstore"
	"github.com/lumenapps/lumen-backend/pkg/db/models"
	"github.com/lumenapps/lumen-backend/pkg/enums"
	pkgerrors "github.com/lumenapps/lumen-backend/pkg/errors"
	"github.com/lumenapps/lumen-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the Apple reconciliation service.
type ServiceParams struct {
	SubscriptionRepo  subscriptions.Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	// BundleID, when set, drops notifications addressed to another app.
	BundleID string
	Now      func() time.Time
}

// Service applies App Store server notifications to the subscription store.
type Service struct {
	repo     subscriptions.Repository
	txRunner txRunner
	logg     *logger.Logger
	bundleID string
	now      func() time.Time
}

// NewService builds the Apple notification service.
func NewService(params ServiceParams) (*Service, error) {
	if params.SubscriptionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     params.SubscriptionRepo,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		bundleID: params.BundleID,
		now:      params.Now,
	}, nil
}

// HandleNotification locates the subscription named by the notification's
// original transaction id and applies the transition for its type. Unknown
// types and unknown transaction ids are successful no-ops: erroring would only
// trigger provider redelivery of a payload that will never become processable.
func (s *Service) HandleNotification(ctx context.Context, notification *appstore.Notification) error {
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}

	notificationType := notification.NotificationType
	if notificationType == "" || notificationType == appstore.NotificationTest {
		s.info(ctx, "apple test notification acknowledged")
		return nil
	}

	if s.bundleID != "" && notification.Data.BundleID != "" && notification.Data.BundleID != s.bundleID {
		s.info(ctx, "apple notification for foreign bundle ignored")
		return nil
	}

	txn, err := appstore.DecodeTransactionInfo(notification.Data.SignedTransactionInfo)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transaction info")
	}
	if txn.OriginalTransactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "original transaction id missing")
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByOriginalTransactionID(ctx, txn.OriginalTransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if sub == nil {
			// Webhooks never create Apple subscriptions. First creation is
			// the receipt verification flow's job; a notification for a
			// transaction we never saw is not our concern.
			s.info(ctx, "apple notification for unknown transaction ignored")
			return nil
		}

		changed := s.applyTransition(ctx, sub, notificationType, notification.Subtype, txn)
		if !changed {
			return nil
		}
		if err := repo.Update(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
		return nil
	})
}

// applyTransition mutates sub per the notification type and reports whether
// anything changed. Every write is an absolute overwrite so redelivery of the
// same notification converges on the same record.
func (s *Service) applyTransition(ctx context.Context, sub *models.Subscription, notificationType, subtype string, txn *appstore.TransactionInfo) bool {
	switch notificationType {
	case appstore.NotificationSubscribed, appstore.NotificationDidRenew:
		sub.Status = enums.SubscriptionStatusActive
		if txn.ProductID != "" {
			sub.ProductID = txn.ProductID
		}
		if purchase := txn.PurchaseTime(); !purchase.IsZero() {
			sub.CurrentPeriodStart = &purchase
		}
		if expires := txn.ExpiresTime(); !expires.IsZero() {
			sub.CurrentPeriodEnd = &expires
			sub.ExpiresAt = &expires
		}
		return true

	case appstore.NotificationExpired,
		appstore.NotificationGracePeriodExpired,
		appstore.NotificationRefund,
		appstore.NotificationRevoke:
		sub.Status = enums.SubscriptionStatusExpired
		return true

	case appstore.NotificationDidChangeRenewalStatus:
		if subtype == appstore.SubtypeAutoRenewDisabled {
			// Status stays as-is: the user keeps entitlement until expiry.
			// Redelivery must not shift an already-stamped timestamp.
			if sub.CancelledAt == nil {
				now := s.now()
				sub.CancelledAt = &now
				return true
			}
			return false
		}
		s.info(ctx, "apple renewal status change ignored")
		return false

	case appstore.NotificationDidFailToRenew:
		// Still entitled during the grace period; billing retry outcome
		// arrives as EXPIRED or DID_RENEW later.
		s.info(ctx, "apple renewal failure noted")
		return false

	case appstore.NotificationRenewalExtended:
		if expires := txn.ExpiresTime(); !expires.IsZero() {
			sub.ExpiresAt = &expires
			return true
		}
		return false

	case appstore.NotificationOfferRedeemed,
		appstore.NotificationDidChangeRenewalPref,
		appstore.NotificationPriceIncrease,
		appstore.NotificationConsumptionRequest:
		s.info(ctx, "apple informational notification ignored")
		return false

	default:
		s.info(ctx, "apple notification type unrecognized")
		return false
	}
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
