package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lumenapps/lumen-backend/internal/subscriptions"
	"github.com/lumenapps/lumen-backend/pkg/db/models"
	"github.com/lumenapps/lumen-backend/pkg/enums"
	pkgerrors "github.com/lumenapps/lumen-backend/pkg/errors"
	"github.com/lumenapps/lumen-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the Stripe reconciliation service.
type ServiceParams struct {
	SubscriptionRepo  subscriptions.Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service applies Stripe webhook events to the subscription store.
type Service struct {
	repo     subscriptions.Repository
	txRunner txRunner
	logg     *logger.Logger
}

// NewService builds the Stripe webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.SubscriptionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:     params.SubscriptionRepo,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// HandleEvent routes a verified Stripe event to its transition. Events that
// reference a subscription we do not know are successful no-ops; only
// checkout.session.completed may create a record.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.handleCheckoutCompleted(ctx, &session)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, &stripeSub)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.setStatus(ctx, subscriptionIDFromEvent(event), enums.SubscriptionStatusExpired)
	case stripe.EventTypeCustomerSubscriptionPaused:
		return s.setStatus(ctx, subscriptionIDFromEvent(event), enums.SubscriptionStatusCancelled)
	case stripe.EventTypeCustomerSubscriptionResumed:
		return s.setStatus(ctx, subscriptionIDFromEvent(event), enums.SubscriptionStatusActive)
	case stripe.EventTypeInvoicePaid:
		return s.setStatus(ctx, invoiceSubscriptionID(event), enums.SubscriptionStatusActive)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.setStatus(ctx, invoiceSubscriptionID(event), enums.SubscriptionStatusPending)
	case stripe.EventTypeCustomerSubscriptionTrialWillEnd:
		s.info(ctx, "stripe trial ending notice ignored")
		return nil
	default:
		s.info(ctx, "stripe event type unrecognized")
		return nil
	}
}

// handleCheckoutCompleted is the single creation path on the Stripe side. The
// user id travels through client_reference_id (or metadata) stamped at
// checkout time; the product id stays a placeholder until the subscription
// snapshot event lands.
func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Mode != "" && session.Mode != stripe.CheckoutSessionModeSubscription {
		s.info(ctx, "stripe checkout session not a subscription")
		return nil
	}
	userID, err := userIDFromSession(session)
	if err != nil {
		// Without a user we cannot own the record; surfacing the error makes
		// Stripe redeliver once the checkout integration is fixed.
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout session user reference")
	}
	stripeSubscriptionID := ""
	if session.Subscription != nil {
		stripeSubscriptionID = session.Subscription.ID
	}
	if stripeSubscriptionID == "" {
		s.info(ctx, "stripe checkout session missing subscription id")
		return nil
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByStripeSubscriptionID(ctx, stripeSubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if existing != nil {
			existing.Status = enums.SubscriptionStatusActive
			return repoUpdate(ctx, repo, existing)
		}

		byUser, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if byUser != nil {
			byUser.Status = enums.SubscriptionStatusActive
			byUser.Platform = enums.PlatformWeb
			byUser.StripeSubscriptionID = &stripeSubscriptionID
			return repoUpdate(ctx, repo, byUser)
		}

		sub := &models.Subscription{
			UserID:               userID,
			ProductID:            "pending",
			Platform:             enums.PlatformWeb,
			Status:               enums.SubscriptionStatusActive,
			StripeSubscriptionID: &stripeSubscriptionID,
		}
		if err := repo.Create(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
		return nil
	})
}

func (s *Service) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil || stripeSub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.FindByStripeSubscriptionID(ctx, stripeSub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if stored == nil {
			s.info(ctx, "stripe event for unknown subscription ignored")
			return nil
		}
		if err := subscriptions.UpdateSubscriptionFromStripe(stored, stripeSub); err != nil {
			return err
		}
		return repoUpdate(ctx, repo, stored)
	})
}

func (s *Service) setStatus(ctx context.Context, stripeSubscriptionID string, status enums.SubscriptionStatus) error {
	if stripeSubscriptionID == "" {
		s.info(ctx, "stripe event missing subscription id")
		return nil
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.FindByStripeSubscriptionID(ctx, stripeSubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if stored == nil {
			s.info(ctx, "stripe event for unknown subscription ignored")
			return nil
		}
		stored.Status = status
		return repoUpdate(ctx, repo, stored)
	})
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func repoUpdate(ctx context.Context, repo subscriptions.Repository, sub *models.Subscription) error {
	if err := repo.Update(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}
	return nil
}

func userIDFromSession(session *stripe.CheckoutSession) (uuid.UUID, error) {
	candidates := []string{session.ClientReferenceID}
	if session.Metadata != nil {
		candidates = append(candidates, session.Metadata["user_id"], session.Metadata["userId"])
	}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if id, err := uuid.Parse(candidate); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user id missing from checkout session")
}

func subscriptionIDFromEvent(event *stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return ""
	}
	return object.ID
}

// invoiceSubscriptionID extracts the owning subscription from an invoice
// payload. Current API versions nest it under parent.subscription_details;
// older ones carry a top-level subscription string. One-off invoices have
// neither, which must stay a quiet empty result rather than a failure.
func invoiceSubscriptionID(event *stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err == nil &&
		invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID
	}

	var legacy struct {
		Subscription string `json:"subscription"`
	}
	if err := json.Unmarshal(event.Data.Raw, &legacy); err != nil {
		return ""
	}
	return legacy.Subscription
}
