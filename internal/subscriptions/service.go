package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenapps/lumen-backend/pkg/db/models"
	"github.com/lumenapps/lumen-backend/pkg/enums"
	pkgerrors "github.com/lumenapps/lumen-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the user-facing subscription surface.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	VerifyReceipt(ctx context.Context, userID uuid.UUID, input VerifyReceiptInput) (*models.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Restore(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Now               func() time.Time
}

// VerifyReceiptInput captures a client-declared purchase submission.
type VerifyReceiptInput struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	Environment           enums.ReceiptEnvironment
	RawPayload            []byte
}

type service struct {
	repo     Repository
	txRunner txRunner
	now      func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		now:      params.Now,
	}, nil
}

// Get returns the user's subscription record, or nil when none exists.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// VerifyReceipt records the submitted receipt and activates the user's
// subscription from the client-declared product. No provider round trip is
// performed here; the webhook path remains the authoritative reconciler.
func (s *service) VerifyReceipt(ctx context.Context, userID uuid.UUID, input VerifyReceiptInput) (*models.Subscription, error) {
	transactionID := strings.TrimSpace(input.TransactionID)
	productID := strings.TrimSpace(input.ProductID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	environment := input.Environment
	if environment == "" {
		environment = enums.ReceiptEnvironmentProduction
	}

	now := s.now()
	expiresAt := PeriodForProduct(productID, now)
	originalTransactionID := strings.TrimSpace(input.OriginalTransactionID)
	if originalTransactionID == "" {
		originalTransactionID = transactionID
	}

	var result *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindReceiptByTransactionID(ctx, transactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
		}
		if existing == nil {
			receipt := &models.Receipt{
				TransactionID:         transactionID,
				OriginalTransactionID: trimmedPtr(originalTransactionID),
				ProductID:             productID,
				UserID:                userID,
				PurchaseDate:          &now,
				ExpiresDate:           &expiresAt,
				Environment:           environment,
				VerificationStatus:    enums.ReceiptVerificationVerified,
				RawPayload:            input.RawPayload,
			}
			if err := repo.CreateReceipt(ctx, receipt); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist receipt")
			}
		}

		sub, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if sub == nil {
			sub = &models.Subscription{
				UserID:                userID,
				ProductID:             productID,
				Platform:              enums.PlatformIOS,
				Status:                enums.SubscriptionStatusActive,
				OriginalTransactionID: trimmedPtr(originalTransactionID),
				CurrentPeriodStart:    &now,
				CurrentPeriodEnd:      &expiresAt,
				ExpiresAt:             &expiresAt,
			}
			if err := repo.Create(ctx, sub); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
			}
			result = sub
			return nil
		}

		sub.ProductID = productID
		sub.Platform = enums.PlatformIOS
		sub.Status = enums.SubscriptionStatusActive
		sub.OriginalTransactionID = trimmedPtr(originalTransactionID)
		sub.CurrentPeriodStart = &now
		sub.CurrentPeriodEnd = &expiresAt
		sub.ExpiresAt = &expiresAt
		sub.CancelledAt = nil
		if err := repo.Update(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel marks the subscription cancelled. Entitlement persists until the
// recorded expiry passes.
func (s *service) Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no subscription found")
		}
		now := s.now()
		sub.Status = enums.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		if err := repo.Update(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Restore re-reads the stored record without querying any provider.
func (s *service) Restore(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription found")
	}
	return sub, nil
}
