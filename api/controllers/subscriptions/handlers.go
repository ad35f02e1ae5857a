package subscriptions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lumenapps/lumen-backend/api/middleware"
	"github.com/lumenapps/lumen-backend/api/responses"
	"github.com/lumenapps/lumen-backend/api/validators"
	subsvc "github.com/lumenapps/lumen-backend/internal/subscriptions"
	"github.com/lumenapps/lumen-backend/pkg/db/models"
	"github.com/lumenapps/lumen-backend/pkg/enums"
	pkgerrors "github.com/lumenapps/lumen-backend/pkg/errors"
	"github.com/lumenapps/lumen-backend/pkg/logger"
)

type verifyReceiptRequest struct {
	TransactionID         string          `json:"transaction_id" validate:"required"`
	OriginalTransactionID string          `json:"original_transaction_id,omitempty"`
	ProductID             string          `json:"product_id" validate:"required"`
	Environment           string          `json:"environment,omitempty" validate:"omitempty,oneof=sandbox production"`
	Receipt               json.RawMessage `json:"receipt,omitempty"`
}

type subscriptionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ProductID          string     `json:"product_id"`
	Platform           string     `json:"platform"`
	Status             string     `json:"status"`
	IsActive           bool       `json:"is_active"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

func newSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 sub.ID,
		ProductID:          sub.ProductID,
		Platform:           string(sub.Platform),
		Status:             string(sub.Status),
		IsActive:           sub.IsActive(time.Now().UTC()),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		ExpiresAt:          sub.ExpiresAt,
		CancelledAt:        sub.CancelledAt,
	}
}

func resolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// Get returns the caller's subscription record.
func Get(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			// No subscription is a normal state for a free user.
			responses.WriteSuccess(w, nil)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// VerifyReceipt accepts a client-declared purchase and activates the caller's
// subscription from it.
func VerifyReceipt(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload verifyReceiptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.VerifyReceipt(r.Context(), userID, subsvc.VerifyReceiptInput{
			TransactionID:         payload.TransactionID,
			OriginalTransactionID: payload.OriginalTransactionID,
			ProductID:             payload.ProductID,
			Environment:           enums.ReceiptEnvironment(payload.Environment),
			RawPayload:            payload.Receipt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Cancel marks the caller's subscription cancelled.
func Cancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Cancel(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Restore re-reads the caller's stored subscription without touching providers.
func Restore(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Restore(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}
