package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/lumenapps/lumen-backend/api/responses"
	"github.com/lumenapps/lumen-backend/pkg/logger"
	"github.com/lumenapps/lumen-backend/pkg/metrics"
)

// StripeWebhookService applies a verified Stripe event.
type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// Stripe events are small; anything past 1 MiB is not a legitimate delivery.
const stripeBodyLimit = 1024 * 1024

type stripeAck struct {
	Received bool `json:"received"`
}

type stripeError struct {
	Error string `json:"error"`
}

// StripeWebhook ingests Stripe events. Unlike the Apple endpoint it answers
// non-200 on verification failures so Stripe retries once a misconfigured
// secret is fixed.
func StripeWebhook(svc StripeWebhookService, signingSecret string, guard WebhookGuard, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	const provider = "stripe"

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider)
		}
		start := time.Now()
		defer func() { m.ObserveDuration(provider, time.Since(start)) }()

		r.Body = http.MaxBytesReader(w, r.Body, stripeBodyLimit)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			m.IncDropped(provider, "unreadable_body")
			responses.WriteJSON(w, http.StatusBadRequest, stripeError{Error: "Unable to read request body"})
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			m.IncDropped(provider, "missing_signature")
			responses.WriteJSON(w, http.StatusBadRequest, stripeError{Error: "Missing stripe-signature header"})
			return
		}

		var event stripe.Event
		if signingSecret == "" {
			// Unset secret skips verification. Dev-only escape hatch.
			if logg != nil {
				logg.Warn(ctx, "stripe webhook secret unset, accepting unverified payload")
			}
			if err := json.Unmarshal(payload, &event); err != nil {
				m.IncDropped(provider, "malformed_body")
				responses.WriteJSON(w, http.StatusBadRequest, stripeError{Error: "Invalid payload"})
				return
			}
		} else {
			event, err = webhook.ConstructEventWithOptions(payload, sigHeader, signingSecret, webhook.ConstructEventOptions{
				IgnoreAPIVersionMismatch: true,
			})
			if err != nil {
				m.IncDropped(provider, "invalid_signature")
				responses.WriteJSON(w, http.StatusUnauthorized, stripeError{Error: "Invalid signature"})
				return
			}
		}

		if guard != nil && event.ID != "" {
			seen, guardErr := guard.CheckAndMark(ctx, event.ID)
			if guardErr == nil && seen {
				m.IncDropped(provider, "duplicate")
				responses.WriteJSON(w, http.StatusOK, stripeAck{Received: true})
				return
			}
			if guardErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "eventId", event.ID), "idempotency check unavailable")
			}
		}

		if svc == nil {
			m.IncDropped(provider, "unconfigured")
			responses.WriteJSON(w, http.StatusInternalServerError, stripeError{Error: "Webhook processing failed"})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if guard != nil && event.ID != "" {
				_ = guard.Delete(ctx, event.ID)
			}
			if logg != nil {
				logg.Error(ctx, "stripe webhook processing failed", err)
			}
			m.IncFailed(provider, string(event.Type))
			responses.WriteJSON(w, http.StatusInternalServerError, stripeError{Error: "Webhook processing failed"})
			return
		}

		m.IncProcessed(provider, string(event.Type))
		responses.WriteJSON(w, http.StatusOK, stripeAck{Received: true})
	}
}
