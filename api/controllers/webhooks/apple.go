package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/lumenapps/lumen-backend/api/responses"
	"github.com/lumenapps/lumen-backend/api/validators"
	"github.com/lumenapps/lumen-backend/pkg/appstore"
	"github.com/lumenapps/lumen-backend/pkg/logger"
	"github.com/lumenapps/lumen-backend/pkg/metrics"
)

// AppleWebhookService applies a decoded App Store notification.
type AppleWebhookService interface {
	HandleNotification(ctx context.Context, notification *appstore.Notification) error
}

// WebhookGuard filters redelivered provider events.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type appleAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type applePayload struct {
	SignedPayload string `json:"signedPayload" validate:"required"`
}

// AppleWebhook ingests App Store Server Notifications V2. Apple redelivers on
// any non-200, and a payload we cannot process today will not become
// processable tomorrow, so every outcome answers 200; failures are visible
// only through logs and metrics.
func AppleWebhook(svc AppleWebhookService, guard WebhookGuard, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	const provider = "apple"

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider)
		}
		start := time.Now()
		defer func() { m.ObserveDuration(provider, time.Since(start)) }()

		ack := func(processingErr error) {
			if processingErr == nil {
				responses.WriteJSON(w, http.StatusOK, appleAck{Success: true})
				return
			}
			if logg != nil {
				logg.Error(ctx, "apple webhook processing failed", processingErr)
			}
			responses.WriteJSON(w, http.StatusOK, appleAck{Success: false, Error: processingErr.Error()})
		}

		if svc == nil {
			m.IncDropped(provider, "unconfigured")
			ack(nil)
			return
		}

		var payload applePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			m.IncDropped(provider, "malformed_body")
			ack(err)
			return
		}

		notification, err := appstore.DecodeSignedPayload(payload.SignedPayload)
		if err != nil {
			m.IncDropped(provider, "malformed_envelope")
			ack(err)
			return
		}

		if guard != nil && notification.NotificationUUID != "" {
			seen, err := guard.CheckAndMark(ctx, notification.NotificationUUID)
			if err == nil && seen {
				m.IncDropped(provider, "duplicate")
				ack(nil)
				return
			}
			if err != nil && logg != nil {
				// Degrade to at-least-once rather than dropping the event.
				logg.Warn(logg.WithField(ctx, "notificationUUID", notification.NotificationUUID), "idempotency check unavailable")
			}
		}

		if err := svc.HandleNotification(ctx, notification); err != nil {
			if guard != nil && notification.NotificationUUID != "" {
				_ = guard.Delete(ctx, notification.NotificationUUID)
			}
			m.IncFailed(provider, notification.NotificationType)
			ack(err)
			return
		}

		m.IncProcessed(provider, notification.NotificationType)
		ack(nil)
	}
}
