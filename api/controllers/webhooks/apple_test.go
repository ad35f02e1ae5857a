package webhooks

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenapps/lumen-backend/pkg/appstore"
)

type stubAppleService struct {
	received []*appstore.Notification
	err      error
}

func (s *stubAppleService) HandleNotification(ctx context.Context, notification *appstore.Notification) error {
	s.received = append(s.received, notification)
	return s.err
}

type stubGuard struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func newStubGuard() *stubGuard {
	return &stubGuard{seen: map[string]bool{}}
}

func (g *stubGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *stubGuard) Delete(ctx context.Context, eventID string) error {
	g.deleted = append(g.deleted, eventID)
	delete(g.seen, eventID)
	return nil
}

func signedApplePayload(t *testing.T, notification appstore.Notification) []byte {
	t.Helper()
	inner, err := json.Marshal(notification)
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	signed := "h." + base64.RawURLEncoding.EncodeToString(inner) + ".s"
	body, err := json.Marshal(map[string]string{"signedPayload": signed})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func postApple(t *testing.T, handler http.HandlerFunc, body []byte) (*httptest.ResponseRecorder, appleAck) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/apple", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var ack appleAck
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v (body %q)", err, rec.Body.String())
	}
	return rec, ack
}

func TestAppleWebhook_ProcessesNotification(t *testing.T) {
	svc := &stubAppleService{}
	handler := AppleWebhook(svc, newStubGuard(), nil, nil)

	body := signedApplePayload(t, appstore.Notification{
		NotificationType: appstore.NotificationExpired,
		NotificationUUID: "6f3d9a2e-0001-4f1c-8c70-000000000001",
	})
	rec, ack := postApple(t, handler, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ack.Success {
		t.Fatalf("expected success ack, got %+v", ack)
	}
	if len(svc.received) != 1 || svc.received[0].NotificationType != appstore.NotificationExpired {
		t.Fatalf("expected EXPIRED forwarded to service")
	}
}

func TestAppleWebhook_ProcessingFailureStillAnswers200(t *testing.T) {
	svc := &stubAppleService{err: errors.New("storage down")}
	guard := newStubGuard()
	handler := AppleWebhook(svc, guard, nil, nil)

	body := signedApplePayload(t, appstore.Notification{
		NotificationType: appstore.NotificationDidRenew,
		NotificationUUID: "6f3d9a2e-0002-4f1c-8c70-000000000002",
	})
	rec, ack := postApple(t, handler, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("failures must still answer 200, got %d", rec.Code)
	}
	if ack.Success {
		t.Fatalf("expected success=false on failure")
	}
	if ack.Error == "" {
		t.Fatalf("expected error message in ack")
	}
	if len(guard.deleted) != 1 {
		t.Fatalf("expected idempotency mark released for redelivery")
	}
}

func TestAppleWebhook_MalformedEnvelopeAnswers200(t *testing.T) {
	svc := &stubAppleService{}
	handler := AppleWebhook(svc, newStubGuard(), nil, nil)

	body, _ := json.Marshal(map[string]string{"signedPayload": "only.two"})
	rec, ack := postApple(t, handler, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ack.Success {
		t.Fatalf("expected success=false for malformed envelope")
	}
	if len(svc.received) != 0 {
		t.Fatalf("malformed envelope must not reach the service")
	}
}

func TestAppleWebhook_MissingSignedPayloadAnswers200(t *testing.T) {
	handler := AppleWebhook(&stubAppleService{}, newStubGuard(), nil, nil)

	rec, ack := postApple(t, handler, []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ack.Success {
		t.Fatalf("expected success=false for missing signedPayload")
	}
}

func TestAppleWebhook_DuplicateDeliveryIsAcked(t *testing.T) {
	svc := &stubAppleService{}
	guard := newStubGuard()
	handler := AppleWebhook(svc, guard, nil, nil)

	body := signedApplePayload(t, appstore.Notification{
		NotificationType: appstore.NotificationDidRenew,
		NotificationUUID: "6f3d9a2e-0003-4f1c-8c70-000000000003",
	})

	if _, ack := postApple(t, handler, body); !ack.Success {
		t.Fatalf("first delivery should succeed")
	}
	rec, ack := postApple(t, handler, body)
	if rec.Code != http.StatusOK || !ack.Success {
		t.Fatalf("duplicate must be acked, got %d %+v", rec.Code, ack)
	}
	if len(svc.received) != 1 {
		t.Fatalf("duplicate must not reach the service twice, got %d", len(svc.received))
	}
}

func TestAppleWebhook_GuardOutageDegradesToAtLeastOnce(t *testing.T) {
	svc := &stubAppleService{}
	guard := newStubGuard()
	guard.err = errors.New("redis down")
	handler := AppleWebhook(svc, guard, nil, nil)

	body := signedApplePayload(t, appstore.Notification{
		NotificationType: appstore.NotificationDidRenew,
		NotificationUUID: "6f3d9a2e-0004-4f1c-8c70-000000000004",
	})
	rec, ack := postApple(t, handler, body)
	if rec.Code != http.StatusOK || !ack.Success {
		t.Fatalf("guard outage must not block processing, got %d %+v", rec.Code, ack)
	}
	if len(svc.received) != 1 {
		t.Fatalf("expected event processed despite guard outage")
	}
}
