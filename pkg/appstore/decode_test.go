package appstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// sign builds an unsigned JWS compact string the way Apple structures them:
// base64url(header).base64url(payload).base64url(signature).
func sign(t *testing.T, payload any) string {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`))
	middle := base64.RawURLEncoding.EncodeToString(body)
	sig := base64.RawURLEncoding.EncodeToString([]byte("sig"))
	return header + "." + middle + "." + sig
}

func TestDecodeSignedPayload(t *testing.T) {
	signed := sign(t, Notification{
		NotificationType: NotificationDidRenew,
		Subtype:          "",
		NotificationUUID: "b153b3d1-0001-4b2f-9d2c-6a6f6f1f2a01",
		Data: NotificationData{
			BundleID:              "com.lumenapps.lumen",
			Environment:           "Production",
			SignedTransactionInfo: "ignored-here",
		},
	})

	notification, err := DecodeSignedPayload(signed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if notification.NotificationType != NotificationDidRenew {
		t.Fatalf("expected DID_RENEW, got %q", notification.NotificationType)
	}
	if notification.Data.BundleID != "com.lumenapps.lumen" {
		t.Fatalf("unexpected bundle id %q", notification.Data.BundleID)
	}
}

func TestDecodeTransactionInfoDates(t *testing.T) {
	purchase := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	expires := purchase.AddDate(0, 1, 0)
	signed := sign(t, TransactionInfo{
		TransactionID:         "2000000987654321",
		OriginalTransactionID: "1000000123456789",
		ProductID:             "premium_monthly",
		PurchaseDate:          purchase.UnixMilli(),
		ExpiresDate:           expires.UnixMilli(),
		Environment:           "Production",
	})

	txn, err := DecodeTransactionInfo(signed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !txn.PurchaseTime().Equal(purchase) {
		t.Fatalf("purchase time %v, want %v", txn.PurchaseTime(), purchase)
	}
	if !txn.ExpiresTime().Equal(expires) {
		t.Fatalf("expires time %v, want %v", txn.ExpiresTime(), expires)
	}
}

func TestDecodeTransactionInfoZeroDates(t *testing.T) {
	signed := sign(t, TransactionInfo{OriginalTransactionID: "1000000123456789"})
	txn, err := DecodeTransactionInfo(signed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !txn.ExpiresTime().IsZero() {
		t.Fatalf("expected zero expiry, got %v", txn.ExpiresTime())
	}
}

func TestDecodeRejectsWrongSegmentCount(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "one segment", input: "foo"},
		{name: "two segments", input: "foo.bar"},
		{name: "four segments", input: "a.b.c.d"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeSignedPayload(tc.input)
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestDecodeRejectsBadBase64(t *testing.T) {
	_, err := DecodeSignedPayload("header.!!!not-base64!!!.sig")
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestDecodeRejectsNonJSONPayload(t *testing.T) {
	middle := base64.RawURLEncoding.EncodeToString([]byte("plain text"))
	_, err := DecodeSignedPayload("h." + middle + ".s")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
