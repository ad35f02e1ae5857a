// Package appstore decodes App Store Server Notifications V2 payloads.
//
// Apple wraps every notification in a JWS compact serialization
// (header.payload.signature). The decoders here extract and parse the payload
// segment only; the signature is not verified, so callers must already trust
// the transport. A certificate-chain verifier would slot in ahead of these
// functions.
package appstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedEnvelope reports a signed string that is not a three-part
	// JWS compact serialization with base64url segments.
	ErrMalformedEnvelope = errors.New("appstore: malformed signed envelope")

	// ErrInvalidPayload reports a payload segment that decoded but is not the
	// expected JSON document.
	ErrInvalidPayload = errors.New("appstore: invalid payload")
)

// DecodeSignedPayload parses the outer notification envelope.
func DecodeSignedPayload(signed string) (*Notification, error) {
	var notification Notification
	if err := decodeSegment(signed, &notification); err != nil {
		return nil, err
	}
	return &notification, nil
}

// DecodeTransactionInfo parses a signedTransactionInfo envelope.
func DecodeTransactionInfo(signed string) (*TransactionInfo, error) {
	var txn TransactionInfo
	if err := decodeSegment(signed, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// DecodeRenewalInfo parses a signedRenewalInfo envelope.
func DecodeRenewalInfo(signed string) (*RenewalInfo, error) {
	var renewal RenewalInfo
	if err := decodeSegment(signed, &renewal); err != nil {
		return nil, err
	}
	return &renewal, nil
}

func decodeSegment(signed string, dest any) error {
	if strings.TrimSpace(signed) == "" {
		return fmt.Errorf("%w: empty input", ErrMalformedEnvelope)
	}

	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedEnvelope, len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
