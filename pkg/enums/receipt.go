package enums

import "fmt"

// ReceiptEnvironment mirrors the App Store environment a receipt came from.
type ReceiptEnvironment string

const (
	ReceiptEnvironmentSandbox    ReceiptEnvironment = "sandbox"
	ReceiptEnvironmentProduction ReceiptEnvironment = "production"
)

var validReceiptEnvironments = []ReceiptEnvironment{
	ReceiptEnvironmentSandbox,
	ReceiptEnvironmentProduction,
}

// IsValid reports whether the value is known.
func (e ReceiptEnvironment) IsValid() bool {
	for _, candidate := range validReceiptEnvironments {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseReceiptEnvironment converts raw input into a ReceiptEnvironment.
func ParseReceiptEnvironment(value string) (ReceiptEnvironment, error) {
	for _, candidate := range validReceiptEnvironments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt environment %q", value)
}

// ReceiptVerificationStatus tracks server-side trust of a submitted receipt.
type ReceiptVerificationStatus string

const (
	ReceiptVerificationPending  ReceiptVerificationStatus = "pending"
	ReceiptVerificationVerified ReceiptVerificationStatus = "verified"
	ReceiptVerificationFailed   ReceiptVerificationStatus = "failed"
)

var validReceiptVerificationStatuses = []ReceiptVerificationStatus{
	ReceiptVerificationPending,
	ReceiptVerificationVerified,
	ReceiptVerificationFailed,
}

// IsValid reports whether the value is known.
func (s ReceiptVerificationStatus) IsValid() bool {
	for _, candidate := range validReceiptVerificationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReceiptVerificationStatus converts raw input into a ReceiptVerificationStatus.
func ParseReceiptVerificationStatus(value string) (ReceiptVerificationStatus, error) {
	for _, candidate := range validReceiptVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt verification status %q", value)
}
