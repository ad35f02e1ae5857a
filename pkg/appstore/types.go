package appstore

import "time"

// Notification type values delivered by App Store Server Notifications V2.
const (
	NotificationSubscribed             = "SUBSCRIBED"
	NotificationDidRenew               = "DID_RENEW"
	NotificationExpired                = "EXPIRED"
	NotificationGracePeriodExpired     = "GRACE_PERIOD_EXPIRED"
	NotificationDidFailToRenew         = "DID_FAIL_TO_RENEW"
	NotificationDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	NotificationDidChangeRenewalPref   = "DID_CHANGE_RENEWAL_PREF"
	NotificationRefund                 = "REFUND"
	NotificationRevoke                 = "REVOKE"
	NotificationOfferRedeemed          = "OFFER_REDEEMED"
	NotificationRenewalExtended        = "RENEWAL_EXTENDED"
	NotificationPriceIncrease          = "PRICE_INCREASE"
	NotificationConsumptionRequest     = "CONSUMPTION_REQUEST"
	NotificationTest                   = "TEST"
)

// Subtype values that disambiguate notification types.
const (
	SubtypeAutoRenewEnabled  = "AUTO_RENEW_ENABLED"
	SubtypeAutoRenewDisabled = "AUTO_RENEW_DISABLED"
	SubtypeGracePeriod       = "GRACE_PERIOD"
	SubtypeBillingRetry      = "BILLING_RETRY"
)

// Payload is the outer body Apple POSTs to the notification endpoint.
type Payload struct {
	SignedPayload string `json:"signedPayload"`
}

// Notification is the decoded content of the signedPayload JWS.
type Notification struct {
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype,omitempty"`
	NotificationUUID string           `json:"notificationUUID"`
	Version          string           `json:"version,omitempty"`
	SignedDate       int64            `json:"signedDate"`
	Data             NotificationData `json:"data"`
}

// NotificationData carries the nested signed transaction/renewal envelopes.
type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId,omitempty"`
	BundleID              string `json:"bundleId"`
	BundleVersion         string `json:"bundleVersion,omitempty"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo,omitempty"`
	SignedRenewalInfo     string `json:"signedRenewalInfo,omitempty"`
}

// TransactionInfo is the decoded signedTransactionInfo JWS. Dates are unix
// milliseconds as Apple transmits them.
type TransactionInfo struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	WebOrderLineItemID    string `json:"webOrderLineItemId,omitempty"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	SubscriptionGroupID   string `json:"subscriptionGroupIdentifier,omitempty"`
	PurchaseDate          int64  `json:"purchaseDate"`
	OriginalPurchaseDate  int64  `json:"originalPurchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	Quantity              int    `json:"quantity,omitempty"`
	Type                  string `json:"type,omitempty"`
	AppAccountToken       string `json:"appAccountToken,omitempty"`
	InAppOwnershipType    string `json:"inAppOwnershipType,omitempty"`
	SignedDate            int64  `json:"signedDate"`
	Environment           string `json:"environment"`
	RevocationDate        int64  `json:"revocationDate,omitempty"`
	RevocationReason      *int   `json:"revocationReason,omitempty"`
}

// PurchaseTime returns the purchase date as a time.Time, or zero when unset.
func (t *TransactionInfo) PurchaseTime() time.Time {
	return msToTime(t.PurchaseDate)
}

// ExpiresTime returns the expiry date as a time.Time, or zero when unset.
func (t *TransactionInfo) ExpiresTime() time.Time {
	return msToTime(t.ExpiresDate)
}

// RenewalInfo is the decoded signedRenewalInfo JWS.
type RenewalInfo struct {
	OriginalTransactionID  string `json:"originalTransactionId"`
	AutoRenewProductID     string `json:"autoRenewProductId,omitempty"`
	ProductID              string `json:"productId"`
	AutoRenewStatus        int    `json:"autoRenewStatus"`
	ExpirationIntent       int    `json:"expirationIntent,omitempty"`
	GracePeriodExpiresDate int64  `json:"gracePeriodExpiresDate,omitempty"`
	IsInBillingRetryPeriod bool   `json:"isInBillingRetryPeriod,omitempty"`
	SignedDate             int64  `json:"signedDate"`
	Environment            string `json:"environment"`
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
