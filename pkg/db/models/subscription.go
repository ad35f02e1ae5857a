package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenapps/lumen-backend/pkg/enums"
)

// Subscription is the single canonical subscription record per user. Provider
// webhook events locate it through OriginalTransactionID (Apple) or
// StripeSubscriptionID (web); at most one of the two is populated.
type Subscription struct {
	ID                    uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	ProductID             string                   `gorm:"column:product_id;not null"`
	Platform              enums.Platform           `gorm:"column:platform;not null"`
	Status                enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	OriginalTransactionID *string                  `gorm:"column:original_transaction_id;uniqueIndex"`
	StripeSubscriptionID  *string                  `gorm:"column:stripe_subscription_id;uniqueIndex"`
	CurrentPeriodStart    *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd      *time.Time               `gorm:"column:current_period_end"`
	ExpiresAt             *time.Time               `gorm:"column:expires_at"`
	CancelledAt           *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// IsActive reports current entitlement. Expiry is exclusive: a subscription
// whose ExpiresAt equals now is no longer active.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != enums.SubscriptionStatusActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}
