package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lumenapps/lumen-backend/pkg/enums"
)

// Receipt is an append-only audit record of a purchase proof submitted by a
// client. It is evidence, not state: reconciliation never reads it back.
type Receipt struct {
	ID                    uuid.UUID                       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID         string                          `gorm:"column:transaction_id;not null;uniqueIndex"`
	OriginalTransactionID *string                         `gorm:"column:original_transaction_id;index"`
	ProductID             string                          `gorm:"column:product_id;not null"`
	UserID                uuid.UUID                       `gorm:"column:user_id;type:uuid;not null;index"`
	PurchaseDate          *time.Time                      `gorm:"column:purchase_date"`
	ExpiresDate           *time.Time                      `gorm:"column:expires_date"`
	Environment           enums.ReceiptEnvironment        `gorm:"column:environment;not null;default:'production'"`
	VerificationStatus    enums.ReceiptVerificationStatus `gorm:"column:verification_status;not null;default:'pending'"`
	RawPayload            json.RawMessage                 `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt             time.Time                       `gorm:"column:created_at;autoCreateTime"`
}
