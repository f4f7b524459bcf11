package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
)

// Donation records one gift per provider checkout session. Rows are never
// deleted; terminal statuses close the lifecycle but the record stays for
// reporting.
type Donation struct {
	ID                uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID         string                     `gorm:"column:session_id;not null;unique" json:"session_id"`
	PaymentIntentID   *string                    `gorm:"column:payment_intent_id;index" json:"payment_intent_id,omitempty"`
	SubscriptionID    *string                    `gorm:"column:subscription_id;index" json:"subscription_id,omitempty"`
	AmountCents       int64                      `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency          enums.Currency             `gorm:"column:currency;not null;default:'usd'" json:"currency"`
	Category          enums.DonationCategory     `gorm:"column:category;type:donation_category;not null;index" json:"category"`
	Kind              enums.DonationKind         `gorm:"column:kind;type:donation_kind;not null;default:'one_time'" json:"kind"`
	Frequency         *enums.RecurrenceFrequency `gorm:"column:frequency;type:recurrence_frequency" json:"frequency,omitempty"`
	Status            enums.DonationStatus       `gorm:"column:status;type:donation_status;not null;default:'pending';index" json:"status"`
	DonorEmail        *string                    `gorm:"column:donor_email;index" json:"donor_email,omitempty"`
	Metadata          json.RawMessage            `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	ReceiptSentAt     *time.Time                 `gorm:"column:receipt_sent_at" json:"receipt_sent_at,omitempty"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
