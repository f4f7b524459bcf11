package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
)

// Subscription persists recurring giving state, one row per provider
// subscription id. Cancellation is a status change, never a delete.
type Subscription struct {
	ID                     uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderSubscriptionID string                    `gorm:"column:provider_subscription_id;not null;unique" json:"provider_subscription_id"`
	ProviderCustomerID     *string                   `gorm:"column:provider_customer_id;index" json:"provider_customer_id,omitempty"`
	AmountCents            int64                     `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency               enums.Currency            `gorm:"column:currency;not null;default:'usd'" json:"currency"`
	Category               enums.DonationCategory    `gorm:"column:category;type:donation_category;not null" json:"category"`
	Frequency              enums.RecurrenceFrequency `gorm:"column:frequency;type:recurrence_frequency;not null" json:"frequency"`
	Status                 enums.SubscriptionStatus  `gorm:"column:status;type:subscription_status;not null;default:'active';index" json:"status"`
	DonorEmail             *string                   `gorm:"column:donor_email;index" json:"donor_email,omitempty"`
	NextPaymentAt          *time.Time                `gorm:"column:next_payment_at" json:"next_payment_at,omitempty"`
	Metadata               json.RawMessage           `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt              time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
