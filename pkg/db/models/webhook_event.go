package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
)

// WebhookEvent is the dedup and audit ledger for inbound provider events.
// The unique provider event id keeps at-least-once redeliveries from
// mutating donation state twice.
type WebhookEvent struct {
	ID              uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderEventID string               `gorm:"column:provider_event_id;not null;unique" json:"provider_event_id"`
	EventType       string               `gorm:"column:event_type;not null;index" json:"event_type"`
	Outcome         enums.WebhookOutcome `gorm:"column:outcome;type:webhook_outcome;not null" json:"outcome"`
	HandlerError    *string              `gorm:"column:handler_error" json:"handler_error,omitempty"`
	ReceivedAt      time.Time            `gorm:"column:received_at;autoCreateTime;index" json:"received_at"`
}
