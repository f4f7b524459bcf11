package stripewebhook

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
)

// Ledger is the dedup and audit log for inbound provider events. An event id
// already present must never be reprocessed against donation state.
type Ledger interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string, outcome enums.WebhookOutcome, handlerErr error) error
}

type dbLedger struct {
	db *gorm.DB
}

// NewLedger builds the event ledger backed by the webhook_events table.
func NewLedger(db *gorm.DB) Ledger {
	return &dbLedger{db: db}
}

func (l *dbLedger) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record writes the processing outcome. A concurrent duplicate insert for the
// same event id is ignored so redeliveries never error out here.
func (l *dbLedger) Record(ctx context.Context, eventID, eventType string, outcome enums.WebhookOutcome, handlerErr error) error {
	entry := &models.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: eventID,
		EventType:       eventType,
		Outcome:         outcome,
	}
	if handlerErr != nil {
		message := handlerErr.Error()
		entry.HandlerError = &message
	}
	return l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(entry).Error
}
