package donations

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
)

// Provider id prefixes used to auto-detect identifier kinds.
const (
	paymentIntentPrefix = "pi_"
	sessionPrefix       = "cs_"
)

// Identifier resolves a donation by internal id, payment-intent id, or
// session id, in that order.
type Identifier struct {
	InternalID      *uuid.UUID
	PaymentIntentID string
	SessionID       string
}

// ParseIdentifier classifies a raw path identifier by its prefix convention.
func ParseIdentifier(raw string) (Identifier, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identifier{}, pkgerrors.New(pkgerrors.CodeValidation, "identifier required")
	}
	switch {
	case strings.HasPrefix(trimmed, paymentIntentPrefix):
		return Identifier{PaymentIntentID: trimmed}, nil
	case strings.HasPrefix(trimmed, sessionPrefix):
		return Identifier{SessionID: trimmed}, nil
	default:
		id, err := uuid.Parse(trimmed)
		if err != nil {
			return Identifier{}, pkgerrors.New(pkgerrors.CodeValidation, "identifier must be a uuid or a provider-prefixed id")
		}
		return Identifier{InternalID: &id}, nil
	}
}

// UpsertParams carries the fields merged into a donation on upsert. Nil
// pointers leave the stored value untouched.
type UpsertParams struct {
	SessionID       string
	PaymentIntentID *string
	SubscriptionID  *string
	AmountCents     *int64
	Currency        *enums.Currency
	Category        *enums.DonationCategory
	Kind            *enums.DonationKind
	Frequency       *enums.RecurrenceFrequency
	Status          *enums.DonationStatus
	DonorEmail      *string
	Metadata        map[string]string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the donation transaction store surface consumed by the webhook
// dispatcher and the reporting layer.
type Service interface {
	UpsertBySession(ctx context.Context, params UpsertParams) (*models.Donation, error)
	SetStatus(ctx context.Context, ident Identifier, status enums.DonationStatus, extra map[string]string) (*models.Donation, error)
	Find(ctx context.Context, ident Identifier) (*models.Donation, error)
	Query(ctx context.Context, params QueryParams) ([]models.Donation, int64, error)
	Summarize(ctx context.Context, filters Filters) (*Summary, error)
	MarkReceiptSent(ctx context.Context, id uuid.UUID) error
}

// ServiceParams wires the donation store dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
}

type service struct {
	repo     Repository
	txRunner txRunner
}

// NewService validates dependencies and returns the donation store.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "donations repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{repo: params.Repo, txRunner: params.TransactionRunner}, nil
}

// UpsertBySession creates or merges the donation keyed by provider session
// id. Redelivered events merge field-wise; the status field only ever moves
// forward.
func (s *service) UpsertBySession(ctx context.Context, params UpsertParams) (*models.Donation, error) {
	if strings.TrimSpace(params.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if params.AmountCents != nil && *params.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-negative")
	}

	var result *models.Donation
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stored, err := repo.FindBySessionIDForUpdate(ctx, params.SessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if stored == nil && params.PaymentIntentID != nil {
			stored, err = repo.FindByPaymentIntentIDForUpdate(ctx, *params.PaymentIntentID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation by payment intent")
			}
		}

		if stored == nil {
			created, buildErr := buildDonation(params)
			if buildErr != nil {
				return buildErr
			}
			if err := repo.Create(ctx, created); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create donation")
			}
			result = created
			return nil
		}

		changed := mergeDonation(stored, params)
		if !changed {
			result = stored
			return nil
		}
		if err := repo.Save(ctx, stored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update donation")
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetStatus applies the forward-only transition. A stale retry carrying an
// earlier state leaves the stored terminal status untouched and returns the
// unchanged record. Returns nil when no record matches.
func (s *service) SetStatus(ctx context.Context, ident Identifier, status enums.DonationStatus, extra map[string]string) (*models.Donation, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid donation status")
	}

	var result *models.Donation
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stored, err := s.resolveForUpdate(ctx, repo, ident)
		if err != nil {
			return err
		}
		if stored == nil {
			return nil
		}

		changed := false
		if stored.Status.CanTransitionTo(status) {
			stored.Status = status
			changed = true
		}
		if len(extra) > 0 {
			merged, mergeErr := mergeMetadata(stored.Metadata, extra)
			if mergeErr != nil {
				return mergeErr
			}
			stored.Metadata = merged
			changed = true
		}
		if changed {
			if err := repo.Save(ctx, stored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update donation status")
			}
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Find resolves the identifier without locking. Returns nil when no record
// matches.
func (s *service) Find(ctx context.Context, ident Identifier) (*models.Donation, error) {
	if ident.InternalID != nil {
		donation, err := s.repo.FindByID(ctx, *ident.InternalID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if donation != nil {
			return donation, nil
		}
	}
	if ident.PaymentIntentID != "" {
		donation, err := s.repo.FindByPaymentIntentID(ctx, ident.PaymentIntentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if donation != nil {
			return donation, nil
		}
	}
	if ident.SessionID != "" {
		donation, err := s.repo.FindBySessionID(ctx, ident.SessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if donation != nil {
			return donation, nil
		}
	}
	return nil, nil
}

func (s *service) Query(ctx context.Context, params QueryParams) ([]models.Donation, int64, error) {
	rows, total, err := s.repo.Query(ctx, params)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query donations")
	}
	return rows, total, nil
}

func (s *service) Summarize(ctx context.Context, filters Filters) (*Summary, error) {
	summary, err := s.repo.Summarize(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize donations")
	}
	return summary, nil
}

// MarkReceiptSent stamps the receipt timestamp once; later calls no-op.
func (s *service) MarkReceiptSent(ctx context.Context, id uuid.UUID) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if stored == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "donation not found")
		}
		if stored.ReceiptSentAt != nil {
			return nil
		}
		now := nowUTC()
		stored.ReceiptSentAt = &now
		if err := repo.Save(ctx, stored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark receipt sent")
		}
		return nil
	})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *service) resolveForUpdate(ctx context.Context, repo Repository, ident Identifier) (*models.Donation, error) {
	if ident.InternalID != nil {
		stored, err := repo.FindByID(ctx, *ident.InternalID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if stored != nil {
			// Re-read under lock keyed by session id.
			return repo.FindBySessionIDForUpdate(ctx, stored.SessionID)
		}
	}
	if ident.PaymentIntentID != "" {
		stored, err := repo.FindByPaymentIntentIDForUpdate(ctx, ident.PaymentIntentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if stored != nil {
			return stored, nil
		}
	}
	if ident.SessionID != "" {
		stored, err := repo.FindBySessionIDForUpdate(ctx, ident.SessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load donation")
		}
		if stored != nil {
			return stored, nil
		}
	}
	return nil, nil
}

func buildDonation(params UpsertParams) (*models.Donation, error) {
	donation := &models.Donation{
		SessionID: params.SessionID,
		Currency:  enums.CurrencyUSD,
		Kind:      enums.DonationKindOneTime,
		Category:  enums.DonationCategoryOfferings,
		Status:    enums.DonationStatusPending,
	}
	mergeDonation(donation, params)
	if donation.Kind == enums.DonationKindRecurring && donation.Frequency == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recurring donations require a frequency")
	}
	return donation, nil
}

// mergeDonation applies non-nil fields onto the stored record. Status honors
// the forward-only rule. Reports whether anything changed.
func mergeDonation(target *models.Donation, params UpsertParams) bool {
	changed := false
	if params.PaymentIntentID != nil && (target.PaymentIntentID == nil || *target.PaymentIntentID != *params.PaymentIntentID) {
		target.PaymentIntentID = params.PaymentIntentID
		changed = true
	}
	if params.SubscriptionID != nil && (target.SubscriptionID == nil || *target.SubscriptionID != *params.SubscriptionID) {
		target.SubscriptionID = params.SubscriptionID
		changed = true
	}
	if params.AmountCents != nil && target.AmountCents != *params.AmountCents {
		target.AmountCents = *params.AmountCents
		changed = true
	}
	if params.Currency != nil && target.Currency != *params.Currency {
		target.Currency = *params.Currency
		changed = true
	}
	if params.Category != nil && target.Category != *params.Category {
		target.Category = *params.Category
		changed = true
	}
	if params.Kind != nil && target.Kind != *params.Kind {
		target.Kind = *params.Kind
		changed = true
	}
	if params.Frequency != nil && (target.Frequency == nil || *target.Frequency != *params.Frequency) {
		target.Frequency = params.Frequency
		changed = true
	}
	if params.Status != nil && target.Status.CanTransitionTo(*params.Status) {
		target.Status = *params.Status
		changed = true
	}
	if params.DonorEmail != nil && (target.DonorEmail == nil || *target.DonorEmail != *params.DonorEmail) {
		target.DonorEmail = params.DonorEmail
		changed = true
	}
	if len(params.Metadata) > 0 {
		if merged, err := mergeMetadata(target.Metadata, params.Metadata); err == nil {
			target.Metadata = merged
			changed = true
		}
	}
	return changed
}

func mergeMetadata(existing json.RawMessage, extras map[string]string) (json.RawMessage, error) {
	merged := map[string]string{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored metadata")
		}
	}
	for k, v := range extras {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode metadata")
	}
	return out, nil
}
