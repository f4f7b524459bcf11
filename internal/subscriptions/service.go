package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service keeps the local recurring-giving ledger in step with provider
// subscription lifecycle events.
type Service interface {
	SyncFromStripe(ctx context.Context, stripeSub *stripe.Subscription) (*models.Subscription, error)
	MarkStatus(ctx context.Context, providerSubscriptionID string, status enums.SubscriptionStatus) (*models.Subscription, error)
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	List(ctx context.Context, params ListParams) ([]models.Subscription, int64, error)
}

// ServiceParams wires the subscription service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
}

type service struct {
	repo     Repository
	txRunner txRunner
}

// NewService validates dependencies and returns the subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{repo: params.Repo, txRunner: params.TransactionRunner}, nil
}

// SyncFromStripe creates or refreshes the row keyed by provider subscription
// id. Redeliveries and out-of-order updates converge on the latest provider
// snapshot.
func (s *service) SyncFromStripe(ctx context.Context, stripeSub *stripe.Subscription) (*models.Subscription, error) {
	if stripeSub == nil || stripeSub.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}

	var result *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stored, err := repo.FindByProviderIDForUpdate(ctx, stripeSub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}

		if stored == nil {
			built, buildErr := BuildSubscriptionFromStripe(stripeSub)
			if buildErr != nil {
				return buildErr
			}
			if err := repo.Create(ctx, built); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
			}
			result = built
			return nil
		}

		if err := UpdateSubscriptionFromStripe(stored, stripeSub); err != nil {
			return err
		}
		if err := repo.Save(ctx, stored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkStatus force-sets the local status, used when the provider deletes a
// subscription and sends only the id. Returns nil when no row matches.
func (s *service) MarkStatus(ctx context.Context, providerSubscriptionID string, status enums.SubscriptionStatus) (*models.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}

	var result *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stored, err := repo.FindByProviderIDForUpdate(ctx, providerSubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if stored == nil {
			return nil
		}
		if stored.Status != status {
			stored.Status = status
			if err := repo.Save(ctx, stored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
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

func (s *service) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	stored, err := s.repo.FindByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return stored, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.Subscription, int64, error) {
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return rows, total, nil
}
