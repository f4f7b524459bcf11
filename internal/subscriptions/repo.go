package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

// Filters narrow subscription listings. All fields are optional and
// conjunctive.
type Filters struct {
	Status     *enums.SubscriptionStatus
	Category   *enums.DonationCategory
	Frequency  *enums.RecurrenceFrequency
	DonorEmail *string
}

// ListParams bundles filters and pagination for subscription listings.
type ListParams struct {
	Filters Filters
	Page    pagination.Params
}

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, subscription *models.Subscription) error
	Save(ctx context.Context, subscription *models.Subscription) error
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	FindByProviderIDForUpdate(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	List(ctx context.Context, params ListParams) ([]models.Subscription, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscriptions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Save(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}
	return r.findOne(r.db.WithContext(ctx).Where("provider_subscription_id = ?", providerSubscriptionID))
}

// FindByProviderIDForUpdate locks the matching row so concurrent lifecycle
// events for one subscription serialize. The lock clause only applies on
// Postgres.
func (r *repository) FindByProviderIDForUpdate(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}
	tx := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findOne(tx.Where("provider_subscription_id = ?", providerSubscriptionID))
}

func (r *repository) findOne(query *gorm.DB) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := query.First(&subscription).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) List(ctx context.Context, params ListParams) ([]models.Subscription, int64, error) {
	var total int64
	err := applyFilters(r.db.WithContext(ctx).Model(&models.Subscription{}), params.Filters).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	page := params.Page.Normalize()
	var rows []models.Subscription
	err = applyFilters(r.db.WithContext(ctx).Model(&models.Subscription{}), params.Filters).
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.Frequency != nil {
		query = query.Where("frequency = ?", *filters.Frequency)
	}
	if filters.DonorEmail != nil {
		query = query.Where("donor_email = ?", *filters.DonorEmail)
	}
	return query
}
