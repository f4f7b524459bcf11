package donations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

// Filters narrow donation queries. All fields are optional and conjunctive.
type Filters struct {
	Category   *enums.DonationCategory
	Kind       *enums.DonationKind
	Status     *enums.DonationStatus
	DonorEmail *string
	// StartDate is inclusive, EndDate exclusive.
	StartDate *time.Time
	EndDate   *time.Time
}

// SortField names the columns reporting queries may order by.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByAmount    SortField = "amount_cents"
	SortByCategory  SortField = "category"
	SortByStatus    SortField = "status"
)

// IsValid reports whether the sort field is whitelisted.
func (f SortField) IsValid() bool {
	switch f {
	case SortByCreatedAt, SortByAmount, SortByCategory, SortByStatus:
		return true
	default:
		return false
	}
}

// Sort pairs a whitelisted column with a direction.
type Sort struct {
	Field      SortField
	Descending bool
}

// QueryParams bundles filter, sort, and pagination inputs for listings.
type QueryParams struct {
	Filters Filters
	Sort    Sort
	Page    pagination.Params
}

// Summary aggregates amounts and counts over a filtered donation set.
type Summary struct {
	TotalCents int64                            `json:"total_cents"`
	Count      int64                            `json:"count"`
	ByCategory map[enums.DonationCategory]int64 `json:"by_category"`
	ByStatus   map[enums.DonationStatus]int64   `json:"by_status"`
}

// Repository handles donation persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, donation *models.Donation) error
	Save(ctx context.Context, donation *models.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Donation, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Donation, error)
	FindBySessionIDForUpdate(ctx context.Context, sessionID string) (*models.Donation, error)
	FindByPaymentIntentIDForUpdate(ctx context.Context, paymentIntentID string) (*models.Donation, error)
	Query(ctx context.Context, params QueryParams) ([]models.Donation, int64, error)
	Summarize(ctx context.Context, filters Filters) (*Summary, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a donations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, donation *models.Donation) error {
	if donation.ID == uuid.Nil {
		donation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(donation).Error
}

func (r *repository) Save(ctx context.Context, donation *models.Donation) error {
	return r.db.WithContext(ctx).Save(donation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Donation, error) {
	if sessionID == "" {
		return nil, nil
	}
	return r.findOne(r.db.WithContext(ctx).Where("session_id = ?", sessionID))
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Donation, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	return r.findOne(r.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID))
}

// FindBySessionIDForUpdate locks the matching row for the duration of the
// surrounding transaction so concurrent redeliveries for one session
// serialize. The lock clause only applies on Postgres.
func (r *repository) FindBySessionIDForUpdate(ctx context.Context, sessionID string) (*models.Donation, error) {
	if sessionID == "" {
		return nil, nil
	}
	return r.findOne(r.lockingDB(ctx).Where("session_id = ?", sessionID))
}

func (r *repository) FindByPaymentIntentIDForUpdate(ctx context.Context, paymentIntentID string) (*models.Donation, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	return r.findOne(r.lockingDB(ctx).Where("payment_intent_id = ?", paymentIntentID))
}

func (r *repository) lockingDB(ctx context.Context) *gorm.DB {
	tx := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (r *repository) findOne(query *gorm.DB) (*models.Donation, error) {
	var donation models.Donation
	if err := query.First(&donation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &donation, nil
}

func (r *repository) Query(ctx context.Context, params QueryParams) ([]models.Donation, int64, error) {
	var total int64
	err := applyFilters(r.db.WithContext(ctx).Model(&models.Donation{}), params.Filters).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	sort := params.Sort
	if !sort.Field.IsValid() {
		sort = Sort{Field: SortByCreatedAt, Descending: true}
	}
	direction := "ASC"
	if sort.Descending {
		direction = "DESC"
	}

	page := params.Page.Normalize()
	var rows []models.Donation
	err = applyFilters(r.db.WithContext(ctx).Model(&models.Donation{}), params.Filters).
		Order(string(sort.Field) + " " + direction).
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) Summarize(ctx context.Context, filters Filters) (*Summary, error) {
	summary := &Summary{
		ByCategory: map[enums.DonationCategory]int64{},
		ByStatus:   map[enums.DonationStatus]int64{},
	}

	var totals struct {
		Total int64
		Count int64
	}
	err := applyFilters(r.db.WithContext(ctx).Model(&models.Donation{}), filters).
		Select("COALESCE(SUM(amount_cents), 0) AS total, COUNT(*) AS count").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	summary.TotalCents = totals.Total
	summary.Count = totals.Count

	var byCategory []struct {
		Category enums.DonationCategory
		Total    int64
	}
	err = applyFilters(r.db.WithContext(ctx).Model(&models.Donation{}), filters).
		Select("category, COALESCE(SUM(amount_cents), 0) AS total").
		Group("category").
		Scan(&byCategory).Error
	if err != nil {
		return nil, err
	}
	for _, row := range byCategory {
		summary.ByCategory[row.Category] = row.Total
	}

	var byStatus []struct {
		Status enums.DonationStatus
		Total  int64
	}
	err = applyFilters(r.db.WithContext(ctx).Model(&models.Donation{}), filters).
		Select("status, COALESCE(SUM(amount_cents), 0) AS total").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		summary.ByStatus[row.Status] = row.Total
	}

	return summary, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.Kind != nil {
		query = query.Where("kind = ?", *filters.Kind)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DonorEmail != nil {
		query = query.Where("donor_email = ?", *filters.DonorEmail)
	}
	if filters.StartDate != nil {
		query = query.Where("created_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		query = query.Where("created_at < ?", *filters.EndDate)
	}
	return query
}
