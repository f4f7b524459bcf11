package donations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

func setupDonationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	donations := `
CREATE TABLE IF NOT EXISTS donations (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL UNIQUE,
  payment_intent_id TEXT,
  subscription_id TEXT,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  category TEXT NOT NULL,
  kind TEXT NOT NULL DEFAULT 'one_time',
  frequency TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  donor_email TEXT,
  metadata TEXT,
  receipt_sent_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(donations).Error)
	return db
}

func seedDonation(t *testing.T, db *gorm.DB, session string, cents int64, category enums.DonationCategory, status enums.DonationStatus, created time.Time) *models.Donation {
	t.Helper()

	donation := &models.Donation{
		ID:          uuid.New(),
		SessionID:   session,
		AmountCents: cents,
		Currency:    enums.CurrencyUSD,
		Category:    category,
		Kind:        enums.DonationKindOneTime,
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, db.Create(donation).Error)
	return donation
}

func TestRepositoryFindBySessionIDMissing(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)

	donation, err := repo.FindBySessionID(context.Background(), "cs_missing")
	require.NoError(t, err)
	assert.Nil(t, donation)
}

func TestRepositoryCreateAndFind(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	pi := "pi_123"
	donation := &models.Donation{
		SessionID:       "cs_abc",
		PaymentIntentID: &pi,
		AmountCents:     5000,
		Currency:        enums.CurrencyUSD,
		Category:        enums.DonationCategoryTithes,
		Kind:            enums.DonationKindOneTime,
		Status:          enums.DonationStatusPending,
	}
	require.NoError(t, repo.Create(ctx, donation))
	require.NotEqual(t, uuid.Nil, donation.ID)

	bySession, err := repo.FindBySessionID(ctx, "cs_abc")
	require.NoError(t, err)
	require.NotNil(t, bySession)
	assert.Equal(t, donation.ID, bySession.ID)

	byIntent, err := repo.FindByPaymentIntentID(ctx, "pi_123")
	require.NoError(t, err)
	require.NotNil(t, byIntent)
	assert.Equal(t, donation.ID, byIntent.ID)

	byID, err := repo.FindByID(ctx, donation.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "cs_abc", byID.SessionID)
}

func TestRepositoryQueryFilters(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedDonation(t, db, "cs_1", 1000, enums.DonationCategoryTithes, enums.DonationStatusCompleted, now.Add(-3*time.Hour))
	seedDonation(t, db, "cs_2", 2000, enums.DonationCategoryMissions, enums.DonationStatusCompleted, now.Add(-2*time.Hour))
	seedDonation(t, db, "cs_3", 3000, enums.DonationCategoryTithes, enums.DonationStatusFailed, now.Add(-1*time.Hour))

	category := enums.DonationCategoryTithes
	rows, total, err := repo.Query(ctx, QueryParams{
		Filters: Filters{Category: &category},
		Page:    pagination.Params{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 2)

	status := enums.DonationStatusCompleted
	rows, total, err = repo.Query(ctx, QueryParams{
		Filters: Filters{Category: &category, Status: &status},
		Page:    pagination.Params{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "cs_1", rows[0].SessionID)
}

func TestRepositoryQueryDateWindow(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedDonation(t, db, "cs_old", 1000, enums.DonationCategoryOfferings, enums.DonationStatusCompleted, base.Add(-time.Hour))
	inside := seedDonation(t, db, "cs_in", 2000, enums.DonationCategoryOfferings, enums.DonationStatusCompleted, base.Add(time.Hour))
	seedDonation(t, db, "cs_edge", 3000, enums.DonationCategoryOfferings, enums.DonationStatusCompleted, base.Add(24*time.Hour))

	end := base.Add(24 * time.Hour)
	rows, total, err := repo.Query(ctx, QueryParams{
		Filters: Filters{StartDate: &base, EndDate: &end},
		Page:    pagination.Params{Page: 1, Limit: 10},
	})
	require.NoError(t, err)

	// Start is inclusive, end exclusive: the record created exactly at
	// the end bound stays out.
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, inside.ID, rows[0].ID)
}

func TestRepositoryQuerySortAndPagination(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 25; i++ {
		seedDonation(t, db, "cs_page_"+uuid.NewString(), int64((i+1)*100), enums.DonationCategoryOfferings, enums.DonationStatusCompleted, now.Add(time.Duration(i)*time.Minute))
	}

	rows, total, err := repo.Query(ctx, QueryParams{
		Sort: Sort{Field: SortByAmount, Descending: true},
		Page: pagination.Params{Page: 3, Limit: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	require.Len(t, rows, 5)
	assert.EqualValues(t, 500, rows[0].AmountCents)

	page := pagination.NewPage(pagination.Params{Page: 3, Limit: 10}, total)
	assert.False(t, page.HasMore)

	page = pagination.NewPage(pagination.Params{Page: 2, Limit: 10}, total)
	assert.True(t, page.HasMore)
}

func TestRepositorySummarize(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedDonation(t, db, "cs_s1", 1000, enums.DonationCategoryTithes, enums.DonationStatusCompleted, now)
	seedDonation(t, db, "cs_s2", 2000, enums.DonationCategoryTithes, enums.DonationStatusCompleted, now)
	seedDonation(t, db, "cs_s3", 4000, enums.DonationCategoryMissions, enums.DonationStatusFailed, now)

	summary, err := repo.Summarize(ctx, Filters{})
	require.NoError(t, err)
	assert.EqualValues(t, 7000, summary.TotalCents)
	assert.EqualValues(t, 3, summary.Count)
	assert.EqualValues(t, 3000, summary.ByCategory[enums.DonationCategoryTithes])
	assert.EqualValues(t, 4000, summary.ByCategory[enums.DonationCategoryMissions])
	assert.EqualValues(t, 3000, summary.ByStatus[enums.DonationStatusCompleted])
	assert.EqualValues(t, 4000, summary.ByStatus[enums.DonationStatusFailed])
}

func TestRepositorySummarizeEmpty(t *testing.T) {
	db := setupDonationsTestDB(t)
	repo := NewRepository(db)

	summary, err := repo.Summarize(context.Background(), Filters{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.TotalCents)
	assert.EqualValues(t, 0, summary.Count)
	assert.Empty(t, summary.ByCategory)
	assert.Empty(t, summary.ByStatus)
}
