package subscriptions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

func setupSubscriptionService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  provider_subscription_id TEXT NOT NULL UNIQUE,
  provider_customer_id TEXT,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  category TEXT NOT NULL,
  frequency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  donor_email TEXT,
  next_payment_at DATETIME,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)

	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		TransactionRunner: db.NewWithConn(conn),
	})
	require.NoError(t, err)
	return svc, conn
}

func stripeSubFixture(id string, status stripe.SubscriptionStatus, cents int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Status:   status,
		Customer: &stripe.Customer{ID: "cus_fixture"},
		Metadata: map[string]string{"category": "missions"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				CurrentPeriodEnd: 1790000000,
				Price: &stripe.Price{
					UnitAmount: cents,
					Currency:   stripe.CurrencyUSD,
					Recurring:  &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth, IntervalCount: 1},
				},
			}},
		},
	}
}

func TestSyncFromStripeCreatesThenUpdates(t *testing.T) {
	svc, _ := setupSubscriptionService(t)
	ctx := context.Background()

	created, err := svc.SyncFromStripe(ctx, stripeSubFixture("sub_sync", stripe.SubscriptionStatusActive, 1500))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, enums.SubscriptionStatusActive, created.Status)
	assert.EqualValues(t, 1500, created.AmountCents)
	assert.Equal(t, enums.DonationCategoryMissions, created.Category)

	updated, err := svc.SyncFromStripe(ctx, stripeSubFixture("sub_sync", stripe.SubscriptionStatusPastDue, 2000))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, enums.SubscriptionStatusPastDue, updated.Status)
	assert.EqualValues(t, 2000, updated.AmountCents)
}

func TestSyncFromStripeValidation(t *testing.T) {
	svc, _ := setupSubscriptionService(t)

	_, err := svc.SyncFromStripe(context.Background(), nil)
	require.Error(t, err)

	_, err = svc.SyncFromStripe(context.Background(), &stripe.Subscription{})
	require.Error(t, err)
}

func TestMarkStatus(t *testing.T) {
	svc, _ := setupSubscriptionService(t)
	ctx := context.Background()

	_, err := svc.SyncFromStripe(ctx, stripeSubFixture("sub_cancel", stripe.SubscriptionStatusActive, 500))
	require.NoError(t, err)

	marked, err := svc.MarkStatus(ctx, "sub_cancel", enums.SubscriptionStatusCancelled)
	require.NoError(t, err)
	require.NotNil(t, marked)
	assert.Equal(t, enums.SubscriptionStatusCancelled, marked.Status)

	stored, err := svc.FindByProviderID(ctx, "sub_cancel")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.SubscriptionStatusCancelled, stored.Status)
}

func TestMarkStatusMissingRecord(t *testing.T) {
	svc, _ := setupSubscriptionService(t)

	marked, err := svc.MarkStatus(context.Background(), "sub_ghost", enums.SubscriptionStatusCancelled)
	require.NoError(t, err)
	assert.Nil(t, marked)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _ := setupSubscriptionService(t)
	ctx := context.Background()

	_, err := svc.SyncFromStripe(ctx, stripeSubFixture("sub_a", stripe.SubscriptionStatusActive, 1000))
	require.NoError(t, err)
	_, err = svc.SyncFromStripe(ctx, stripeSubFixture("sub_b", stripe.SubscriptionStatusCanceled, 2000))
	require.NoError(t, err)

	status := enums.SubscriptionStatusActive
	rows, total, err := svc.List(ctx, ListParams{
		Filters: Filters{Status: &status},
		Page:    pagination.Params{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_a", rows[0].ProviderSubscriptionID)
}
