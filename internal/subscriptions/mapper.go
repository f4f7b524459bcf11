package subscriptions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
)

// BuildSubscriptionFromStripe maps a provider subscription into the
// canonical model.
func BuildSubscriptionFromStripe(stripeSub *stripe.Subscription) (*models.Subscription, error) {
	if stripeSub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}
	status := mapStripeStatus(stripeSub.Status)

	amount, currency, frequency, err := pricingFromSubscription(stripeSub)
	if err != nil {
		return nil, err
	}

	category := categoryFromMetadata(stripeSub.Metadata)
	metadata, err := encodeMetadata(stripeSub.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
	}

	return &models.Subscription{
		ProviderSubscriptionID: stripeSub.ID,
		ProviderCustomerID:     customerIDPtr(stripeSub),
		AmountCents:            amount,
		Currency:               currency,
		Category:               category,
		Frequency:              frequency,
		Status:                 status,
		DonorEmail:             donorEmailFromMetadata(stripeSub.Metadata),
		NextPaymentAt:          nextPaymentFromSubscription(stripeSub),
		Metadata:               metadata,
	}, nil
}

// UpdateSubscriptionFromStripe mutates the stored subscription with new
// provider data.
func UpdateSubscriptionFromStripe(target *models.Subscription, stripeSub *stripe.Subscription) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	target.Status = mapStripeStatus(stripeSub.Status)

	if amount, currency, frequency, err := pricingFromSubscription(stripeSub); err == nil {
		target.AmountCents = amount
		target.Currency = currency
		target.Frequency = frequency
	}
	if customer := customerIDPtr(stripeSub); customer != nil {
		target.ProviderCustomerID = customer
	}
	if email := donorEmailFromMetadata(stripeSub.Metadata); email != nil {
		target.DonorEmail = email
	}
	if next := nextPaymentFromSubscription(stripeSub); next != nil {
		target.NextPaymentAt = next
	}
	if len(stripeSub.Metadata) > 0 {
		if category := categoryFromMetadata(stripeSub.Metadata); category.IsValid() {
			target.Category = category
		}
		metadata, err := encodeMetadata(stripeSub.Metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
		}
		target.Metadata = metadata
	}
	return nil
}

// IsActiveStatus reports whether the status keeps recurring giving alive.
func IsActiveStatus(status enums.SubscriptionStatus) bool {
	return status == enums.SubscriptionStatusActive || status == enums.SubscriptionStatusPastDue
}

// mapStripeStatus folds the provider's wider status space into the four
// states reporting cares about. Unknown values count as active so a new
// provider state never silently drops a live subscription.
func mapStripeStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionStatusCancelled
	case stripe.SubscriptionStatusPastDue:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionStatusUnpaid
	default:
		return enums.SubscriptionStatusActive
	}
}

func pricingFromSubscription(stripeSub *stripe.Subscription) (int64, enums.Currency, enums.RecurrenceFrequency, error) {
	if stripeSub.Items == nil || len(stripeSub.Items.Data) == 0 || stripeSub.Items.Data[0].Price == nil {
		return 0, "", "", pkgerrors.New(pkgerrors.CodeDependency, "subscription price missing")
	}
	price := stripeSub.Items.Data[0].Price

	currency := enums.Currency(price.Currency)
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	frequency, err := frequencyFromPrice(price)
	if err != nil {
		return 0, "", "", err
	}
	return price.UnitAmount, currency, frequency, nil
}

func frequencyFromPrice(price *stripe.Price) (enums.RecurrenceFrequency, error) {
	if price.Recurring == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "subscription price is not recurring")
	}
	interval := price.Recurring.Interval
	count := price.Recurring.IntervalCount
	if count == 0 {
		count = 1
	}
	switch {
	case interval == stripe.PriceRecurringIntervalWeek && count == 1:
		return enums.RecurrenceFrequencyWeekly, nil
	case interval == stripe.PriceRecurringIntervalMonth && count == 1:
		return enums.RecurrenceFrequencyMonthly, nil
	case interval == stripe.PriceRecurringIntervalMonth && count == 3:
		return enums.RecurrenceFrequencyQuarterly, nil
	case interval == stripe.PriceRecurringIntervalYear && count == 1:
		return enums.RecurrenceFrequencyAnnually, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeDependency, "unsupported billing interval")
	}
}

func categoryFromMetadata(metadata map[string]string) enums.DonationCategory {
	if raw, ok := metadata["category"]; ok {
		if category, err := enums.ParseDonationCategory(raw); err == nil {
			return category
		}
	}
	return enums.DonationCategoryOfferings
}

func donorEmailFromMetadata(metadata map[string]string) *string {
	if raw, ok := metadata["donor_email"]; ok {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func customerIDPtr(stripeSub *stripe.Subscription) *string {
	if stripeSub.Customer == nil || stripeSub.Customer.ID == "" {
		return nil
	}
	id := stripeSub.Customer.ID
	return &id
}

func nextPaymentFromSubscription(stripeSub *stripe.Subscription) *time.Time {
	if stripeSub.Items == nil || len(stripeSub.Items.Data) == 0 {
		return nil
	}
	end := stripeSub.Items.Data[0].CurrentPeriodEnd
	if end == 0 {
		return nil
	}
	next := time.Unix(end, 0).UTC()
	return &next
}

func encodeMetadata(metadata map[string]string) (json.RawMessage, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(metadata)
}
