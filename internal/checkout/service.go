package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/gracechapelhq/gracechapel-backend/internal/donations"
	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/metrics"
)

// CreateParams is the validated giving form input.
type CreateParams struct {
	AmountCents int64
	Currency    string
	Category    string
	Kind        string
	Frequency   string
	DonorEmail  string
}

// Result carries what the frontend needs to redirect the donor.
type Result struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	DonationID  string `json:"donation_id"`
}

// Service starts provider checkout sessions and seeds the pending donation
// record webhooks later reconcile against.
type Service interface {
	CreateSession(ctx context.Context, params CreateParams) (*Result, error)
}

// ServiceParams wires the checkout dependencies. Metrics is optional.
type ServiceParams struct {
	Donations donations.Service
	Sessions  SessionClient
	Config    config.DonationsConfig
	Stripe    config.StripeConfig
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
}

type service struct {
	donations donations.Service
	sessions  SessionClient
	cfg       config.DonationsConfig
	stripeCfg config.StripeConfig
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

// NewService validates dependencies and returns the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Donations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "donations service required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session client required")
	}
	return &service{
		donations: params.Donations,
		sessions:  params.Sessions,
		cfg:       params.Config,
		stripeCfg: params.Stripe,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

func (s *service) CreateSession(ctx context.Context, params CreateParams) (*Result, error) {
	input, err := s.validate(params)
	if err != nil {
		return nil, err
	}

	sessionParams := s.buildSessionParams(input)
	session, err := s.sessions.CreateSession(ctx, sessionParams)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "create checkout session", err)
		}
		s.metrics.IncSession(string(input.kind), "provider_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "payment provider request failed")
	}
	s.metrics.IncSession(string(input.kind), "created")

	donation, err := s.seedDonation(ctx, input, session.ID)
	if err != nil {
		return nil, err
	}

	return &Result{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		DonationID:  donation.ID.String(),
	}, nil
}

type validatedInput struct {
	amountCents int64
	currency    enums.Currency
	category    enums.DonationCategory
	kind        enums.DonationKind
	frequency   *enums.RecurrenceFrequency
	donorEmail  string
}

func (s *service) validate(params CreateParams) (*validatedInput, error) {
	if params.AmountCents < s.cfg.MinAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must be at least %d cents", s.cfg.MinAmountCents))
	}
	if s.cfg.MaxAmountCents > 0 && params.AmountCents > s.cfg.MaxAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must not exceed %d cents", s.cfg.MaxAmountCents))
	}

	rawCurrency := params.Currency
	if rawCurrency == "" {
		rawCurrency = s.cfg.DefaultCurrency
	}
	currency, err := enums.ParseCurrency(strings.ToLower(rawCurrency))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}

	category, err := enums.ParseDonationCategory(params.Category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
	}

	kind := enums.DonationKindOneTime
	if params.Kind != "" {
		kind, err = enums.ParseDonationKind(params.Kind)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind")
		}
	}

	var frequency *enums.RecurrenceFrequency
	if kind == enums.DonationKindRecurring {
		if params.Frequency == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "recurring donations require a frequency")
		}
		parsed, err := enums.ParseRecurrenceFrequency(params.Frequency)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid frequency")
		}
		frequency = &parsed
	} else if params.Frequency != "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "frequency only applies to recurring donations")
	}

	return &validatedInput{
		amountCents: params.AmountCents,
		currency:    currency,
		category:    category,
		kind:        kind,
		frequency:   frequency,
		donorEmail:  strings.TrimSpace(params.DonorEmail),
	}, nil
}

func (s *service) buildSessionParams(input *validatedInput) *stripe.CheckoutSessionParams {
	metadata := map[string]string{"category": string(input.category)}
	if input.frequency != nil {
		metadata["frequency"] = string(*input.frequency)
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(string(input.currency)),
		UnitAmount: stripe.Int64(input.amountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(productName(input.category)),
		},
	}

	mode := stripe.CheckoutSessionModePayment
	if input.kind == enums.DonationKindRecurring {
		mode = stripe.CheckoutSessionModeSubscription
		interval, count := billingInterval(*input.frequency)
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String(string(interval)),
			IntervalCount: stripe.Int64(count),
		}
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(s.stripeCfg.SuccessURL),
		CancelURL:  stripe.String(s.stripeCfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: priceData,
			Quantity:  stripe.Int64(1),
		}},
	}
	for key, value := range metadata {
		sessionParams.AddMetadata(key, value)
	}
	if input.kind == enums.DonationKindRecurring {
		sessionParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{}
		for key, value := range metadata {
			sessionParams.SubscriptionData.AddMetadata(key, value)
		}
	}
	if input.donorEmail != "" {
		sessionParams.CustomerEmail = stripe.String(input.donorEmail)
	}
	return sessionParams
}

// seedDonation records the pending transaction up front so reporting sees
// initiated-but-unpaid sessions and webhooks have a row to settle into.
func (s *service) seedDonation(ctx context.Context, input *validatedInput, sessionID string) (*models.Donation, error) {
	status := enums.DonationStatusPending
	upsert := donations.UpsertParams{
		SessionID:   sessionID,
		AmountCents: &input.amountCents,
		Currency:    &input.currency,
		Category:    &input.category,
		Kind:        &input.kind,
		Frequency:   input.frequency,
		Status:      &status,
	}
	if input.donorEmail != "" {
		upsert.DonorEmail = &input.donorEmail
	}
	return s.donations.UpsertBySession(ctx, upsert)
}

func productName(category enums.DonationCategory) string {
	switch category {
	case enums.DonationCategoryTithes:
		return "Tithes"
	case enums.DonationCategoryOfferings:
		return "Offerings"
	case enums.DonationCategoryBuildingFund:
		return "Building Fund Donation"
	case enums.DonationCategoryMissions:
		return "Missions Donation"
	default:
		return "Donation"
	}
}

func billingInterval(frequency enums.RecurrenceFrequency) (stripe.PriceRecurringInterval, int64) {
	switch frequency {
	case enums.RecurrenceFrequencyWeekly:
		return stripe.PriceRecurringIntervalWeek, 1
	case enums.RecurrenceFrequencyQuarterly:
		return stripe.PriceRecurringIntervalMonth, 3
	case enums.RecurrenceFrequencyAnnually:
		return stripe.PriceRecurringIntervalYear, 1
	default:
		return stripe.PriceRecurringIntervalMonth, 1
	}
}
