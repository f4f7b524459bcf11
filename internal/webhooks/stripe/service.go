package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/gracechapelhq/gracechapel-backend/internal/donations"
	"github.com/gracechapelhq/gracechapel-backend/internal/subscriptions"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/mailer"
	"github.com/gracechapelhq/gracechapel-backend/pkg/metrics"
)

// ServiceParams wires the dispatcher dependencies. Mailer and Metrics are
// optional.
type ServiceParams struct {
	Donations     donations.Service
	Subscriptions subscriptions.Service
	Ledger        Ledger
	Mailer        mailer.Sender
	Metrics       *metrics.WebhookMetrics
	Logger        *logger.Logger
}

// Service routes verified provider events to donation and subscription state
// changes, exactly once per event id.
type Service struct {
	donations     donations.Service
	subscriptions subscriptions.Service
	ledger        Ledger
	mailer        mailer.Sender
	metrics       *metrics.WebhookMetrics
	logg          *logger.Logger
}

// NewService validates required dependencies and returns the dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Donations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "donations service required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event ledger required")
	}
	return &Service{
		donations:     params.Donations,
		subscriptions: params.Subscriptions,
		ledger:        params.Ledger,
		mailer:        params.Mailer,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

// Process runs the verified event through dedup, dispatch, and the ledger.
// Handler failures are recorded and logged but never returned: once the
// signature and the dedup check pass, the provider gets a success so it does
// not retry a side-effecting operation that may have partially completed.
// Only a ledger read failure propagates, so the provider retries delivery.
func (s *Service) Process(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	ctx = s.withEventContext(ctx, event)

	processed, err := s.ledger.IsProcessed(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event ledger")
	}
	if processed {
		s.info(ctx, fmt.Sprintf("event %s already processed, skipping", event.ID))
		return nil
	}

	started := time.Now()
	outcome, handlerErr := s.dispatch(ctx, event)
	s.metrics.ObserveDuration(string(event.Type), time.Since(started))
	s.metrics.IncOutcome(string(event.Type), string(outcome))

	if handlerErr != nil {
		s.errorLog(ctx, fmt.Sprintf("handler failed for event %s", event.ID), handlerErr)
	}
	if err := s.ledger.Record(ctx, event.ID, string(event.Type), outcome, handlerErr); err != nil {
		s.errorLog(ctx, fmt.Sprintf("record event %s", event.ID), err)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (enums.WebhookOutcome, error) {
	var err error
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		err = s.handlePaymentIntent(ctx, event, enums.DonationStatusCompleted, nil)
	case stripe.EventTypePaymentIntentPaymentFailed:
		err = s.handlePaymentIntentFailed(ctx, event)
	case stripe.EventTypeCheckoutSessionCompleted:
		err = s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeCheckoutSessionExpired:
		err = s.handleCheckoutExpired(ctx, event)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		err = s.handleSubscriptionLifecycle(ctx, event)
	case stripe.EventTypeInvoicePaymentSucceeded:
		err = s.handleInvoice(ctx, event, enums.DonationStatusCompleted)
	case stripe.EventTypeInvoicePaymentFailed:
		err = s.handleInvoice(ctx, event, enums.DonationStatusFailed)
	default:
		s.info(ctx, fmt.Sprintf("unhandled event type %s", event.Type))
		return enums.WebhookOutcomeUnhandledType, nil
	}
	if err != nil {
		return enums.WebhookOutcomeHandlerError, err
	}
	return enums.WebhookOutcomeHandled, nil
}

func (s *Service) handlePaymentIntent(ctx context.Context, event *stripe.Event, status enums.DonationStatus, extra map[string]string) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	updated, err := s.donations.SetStatus(ctx, donations.Identifier{PaymentIntentID: intent.ID}, status, extra)
	if err != nil {
		return err
	}
	if updated != nil {
		return nil
	}

	// First sight of this payment: the checkout.session event has not
	// landed yet. Create the record from what the intent carries.
	sessionID := intent.Metadata["session_id"]
	if sessionID == "" {
		s.warn(ctx, fmt.Sprintf("no donation matches payment intent %s", intent.ID))
		return nil
	}
	intentID := intent.ID
	params := donations.UpsertParams{
		SessionID:       sessionID,
		PaymentIntentID: &intentID,
		Status:          &status,
		Metadata:        extra,
	}
	if intent.Amount > 0 {
		amount := intent.Amount
		params.AmountCents = &amount
	}
	if currency := enums.Currency(intent.Currency); currency.IsValid() {
		params.Currency = &currency
	}
	_, err = s.donations.UpsertBySession(ctx, params)
	return err
}

func (s *Service) handlePaymentIntentFailed(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	var extra map[string]string
	if intent.LastPaymentError != nil && intent.LastPaymentError.Code != "" {
		extra = map[string]string{"failure_code": string(intent.LastPaymentError.Code)}
	}
	return s.handlePaymentIntent(ctx, event, enums.DonationStatusFailed, extra)
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if session.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	status := enums.DonationStatusCompleted
	params := donations.UpsertParams{
		SessionID: session.ID,
		Status:    &status,
		Metadata:  session.Metadata,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		intentID := session.PaymentIntent.ID
		params.PaymentIntentID = &intentID
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		subID := session.Subscription.ID
		params.SubscriptionID = &subID
		kind := enums.DonationKindRecurring
		params.Kind = &kind
	}
	if session.AmountTotal > 0 {
		amount := session.AmountTotal
		params.AmountCents = &amount
	}
	if currency := enums.Currency(session.Currency); currency.IsValid() {
		params.Currency = &currency
	}
	if category, err := enums.ParseDonationCategory(session.Metadata["category"]); err == nil {
		params.Category = &category
	}
	if frequency, err := enums.ParseRecurrenceFrequency(session.Metadata["frequency"]); err == nil {
		params.Frequency = &frequency
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email := session.CustomerDetails.Email
		params.DonorEmail = &email
	}

	donation, err := s.donations.UpsertBySession(ctx, params)
	if err != nil {
		return err
	}

	s.sendReceipt(ctx, donation)
	return nil
}

func (s *Service) handleCheckoutExpired(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if session.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	// Expiry only cancels sessions still waiting on payment; a completed
	// donation stays completed under the forward-only rule.
	_, err := s.donations.SetStatus(ctx, donations.Identifier{SessionID: session.ID}, enums.DonationStatusCancelled, nil)
	return err
}

func (s *Service) handleSubscriptionLifecycle(ctx context.Context, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
	}
	_, err := s.subscriptions.SyncFromStripe(ctx, &stripeSub)
	return err
}

// handleInvoice records one recurring donation per billing cycle and adjusts
// the subscription status. The invoice id keys the donation row, so an
// invoice redelivered under a new event id still lands on the same record.
func (s *Service) handleInvoice(ctx context.Context, event *stripe.Event, status enums.DonationStatus) error {
	invoiceID := event.GetObjectValue("id")
	if invoiceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}
	subscriptionID := event.GetObjectValue("subscription")
	if subscriptionID == "" {
		subscriptionID = event.GetObjectValue("parent", "subscription_details", "subscription")
	}

	kind := enums.DonationKindRecurring
	params := donations.UpsertParams{
		SessionID: invoiceID,
		Kind:      &kind,
		Status:    &status,
	}
	if subscriptionID != "" {
		params.SubscriptionID = &subscriptionID
	}
	if email := event.GetObjectValue("customer_email"); email != "" {
		params.DonorEmail = &email
	}
	if currency := enums.Currency(event.GetObjectValue("currency")); currency.IsValid() {
		params.Currency = &currency
	}
	amountKey := "amount_paid"
	if status == enums.DonationStatusFailed {
		amountKey = "amount_due"
	}
	if raw := event.GetObjectValue(amountKey); raw != "" {
		if amount, err := strconv.ParseInt(raw, 10, 64); err == nil && amount >= 0 {
			params.AmountCents = &amount
		}
	}

	if subscriptionID != "" {
		sub, err := s.subscriptions.FindByProviderID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub != nil {
			if frequency := sub.Frequency; frequency.IsValid() {
				params.Frequency = &frequency
			}
			if params.Category == nil {
				params.Category = &sub.Category
			}
			subStatus := enums.SubscriptionStatusActive
			if status == enums.DonationStatusFailed {
				subStatus = enums.SubscriptionStatusPastDue
			}
			if _, err := s.subscriptions.MarkStatus(ctx, subscriptionID, subStatus); err != nil {
				return err
			}
		}
	}

	_, err := s.donations.UpsertBySession(ctx, params)
	return err
}

// sendReceipt emails the donor after a completed checkout. Delivery failures
// are logged only; the webhook must not fail or retry over mail.
func (s *Service) sendReceipt(ctx context.Context, donation *models.Donation) {
	if s.mailer == nil || donation == nil || donation.DonorEmail == nil || donation.ReceiptSentAt != nil {
		return
	}
	msg := buildReceiptMessage(donation)
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.errorLog(ctx, fmt.Sprintf("send receipt for donation %s", donation.ID), err)
		return
	}
	if err := s.donations.MarkReceiptSent(ctx, donation.ID); err != nil {
		s.errorLog(ctx, fmt.Sprintf("mark receipt sent for donation %s", donation.ID), err)
	}
}

func (s *Service) withEventContext(ctx context.Context, event *stripe.Event) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithEventID(ctx, event.ID)
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) errorLog(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
