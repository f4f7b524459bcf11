package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/gracechapelhq/gracechapel-backend/internal/donations"
	"github.com/gracechapelhq/gracechapel-backend/internal/subscriptions"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/mailer"
)

type stubDonations struct {
	upserts      []donations.UpsertParams
	statusCalls  []enums.DonationStatus
	statusIdents []donations.Identifier
	setStatusFn  func(ident donations.Identifier, status enums.DonationStatus) (*models.Donation, error)
	upsertFn     func(params donations.UpsertParams) (*models.Donation, error)
	receiptsSent []uuid.UUID
}

func (s *stubDonations) UpsertBySession(ctx context.Context, params donations.UpsertParams) (*models.Donation, error) {
	s.upserts = append(s.upserts, params)
	if s.upsertFn != nil {
		return s.upsertFn(params)
	}
	donation := &models.Donation{ID: uuid.New(), SessionID: params.SessionID}
	if params.Status != nil {
		donation.Status = *params.Status
	}
	if params.DonorEmail != nil {
		donation.DonorEmail = params.DonorEmail
	}
	if params.AmountCents != nil {
		donation.AmountCents = *params.AmountCents
	}
	return donation, nil
}

func (s *stubDonations) SetStatus(ctx context.Context, ident donations.Identifier, status enums.DonationStatus, extra map[string]string) (*models.Donation, error) {
	s.statusCalls = append(s.statusCalls, status)
	s.statusIdents = append(s.statusIdents, ident)
	if s.setStatusFn != nil {
		return s.setStatusFn(ident, status)
	}
	return &models.Donation{ID: uuid.New(), Status: status}, nil
}

func (s *stubDonations) Find(ctx context.Context, ident donations.Identifier) (*models.Donation, error) {
	return nil, nil
}

func (s *stubDonations) Query(ctx context.Context, params donations.QueryParams) ([]models.Donation, int64, error) {
	return nil, 0, nil
}

func (s *stubDonations) Summarize(ctx context.Context, filters donations.Filters) (*donations.Summary, error) {
	return &donations.Summary{}, nil
}

func (s *stubDonations) MarkReceiptSent(ctx context.Context, id uuid.UUID) error {
	s.receiptsSent = append(s.receiptsSent, id)
	return nil
}

type stubSubscriptions struct {
	synced []string
	marked map[string]enums.SubscriptionStatus
	stored map[string]*models.Subscription
}

func (s *stubSubscriptions) SyncFromStripe(ctx context.Context, stripeSub *stripe.Subscription) (*models.Subscription, error) {
	s.synced = append(s.synced, stripeSub.ID)
	return &models.Subscription{ProviderSubscriptionID: stripeSub.ID}, nil
}

func (s *stubSubscriptions) MarkStatus(ctx context.Context, providerSubscriptionID string, status enums.SubscriptionStatus) (*models.Subscription, error) {
	if s.marked == nil {
		s.marked = map[string]enums.SubscriptionStatus{}
	}
	s.marked[providerSubscriptionID] = status
	return nil, nil
}

func (s *stubSubscriptions) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	if s.stored == nil {
		return nil, nil
	}
	return s.stored[providerSubscriptionID], nil
}

func (s *stubSubscriptions) List(ctx context.Context, params subscriptions.ListParams) ([]models.Subscription, int64, error) {
	return nil, 0, nil
}

type stubLedger struct {
	processed map[string]bool
	records   []recordedEvent
	checkErr  error
}

type recordedEvent struct {
	eventID   string
	eventType string
	outcome   enums.WebhookOutcome
	err       error
}

func (l *stubLedger) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if l.checkErr != nil {
		return false, l.checkErr
	}
	return l.processed[eventID], nil
}

func (l *stubLedger) Record(ctx context.Context, eventID, eventType string, outcome enums.WebhookOutcome, handlerErr error) error {
	l.records = append(l.records, recordedEvent{eventID: eventID, eventType: eventType, outcome: outcome, err: handlerErr})
	return nil
}

type stubMailer struct {
	sent []mailer.Message
	err  error
}

func (m *stubMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newTestService(t *testing.T, dons *stubDonations, subs *stubSubscriptions, ledger *stubLedger, mail mailer.Sender) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Donations:     dons,
		Subscriptions: subs,
		Ledger:        ledger,
		Mailer:        mail,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func newEvent(t *testing.T, id string, eventType stripe.EventType, payload any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return &stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: raw, Object: object},
	}
}

func TestProcessSkipsProcessedEvents(t *testing.T) {
	dons := &stubDonations{}
	ledger := &stubLedger{processed: map[string]bool{"evt_seen": true}}
	svc := newTestService(t, dons, &stubSubscriptions{}, ledger, nil)

	event := newEvent(t, "evt_seen", stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_1"})
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dons.statusCalls) != 0 {
		t.Fatal("handler ran for an already-processed event")
	}
	if len(ledger.records) != 0 {
		t.Fatal("skipped event should not be re-recorded")
	}
}

func TestProcessLedgerCheckFailurePropagates(t *testing.T) {
	ledger := &stubLedger{checkErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	svc := newTestService(t, &stubDonations{}, &stubSubscriptions{}, ledger, nil)

	event := newEvent(t, "evt_x", stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_1"})
	if err := svc.Process(context.Background(), event); err == nil {
		t.Fatal("expected error when the ledger check fails")
	}
}

func TestProcessUnknownTypeRecordsUnhandled(t *testing.T) {
	ledger := &stubLedger{}
	svc := newTestService(t, &stubDonations{}, &stubSubscriptions{}, ledger, nil)

	event := newEvent(t, "evt_odd", stripe.EventType("account.updated"), map[string]string{"id": "acct_1"})
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(ledger.records))
	}
	if ledger.records[0].outcome != enums.WebhookOutcomeUnhandledType {
		t.Fatalf("expected unhandled_type, got %s", ledger.records[0].outcome)
	}
}

func TestProcessPaymentIntentSucceeded(t *testing.T) {
	dons := &stubDonations{}
	ledger := &stubLedger{}
	svc := newTestService(t, dons, &stubSubscriptions{}, ledger, nil)

	event := newEvent(t, "evt_pi", stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_55"})
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dons.statusCalls) != 1 || dons.statusCalls[0] != enums.DonationStatusCompleted {
		t.Fatalf("expected completed status call, got %v", dons.statusCalls)
	}
	if dons.statusIdents[0].PaymentIntentID != "pi_55" {
		t.Fatalf("expected pi_55, got %s", dons.statusIdents[0].PaymentIntentID)
	}
	if ledger.records[0].outcome != enums.WebhookOutcomeHandled {
		t.Fatalf("expected handled outcome, got %s", ledger.records[0].outcome)
	}
}

func TestProcessPaymentIntentFailedCarriesFailureCode(t *testing.T) {
	dons := &stubDonations{}
	svc := newTestService(t, dons, &stubSubscriptions{}, &stubLedger{}, nil)

	intent := map[string]any{
		"id":                 "pi_fail",
		"last_payment_error": map[string]any{"code": "card_declined"},
	}
	event := newEvent(t, "evt_fail", stripe.EventTypePaymentIntentPaymentFailed, intent)
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dons.statusCalls) != 1 || dons.statusCalls[0] != enums.DonationStatusFailed {
		t.Fatalf("expected failed status call, got %v", dons.statusCalls)
	}
}

func TestProcessHandlerErrorStillSucceeds(t *testing.T) {
	dons := &stubDonations{
		setStatusFn: func(ident donations.Identifier, status enums.DonationStatus) (*models.Donation, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "write failed")
		},
	}
	ledger := &stubLedger{}
	svc := newTestService(t, dons, &stubSubscriptions{}, ledger, nil)

	event := newEvent(t, "evt_err", stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_9"})
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("handler errors must not propagate, got %v", err)
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(ledger.records))
	}
	record := ledger.records[0]
	if record.outcome != enums.WebhookOutcomeHandlerError {
		t.Fatalf("expected handler_error outcome, got %s", record.outcome)
	}
	if record.err == nil {
		t.Fatal("expected handler error captured in the ledger")
	}
}

func TestProcessCheckoutCompletedUpsertsAndSendsReceipt(t *testing.T) {
	dons := &stubDonations{}
	mail := &stubMailer{}
	svc := newTestService(t, dons, &stubSubscriptions{}, &stubLedger{}, mail)

	session := map[string]any{
		"id":               "cs_done",
		"amount_total":     5000,
		"currency":         "usd",
		"payment_intent":   map[string]any{"id": "pi_done"},
		"customer_details": map[string]any{"email": "giver@example.com"},
		"metadata":         map[string]string{"category": "tithes"},
	}
	event := newEvent(t, "evt_cs", stripe.EventTypeCheckoutSessionCompleted, session)
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dons.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(dons.upserts))
	}
	params := dons.upserts[0]
	if params.SessionID != "cs_done" {
		t.Fatalf("unexpected session id %s", params.SessionID)
	}
	if params.Status == nil || *params.Status != enums.DonationStatusCompleted {
		t.Fatal("expected completed status")
	}
	if params.PaymentIntentID == nil || *params.PaymentIntentID != "pi_done" {
		t.Fatal("payment intent id not forwarded")
	}
	if params.AmountCents == nil || *params.AmountCents != 5000 {
		t.Fatal("amount not forwarded")
	}
	if params.Category == nil || *params.Category != enums.DonationCategoryTithes {
		t.Fatal("category not parsed from metadata")
	}

	if len(mail.sent) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(mail.sent))
	}
	if mail.sent[0].To != "giver@example.com" {
		t.Fatalf("receipt sent to %s", mail.sent[0].To)
	}
	if len(dons.receiptsSent) != 1 {
		t.Fatal("receipt timestamp not recorded")
	}
}

func TestProcessCheckoutCompletedMailFailureIsNotFatal(t *testing.T) {
	dons := &stubDonations{}
	mail := &stubMailer{err: pkgerrors.New(pkgerrors.CodeUpstream, "mail provider down")}
	ledger := &stubLedger{}
	svc := newTestService(t, dons, &stubSubscriptions{}, ledger, mail)

	session := map[string]any{
		"id":               "cs_mailless",
		"amount_total":     1000,
		"currency":         "usd",
		"customer_details": map[string]any{"email": "giver@example.com"},
	}
	event := newEvent(t, "evt_mail", stripe.EventTypeCheckoutSessionCompleted, session)
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.records[0].outcome != enums.WebhookOutcomeHandled {
		t.Fatalf("mail failure must not mark the event failed, got %s", ledger.records[0].outcome)
	}
	if len(dons.receiptsSent) != 0 {
		t.Fatal("receipt must not be marked sent after a delivery failure")
	}
}

func TestProcessCheckoutExpiredCancels(t *testing.T) {
	dons := &stubDonations{}
	svc := newTestService(t, dons, &stubSubscriptions{}, &stubLedger{}, nil)

	event := newEvent(t, "evt_exp", stripe.EventTypeCheckoutSessionExpired, map[string]any{"id": "cs_late"})
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dons.statusCalls) != 1 || dons.statusCalls[0] != enums.DonationStatusCancelled {
		t.Fatalf("expected cancelled status call, got %v", dons.statusCalls)
	}
	if dons.statusIdents[0].SessionID != "cs_late" {
		t.Fatalf("expected cs_late, got %s", dons.statusIdents[0].SessionID)
	}
}

func TestProcessSubscriptionLifecycleSyncs(t *testing.T) {
	subs := &stubSubscriptions{}
	svc := newTestService(t, &stubDonations{}, subs, &stubLedger{}, nil)

	event := newEvent(t, "evt_sub", stripe.EventTypeCustomerSubscriptionUpdated, stripe.Subscription{ID: "sub_42"})
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs.synced) != 1 || subs.synced[0] != "sub_42" {
		t.Fatalf("expected sync for sub_42, got %v", subs.synced)
	}
}

func TestProcessInvoicePaymentSucceeded(t *testing.T) {
	frequency := enums.RecurrenceFrequencyMonthly
	subs := &stubSubscriptions{
		stored: map[string]*models.Subscription{
			"sub_inv": {
				ProviderSubscriptionID: "sub_inv",
				Category:               enums.DonationCategoryMissions,
				Frequency:              frequency,
				Status:                 enums.SubscriptionStatusPastDue,
			},
		},
	}
	dons := &stubDonations{}
	svc := newTestService(t, dons, subs, &stubLedger{}, nil)

	invoice := map[string]any{
		"id":             "in_777",
		"subscription":   "sub_inv",
		"amount_paid":    2500,
		"currency":       "usd",
		"customer_email": "giver@example.com",
	}
	event := newEvent(t, "evt_inv", stripe.EventTypeInvoicePaymentSucceeded, invoice)
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dons.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(dons.upserts))
	}
	params := dons.upserts[0]
	if params.SessionID != "in_777" {
		t.Fatalf("invoice donations key off the invoice id, got %s", params.SessionID)
	}
	if params.Kind == nil || *params.Kind != enums.DonationKindRecurring {
		t.Fatal("invoice donation must be recurring")
	}
	if params.SubscriptionID == nil || *params.SubscriptionID != "sub_inv" {
		t.Fatal("subscription id not forwarded")
	}
	if params.AmountCents == nil || *params.AmountCents != 2500 {
		t.Fatal("amount not forwarded")
	}
	if params.Frequency == nil || *params.Frequency != frequency {
		t.Fatal("frequency not inherited from the subscription")
	}
	if subs.marked["sub_inv"] != enums.SubscriptionStatusActive {
		t.Fatalf("successful payment should reactivate, got %s", subs.marked["sub_inv"])
	}
}

func TestProcessInvoicePaymentFailedMarksPastDue(t *testing.T) {
	subs := &stubSubscriptions{
		stored: map[string]*models.Subscription{
			"sub_due": {ProviderSubscriptionID: "sub_due", Status: enums.SubscriptionStatusActive},
		},
	}
	dons := &stubDonations{}
	svc := newTestService(t, dons, subs, &stubLedger{}, nil)

	invoice := map[string]any{
		"id":           "in_888",
		"subscription": "sub_due",
		"amount_due":   3000,
		"currency":     "usd",
	}
	event := newEvent(t, "evt_due", stripe.EventTypeInvoicePaymentFailed, invoice)
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if subs.marked["sub_due"] != enums.SubscriptionStatusPastDue {
		t.Fatalf("failed payment should mark past_due, got %s", subs.marked["sub_due"])
	}
	params := dons.upserts[0]
	if params.Status == nil || *params.Status != enums.DonationStatusFailed {
		t.Fatal("expected failed donation status")
	}
	if params.AmountCents == nil || *params.AmountCents != 3000 {
		t.Fatal("amount_due not forwarded")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := formatAmount(5000, enums.CurrencyUSD); got != "50.00 USD" {
		t.Fatalf("unexpected amount %q", got)
	}
	if got := formatAmount(2599, enums.CurrencyEUR); got != "25.99 EUR" {
		t.Fatalf("unexpected amount %q", got)
	}
}

var (
	_ Ledger                = (*stubLedger)(nil)
	_ donations.Service     = (*stubDonations)(nil)
	_ subscriptions.Service = (*stubSubscriptions)(nil)
	_ mailer.Sender         = (*stubMailer)(nil)
)
