package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gracechapelhq/gracechapel-backend/internal/checkout"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
)

type stubCheckoutService struct {
	lastParams checkout.CreateParams
	result     *checkout.Result
	err        error
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, params checkout.CreateParams) (*checkout.Result, error) {
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

var _ checkout.Service = (*stubCheckoutService)(nil)

func TestCheckoutSession_Created(t *testing.T) {
	svc := &stubCheckoutService{
		result: &checkout.Result{
			SessionID:   "cs_test_1",
			CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_1",
		},
	}
	handler := CheckoutSession(svc, nil)

	body := `{"amount_cents":2500,"category":"missions","kind":"one_time","donor_email":"giver@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastParams.AmountCents != 2500 || svc.lastParams.Category != "missions" {
		t.Fatalf("params not forwarded: %+v", svc.lastParams)
	}
	if !strings.Contains(rec.Body.String(), "cs_test_1") {
		t.Fatalf("expected session id in body, got %s", rec.Body.String())
	}
}

func TestCheckoutSession_InvalidBody(t *testing.T) {
	svc := &stubCheckoutService{}
	handler := CheckoutSession(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"amount_cents":`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckoutSession_MissingAmount(t *testing.T) {
	svc := &stubCheckoutService{}
	handler := CheckoutSession(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"category":"tithes"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing amount, got %d", rec.Code)
	}
}

func TestCheckoutSession_UpstreamFailure(t *testing.T) {
	svc := &stubCheckoutService{
		err: pkgerrors.New(pkgerrors.CodeUpstream, "payment provider request failed"),
	}
	handler := CheckoutSession(svc, nil)

	body := `{"amount_cents":2500}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
