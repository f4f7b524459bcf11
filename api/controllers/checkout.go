package controllers

import (
	"net/http"

	"github.com/gracechapelhq/gracechapel-backend/api/responses"
	"github.com/gracechapelhq/gracechapel-backend/api/validators"
	"github.com/gracechapelhq/gracechapel-backend/internal/checkout"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
)

type checkoutSessionRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	Currency    string `json:"currency"`
	Category    string `json:"category"`
	Kind        string `json:"kind"`
	Frequency   string `json:"frequency"`
	DonorEmail  string `json:"donor_email" validate:"omitempty,email"`
}

// CheckoutSession creates a provider checkout session for a donation.
func CheckoutSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var body checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSession(r.Context(), checkout.CreateParams{
			AmountCents: body.AmountCents,
			Currency:    body.Currency,
			Category:    body.Category,
			Kind:        body.Kind,
			Frequency:   body.Frequency,
			DonorEmail:  body.DonorEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
