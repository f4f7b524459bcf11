package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gracechapelhq/gracechapel-backend/api/responses"
	"github.com/gracechapelhq/gracechapel-backend/api/validators"
	"github.com/gracechapelhq/gracechapel-backend/internal/reports"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

func donationQueryFromRequest(r *http.Request) (reports.RawQuery, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
	if err != nil {
		return reports.RawQuery{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, 1_000_000)
	if err != nil {
		return reports.RawQuery{}, err
	}

	q := r.URL.Query()
	return reports.RawQuery{
		Category:      strings.TrimSpace(q.Get("category")),
		Kind:          strings.TrimSpace(q.Get("kind")),
		Status:        strings.TrimSpace(q.Get("status")),
		DonorEmail:    strings.TrimSpace(q.Get("donorEmail")),
		StartDate:     strings.TrimSpace(q.Get("startDate")),
		EndDate:       strings.TrimSpace(q.Get("endDate")),
		SortField:     strings.TrimSpace(q.Get("sortField")),
		SortDirection: strings.TrimSpace(q.Get("sortDirection")),
		Page:          page,
		Limit:         limit,
	}, nil
}

// AdminDonations lists donations for the finance dashboard. With summary=true
// it returns aggregate totals for the same filter set instead of rows.
func AdminDonations(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		raw, err := donationQueryFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if strings.EqualFold(r.URL.Query().Get("summary"), "true") {
			summary, err := svc.SummarizeDonations(r.Context(), raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, summary)
			return
		}

		list, err := svc.ListDonations(r.Context(), raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminDonationCompare returns totals for the requested window alongside the
// immediately preceding window of equal length.
func AdminDonationCompare(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		raw, err := donationQueryFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		comparison, err := svc.CompareDonations(r.Context(), raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, comparison)
	}
}

// AdminDonationDetail looks a donation up by internal id, payment intent id,
// or checkout session id.
func AdminDonationDetail(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		rawID := strings.TrimSpace(chi.URLParam(r, "donationId"))
		if rawID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "donation id is required"))
			return
		}

		donation, err := svc.GetDonation(r.Context(), rawID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, donation)
	}
}
