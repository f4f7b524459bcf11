package controllers

import (
	"net/http"
	"strings"

	"github.com/gracechapelhq/gracechapel-backend/api/responses"
	"github.com/gracechapelhq/gracechapel-backend/api/validators"
	"github.com/gracechapelhq/gracechapel-backend/internal/reports"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

// AdminSubscriptions lists recurring giving plans for the finance dashboard.
func AdminSubscriptions(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		q := r.URL.Query()
		list, err := svc.ListSubscriptions(r.Context(), reports.RawSubscriptionQuery{
			Status:     strings.TrimSpace(q.Get("status")),
			Category:   strings.TrimSpace(q.Get("category")),
			Frequency:  strings.TrimSpace(q.Get("frequency")),
			DonorEmail: strings.TrimSpace(q.Get("donorEmail")),
			Page:       page,
			Limit:      limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
