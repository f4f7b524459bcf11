package reports

import (
	"context"
	"strings"
	"time"

	"github.com/gracechapelhq/gracechapel-backend/internal/donations"
	"github.com/gracechapelhq/gracechapel-backend/internal/subscriptions"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
	"github.com/gracechapelhq/gracechapel-backend/pkg/pagination"
)

// Date inputs accept a plain calendar date or a full timestamp.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// RawQuery carries externally supplied donation filters before validation.
// Empty strings mean "not provided".
type RawQuery struct {
	Category      string
	Kind          string
	Status        string
	DonorEmail    string
	StartDate     string
	EndDate       string
	SortField     string
	SortDirection string
	Page          int
	Limit         int
}

// RawSubscriptionQuery carries externally supplied subscription filters.
type RawSubscriptionQuery struct {
	Status     string
	Category   string
	Frequency  string
	DonorEmail string
	Page       int
	Limit      int
}

// DonationList is the paginated listing response shape.
type DonationList struct {
	Items      []models.Donation `json:"items"`
	Pagination pagination.Page   `json:"pagination"`
}

// SubscriptionList is the paginated subscription listing response shape.
type SubscriptionList struct {
	Items      []models.Subscription `json:"items"`
	Pagination pagination.Page       `json:"pagination"`
}

// Comparison holds a summary for the requested window, the immediately
// preceding equal-length window, and the difference between them.
type Comparison struct {
	Current       *donations.Summary `json:"current"`
	Previous      *donations.Summary `json:"previous"`
	Delta         ComparisonDelta    `json:"delta"`
	CurrentStart  time.Time          `json:"current_start"`
	CurrentEnd    time.Time          `json:"current_end"`
	PreviousStart time.Time          `json:"previous_start"`
	PreviousEnd   time.Time          `json:"previous_end"`
}

// ComparisonDelta is current minus previous.
type ComparisonDelta struct {
	TotalCents int64 `json:"total_cents"`
	Count      int64 `json:"count"`
}

// Service validates externally supplied reporting parameters and maps them
// onto store queries. It never mutates state.
type Service interface {
	ListDonations(ctx context.Context, raw RawQuery) (*DonationList, error)
	SummarizeDonations(ctx context.Context, raw RawQuery) (*donations.Summary, error)
	CompareDonations(ctx context.Context, raw RawQuery) (*Comparison, error)
	GetDonation(ctx context.Context, rawID string) (*models.Donation, error)
	ListSubscriptions(ctx context.Context, raw RawSubscriptionQuery) (*SubscriptionList, error)
}

// ServiceParams wires the reporting dependencies.
type ServiceParams struct {
	Donations     donations.Service
	Subscriptions subscriptions.Service
}

type service struct {
	donations     donations.Service
	subscriptions subscriptions.Service
}

// NewService validates dependencies and returns the reporting service.
func NewService(params ServiceParams) (Service, error) {
	if params.Donations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "donations service required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	return &service{donations: params.Donations, subscriptions: params.Subscriptions}, nil
}

func (s *service) ListDonations(ctx context.Context, raw RawQuery) (*DonationList, error) {
	params, err := buildQueryParams(raw)
	if err != nil {
		return nil, err
	}

	items, total, err := s.donations.Query(ctx, *params)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Donation{}
	}
	return &DonationList{
		Items:      items,
		Pagination: pagination.NewPage(params.Page, total),
	}, nil
}

func (s *service) SummarizeDonations(ctx context.Context, raw RawQuery) (*donations.Summary, error) {
	filters, err := buildFilters(raw)
	if err != nil {
		return nil, err
	}
	return s.donations.Summarize(ctx, *filters)
}

// CompareDonations summarizes the requested window and the equal-length
// window immediately before it. Both date bounds are required here.
func (s *service) CompareDonations(ctx context.Context, raw RawQuery) (*Comparison, error) {
	filters, err := buildFilters(raw)
	if err != nil {
		return nil, err
	}
	if filters.StartDate == nil || filters.EndDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "startDate and endDate are required for comparison")
	}

	current, err := s.donations.Summarize(ctx, *filters)
	if err != nil {
		return nil, err
	}

	windowStart := *filters.StartDate
	windowEnd := *filters.EndDate
	previousStart := windowStart.Add(-windowEnd.Sub(windowStart))
	previousEnd := windowStart

	previousFilters := *filters
	previousFilters.StartDate = &previousStart
	previousFilters.EndDate = &previousEnd
	previous, err := s.donations.Summarize(ctx, previousFilters)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Current:  current,
		Previous: previous,
		Delta: ComparisonDelta{
			TotalCents: current.TotalCents - previous.TotalCents,
			Count:      current.Count - previous.Count,
		},
		CurrentStart:  windowStart,
		CurrentEnd:    windowEnd,
		PreviousStart: previousStart,
		PreviousEnd:   previousEnd,
	}, nil
}

func (s *service) GetDonation(ctx context.Context, rawID string) (*models.Donation, error) {
	ident, err := donations.ParseIdentifier(rawID)
	if err != nil {
		return nil, err
	}
	donation, err := s.donations.Find(ctx, ident)
	if err != nil {
		return nil, err
	}
	if donation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "donation not found")
	}
	return donation, nil
}

func (s *service) ListSubscriptions(ctx context.Context, raw RawSubscriptionQuery) (*SubscriptionList, error) {
	filters := subscriptions.Filters{}
	if raw.Status != "" {
		status, err := enums.ParseSubscriptionStatus(raw.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw.Category != "" {
		category, err := enums.ParseDonationCategory(raw.Category)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category filter")
		}
		filters.Category = &category
	}
	if raw.Frequency != "" {
		frequency, err := enums.ParseRecurrenceFrequency(raw.Frequency)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid frequency filter")
		}
		filters.Frequency = &frequency
	}
	if email := strings.TrimSpace(raw.DonorEmail); email != "" {
		filters.DonorEmail = &email
	}

	page := pagination.Params{Page: raw.Page, Limit: raw.Limit}.Normalize()
	items, total, err := s.subscriptions.List(ctx, subscriptions.ListParams{Filters: filters, Page: page})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Subscription{}
	}
	return &SubscriptionList{
		Items:      items,
		Pagination: pagination.NewPage(page, total),
	}, nil
}

func buildQueryParams(raw RawQuery) (*donations.QueryParams, error) {
	filters, err := buildFilters(raw)
	if err != nil {
		return nil, err
	}
	sort, err := buildSort(raw)
	if err != nil {
		return nil, err
	}
	return &donations.QueryParams{
		Filters: *filters,
		Sort:    *sort,
		Page:    pagination.Params{Page: raw.Page, Limit: raw.Limit}.Normalize(),
	}, nil
}

func buildFilters(raw RawQuery) (*donations.Filters, error) {
	filters := donations.Filters{}

	if raw.Category != "" {
		category, err := enums.ParseDonationCategory(raw.Category)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category filter")
		}
		filters.Category = &category
	}
	if raw.Kind != "" {
		kind, err := enums.ParseDonationKind(raw.Kind)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind filter")
		}
		filters.Kind = &kind
	}
	if raw.Status != "" {
		status, err := enums.ParseDonationStatus(raw.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if email := strings.TrimSpace(raw.DonorEmail); email != "" {
		filters.DonorEmail = &email
	}

	if raw.StartDate != "" {
		start, err := parseDate(raw.StartDate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid startDate")
		}
		filters.StartDate = &start
	}
	if raw.EndDate != "" {
		end, err := parseDate(raw.EndDate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid endDate")
		}
		filters.EndDate = &end
	}
	if filters.StartDate != nil && filters.EndDate != nil && !filters.StartDate.Before(*filters.EndDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "startDate must be strictly before endDate")
	}
	return &filters, nil
}

func buildSort(raw RawQuery) (*donations.Sort, error) {
	sort := donations.Sort{Field: donations.SortByCreatedAt, Descending: true}

	if raw.SortField != "" {
		field := donations.SortField(raw.SortField)
		if !field.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sortField must be one of created_at, amount_cents, category, status")
		}
		sort.Field = field
	}
	switch strings.ToLower(raw.SortDirection) {
	case "", "desc":
		sort.Descending = true
	case "asc":
		sort.Descending = false
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sortDirection must be asc or desc")
	}
	return &sort, nil
}

func parseDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
