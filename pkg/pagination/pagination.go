package pagination

// DefaultLimit is the standard page size when a limit is not provided.
const DefaultLimit = 25

// MaxLimit caps how many rows any paged query can request, regardless of the
// caller-supplied value.
const MaxLimit = 100

// Params holds page-based pagination inputs from controllers or services.
// Pages are 1-indexed.
type Params struct {
	Page  int
	Limit int
}

// Page summarizes the page returned to the caller.
type Page struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// Normalize clamps the parameters to valid, bounded values.
func (p Params) Normalize() Params {
	out := p
	if out.Page <= 0 {
		out.Page = 1
	}
	out.Limit = NormalizeLimit(out.Limit)
	return out
}

// Offset returns the row offset for the normalized parameters.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// NewPage builds the response metadata for a page of results.
func NewPage(params Params, total int64) Page {
	n := params.Normalize()
	return Page{
		Page:    n.Page,
		Limit:   n.Limit,
		Total:   total,
		HasMore: int64(n.Page*n.Limit) < total,
	}
}
