package pagination

import (
	"net/http"
	"strconv"
)

// Params is a page request parsed from "page" and "per_page" query values.
type Params struct {
	Page    int
	PerPage int
}

// Limits bounds what a list endpoint accepts.
type Limits struct {
	DefaultPerPage int
	MaxPerPage     int
}

// DefaultLimits are used by list endpoints that do not set their own.
var DefaultLimits = Limits{DefaultPerPage: 20, MaxPerPage: 100}

// FromRequest parses the page request from r. Missing or unparsable values
// fall back to page 1 and the default page size; per_page is capped at
// MaxPerPage rather than rejected.
func FromRequest(r *http.Request, lim Limits) Params {
	p := Params{Page: 1, PerPage: lim.DefaultPerPage}
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		p.PerPage = min(v, lim.MaxPerPage)
	}
	return p
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}
