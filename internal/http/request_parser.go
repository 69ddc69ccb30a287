package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"nextbill/internal/core"
)

// shareFields maps the tenant form's share inputs to categories.
var shareFields = map[string]core.Category{
	"share_water":       core.Water,
	"share_gas":         core.Gas,
	"share_electricity": core.Electricity,
}

// ParseShares reads the per-category share percentages from a tenant
// form. Blank fields are omitted, which downstream treats as 0%.
func ParseShares(form url.Values) (map[core.Category]float64, error) {
	shares := make(map[core.Category]float64)
	for field, cat := range shareFields {
		v := strings.TrimSpace(form.Get(field))
		if v == "" {
			continue
		}
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", field, err)
		}
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("%w: %s=%v", core.ErrInvalidShare, cat, pct)
		}
		shares[cat] = pct
	}
	return shares, nil
}

// ParseFormOrFail parses the request form and returns an error response
// on failure. Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format.")
	}
	return nil
}
