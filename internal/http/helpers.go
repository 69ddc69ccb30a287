package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nextbill/internal/core"
)

// parsePeriodParams extracts the billing period from month/year values,
// falling back to the current month. Out-of-range values also fall back
// rather than erroring; period validation happens downstream.
func parsePeriodParams(values url.Values, now time.Time) core.Period {
	period := core.CurrentPeriod(now)

	if v := strings.TrimSpace(values.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			period.Year = y
		}
	}
	if v := strings.TrimSpace(values.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			period.Month = m
		}
	}

	if period.Validate() != nil {
		return core.CurrentPeriod(now)
	}
	return period
}

// formatDollars formats cents as a dollar string, e.g. "$12.34".
func formatDollars(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("$%d.%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
