package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	Water       Category = "Water"
	Gas         Category = "Gas"
	Electricity Category = "Electricity"
)

type (
	// Category is a utility category a provider bills for.
	Category string

	// Period identifies one billing cycle as a (month, year) pair.
	Period struct {
		Month int // 1-12
		Year  int
	}

	Money struct {
		Cents int64
	}

	// UtilityProvider is a billing company owned by a user.
	UtilityProvider struct {
		ID       string
		UserID   string
		Name     string
		Category Category
	}

	// UtilityBill is the raw, pre-consolidation amount for one provider
	// in one period. A zero amount means no matching messages were found,
	// which is a valid outcome and not an error.
	UtilityBill struct {
		Provider UtilityProvider
		Amount   Money
		Period   Period
	}

	// Tenant rents from a user and holds a percentage share per category.
	// Shares are per-tenant-per-category and are not normalized: two
	// tenants may each hold 50% of the same category, or shares may not
	// sum to 100 at all.
	Tenant struct {
		ID                 string
		UserID             string
		Name               string
		Email              string
		SecondaryName      string
		Shares             map[Category]float64 // percent, 0-100
		OutstandingBalance Money
	}

	// CategoryCharge is one category's portion of a consolidated bill.
	CategoryCharge struct {
		ProviderID   string
		ProviderName string
		Amount       Money
	}

	// ConsolidatedBill aggregates all provider amounts for a period by
	// category. TotalAmount is the sum of category amounts. Tenant share
	// amounts are always derived via TenantShare, never stored.
	ConsolidatedBill struct {
		ID          string
		UserID      string
		TenantID    string
		Period      Period
		Categories  map[Category]CategoryCharge
		TotalAmount Money
		Paid        bool
		DateSent    *time.Time
		DatePaid    *time.Time
	}
)

var (
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidShare    = errors.New("invalid share percentage")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidEmail    = errors.New("invalid email address")
)

// Categories lists all supported utility categories in display order.
func Categories() []Category {
	return []Category{Water, Gas, Electricity}
}

func (c Category) Valid() bool {
	switch c {
	case Water, Gas, Electricity:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory converts user input to a Category, case-insensitively.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "water":
		return Water, nil
	case "gas":
		return Gas, nil
	case "electricity":
		return Electricity, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < 1970 || p.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}

// Next returns the following billing period, rolling December into
// January of the next year.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// DateRange returns the half-open interval [first of month, first of next
// month). The upper bound is computed with calendar arithmetic so the
// December rollover lands in January of the following year.
func (p Period) DateRange() (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	next := p.Next()
	end := time.Date(next.Year, time.Month(next.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, end
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// CurrentPeriod returns the period containing now.
func CurrentPeriod(now time.Time) Period {
	return Period{Month: int(now.Month()), Year: now.Year()}
}

func (up UtilityProvider) Validate() error {
	if len(strings.TrimSpace(up.Name)) == 0 {
		return ErrEmptyName
	}
	if len(up.Name) > 100 {
		return errors.New("provider name too long (max 100 characters)")
	}
	if !up.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, up.Category)
	}
	return nil
}

func (t Tenant) Validate() error {
	if len(strings.TrimSpace(t.Name)) == 0 {
		return ErrEmptyName
	}
	if len(t.Name) > 100 {
		return errors.New("tenant name too long (max 100 characters)")
	}
	if _, err := mail.ParseAddress(t.Email); err != nil {
		return ErrInvalidEmail
	}
	for cat, pct := range t.Shares {
		if !cat.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidCategory, cat)
		}
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidShare, cat, pct)
		}
	}
	return nil
}

// Share returns the tenant's percentage for a category. A missing entry
// is 0%: the tenant contributes nothing for that category.
func (t Tenant) Share(cat Category) float64 {
	if t.Shares == nil {
		return 0
	}
	return t.Shares[cat]
}
