package core

import (
	"testing"
	"time"
)

func TestPeriodValidate(t *testing.T) {
	tests := []struct {
		name    string
		period  Period
		wantErr bool
	}{
		{"valid january", Period{Month: 1, Year: 2025}, false},
		{"valid december", Period{Month: 12, Year: 2025}, false},
		{"month zero", Period{Month: 0, Year: 2025}, true},
		{"month thirteen", Period{Month: 13, Year: 2025}, true},
		{"year too small", Period{Month: 6, Year: 1969}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.period.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeriodDateRange(t *testing.T) {
	tests := []struct {
		name      string
		period    Period
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid year",
			period:    Period{Month: 6, Year: 2025},
			wantStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "december rolls into next year",
			period:    Period{Month: 12, Year: 2025},
			wantStart: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "january",
			period:    Period{Month: 1, Year: 2025},
			wantStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.period.DateRange()
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestPeriodNext(t *testing.T) {
	next := Period{Month: 12, Year: 2024}.Next()
	if next.Month != 1 || next.Year != 2025 {
		t.Errorf("Next() = %+v, want month 1 year 2025", next)
	}
	next = Period{Month: 7, Year: 2024}.Next()
	if next.Month != 8 || next.Year != 2024 {
		t.Errorf("Next() = %+v, want month 8 year 2024", next)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"Water", Water, false},
		{"gas", Gas, false},
		{"  ELECTRICITY ", Electricity, false},
		{"internet", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProviderValidate(t *testing.T) {
	valid := UtilityProvider{Name: "Enbridge", Category: Gas}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid provider rejected: %v", err)
	}
	if err := (UtilityProvider{Name: "", Category: Gas}).Validate(); err == nil {
		t.Error("empty name accepted")
	}
	if err := (UtilityProvider{Name: "X", Category: "Internet"}).Validate(); err == nil {
		t.Error("unknown category accepted")
	}
}

func TestTenantValidate(t *testing.T) {
	tests := []struct {
		name    string
		tenant  Tenant
		wantErr bool
	}{
		{
			name:   "valid",
			tenant: Tenant{Name: "John Doe", Email: "john@example.com", Shares: map[Category]float64{Water: 50}},
		},
		{
			name:    "bad email",
			tenant:  Tenant{Name: "John", Email: "not-an-email"},
			wantErr: true,
		},
		{
			name:    "share over 100",
			tenant:  Tenant{Name: "John", Email: "john@example.com", Shares: map[Category]float64{Gas: 120}},
			wantErr: true,
		},
		{
			name:    "negative share",
			tenant:  Tenant{Name: "John", Email: "john@example.com", Shares: map[Category]float64{Gas: -1}},
			wantErr: true,
		},
		{
			name:    "empty name",
			tenant:  Tenant{Email: "john@example.com"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tenant.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTenantShareDefaultsToZero(t *testing.T) {
	tenant := Tenant{Name: "A", Email: "a@example.com"}
	if got := tenant.Share(Water); got != 0 {
		t.Errorf("Share(Water) with nil map = %v, want 0", got)
	}
	tenant.Shares = map[Category]float64{Gas: 30}
	if got := tenant.Share(Water); got != 0 {
		t.Errorf("Share(Water) with no entry = %v, want 0", got)
	}
}
