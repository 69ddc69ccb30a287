package core

import "testing"

func TestParseCurrencyToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"plain dollars", "87", 8700, false},
		{"dollar sign", "$87.50", 8750, false},
		{"thousands separators", "$1,234.56", 123456, false},
		{"one decimal digit", "12.3", 1230, false},
		{"third decimal rounds down", "12.344", 1234, false},
		{"third decimal rounds up", "12.346", 1235, false},
		{"leading whitespace", "  $45.00", 4500, false},
		{"separator without dollar sign", "2,500.00", 250000, false},
		{"empty", "", 0, true},
		{"zero", "$0.00", 0, true},
		{"negative", "-12.00", 0, true},
		{"explicit plus", "+12.00", 0, true},
		{"letters", "twelve", 0, true},
		{"double dot", "1.2.3", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrencyToCents(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCurrencyToCents(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCurrencyToCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestScanAmounts(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCents   int64
		wantSkipped int
	}{
		{
			name:      "single amount",
			body:      "Your amount due is $87.50 for this billing period.",
			wantCents: 8750,
		},
		{
			name:      "multiple amounts summed",
			body:      "Previous balance $10.00, current charges $25.25.",
			wantCents: 3525,
		},
		{
			name:      "thousands separator",
			body:      "Annual total: $1,234.56",
			wantCents: 123456,
		},
		{
			name:      "no amounts",
			body:      "Thank you for choosing us. No payment is required.",
			wantCents: 0,
		},
		{
			name:        "zero amount skipped",
			body:        "Balance $0.00 and charges $15.00",
			wantCents:   1500,
			wantSkipped: 1,
		},
		{
			name:      "empty body",
			body:      "",
			wantCents: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, skipped := ScanAmounts(tt.body)
			if total.Cents != tt.wantCents {
				t.Errorf("ScanAmounts() total = %d, want %d", total.Cents, tt.wantCents)
			}
			if skipped != tt.wantSkipped {
				t.Errorf("ScanAmounts() skipped = %d, want %d", skipped, tt.wantSkipped)
			}
		})
	}
}

func TestMoneyPercentage(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		pct   float64
		want  int64
	}{
		{"half of 100 dollars", 10000, 50, 5000},
		{"half of 75 dollars", 7500, 50, 3750},
		{"zero percent", 10000, 0, 0},
		{"full amount", 10000, 100, 10000},
		{"rounds half up", 101, 50, 51},
		{"fractional percent", 10000, 33.5, 3350},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Money{Cents: tt.cents}.Percentage(tt.pct)
			if got.Cents != tt.want {
				t.Errorf("Percentage(%v) = %d, want %d", tt.pct, got.Cents, tt.want)
			}
		})
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 100}).Validate(); err != nil {
		t.Errorf("positive amount rejected: %v", err)
	}
	if err := (Money{}).Validate(); err == nil {
		t.Error("zero amount accepted")
	}
	if err := (Money{Cents: -5}).Validate(); err == nil {
		t.Error("negative amount accepted")
	}
}
