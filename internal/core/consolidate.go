package core

// Consolidate folds raw per-provider bills for one period into a single
// consolidated bill keyed by category. If two providers bill the same
// category in the same period their amounts are summed; the charge keeps
// the first provider's identity. An empty bill list is valid and yields a
// zero-total bill.
func Consolidate(userID string, bills []UtilityBill, period Period) ConsolidatedBill {
	cb := ConsolidatedBill{
		UserID:     userID,
		Period:     period,
		Categories: make(map[Category]CategoryCharge),
	}
	for _, b := range bills {
		cat := b.Provider.Category
		charge, ok := cb.Categories[cat]
		if !ok {
			charge = CategoryCharge{
				ProviderID:   b.Provider.ID,
				ProviderName: b.Provider.Name,
			}
		}
		charge.Amount = charge.Amount.Add(b.Amount)
		cb.Categories[cat] = charge
		cb.TotalAmount = cb.TotalAmount.Add(b.Amount)
	}
	return cb
}

// CategoryShare returns a tenant's dollar share of one category on a
// consolidated bill: amount * pct / 100, half-up rounded to cents. A
// category the tenant holds no share in contributes zero.
func CategoryShare(cb ConsolidatedBill, t Tenant, cat Category) Money {
	charge, ok := cb.Categories[cat]
	if !ok {
		return Money{}
	}
	return charge.Amount.Percentage(t.Share(cat))
}

// TenantShare computes a tenant's total dollar share of a consolidated
// bill by summing their per-category shares. Shares are derived on
// demand and never stored on the bill.
func TenantShare(cb ConsolidatedBill, t Tenant) Money {
	var total Money
	for cat := range cb.Categories {
		total = total.Add(CategoryShare(cb, t, cat))
	}
	return total
}

// ShareBreakdown is one line of a tenant's bill breakdown.
type ShareBreakdown struct {
	Category     Category
	ProviderName string
	Amount       Money   // full category amount
	Percentage   float64 // tenant's configured share
	Share        Money   // derived share amount
}

// BreakdownFor lists a tenant's per-category shares in display order,
// skipping categories the bill has no charge for.
func BreakdownFor(cb ConsolidatedBill, t Tenant) []ShareBreakdown {
	var rows []ShareBreakdown
	for _, cat := range Categories() {
		charge, ok := cb.Categories[cat]
		if !ok {
			continue
		}
		rows = append(rows, ShareBreakdown{
			Category:     cat,
			ProviderName: charge.ProviderName,
			Amount:       charge.Amount,
			Percentage:   t.Share(cat),
			Share:        CategoryShare(cb, t, cat),
		})
	}
	return rows
}
