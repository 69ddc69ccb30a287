// Package bills fetches raw utility bill amounts from the landlord's
// mailbox, one search per provider per billing period.
package bills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"nextbill/internal/core"
	"nextbill/internal/mail"
)

// ErrFetch marks any unexpected mailbox API failure. The whole fetch is
// aborted; callers surface a generic failure rather than partial results.
var ErrFetch = errors.New("mailbox fetch failed")

// Fetcher scans a mailbox for provider bills.
type Fetcher struct {
	mailbox mail.Searcher
}

func NewFetcher(mailbox mail.Searcher) *Fetcher {
	return &Fetcher{mailbox: mailbox}
}

// BuildQuery returns the mailbox query for one provider and period: the
// provider name plus a half-open calendar-month date range. The upper
// bound comes from Period.Next, so December rolls into January of the
// next year.
func BuildQuery(providerName string, period core.Period) string {
	start, end := period.DateRange()
	return fmt.Sprintf("%q after:%s before:%s",
		providerName, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// Fetch returns one raw bill per provider for the period. Providers are
// queried concurrently; each query is independent and results combine by
// per-provider summation, so order of completion does not matter. A
// provider with no matching messages yields a zero amount, which is a
// valid outcome. Any provider API error aborts the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, providers []core.UtilityProvider, period core.Period) ([]core.UtilityBill, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	results := make([]core.UtilityBill, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			amount, err := f.fetchProvider(gctx, p, period)
			if err != nil {
				return fmt.Errorf("provider %s: %w", p.Name, err)
			}
			results[i] = core.UtilityBill{Provider: p, Amount: amount, Period: period}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetch, err)
	}
	return results, nil
}

// fetchProvider sums the currency amounts found in every message matching
// the provider query. Unparseable matches are skipped, not fatal.
func (f *Fetcher) fetchProvider(ctx context.Context, p core.UtilityProvider, period core.Period) (core.Money, error) {
	query := BuildQuery(p.Name, period)
	ids, err := f.mailbox.Search(ctx, query)
	if err != nil {
		return core.Money{}, fmt.Errorf("search: %w", err)
	}
	if len(ids) == 0 {
		slog.DebugContext(ctx, "No bill messages for provider",
			"provider_name", p.Name,
			"year", period.Year,
			"month", period.Month)
		return core.Money{}, nil
	}

	var total core.Money
	var skippedTotal int
	for _, id := range ids {
		body, err := f.mailbox.FetchBody(ctx, id)
		if err != nil {
			return core.Money{}, fmt.Errorf("fetch message %s: %w", id, err)
		}
		amount, skipped := core.ScanAmounts(body)
		total = total.Add(amount)
		skippedTotal += skipped
	}
	if skippedTotal > 0 {
		slog.WarnContext(ctx, "Skipped malformed currency matches",
			"provider_name", p.Name,
			"skipped_count", skippedTotal)
	}

	slog.InfoContext(ctx, "Fetched provider bill",
		"provider_name", p.Name,
		"year", period.Year,
		"month", period.Month,
		"message_count", len(ids),
		"amount_cents", total.Cents)

	return total, nil
}
