package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nextbill/internal/auth"
	"nextbill/internal/bills"
	"nextbill/internal/core"
)

// overviewRow is one category line of the dashboard overview.
type overviewRow struct {
	Category     string
	ProviderName string
	Amount       string
}

// tenantShareRow is one tenant's derived share of the current bill.
type tenantShareRow struct {
	TenantID    string
	Name        string
	Email       string
	Share       string
	Outstanding string
}

type overviewView struct {
	Year      int
	Month     int
	Period    string
	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int
	Total     string
	Rows      []overviewRow
	Tenants   []tenantShareRow
	Empty     bool
	Error     string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess session) {
	period := parsePeriodParams(r.URL.Query(), time.Now())
	s.render(w, r, "index.html", struct {
		Email  string
		Year   int
		Month  int
		Period string
	}{
		Email:  sess.Email,
		Year:   period.Year,
		Month:  period.Month,
		Period: period.String(),
	})
}

// handleBillOverview renders the consolidated bill partial for one
// period: category totals plus each tenant's derived share.
func (s *Server) handleBillOverview(w http.ResponseWriter, r *http.Request, sess session) {
	ctx := r.Context()
	period := parsePeriodParams(r.URL.Query(), time.Now())

	view := overviewView{
		Year:   period.Year,
		Month:  period.Month,
		Period: period.String(),
	}
	prev := core.Period{Month: period.Month - 1, Year: period.Year}
	if prev.Month == 0 {
		prev = core.Period{Month: 12, Year: period.Year - 1}
	}
	next := period.Next()
	view.PrevYear, view.PrevMonth = prev.Year, prev.Month
	view.NextYear, view.NextMonth = next.Year, next.Month

	bill, err := s.cachedBill(ctx, sess.UserID, period)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrUnauthenticated):
			s.redirectToLogin(w, r)
			return
		case errors.Is(err, bills.ErrFetch):
			s.metrics.RecordFetchError()
			view.Error = "Could not fetch bills from your mailbox. Please try again."
		default:
			slog.ErrorContext(ctx, "Overview build failed", "error", err)
			view.Error = "Something went wrong loading the overview."
		}
		s.render(w, r, "bill_overview.html", view)
		return
	}

	view.Total = formatDollars(bill.TotalAmount.Cents)
	view.Empty = bill.TotalAmount.IsZero()
	for _, cat := range core.Categories() {
		charge, ok := bill.Categories[cat]
		if !ok || charge.Amount.IsZero() {
			continue
		}
		view.Rows = append(view.Rows, overviewRow{
			Category:     cat.String(),
			ProviderName: charge.ProviderName,
			Amount:       formatDollars(charge.Amount.Cents),
		})
	}

	tenants, err := s.repo.ListTenants(ctx, sess.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "Tenant list failed", "error", err)
	}
	for _, t := range tenants {
		view.Tenants = append(view.Tenants, tenantShareRow{
			TenantID:    t.ID,
			Name:        t.Name,
			Email:       t.Email,
			Share:       formatDollars(core.TenantShare(bill, t).Cents),
			Outstanding: formatDollars(t.OutstandingBalance.Cents),
		})
	}

	s.render(w, r, "bill_overview.html", view)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, sess session) {
	ctx := r.Context()
	user, err := s.repo.GetUser(ctx, sess.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "Settings user lookup failed", "error", err)
		http.Error(w, "user not found", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "settings.html", struct {
		Email       string
		Name        string
		TokenFresh  bool
		TokenExpiry string
	}{
		Email:       user.Email,
		Name:        user.Name,
		TokenFresh:  auth.TokenFresh(user.TokenExpiry, time.Now()),
		TokenExpiry: user.TokenExpiry.Format(time.RFC1123),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady verifies template and database readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.repo.ListConsolidatedBills(r.Context(), "readiness-probe"); err != nil {
		slog.ErrorContext(r.Context(), "Readiness database check failed", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
