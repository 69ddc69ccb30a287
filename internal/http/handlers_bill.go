package http

import (
	"log/slog"
	"net/http"
	"time"
)

// handleSendBill persists the period's consolidated bill for one tenant
// and queues its breakdown email.
func (s *Server) handleSendBill(w http.ResponseWriter, r *http.Request, sess session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	tenantID := sanitizeInput(r.Form.Get("tenant_id"))
	if tenantID == "" {
		BadRequestError("Missing tenant.").Write(w)
		return
	}
	period := parsePeriodParams(r.Form, time.Now())

	result := s.billing.SendBreakdown(r.Context(), sess.UserID, tenantID, period)
	if !result.Success {
		NewHTMXResponse().
			Status(http.StatusUnprocessableEntity).
			TriggerErrorNotification(result.Error).
			BodyHTML(`<div class="error">` + result.Error + `</div>`).
			Write(w)
		return
	}

	s.metrics.RecordBillSent()
	s.invalidateOverview(sess.UserID, period)

	NewHTMXResponse().
		TriggerBillSent(period.Year, period.Month).
		TriggerSuccessNotification("Bill breakdown queued for delivery.").
		BodyHTML(`<div class="success">Breakdown on its way.</div>`).
		Write(w)
}

// handleMarkPaid flips a sent bill to paid and settles the tenant's
// balance.
func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request, sess session) {
	billID := r.PathValue("id")
	if billID == "" {
		BadRequestError("Missing bill.").Write(w)
		return
	}

	result := s.billing.MarkPaid(r.Context(), sess.UserID, billID)
	if !result.Success {
		NewHTMXResponse().
			Status(http.StatusUnprocessableEntity).
			TriggerErrorNotification(result.Error).
			BodyHTML(`<div class="error">` + result.Error + `</div>`).
			Write(w)
		return
	}

	s.renderBillList(w, r, sess, NewHTMXResponse().
		TriggerBillPaid().
		TriggerSuccessNotification("Bill marked as paid."))
}

// billRow is one row of the bill history table.
type billRow struct {
	ID       string
	Period   string
	Tenant   string
	Total    string
	Sent     string
	Paid     bool
	PaidDate string
}

func (s *Server) handleBillsPage(w http.ResponseWriter, r *http.Request, sess session) {
	rows, err := s.billRows(r, sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bill history load failed", "error", err)
		http.Error(w, "could not load bills", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "bills.html", struct {
		Email string
		Bills []billRow
	}{Email: sess.Email, Bills: rows})
}

// renderBillList writes the bill table partial, carrying any prepared
// triggers along.
func (s *Server) renderBillList(w http.ResponseWriter, r *http.Request, sess session, resp *HTMXResponseBuilder) {
	rows, err := s.billRows(r, sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bill list load failed", "error", err)
		InternalServerError("Could not load bills.").Write(w)
		return
	}

	html, err := s.renderToString("bill_list.html", struct{ Bills []billRow }{Bills: rows})
	if err != nil {
		slog.ErrorContext(r.Context(), "Bill list render failed", "error", err)
		InternalServerError("Could not render bills.").Write(w)
		return
	}
	resp.BodyHTML(html).Write(w)
}

func (s *Server) billRows(r *http.Request, sess session) ([]billRow, error) {
	ctx := r.Context()
	billsList, err := s.repo.ListConsolidatedBills(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	tenantNames := make(map[string]string)
	if tenants, err := s.repo.ListTenants(ctx, sess.UserID); err == nil {
		for _, t := range tenants {
			tenantNames[t.ID] = t.Name
		}
	}

	rows := make([]billRow, 0, len(billsList))
	for _, b := range billsList {
		row := billRow{
			ID:     b.ID,
			Period: b.Period.String(),
			Tenant: tenantNames[b.TenantID],
			Total:  formatDollars(b.TotalAmount.Cents),
			Paid:   b.Paid,
		}
		if row.Tenant == "" {
			row.Tenant = "(removed)"
		}
		if b.DateSent != nil {
			row.Sent = b.DateSent.Format("2006-01-02")
		}
		if b.DatePaid != nil {
			row.PaidDate = b.DatePaid.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return rows, nil
}
