package http

import (
	"log/slog"
	"net/http"

	"nextbill/internal/core"
)

type tenantRow struct {
	ID            string
	Name          string
	SecondaryName string
	Email         string
	Outstanding   string
	Shares        map[string]float64
}

func (s *Server) handleTenantsPage(w http.ResponseWriter, r *http.Request, sess session) {
	rows, err := s.tenantRows(r, sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Tenant list load failed", "error", err)
		http.Error(w, "could not load tenants", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "tenants.html", struct {
		Email      string
		Tenants    []tenantRow
		Categories []core.Category
	}{Email: sess.Email, Tenants: rows, Categories: core.Categories()})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request, sess session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	tenant, resp := parseTenantForm(r, sess.UserID)
	if resp != nil {
		resp.Write(w)
		return
	}

	if _, err := s.repo.CreateTenant(r.Context(), tenant); err != nil {
		slog.ErrorContext(r.Context(), "Tenant create failed",
			"tenant_email", tenant.Email, "error", err)
		UnprocessableEntityError("Could not save the tenant.").Write(w)
		return
	}

	s.renderTenantList(w, r, sess, NewHTMXResponse().
		TriggerTenantSaved().
		TriggerSuccessNotification("Tenant saved."))
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request, sess session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	tenant, resp := parseTenantForm(r, sess.UserID)
	if resp != nil {
		resp.Write(w)
		return
	}
	tenant.ID = r.PathValue("id")

	if err := s.repo.UpdateTenant(r.Context(), tenant); err != nil {
		slog.ErrorContext(r.Context(), "Tenant update failed",
			"tenant_id", tenant.ID, "error", err)
		UnprocessableEntityError("Could not update the tenant.").Write(w)
		return
	}

	s.renderTenantList(w, r, sess, NewHTMXResponse().
		TriggerTenantSaved().
		TriggerSuccessNotification("Tenant updated."))
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request, sess session) {
	id := r.PathValue("id")
	if err := s.repo.DeleteTenant(r.Context(), sess.UserID, id); err != nil {
		slog.ErrorContext(r.Context(), "Tenant delete failed",
			"tenant_id", id, "error", err)
		NotFoundError("Tenant not found.").Write(w)
		return
	}

	s.renderTenantList(w, r, sess, NewHTMXResponse().
		TriggerTenantDeleted().
		TriggerSuccessNotification("Tenant removed."))
}

// parseTenantForm reads name, emails, and one share percentage field per
// category (share_water, share_gas, share_electricity). Blank share
// fields mean 0%.
func parseTenantForm(r *http.Request, userID string) (core.Tenant, *HTMXResponseBuilder) {
	tenant := core.Tenant{
		UserID:        userID,
		Name:          sanitizeInput(r.Form.Get("name")),
		SecondaryName: sanitizeInput(r.Form.Get("secondary_name")),
		Email:         sanitizeInput(r.Form.Get("email")),
	}

	shares, err := ParseShares(r.Form)
	if err != nil {
		return core.Tenant{}, UnprocessableEntityError("Share percentages must be numbers between 0 and 100.")
	}
	tenant.Shares = shares

	if err := tenant.Validate(); err != nil {
		return core.Tenant{}, UnprocessableEntityError("Check the tenant's name, email, and shares.")
	}
	return tenant, nil
}

func (s *Server) renderTenantList(w http.ResponseWriter, r *http.Request, sess session, resp *HTMXResponseBuilder) {
	rows, err := s.tenantRows(r, sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Tenant list load failed", "error", err)
		InternalServerError("Could not load tenants.").Write(w)
		return
	}
	html, err := s.renderToString("tenant_list.html", struct{ Tenants []tenantRow }{Tenants: rows})
	if err != nil {
		slog.ErrorContext(r.Context(), "Tenant list render failed", "error", err)
		InternalServerError("Could not render tenants.").Write(w)
		return
	}
	resp.BodyHTML(html).Write(w)
}

func (s *Server) tenantRows(r *http.Request, sess session) ([]tenantRow, error) {
	tenants, err := s.repo.ListTenants(r.Context(), sess.UserID)
	if err != nil {
		return nil, err
	}
	rows := make([]tenantRow, 0, len(tenants))
	for _, t := range tenants {
		shares := make(map[string]float64, len(t.Shares))
		for cat, pct := range t.Shares {
			shares[cat.String()] = pct
		}
		rows = append(rows, tenantRow{
			ID:            t.ID,
			Name:          t.Name,
			SecondaryName: t.SecondaryName,
			Email:         t.Email,
			Outstanding:   formatDollars(t.OutstandingBalance.Cents),
			Shares:        shares,
		})
	}
	return rows, nil
}
