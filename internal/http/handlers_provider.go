package http

import (
	"log/slog"
	"net/http"

	"nextbill/internal/core"
)

type providerRow struct {
	ID       string
	Name     string
	Category string
}

func (s *Server) handleProvidersPage(w http.ResponseWriter, r *http.Request, sess session) {
	rows, err := s.providerRows(r, sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Provider list load failed", "error", err)
		http.Error(w, "could not load providers", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "providers.html", struct {
		Email      string
		Providers  []providerRow
		Categories []core.Category
	}{Email: sess.Email, Providers: rows, Categories: core.Categories()})
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request, sess session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	provider, resp := parseProviderForm(r, sess.UserID)
	if resp != nil {
		resp.Write(w)
		return
	}

	if _, err := s.repo.CreateProvider(r.Context(), provider); err != nil {
		slog.ErrorContext(r.Context(), "Provider create failed",
			"provider_name", provider.Name, "error", err)
		UnprocessableEntityError("Could not save the provider.").Write(w)
		return
	}

	s.renderProviderList(w, r, sess, NewHTMXResponse().
		TriggerProviderSaved().
		TriggerSuccessNotification("Provider saved."))
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request, sess session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	provider, resp := parseProviderForm(r, sess.UserID)
	if resp != nil {
		resp.Write(w)
		return
	}
	provider.ID = r.PathValue("id")

	if err := s.repo.UpdateProvider(r.Context(), provider); err != nil {
		slog.ErrorContext(r.Context(), "Provider update failed",
			"provider_id", provider.ID, "error", err)
		UnprocessableEntityError("Could not update the provider.").Write(w)
		return
	}

	s.renderProviderList(w, r, sess, NewHTMXResponse().
		TriggerProviderSaved().
		TriggerSuccessNotification("Provider updated."))
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request, sess session) {
	id := r.PathValue("id")
	if err := s.repo.DeleteProvider(r.Context(), sess.UserID, id); err != nil {
		slog.ErrorContext(r.Context(), "Provider delete failed",
			"provider_id", id, "error", err)
		NotFoundError("Provider not found.").Write(w)
		return
	}

	s.renderProviderList(w, r, sess, NewHTMXResponse().
		TriggerProviderDeleted().
		TriggerSuccessNotification("Provider removed."))
}

func parseProviderForm(r *http.Request, userID string) (core.UtilityProvider, *HTMXResponseBuilder) {
	name := sanitizeInput(r.Form.Get("name"))
	category, err := core.ParseCategory(r.Form.Get("category"))
	if err != nil {
		return core.UtilityProvider{}, UnprocessableEntityError("Pick a valid category.")
	}

	provider := core.UtilityProvider{
		UserID:   userID,
		Name:     name,
		Category: category,
	}
	if err := provider.Validate(); err != nil {
		return core.UtilityProvider{}, UnprocessableEntityError("Provider name is required.")
	}
	return provider, nil
}

func (s *Server) renderProviderList(w http.ResponseWriter, r *http.Request, sess session, resp *HTMXResponseBuilder) {
	rows, err := s.providerRows(r, sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Provider list load failed", "error", err)
		InternalServerError("Could not load providers.").Write(w)
		return
	}
	html, err := s.renderToString("provider_list.html", struct{ Providers []providerRow }{Providers: rows})
	if err != nil {
		slog.ErrorContext(r.Context(), "Provider list render failed", "error", err)
		InternalServerError("Could not render providers.").Write(w)
		return
	}
	resp.BodyHTML(html).Write(w)
}

func (s *Server) providerRows(r *http.Request, sess session) ([]providerRow, error) {
	providers, err := s.repo.ListProviders(r.Context(), sess.UserID)
	if err != nil {
		return nil, err
	}
	rows := make([]providerRow, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, providerRow{ID: p.ID, Name: p.Name, Category: p.Category.String()})
	}
	return rows, nil
}
