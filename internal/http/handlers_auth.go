package http

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"nextbill/internal/storage"
)

const (
	sessionCookie = "nextbill_session"
	stateCookie   = "nextbill_oauth_state"
)

// session is the authenticated request context handlers receive.
type session struct {
	UserID string
	Email  string
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess session)

// requireSession validates the JWT session cookie. Browser navigations
// are redirected to login; HTMX partial requests get a client-side
// redirect header instead so the full page follows.
func (s *Server) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			s.redirectToLogin(w, r)
			return
		}
		claims, err := s.sessions.Validate(cookie.Value)
		if err != nil {
			clearCookie(w, sessionCookie)
			s.redirectToLogin(w, r)
			return
		}
		next(w, r, session{UserID: claims.UserID, Email: claims.Email})
	}
}

func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		http.Error(w, "sign-in not configured", http.StatusServiceUnavailable)
		return
	}

	// Already signed in with a valid session: skip the consent screen.
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if _, err := s.sessions.Validate(cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}

	if r.URL.Query().Get("start") == "" {
		s.render(w, r, "login.html", nil)
		return
	}

	state := randomState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	url := s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateParam := r.URL.Query().Get("state")
	stored, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || stateParam != stored.Value {
		slog.WarnContext(ctx, "OAuth callback with bad state")
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	clearCookie(w, stateCookie)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "OAuth code exchange failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusBadGateway)
		return
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(s.oauth.TokenSource(ctx, token)))
	if err != nil {
		slog.ErrorContext(ctx, "Userinfo service init failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusBadGateway)
		return
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil || info.Email == "" {
		slog.ErrorContext(ctx, "Userinfo lookup failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusBadGateway)
		return
	}

	user, err := s.repo.UpsertUser(ctx, storage.User{
		Email:        info.Email,
		Name:         info.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	})
	if err != nil {
		slog.ErrorContext(ctx, "User upsert failed", "email", info.Email, "error", err)
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
		return
	}

	sessionToken, err := s.sessions.Issue(user.ID, user.Email)
	if err != nil {
		slog.ErrorContext(ctx, "Session issue failed", "user_id", user.ID, "error", err)
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	slog.InfoContext(ctx, "User signed in", "user_id", user.ID, "email", user.Email)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, sessionCookie)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func randomState() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "state"
	}
	return hex.EncodeToString(bytes)
}
