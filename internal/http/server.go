// Package http serves the web UI: dashboard, provider and tenant
// management, and bill actions over server-rendered templates with HTMX.
package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"nextbill/internal/auth"
	"nextbill/internal/cache"
	"nextbill/internal/core"
	"nextbill/internal/middleware/metrics"
	"nextbill/internal/middleware/ratelimit"
	"nextbill/internal/middleware/security"
	"nextbill/internal/middleware/trace"
	"nextbill/internal/services"
	"nextbill/internal/storage"
	appweb "nextbill/web"
)

// Deps carries everything the server needs wired from main.
type Deps struct {
	Addr     string
	Billing  *services.BillingService
	Repo     *storage.SQLiteRepository
	Sessions *auth.SessionManager
	OAuth    *oauth2.Config
}

type Server struct {
	http.Server
	templates *template.Template
	billing   *services.BillingService
	repo      *storage.SQLiteRepository
	sessions  *auth.SessionManager
	oauth     *oauth2.Config

	// Per-user-per-period overview cache; invalidated on bill actions.
	overviewCache *cache.LRUCache[core.ConsolidatedBill]
	cacheManager  *cache.Manager

	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	ipResolver *security.Resolver

	shutdownOnce sync.Once
	started      time.Time
}

// NewServer configures routes, middleware, and templates, returning a
// ready-to-run server.
func NewServer(deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		billing:       deps.Billing,
		repo:          deps.Repo,
		sessions:      deps.Sessions,
		oauth:         deps.OAuth,
		overviewCache: cache.NewLRUCache[core.ConsolidatedBill](100, 5*time.Minute),
		cacheManager:  cache.NewManager(),
		limiter:       ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		metrics:       metrics.New(),
		ipResolver:    security.NewResolver(),
		started:       time.Now(),
	}

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(template.FuncMap{
		"dollars": formatDollars,
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	limit := s.limiter.Middleware(s.ipResolver.ExtractClientIP, nil)

	// Pages
	mux.HandleFunc("GET /{$}", s.requireSession(s.handleDashboard))
	mux.HandleFunc("GET /ui/bill-overview", s.requireSession(s.handleBillOverview))
	mux.HandleFunc("GET /providers", s.requireSession(s.handleProvidersPage))
	mux.HandleFunc("GET /tenants", s.requireSession(s.handleTenantsPage))
	mux.HandleFunc("GET /bills", s.requireSession(s.handleBillsPage))
	mux.HandleFunc("GET /settings", s.requireSession(s.handleSettings))

	// Actions (rate limited)
	mux.Handle("POST /providers", limit(http.HandlerFunc(s.requireSession(s.handleCreateProvider))))
	mux.Handle("POST /providers/{id}", limit(http.HandlerFunc(s.requireSession(s.handleUpdateProvider))))
	mux.Handle("POST /providers/{id}/delete", limit(http.HandlerFunc(s.requireSession(s.handleDeleteProvider))))
	mux.Handle("POST /tenants", limit(http.HandlerFunc(s.requireSession(s.handleCreateTenant))))
	mux.Handle("POST /tenants/{id}", limit(http.HandlerFunc(s.requireSession(s.handleUpdateTenant))))
	mux.Handle("POST /tenants/{id}/delete", limit(http.HandlerFunc(s.requireSession(s.handleDeleteTenant))))
	mux.Handle("POST /bills/send", limit(http.HandlerFunc(s.requireSession(s.handleSendBill))))
	mux.Handle("POST /bills/{id}/paid", limit(http.HandlerFunc(s.requireSession(s.handleMarkPaid))))

	// Auth
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /auth/callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /logout", s.handleLogout)

	// Operational endpoints
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.ipResolver.ExtractClientIP)
	s.Server = http.Server{
		Addr:    deps.Addr,
		Handler: tracer.Middleware(headers.Middleware(s.metrics.Middleware(mux))),
	}

	return s
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed",
			"template", name, "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// renderToString executes a template into a buffer for embedding in an
// HTMX response body.
func (s *Server) renderToString(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var errTemplatesNotLoaded = errors.New("templates not loaded")

func (s *Server) overviewCacheKey(userID string, period core.Period) string {
	return userID + ":" + period.String()
}

func (s *Server) invalidateOverview(userID string, period core.Period) {
	s.overviewCache.Delete(s.overviewCacheKey(userID, period))
}

// cachedBill serves the consolidated overview from cache when fresh,
// otherwise runs the full mailbox fetch.
func (s *Server) cachedBill(ctx context.Context, userID string, period core.Period) (core.ConsolidatedBill, error) {
	key := s.overviewCacheKey(userID, period)
	if bill, found := s.overviewCache.Get(key); found {
		slog.DebugContext(ctx, "Overview cache hit", "year", period.Year, "month", period.Month)
		return bill, nil
	}

	// Bounded so a slow mailbox cannot hang the partial.
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	bill, err := s.billing.BillForPeriod(cctx, userID, period)
	if err != nil {
		return core.ConsolidatedBill{}, err
	}

	s.overviewCache.Set(key, bill)
	return bill, nil
}
