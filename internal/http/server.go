package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	applog "paycal/internal/log"
	"paycal/internal/metrics"
	"paycal/internal/middleware/ratelimit"
	"paycal/internal/middleware/security"
	"paycal/internal/middleware/trace"
	"paycal/internal/services"
	"paycal/internal/worker"
)

// Deps are the collaborators the API serves. Exporter, Metrics, Logger and
// Ready are optional.
type Deps struct {
	Ledger        *services.LedgerService
	Calendar      *services.CalendarService
	Preferences   *services.PreferencesService
	Exporter      *worker.ExportWorker
	Metrics       *metrics.Metrics
	Logger        *applog.Logger
	DefaultUserID string
	// Ready reports whether storage can serve requests.
	Ready     func(ctx context.Context) error
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	ledger        *services.LedgerService
	calendar      *services.CalendarService
	prefs         *services.PreferencesService
	exporter      *worker.ExportWorker
	metrics       *metrics.Metrics
	ready         func(ctx context.Context) error
	defaultUserID string

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to release its background goroutines.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:        deps.Ledger,
		calendar:      deps.Calendar,
		prefs:         deps.Preferences,
		exporter:      deps.Exporter,
		metrics:       deps.Metrics,
		ready:         deps.Ready,
		defaultUserID: deps.DefaultUserID,
		rateLimiter:   ratelimit.NewLimiter(deps.RateLimit),
		detector:      security.NewDetector(),
	}
	if s.defaultUserID == "" {
		s.defaultUserID = "local"
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/analytics/changes", s.handleChanges)
	mux.HandleFunc("POST /api/analytics/changes/{templateId}/dismiss", s.handleDismissChange)
	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handlePutPreferences)

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleAddAccount)
	mux.HandleFunc("POST /api/accounts/reorder", s.handleReorderAccounts)
	mux.HandleFunc("PUT /api/accounts/{id}", s.handleRenameAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleRemoveAccount)

	mux.HandleFunc("POST /api/entries", s.handleAddEntry)
	mux.HandleFunc("PUT /api/entries/{id}", s.handleUpdateEntry)
	mux.HandleFunc("DELETE /api/entries/{id}", s.handleDeleteEntry)
	mux.HandleFunc("POST /api/entries/{id}/toggle-paid", s.handleTogglePaid)

	mux.HandleFunc("GET /api/templates/bills", s.handleListBillTemplates)
	mux.HandleFunc("POST /api/templates/bills", s.handleSaveBillTemplate)
	mux.HandleFunc("PUT /api/templates/bills/{id}", s.handleSaveBillTemplate)
	mux.HandleFunc("DELETE /api/templates/bills/{id}", s.handleDeleteBillTemplate)
	mux.HandleFunc("GET /api/templates/paydays", s.handleListPaydayTemplates)
	mux.HandleFunc("POST /api/templates/paydays", s.handleSavePaydayTemplate)
	mux.HandleFunc("PUT /api/templates/paydays/{id}", s.handleSavePaydayTemplate)
	mux.HandleFunc("DELETE /api/templates/paydays/{id}", s.handleDeletePaydayTemplate)

	mux.HandleFunc("GET /api/backup", s.handleExportBackup)
	mux.HandleFunc("POST /api/backup", s.handleImportBackup)
	mux.HandleFunc("DELETE /api/data", s.handleDeleteAll)
	mux.HandleFunc("POST /api/export/sheets", s.handleExportSheets)

	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	// Outermost first: logger, tracing, headers, probe rejection, per-user
	// log fields, write rate limiting, then routing.
	var h http.Handler = trace.RecordRoute(mux)
	h = s.rateLimiter.WritesOnly(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			"client_ip", s.detector.ExtractClientIP(r),
			"method", r.Method,
			"path", r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
			Header("Retry-After", "60").
			Write(w)
	})(h)
	h = applog.RequestMiddleware(
		func(r *http.Request) string { return trace.GetRequestID(r.Context()) },
		func(r *http.Request) string { return s.userID(r) },
	)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(s.detector.ExtractClientIP, s.metrics).Middleware(h)
	h = applog.Middleware(logger)(h)
	s.Handler = h

	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) userID(r *http.Request) string {
	return userIDFrom(r, s.defaultUserID)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
