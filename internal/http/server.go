package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"expensetracker/internal/log"
	"expensetracker/internal/metrics"
	"expensetracker/internal/middleware/auth"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr string

	UploadMaxBytes     int64
	BulkMaxRows        int
	DefaultPageSize    int
	MaxPageSize        int
	RateLimitPerMinute int

	// TrustedProxies are CIDRs whose X-Forwarded-For header is honored.
	TrustedProxies []string
}

const (
	maxJSONBodyBytes = 1 << 20
	readyTimeout     = 2 * time.Second
)

// Server is the expense API server.
type Server struct {
	http.Server

	expenses *services.ExpenseService
	auth     *auth.Authenticator
	metrics  *metrics.Metrics
	logger   *log.Logger
	cfg      Config

	mux              *http.ServeMux
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// m may be nil, in which case a private registry is created.
func NewServer(cfg Config, svc *services.ExpenseService, authn *auth.Authenticator, m *metrics.Metrics, logger *log.Logger) *Server {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}

	s := &Server{
		expenses:         svc,
		auth:             authn,
		metrics:          m,
		logger:           logger.WithComponent(log.ComponentHTTP),
		cfg:              cfg,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	mux := http.NewServeMux()
	s.mux = mux
	protect := authn.Protect

	mux.Handle("POST /api/expenses/add", protect(http.HandlerFunc(s.handleCreateExpense)))
	mux.Handle("POST /api/expenses/bulk", protect(http.HandlerFunc(s.handleBulkImport)))
	mux.Handle("GET /api/expenses", protect(http.HandlerFunc(s.handleListExpenses)))
	mux.Handle("GET /api/expenses/{$}", protect(http.HandlerFunc(s.handleListExpenses)))
	mux.Handle("PATCH /api/expenses/update/{id}", protect(http.HandlerFunc(s.handleUpdateExpense)))
	mux.Handle("DELETE /api/expenses/delete", protect(http.HandlerFunc(s.handleDeleteExpenses)))
	mux.Handle("GET /api/expenses/stats", protect(http.HandlerFunc(s.handleStats)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("/", s.handleNotFound)

	tracer := trace.NewMiddleware(logger, s.clientIP, m)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.clientIP, s.writeRateLimited,
		http.MethodPost, http.MethodPatch, http.MethodDelete)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           tracer.Middleware(headers.Middleware(s.withSuspiciousLogging(limit(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// withSuspiciousLogging records requests that look like vulnerability scans. They are
// still served.
func (s *Server) withSuspiciousLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, s.clientIP(r),
				log.FieldPath, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.clientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Message: "Too many requests",
		Error:   "rate limit exceeded, try again later",
		Code:    codeRateLimited,
	})
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ListenAndServe runs the server until Shutdown. http.ErrServerClosed is
// not reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
