package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"spendly/internal/app"
	"spendly/internal/log"
	"spendly/internal/middleware/ratelimit"
	"spendly/internal/middleware/security"
	"spendly/internal/middleware/trace"
	appweb "spendly/web"
)

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	Logger    *log.Logger
	RateLimit ratelimit.Config
	// Ready reports whether the storage backend can serve requests.
	Ready func(context.Context) error
	// StaticMaxAge is the Cache-Control max-age for /static/ in seconds.
	StaticMaxAge int
}

type Server struct {
	http.Server
	app       *app.App
	templates *template.Template
	logger    *log.Logger
	ready     func(context.Context) error

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, a *app.App, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.RateLimit.RequestsPerSecond <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.StaticMaxAge == 0 {
		opts.StaticMaxAge = 3600
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		app:       a,
		templates: t,
		logger:    opts.Logger.WithComponent(log.ComponentHTTP),
		ready:     opts.Ready,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		tracer:    trace.NewMiddleware(),
		detector:  security.NewDetector(),
	}

	r := mux.NewRouter()

	// Static assets (served from embedded FS)
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, err
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	r.PathPrefix("/static/").Handler(security.StaticAssetMiddleware(opts.StaticMaxAge)(static))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/ui/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/ui/form", s.handleOpenForm).Methods(http.MethodGet)
	r.HandleFunc("/ui/form/cancel", s.handleCancelForm).Methods(http.MethodPost)

	r.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	r.HandleFunc("/expenses/digest", s.handleDigest).Methods(http.MethodGet)
	r.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete, http.MethodPost)

	r.HandleFunc("/api/summary", s.handleAPISummary).Methods(http.MethodGet)
	r.HandleFunc("/api/categories", s.handleAPICategories).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("Not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	r.Use(
		log.Middleware(s.logger),
		s.tracer.Middleware,
		log.AccessLog(s.detector.ExtractClientIP),
		headers.Middleware,
		s.detector.Middleware,
		s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited),
	)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "1").
		TriggerErrorNotification("Too many requests, slow down").
		BodyHTML(`<div class="error">Too many requests</div>`).
		Write(w)
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
