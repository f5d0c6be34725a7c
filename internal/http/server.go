// Package http serves the raseed pages: it resolves the device, loads its
// session, applies the route guard and renders the templates, calling the
// receipt backend on the user's behalf.
package http

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"raseed/internal/api"
	"raseed/internal/assistant"
	"raseed/internal/auth"
	"raseed/internal/cache"
	"raseed/internal/core"
	"raseed/internal/fetch"
	"raseed/internal/guard"
	"raseed/internal/log"
	"raseed/internal/metrics"
	"raseed/internal/middleware/ratelimit"
	"raseed/internal/middleware/security"
	"raseed/internal/middleware/trace"
	"raseed/internal/notify"
	"raseed/internal/session"
	"raseed/internal/upload"
	appweb "raseed/web"
)

// Backend is the part of the receipt API the pages read and write directly.
// Uploads, saves and questions go through their own flows.
type Backend interface {
	ListReceipts(ctx context.Context, f api.ReceiptFilter) ([]core.Receipt, error)
	GetReceipt(ctx context.Context, userID, id string) (core.Receipt, error)
	Dashboard(ctx context.Context, userID string, timeRange core.TimeRange, category string) (core.Dashboard, error)
	AddManualReceipt(ctx context.Context, userID string, m api.ManualReceipt) (api.Extraction, error)
	GoogleLogin(ctx context.Context, credential string, deviceTokens []string) (core.UserProfile, error)
	Logout(ctx context.Context) error
}

// Pinger reports whether a dependency is reachable, for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Google and Limiter may be nil.
type Deps struct {
	Logger    *log.Logger
	Backend   Backend
	Sessions  *session.Manager
	Devices   *auth.Devices
	Google    *auth.Google
	Uploads   *upload.Registry
	Assistant *assistant.Assistant
	Hub       *notify.Hub
	Metrics   *metrics.Prom
	Limiter   *ratelimit.Limiter
	Detector  *security.Detector
	Headers   security.HeadersConfig
	Store     Pinger
	Caches    *cache.Manager
	// Query controls caching of backend reads.
	Query fetch.QueryOptions
	// MaxUploadBytes bounds receipt files; 10 MiB when zero.
	MaxUploadBytes int64
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	render   *renderer
	queries  *queries
	started  time.Time
	maxBytes int64
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the templates and builds the routes and middleware chain.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = log.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Detector == nil {
		d.Detector = security.NewDetector(d.Logger)
	}
	if d.Headers.CSP == "" {
		d.Headers = security.DefaultHeadersConfig()
	}
	if d.Query.StaleTime == 0 {
		d.Query = fetch.DefaultQueryOptions()
	}
	if d.Query.Observer == nil {
		d.Query.Observer = d.Metrics
	}

	templates, err := fs.Sub(appweb.TemplatesFS, "templates")
	if err != nil {
		return nil, err
	}
	rd, err := newRenderer(templates, d.Logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:     d,
		logger:   d.Logger.WithComponent(log.ComponentHTTP),
		render:   rd,
		queries:  newQueries(d.Backend, d.Query),
		started:  time.Now(),
		maxBytes: d.MaxUploadBytes,
		now:      time.Now,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = 10 << 20
	}
	if d.Caches != nil {
		for _, c := range s.queries.cleaners() {
			d.Caches.Register(c)
		}
	}

	s.Addr = addr
	s.Handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	// Public pages still pass the guard: a signed-in user is sent home.
	mux.Handle("GET /login", s.page(s.handleLogin))
	mux.Handle("POST /login", s.limited(s.page(s.handleCredentialLogin)))
	mux.Handle("GET /register", s.page(s.handleLoginAlias))
	mux.Handle("GET /forgot-password", s.page(s.handleLoginAlias))
	mux.Handle("GET /auth/google", s.withSession(http.HandlerFunc(s.handleGoogleBegin)))
	mux.Handle("GET /auth/google/callback", s.withSession(http.HandlerFunc(s.handleGoogleCallback)))
	mux.Handle("POST /logout", s.page(s.handleLogout))

	mux.Handle("GET /{$}", s.page(s.handleDashboard))
	mux.Handle("GET /analytics", s.page(s.handleAnalytics))
	mux.Handle("GET /receipts", s.page(s.handleReceipts))
	mux.Handle("GET /receipts/{id}", s.page(s.handleReceipt))
	mux.Handle("GET /profile", s.page(s.handleProfile))

	mux.Handle("GET /upload", s.page(s.handleUploadPage))
	mux.Handle("GET /upload/status", s.page(s.handleUploadStatus))
	mux.Handle("POST /upload/select", s.limited(s.page(s.handleUploadSelect)))
	mux.Handle("POST /upload/items/{i}", s.page(s.handleItemEdit))
	mux.Handle("DELETE /upload/items/{i}", s.page(s.handleItemDelete))
	mux.Handle("POST /upload/details", s.page(s.handleUploadDetails))
	mux.Handle("POST /upload/save", s.page(s.handleUploadSave))
	mux.Handle("POST /upload/cancel", s.page(s.handleUploadCancel))

	mux.Handle("GET /add-receipt", s.page(s.handleAddReceiptPage))
	mux.Handle("POST /add-receipt", s.page(s.handleAddReceipt))

	mux.Handle("GET /assistant", s.page(s.handleAssistantPage))
	mux.Handle("POST /assistant/ask", s.limited(s.page(s.handleAssistantAsk)))
	mux.Handle("GET /assistant/history", s.page(s.handleAssistantHistory))

	if s.deps.Hub != nil {
		mux.Handle("GET /events", s.page(notify.NewStreamHandler(s.deps.Hub, signedInUser).ServeHTTP))
	}

	mux.Handle("/", s.withSession(http.HandlerFunc(s.handleNotFound)))

	// Outermost first: trace span, request ID, logger, access log,
	// security, then per-route metrics right around the mux.
	var h http.Handler = s.deps.Metrics.Middleware(mux)
	h = s.deps.Detector.Middleware(h)
	h = security.NewHeadersMiddleware(s.deps.Headers).Middleware(h)
	h = log.AccessLog(s.deps.Detector.ClientIP)(h)
	h = trace.LoggerMiddleware(h)
	h = log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	h = log.Middleware(s.deps.Logger)(h)
	h = trace.RequestID(h)
	return trace.Handler(h, "raseed")
}

// page wraps a handler with the device session and the route guard.
func (s *Server) page(h http.HandlerFunc) http.Handler {
	return security.NoStore(s.withSession(guard.Middleware(http.HandlerFunc(s.handleLoading))(h)))
}

// limited throttles expensive endpoints per client IP.
func (s *Server) limited(h http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return h
	}
	return s.deps.Limiter.Middleware(s.deps.Detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please wait a moment and try again.").Write(w)
	})(h)
}

// withSession resolves the device cookie and puts the device's session store
// into the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return s.deps.Devices.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID, _ := auth.DeviceFromContext(r.Context())
		store := s.deps.Sessions.Open(r.Context(), deviceID)
		ctx := session.NewContext(r.Context(), store)
		if u := store.User(); u != nil {
			ctx = log.IntoContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.Email))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// Shutdown ends the notification streams and then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.deps.Hub != nil {
			s.deps.Hub.Close()
		}
		err = s.Server.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			err = s.Server.Close()
		}
	})
	return err
}

// signedInUser identifies the subscriber of the notification stream.
func signedInUser(r *http.Request) (string, bool) {
	u := currentUser(r)
	if u == nil {
		return "", false
	}
	return u.Email, true
}

func currentUser(r *http.Request) *core.UserProfile {
	if st, ok := session.FromContext(r.Context()); ok {
		return st.User()
	}
	return nil
}

func deviceID(r *http.Request) string {
	id, _ := auth.DeviceFromContext(r.Context())
	return id
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
