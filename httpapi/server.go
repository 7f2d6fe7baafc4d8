package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/internal/httpx"
	"github.com/MrEthical07/nickauth/middleware"
)

// Config controls how the API is mounted.
type Config struct {
	// BasePath prefixes every /auth and /users route. Defaults to "/api".
	BasePath string
	// Environment is reported by /health. "production" turns on Secure
	// cookies and hides internal error details.
	Environment string
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// MetricsHandler is mounted at GET /metrics when set.
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

func (c Config) production() bool {
	return c.Environment == "production"
}

// Server holds the handlers. Mount it through Handler.
type Server struct {
	engine   *nickauth.Engine
	cfg      Config
	logger   *zap.Logger
	cookies  *CookieHelper
	errors   httpx.ErrorWriter
	validate *validator.Validate
	started  time.Time
}

func New(engine *nickauth.Engine, cfg Config) *Server {
	if cfg.BasePath == "" {
		cfg.BasePath = "/api"
	}
	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	if cfg.BasePath == "/" {
		cfg.BasePath = ""
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	return &Server{
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		cookies:  NewCookieHelper(cfg.production(), engine.Config().JWT.RefreshTTL),
		errors:   httpx.ErrorWriter{Debug: !cfg.production(), Logger: logger},
		validate: newValidator(),
		started:  time.Now(),
	}
}

// Handler returns the routed handler wrapped in the request middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return chain(mux,
		s.requestID,
		s.clientInfo,
		s.accessLog,
		s.recoverer,
	)
}

func (s *Server) routes(mux *http.ServeMux) {
	base := s.cfg.BasePath
	auth := middleware.RequireAuth(s.engine, middleware.WithErrorWriter(s.errors))
	admin := func(h http.HandlerFunc) http.Handler {
		return auth(middleware.RequireAdmin(middleware.WithErrorWriter(s.errors))(h))
	}
	ownerOrAdmin := func(h http.HandlerFunc) http.Handler {
		gate := middleware.RequireOwnerOrAdmin(func(r *http.Request) string { return r.PathValue("id") },
			middleware.WithErrorWriter(s.errors))
		return auth(gate(h))
	}

	mux.HandleFunc("POST "+base+"/auth/check", s.checkUser)
	mux.HandleFunc("POST "+base+"/auth/login", s.login)
	mux.HandleFunc("POST "+base+"/auth/register", s.register)
	mux.HandleFunc("POST "+base+"/auth/refresh", s.refresh)
	mux.Handle("POST "+base+"/auth/logout", auth(http.HandlerFunc(s.logout)))
	mux.HandleFunc("POST "+base+"/auth/forgot-password", s.forgotPassword)
	mux.HandleFunc("POST "+base+"/auth/reset-password", s.resetPassword)
	mux.Handle("GET "+base+"/auth/me", auth(http.HandlerFunc(s.me)))

	mux.Handle("GET "+base+"/users", admin(s.listUsers))
	mux.Handle("GET "+base+"/users/stats", admin(s.userStats))
	mux.Handle("GET "+base+"/users/{id}", ownerOrAdmin(s.getUser))
	mux.Handle("PATCH "+base+"/users/{id}", admin(s.updateUser))
	mux.Handle("POST "+base+"/users/{id}/unlock", admin(s.unlockUser))
	mux.Handle("POST "+base+"/users/{id}/revoke-sessions", admin(s.revokeSessions))
	mux.Handle("DELETE "+base+"/users/{id}", admin(s.deleteUser))

	mux.HandleFunc("GET /health", s.health)
	if s.cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.cfg.MetricsHandler)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.errors.Write(w, r, nickauth.ErrNotFound.WithMessage("Route "+r.Method+" "+r.URL.Path+" not found"))
	})
}
