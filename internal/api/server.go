// Package api exposes the church site over HTTP: the public pages and
// contact form, the admin panel API and the background AI editing jobs.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"churchsite/internal/captcha"
	"churchsite/internal/config"
	"churchsite/internal/models"
	"churchsite/internal/ratelimit"
	"churchsite/internal/registry"
	"churchsite/internal/session"
	"churchsite/internal/site"
	"churchsite/internal/store"
	"churchsite/internal/telemetry"
)

// Submitter starts AI jobs in the background.
type Submitter interface {
	Submit(ctx context.Context, req models.AIRequest) (string, error)
}

// Deps are the components the HTTP layer is built on. Limiter may be nil to
// disable rate limiting.
type Deps struct {
	Store      store.Store
	Jobs       registry.Registry
	Dispatcher Submitter
	Sessions   *session.Manager
	Captchas   *captcha.Store
	Pages      *site.Pages
	Uploads    *site.Uploads
	Limiter    *ratelimit.TokenBucket
	Logger     *slog.Logger
}

// Server wires HTTP handlers for the site.
type Server struct {
	cfg        config.Config
	store      store.Store
	jobs       registry.Registry
	dispatcher Submitter
	sessions   *session.Manager
	captchas   *captcha.Store
	pages      *site.Pages
	uploads    *site.Uploads
	limiter    *ratelimit.TokenBucket
	logger     *slog.Logger
}

// New constructs the API server.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		store:      deps.Store,
		jobs:       deps.Jobs,
		dispatcher: deps.Dispatcher,
		sessions:   deps.Sessions,
		captchas:   deps.Captchas,
		pages:      deps.Pages,
		uploads:    deps.Uploads,
		limiter:    deps.Limiter,
		logger:     logger.With("component", "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/api/ask-ai", s.handleAskAI)
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/api/captcha", s.handleCaptcha)
		r.Post("/api/contact", s.handleContact)
	})
	r.Get("/api/ai-status/{id}", s.handleAIStatus)
	r.Get("/api/ai/history", s.handleAIHistory)
	r.Put("/api/ai/history/{id}", s.handleLinkCommit)

	r.Route("/api/admin", func(r chi.Router) {
		r.With(s.rateLimit).Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/verify", s.handleVerify)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/messages", s.handleListMessages)
			r.Put("/messages/{id}", s.handleUpdateMessage)
			r.Delete("/messages/{id}", s.handleDeleteMessage)
			r.Get("/files", s.handleListFiles)
			r.Delete("/files/*", s.handleDeleteFile)
			r.Post("/upload", s.handleUpload)
			r.Post("/save-page", s.handleSavePage)
		})
	})

	s.mountStatic(r)
	return r
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return false
	}
	return s.sessions.Touch(c.Value)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit spends one token per request from the caller's bucket. Redis
// errors let the request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, _, err := s.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			s.logger.Warn("rate limiter unavailable", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests. Please try again later."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

var okResponse = successResponse{Success: true}

// decodeBody reads a JSON body into dst. A missing or malformed body leaves
// dst at its zero value.
func decodeBody(r *http.Request, dst any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(dst)
}

// pageParams reads page and limit, falling back to 1 and defLimit for
// missing or non-positive values.
func pageParams(r *http.Request, defLimit int) (page, limit int) {
	page = positiveInt(r.URL.Query().Get("page"), 1)
	limit = positiveInt(r.URL.Query().Get("limit"), defLimit)
	return page, limit
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
