// Package server provides the HTTP API for shopassist.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/auth"
	"github.com/hyperjump/shopassist/internal/config"
	"github.com/hyperjump/shopassist/internal/metrics"
	"github.com/hyperjump/shopassist/internal/notify"
	"github.com/hyperjump/shopassist/internal/places"
	"github.com/hyperjump/shopassist/internal/recommend"
	"github.com/hyperjump/shopassist/internal/storage"
)

// JobQueue accepts recommendation jobs.
type JobQueue interface {
	Enqueue(job recommend.Job) error
}

// Notifier sends a payload to registered devices.
type Notifier interface {
	Send(ctx context.Context, payload notify.Payload) error
}

// IndexCounter reports the number of indexed documents.
type IndexCounter interface {
	Count(ctx context.Context) (uint64, error)
}

// Deps holds the server dependencies.
type Deps struct {
	Engine     *places.Engine
	Maintainer *places.Maintainer
	Index      IndexCounter
	Store      storage.Storage
	Auth       *auth.Authenticator
	Jobs       JobQueue
	Notifier   Notifier
	Config     *config.Config
	Logger     *zap.Logger
}

// Server is the HTTP server for the shopassist API.
type Server struct {
	engine     *places.Engine
	maintainer *places.Maintainer
	index      IndexCounter
	store      storage.Storage
	auth       *auth.Authenticator
	jobs       JobQueue
	notifier   Notifier
	config     *config.Config
	limits     places.Limits
	limiter    *RateLimiter
	logger     *zap.Logger
	now        func() time.Time
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:     d.Engine,
		maintainer: d.Maintainer,
		index:      d.Index,
		store:      d.Store,
		auth:       d.Auth,
		jobs:       d.Jobs,
		notifier:   d.Notifier,
		config:     d.Config,
		limits:     places.LimitsFrom(d.Config),
		logger:     logger,
		now:        time.Now,
	}
	rl := d.Config.Server.RateLimit
	if rl.RequestsPerSecond > 0 {
		s.limiter = NewRateLimiter(rl.RequestsPerSecond, rl.Burst, logger)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))
	r.Use(metrics.InstrumentHandler)
	r.Use(s.auth.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	admin := auth.RequireAdmin
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/token", s.handleToken)

		r.Route("/places", func(r chi.Router) {
			r.With(s.rateLimit).Get("/nearby", s.handleNearby)
			r.With(admin).Get("/", s.handleListPlaces)
			r.With(admin).Post("/", s.handleCreatePlace)
			r.With(admin).Get("/{id}", s.handleGetPlace)
			r.With(admin).Put("/{id}", s.handleUpdatePlace)
			r.With(admin).Delete("/{id}", s.handleDeletePlace)
		})

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", s.handleListOffers)
			r.With(admin).Post("/", s.handleCreateOffer)
			r.With(admin).Get("/{id}", s.handleGetOffer)
			r.With(admin).Put("/{id}", s.handleUpdateOffer)
			r.With(admin).Delete("/{id}", s.handleDeleteOffer)
		})

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", s.handleListRecommendations)
			r.With(admin).Post("/", s.handleInsertRecommendation)
			r.With(admin).Put("/", s.handleUpdateRecommendation)
			r.With(admin).Delete("/{id}", s.handleDeleteRecommendation)
		})

		r.Route("/registrations", func(r chi.Router) {
			r.With(admin).Get("/", s.handleListRegistrations)
			r.With(auth.RequireAuthenticated).Post("/{regId}", s.handleRegister)
			r.With(admin).Delete("/{regId}", s.handleUnregister)
		})

		r.Route("/checkins", func(r chi.Router) {
			r.With(auth.RequireAuthenticated).Post("/", s.handleCheckIn)
			r.With(admin).Get("/", s.handleListCheckIns)
			r.With(admin).Get("/{id}", s.handleGetCheckIn)
			r.With(admin).Put("/{id}", s.handleUpdateCheckIn)
			r.With(admin).Delete("/{id}", s.handleDeleteCheckIn)
		})

		r.With(admin).Post("/messaging", s.handleSendMessage)
		r.With(admin).Post("/maintenance/rebuild-index", s.handleRebuildIndex)
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Handler(next)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
