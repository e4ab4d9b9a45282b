package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/calendar-agent/internal/middleware"
	natsclient "github.com/capitalize-ai/calendar-agent/internal/nats"
	"github.com/capitalize-ai/calendar-agent/internal/service"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Sessions  *service.SessionService
	Proposals *service.ProposalService
	NATS      *natsclient.Client
	Checks    map[string]func() bool
	Logger    *logger.Logger

	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// StreamPollInterval defaults to one second.
	StreamPollInterval time.Duration
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	healthHandler := NewHealthHandler(cfg.NATS, cfg.Checks)
	sessionHandler := NewSessionHandler(cfg.Sessions, log)
	proposalHandler := NewProposalHandler(cfg.Proposals, log)
	streamHandler := NewStreamHandler(cfg.Sessions, cfg.StreamPollInterval, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/colors", Colors)
		r.Get("/recurrence-options", RecurrenceOptions)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)

				// Activity
				r.Get("/activity", sessionHandler.Activity)
				r.Get("/activity/stream", streamHandler.Stream)

				// Confirmation of the pending proposal
				r.With(middleware.RequireScope(middleware.ScopeCalendarWrite)).Post("/confirm", proposalHandler.Confirm)
				r.Delete("/confirm", proposalHandler.Cancel)

				// Proposals
				r.Route("/proposals", func(r chi.Router) {
					r.Post("/", proposalHandler.Propose)
					r.Get("/", proposalHandler.List)

					r.Route("/{pid}", func(r chi.Router) {
						r.Get("/", proposalHandler.Get)
						r.Put("/", proposalHandler.Update)
						r.Post("/focus", proposalHandler.Focus)
						r.Post("/blur", proposalHandler.Blur)
						r.Post("/accept", proposalHandler.Accept)
						r.Post("/reject", proposalHandler.Reject)
						r.Get("/ics", proposalHandler.ICS)
					})
				})
			})
		})
	})

	return r
}
