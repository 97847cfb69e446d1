package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/config"
	"github.com/bizwatch/bizrelay/internal/metrics"
	"github.com/bizwatch/bizrelay/internal/relay"
	"github.com/bizwatch/bizrelay/internal/storage"
)

type Server struct {
	cfg     config.ServerConfig
	store   storage.Storage
	service *relay.Service
	monitor relay.SubjectMonitor
	router  *chi.Mux
	log     zerolog.Logger
	http    *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, service *relay.Service, monitor relay.SubjectMonitor, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		service: service,
		monitor: monitor,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	webhookHandler := NewWebhookHandler(s.service)
	tenantHandler := NewTenantHandler(s.store)
	recordHandler := NewRecordHandler(s.store, s.monitor, s.log)
	epHandler := NewEndpointHandler(s.store)
	evtHandler := NewEventHandler(s.store)
	statsHandler := NewStatsHandler(s.store)

	// Health and metrics — no auth
	r.Get("/health", statsHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Inbound provider webhooks authenticate with signatures, not API keys
	r.Post("/webhooks/{provider}", webhookHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		// Tenant management — admin routes
		r.Post("/tenants", tenantHandler.Create)
		r.Get("/tenants", tenantHandler.List)
		r.Get("/tenants/{id}", tenantHandler.Get)
		r.Delete("/tenants/{id}", tenantHandler.Delete)
		r.Post("/tenants/{id}/rotate-key", tenantHandler.RotateKey)

		// Authenticated tenant routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.store))

			// Monitored records
			r.Post("/records", recordHandler.Create)
			r.Get("/records", recordHandler.List)
			r.Get("/records/{id}", recordHandler.Get)
			r.Put("/records/{id}", recordHandler.Update)
			r.Delete("/records/{id}", recordHandler.Delete)
			r.Post("/records/{id}/check", recordHandler.Check)

			// Endpoints
			r.Post("/endpoints", epHandler.Create)
			r.Get("/endpoints", epHandler.List)
			r.Get("/endpoints/{id}", epHandler.Get)
			r.Put("/endpoints/{id}", epHandler.Update)
			r.Delete("/endpoints/{id}", epHandler.Delete)
			r.Patch("/endpoints/{id}/toggle", epHandler.Toggle)
			r.Get("/endpoints/{id}/attempts", epHandler.ListAttempts)

			// Inbound events
			r.Get("/events", evtHandler.List)
			r.Get("/events/{id}", evtHandler.Get)

			// Stats
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
