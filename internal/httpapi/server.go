// Package httpapi exposes the orchestrator over REST. Thin layer: decode,
// call the publish service, encode. All domain decisions live below it.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"crosspub/internal/eventbus"
	"crosspub/internal/publish"
	logx "crosspub/pkg/logx"
)

type Config struct {
	Addr         string
	JWTSecret    string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Immediate publishes block until the job is terminal.
		c.WriteTimeout = 2 * time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = time.Minute
	}
	return c
}

type Server struct {
	cfg    Config
	log    logx.Logger
	svc    *publish.Service
	events *eventLog
	srv    *http.Server
}

func NewServer(cfg Config, svc *publish.Service, bus eventbus.Bus, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg.withDefaults(), log: log, svc: svc, events: newEventLog(bus, 256)}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.JWTSecret != "" {
			r.Use(jwtAuth(s.cfg.JWTSecret))
		}
		r.Post("/publish", s.handlePublish)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Post("/jobs/{jobID}/resubmit", s.handleResubmit)
		r.Get("/scheduled/{id}", s.handleScheduledStatus)
		r.Delete("/scheduled/{id}", s.handleCancelScheduled)
		r.Get("/posts/{postID}/analytics", s.handleAnalytics)
		r.Get("/platforms", s.handlePlatforms)
		r.Get("/events", s.handleEvents)
	})

	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      r,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.log.Info("http listening", logx.String("addr", s.cfg.Addr), logx.Bool("auth", s.cfg.JWTSecret != ""))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	s.events.close()
	return s.srv.Shutdown(ctx)
}
