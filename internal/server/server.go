package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"sugarwatch/internal/config"
	"sugarwatch/internal/etl"
	"sugarwatch/internal/service"
	"sugarwatch/internal/storage"
)

// Orchestrator is the trigger/status surface the HTTP layer consumes.
type Orchestrator interface {
	RunOnce(ctx context.Context) (etl.RunResult, error)
	Status() service.ScheduleStatus
}

// Server hosts the query and trigger API.
type Server struct {
	cfg    config.ServerConfig
	store  storage.DailyReader
	orch   Orchestrator
	ping   func(ctx context.Context) error
	logger zerolog.Logger
	srv    *http.Server
}

// New constructs the HTTP server. ping may be nil when no database is wired.
func New(cfg config.ServerConfig, store storage.DailyReader, orch Orchestrator, ping func(ctx context.Context) error, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		orch:   orch,
		ping:   ping,
		logger: logger.With().Str("component", "http_server").Logger(),
	}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
