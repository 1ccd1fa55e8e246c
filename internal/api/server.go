package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/config"
)

type Server struct {
	*http.Server
	logger zerolog.Logger
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger zerolog.Logger) Server {
	return Server{
		Server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Start blocks serving requests and reports why it stopped on errCh.
func (s Server) Start(errCh chan<- error) {
	s.logger.Info().Str("addr", s.Addr).Msg("server started")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
		return
	}
	errCh <- nil
}

func (s Server) ShutdownGracefully(timeout time.Duration) {
	s.logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("server shutdown failed")
		return
	}
	s.logger.Info().Msg("server shut down")
}
