// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harmonia-fm/harmonia/internal/config"
	"github.com/harmonia-fm/harmonia/internal/logging"
)

// Server wraps http.Server with a context-driven lifecycle suitable for
// supervision.
type Server struct {
	srv *http.Server
}

// NewServer creates the HTTP server. Read/write timeouts derive from the
// configured request timeout; idle is longer so keep-alive stays useful.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       timeout,
			// Websocket connections outlive the write timeout; gorilla
			// manages its own deadlines after the hijack.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// RunWithContext serves until the context is canceled, then shuts down
// gracefully with a bounded drain.
func (s *Server) RunWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http server shutdown incomplete, closing")
		_ = s.srv.Close()
	}
	logging.Info().Msg("http server stopped")
	return ctx.Err()
}
