// Package adminhttp implements the read-only admin/observability HTTP
// surface (SPEC_FULL.md Protocol server supplement): Prometheus
// exposition, JSON system/station introspection, and a websocket live
// feed. It supplements but never replaces the raw-TCP wire protocol in
// spec.md §6.1, which remains the system of record for station/event
// operations. Grounded on the teacher's infrastructure/server/server.go
// gin-based HTTP wiring (graceful http.Server shutdown via
// context.Context, gin-contrib/cors middleware).
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/system"
)

// Config controls the admin HTTP listener.
type Config struct {
	Addr                 string
	RateLimitEnabled     bool
	ConnectionsPerSecond int
	Burst                int
}

// Server is the admin HTTP surface.
type Server struct {
	cfg Config
	srv *http.Server
	log *logging.Logger
}

// New builds the admin HTTP surface's router and server.
func New(cfg Config, sys *system.System, m *metrics.Metrics, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	if cfg.RateLimitEnabled {
		r.Use(rateLimitMiddleware(cfg.ConnectionsPerSecond, cfg.Burst))
	}

	registerRoutes(r, sys, m, log)

	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:    cfg.Addr,
			Handler: r,
		},
	}
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully with a bounded deadline.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin HTTP surface listening", zap.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
