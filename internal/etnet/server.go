// Package etnet implements the raw-TCP protocol server: one accept task
// per listener, one worker per connected client, dispatching decoded
// wire commands into internal/system, internal/station and
// internal/eventlist (spec.md §4.7). Grounded on the teacher's
// infrastructure/server/server.go accept-loop shape, generalized from
// HTTP listen-and-serve to a raw framed TCP accept loop, and on its
// RateLimitConfig, reimplemented here against golang.org/x/time/rate
// directly on Accept since the teacher's HTTP middleware was dropped
// along with net/http.
package etnet

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/system"
)

// Config controls the listener's accept behavior.
type Config struct {
	Addr                 string
	ReadTimeout          time.Duration
	ConnectionsPerSecond int
	Burst                int
	RateLimitEnabled     bool
	ControlLen           int
}

// Server is the raw-TCP protocol server.
type Server struct {
	cfg Config
	sys *system.System
	log *logging.Logger
	m   *metrics.Metrics

	limiter *rate.Limiter
}

// New constructs a protocol server bound to sys.
func New(cfg Config, sys *system.System, log *logging.Logger, m *metrics.Metrics) *Server {
	s := &Server{cfg: cfg, sys: sys, log: log, m: m}
	if cfg.RateLimitEnabled {
		cps := cfg.ConnectionsPerSecond
		if cps <= 0 {
			cps = 200
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 50
		}
		s.limiter = rate.NewLimiter(rate.Limit(cps), burst)
	}
	return s
}

// Serve runs the accept loop until ctx is canceled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("protocol server listening", zap.String("addr", s.cfg.Addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if s.limiter != nil && !s.limiter.Allow() {
			conn.Close()
			continue
		}

		if s.m != nil {
			s.m.IncConnections()
		}

		connID := uuid.NewString()
		worker := &clientWorker{
			conn:        conn,
			connID:      connID,
			sys:         s.sys,
			log:         s.log.WithConn(conn.RemoteAddr().String()).WithFields(zap.String("conn_id", connID)),
			m:           s.m,
			readTimeout: s.cfg.ReadTimeout,
			controlLen:  s.cfg.ControlLen,
		}
		go worker.run(ctx)
	}
}
