package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coda-et/etransport/internal/adminhttp"
	"github.com/coda-et/etransport/internal/conductor"
	"github.com/coda-et/etransport/internal/config"
	"github.com/coda-et/etransport/internal/etnet"
	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/system"
)

func main() {
	cfg := config.LoadOrDefault()

	logCfg := logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development, OutputPaths: []string{"stdout"}}
	logr, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("starting etd",
		zap.String("server_addr", cfg.Server.Host+":"+cfg.Server.Port),
		zap.String("admin_addr", cfg.Admin.Host+":"+cfg.Admin.Port),
		zap.Int("num_events", cfg.Event.NumEvents),
	)

	m := metrics.New()

	sys := system.New(system.Config{
		NumEvents:      cfg.Event.NumEvents,
		EventSize:      cfg.Event.EventSize,
		ControlLen:     cfg.Event.ControlLen,
		Groups:         cfg.Event.Groups,
		MaxStations:    cfg.Event.MaxStations,
		MaxAttachments: cfg.Event.MaxAttachments,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// A conductor manager keeps every non-terminal station supplied with
	// a running conductor for as long as that station exists — whether
	// it was declared in the boot-time topology or created later over
	// the wire via STATION_CREATE_AT (spec.md §4.2, §4.6). Registering
	// the hooks before loadTopology means topology-declared stations
	// pick up their conductor through the same path as a runtime create.
	condMgr := conductor.NewManager(groupCtx, sys, logr, m)
	sys.SetStationHooks(condMgr.Start, condMgr.Stop)

	if err := loadTopology(sys); err != nil {
		logr.Fatal("failed to load topology", zap.Error(err))
	}

	netServer := etnet.New(etnet.Config{
		Addr:                 fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:          time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		ConnectionsPerSecond: cfg.RateLimit.ConnectionsPerSecond,
		Burst:                cfg.RateLimit.Burst,
		RateLimitEnabled:     cfg.RateLimit.Enabled,
		ControlLen:           cfg.Event.ControlLen,
	}, sys, logr, m)
	group.Go(func() error { return netServer.Serve(groupCtx) })

	if cfg.Admin.Enabled {
		adminServer := adminhttp.New(adminhttp.Config{
			Addr:                 fmt.Sprintf("%s:%s", cfg.Admin.Host, cfg.Admin.Port),
			RateLimitEnabled:     cfg.RateLimit.Enabled,
			ConnectionsPerSecond: cfg.RateLimit.ConnectionsPerSecond,
			Burst:                cfg.RateLimit.Burst,
		}, sys, m, logr)
		group.Go(func() error { return adminServer.Serve(groupCtx) })
	}

	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		logr.Error("etd exited with error", zap.Error(err))
	}

	condMgr.Shutdown()

	if err := sys.Close(); err != nil {
		logr.Warn("errors while closing registry", zap.Error(err))
	}
	logr.Info("etd shut down")
}

// loadTopology seeds the initial station ring from ET_TOPOLOGY_FILE (a
// single file) or, if that is unset, from every file ET_TOPOLOGY_GLOB
// matches under ET_TOPOLOGY_ROOT (default "."), applied in discovery
// order so a group head's file can precede its members' files.
// Allocating the underlying event pool remains an external concern
// (spec.md Out-of-scope); this only wires declared stations into the
// already-seeded registry.
func loadTopology(sys *system.System) error {
	if path := os.Getenv("ET_TOPOLOGY_FILE"); path != "" {
		return loadTopologyFile(sys, path)
	}

	pattern := os.Getenv("ET_TOPOLOGY_GLOB")
	if pattern == "" {
		return nil
	}
	root := os.Getenv("ET_TOPOLOGY_ROOT")
	if root == "" {
		root = "."
	}
	paths, err := config.DiscoverTopologyFiles(root, pattern)
	if err != nil {
		return fmt.Errorf("discover topology files: %w", err)
	}
	for _, path := range paths {
		if err := loadTopologyFile(sys, path); err != nil {
			return err
		}
	}
	return nil
}

// loadTopologyFile parses one topology file and installs every station it
// declares, resolving a named parallel_group to its head station's id
// (ParNewHead, when a parallel member names no group, starts one instead).
func loadTopologyFile(sys *system.System, path string) error {
	topo, err := config.LoadTopologyFile(path)
	if err != nil {
		return err
	}
	for _, def := range topo.Stations {
		parallelHead := def.ParallelPosition
		switch {
		case def.ParallelGroup != "":
			head, ok := sys.StationByName(def.ParallelGroup)
			if !ok {
				return fmt.Errorf("create station %q: parallel_group %q not found (declare group heads first)", def.Name, def.ParallelGroup)
			}
			parallelHead = head.ID
		case def.Flow == "parallel" && parallelHead == 0:
			parallelHead = system.ParNewHead
		}
		if _, err := sys.CreateStation(def.Name, def.ToStationConfig(), def.Position, parallelHead); err != nil {
			return fmt.Errorf("create station %q from topology: %w", def.Name, err)
		}
	}
	return nil
}
