package conductor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/system"
)

// Manager keeps exactly one supervised conductor goroutine running per
// non-terminal station for as long as that station exists, whether it
// was declared in the boot-time topology or created later over the wire
// via STATION_CREATE_AT (spec.md §4.2 "each non-terminal station owns a
// conductor", §4.6 dynamic creation). Wire it to a system.System via
// System.SetStationHooks(mgr.Start, mgr.Stop) so station lifecycle
// drives conductor lifecycle directly, instead of enumerating the ring
// once at process start.
type Manager struct {
	ctx context.Context
	sys *system.System
	log *logging.Logger
	m   *metrics.Metrics

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager returns a Manager whose conductors are children of ctx:
// canceling ctx (process shutdown) stops every conductor at once.
func NewManager(ctx context.Context, sys *system.System, log *logging.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		ctx:     ctx,
		sys:     sys,
		log:     log,
		m:       m,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Start launches a supervised conductor for st, unless one is already
// running for that station id. Safe to call for GRAND_CENTRAL; it is a
// no-op, since GRAND_CENTRAL is a terminal sink with no output list to
// drain.
func (mgr *Manager) Start(st *station.Station) {
	if st.ID == station.GrandCentralID {
		return
	}

	mgr.mu.Lock()
	if _, running := mgr.cancels[st.ID]; running {
		mgr.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(mgr.ctx)
	mgr.cancels[st.ID] = cancel
	mgr.mu.Unlock()

	var condMetrics *metrics.Conductor
	if mgr.m != nil {
		condMetrics = mgr.m.ForConductor()
	}
	cond := New(st, mgr.sys, mgr.log, condMetrics)

	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()
		if err := Supervise(ctx, mgr.log, st.Name, cond.Run); err != nil && ctx.Err() == nil {
			mgr.log.Error("conductor exited", zap.String("station", st.Name), zap.Error(err))
		}
	}()
}

// Stop cancels and forgets the conductor for a removed station. It is a
// no-op if no conductor is tracked for id.
func (mgr *Manager) Stop(id int) {
	mgr.mu.Lock()
	cancel, ok := mgr.cancels[id]
	delete(mgr.cancels, id)
	mgr.mu.Unlock()

	if ok {
		cancel()
	}
}

// StartAll launches conductors for every station in stations, covering
// any station that predates hook registration. cmd/etd registers its
// hook before loading the topology and does not call it.
func (mgr *Manager) StartAll(stations []*station.Station) {
	for _, st := range stations {
		mgr.Start(st)
	}
}

// Shutdown cancels every running conductor and waits for them to exit.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	for id, cancel := range mgr.cancels {
		cancel()
		delete(mgr.cancels, id)
	}
	mgr.mu.Unlock()
	mgr.wg.Wait()
}
