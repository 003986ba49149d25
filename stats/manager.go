package stats

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kvshard/memshard/cmn/cos"
	"github.com/kvshard/memshard/core"
	"github.com/kvshard/memshard/nlog"
)

// LoadStat is the published {average, stddev} pair for one server id.
type LoadStat struct {
	Average float64
	Stddev  float64
}

// Snapshot is the read-only pair of maps the load manager publishes for
// routing queries (spec §3 "Snapshot").
type Snapshot struct {
	InstLoad map[string]float64
	Stats    map[string]LoadStat
}

// entry is the roster-owned, mutable per-server state (spec §3 "Server
// entry"). Guarded by Manager.rosterMu.
type entry struct {
	id             string
	client         core.ServerHandle
	cumulativeLoad float64
	lastUptime     float64
	window         *Window
	lastErr        cos.ErrValue
}

// Manager owns the server roster and drives the background refresher.
// Lock discipline (spec §5): rosterMu is always acquired before
// snapshotMu, and the two are never held simultaneously — the refresher
// releases rosterMu before taking snapshotMu to publish.
type Manager struct {
	cfg Config

	rosterMu sync.Mutex
	roster   map[string]*entry

	snapshotMu sync.Mutex
	snapshot   *Snapshot

	limiter *rate.Limiter

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewManager constructs a Manager and launches its background refresher;
// it runs until Stop is called (spec §4.B "On construction a background
// refresher task is launched; it runs until the manager is torn down").
func NewManager(cfg Config) *Manager {
	cfg = cfg.normalized()
	m := &Manager{
		cfg:      cfg,
		roster:   make(map[string]*entry),
		snapshot: &Snapshot{InstLoad: map[string]float64{}, Stats: map[string]LoadStat{}},
		stopCh:   make(chan struct{}),
	}
	if cfg.MaxProbesPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.MaxProbesPerSecond), cfg.MaxConcurrentProbes)
	}
	m.wg.Add(1)
	go m.refreshLoop()
	return m
}

// AddServer installs or replaces a roster entry. The snapshot gains the id
// only after its first successful refresh (bootstrap grace, spec §4.B).
func (m *Manager) AddServer(id string, client core.ServerHandle) {
	m.rosterMu.Lock()
	m.roster[id] = &entry{id: id, client: client, window: NewWindow(m.cfg.WindowSize)}
	m.rosterMu.Unlock()
}

// RemoveServer removes id from the roster and purges it from the
// snapshot. A refresh round concurrently sampling id discards that
// sample on publish (see commitRound). No-op on an unknown id.
func (m *Manager) RemoveServer(id string) {
	m.rosterMu.Lock()
	e, ok := m.roster[id]
	delete(m.roster, id)
	m.rosterMu.Unlock()
	if !ok {
		return
	}
	if err := e.client.Close(); err != nil {
		nlog.Warningln("memshard: close", id, err)
	}

	m.snapshotMu.Lock()
	if _, present := m.snapshot.InstLoad[id]; present {
		next := cloneSnapshot(m.snapshot)
		delete(next.InstLoad, id)
		delete(next.Stats, id)
		m.snapshot = next
	}
	m.snapshotMu.Unlock()
}

// Snapshot returns the whole published pair atomically: load() and
// load_statistics() read off the same Snapshot never straddle two refresh
// rounds for the same id (spec §4.B "Consistency guarantee"). The
// returned maps are never mutated after publish, so callers may range
// over them lock-free (spec §5, §9 "published snapshot vs. live map").
func (m *Manager) Snapshot() *Snapshot {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()
	return m.snapshot
}

// Load returns the current instantaneous-load snapshot.
func (m *Manager) Load() map[string]float64 { return m.Snapshot().InstLoad }

// LoadStatistics returns the current moving-average/stddev snapshot.
func (m *Manager) LoadStatistics() map[string]LoadStat { return m.Snapshot().Stats }

// Stop terminates the background refresher and closes every handle still
// in the roster. Safe to call once; a second call is a no-op.
func (m *Manager) Stop() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()

	m.rosterMu.Lock()
	defer m.rosterMu.Unlock()
	for id, e := range m.roster {
		if err := e.client.Close(); err != nil {
			nlog.Warningln("memshard: close", id, err)
		}
	}
}

////////////////////
// refresh round //
////////////////////

type roundUpdate struct {
	id    string
	load  float64
	stats LoadStat
}

func (m *Manager) refreshLoop() {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.RefreshRate) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runRound()
		}
	}
}

// runRound performs one refresh round: snapshot the roster into a local
// list (dropping rosterMu for the duration of I/O, per spec §5's
// higher-throughput allowance), probe concurrently with bounded
// parallelism and a per-call timeout, then atomically publish the batch.
func (m *Manager) runRound() {
	m.rosterMu.Lock()
	ids := make([]*entry, 0, len(m.roster))
	for _, e := range m.roster {
		ids = append(ids, e)
	}
	m.rosterMu.Unlock()

	if len(ids) == 0 {
		return
	}

	updates := make(chan roundUpdate, len(ids))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(m.cfg.MaxConcurrentProbes)
	for _, e := range ids {
		e := e
		g.Go(func() error {
			if m.limiter != nil {
				if err := m.limiter.Wait(ctx); err != nil {
					return nil //nolint:nilerr // limiter cancellation isn't a probe failure
				}
			}
			m.probeOne(e, updates)
			return nil
		})
	}
	_ = g.Wait()
	close(updates)

	m.commitRound(updates)
}

// probeOne scrapes one server and, on success, updates its roster entry
// in place (window/cumulative/lastUptime are entry-local state touched
// only by the refresher, so no lock is needed here per spec §4.A).
func (m *Manager) probeOne(e *entry, out chan<- roundUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()

	st, err := e.client.Stats(ctx)
	if err != nil {
		// Transient network error: skip this server this round, state
		// preserved (spec §7). Non-fatal errors are never propagated to
		// callers; only logged.
		e.lastErr.Store(err)
		if cos.IsUnreachable(err) {
			nlog.Warningln("memshard: stats probe unreachable:", e.id, err)
		} else {
			nlog.Warningln("memshard: stats probe failed:", e.id, err)
		}
		return
	}
	e.lastErr.Reset()

	elapsed := st.Uptime - e.lastUptime
	if st.Uptime == 0 {
		elapsed = float64(m.cfg.RefreshRate) // bootstrap fallback, spec §4.B step 2
	}
	if elapsed < minElapsed {
		return // zero/negative elapsed: skip update this round (spec §7)
	}

	newCumulative, rate := m.cfg.LoadMetric.compute(st, e.cumulativeLoad, elapsed)
	e.cumulativeLoad = newCumulative
	e.lastUptime += elapsed
	e.window.Add(rate)

	out <- roundUpdate{
		id:   e.id,
		load: rate,
		stats: LoadStat{
			Average: e.window.Average(),
			Stddev:  e.window.Stddev(),
		},
	}
}

// commitRound merges this round's updates into a fresh snapshot and
// publishes it atomically; a routing query never observes a half-applied
// round (spec §5 "Ordering guarantees"). Updates for ids that were
// concurrently removed from the roster are silently dropped.
func (m *Manager) commitRound(updates <-chan roundUpdate) {
	m.rosterMu.Lock()
	stillPresent := make(map[string]bool, len(m.roster))
	for id := range m.roster {
		stillPresent[id] = true
	}
	m.rosterMu.Unlock()

	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()

	next := cloneSnapshot(m.snapshot)
	for u := range updates {
		if !stillPresent[u.id] {
			continue // remove_server raced this sample: discard (spec §9)
		}
		next.InstLoad[u.id] = u.load
		next.Stats[u.id] = u.stats
	}
	m.snapshot = next
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	next := &Snapshot{
		InstLoad: make(map[string]float64, len(s.InstLoad)),
		Stats:    make(map[string]LoadStat, len(s.Stats)),
	}
	for k, v := range s.InstLoad {
		next.InstLoad[k] = v
	}
	for k, v := range s.Stats {
		next.Stats[k] = v
	}
	return next
}

// ErrNoServers is a sentinel for an empty roster. Nothing in this package
// returns it; hrw.Router.GetNode returns its own hrw.ErrNoServers.
var ErrNoServers = errors.New("memshard: no live servers")
