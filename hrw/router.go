// Package hrw implements the load-aware rendezvous (highest-random-weight)
// router: component C of the sharding layer. For a key, it scores every
// live server with a deterministic 32-bit hash and picks the
// highest-scoring server that isn't currently overloaded, falling back to
// plain rendezvous hashing when every candidate is loaded (spec §4.C).
package hrw

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"

	"github.com/kvshard/memshard/core"
	"github.com/kvshard/memshard/stats"
)

// LoadManager is the subset of stats.Manager the router depends on,
// narrowed to ease testing with fakes.
type LoadManager interface {
	AddServer(id string, client core.ServerHandle)
	RemoveServer(id string)
	Snapshot() *stats.Snapshot
}

// Router holds the node id-set and forwards membership changes to the
// load manager (spec §4.C). It owns no independent resources: the
// manager owns the server handles.
type Router struct {
	mgr LoadManager

	mu  sync.RWMutex
	ids map[string]struct{}
}

// New constructs a Router bound to mgr. mgr is typically a *stats.Manager
// already running its background refresher.
func New(mgr LoadManager) *Router {
	return &Router{mgr: mgr, ids: make(map[string]struct{})}
}

// AddNode adds id to the id-set and forwards to the load manager.
func (r *Router) AddNode(id string, client core.ServerHandle) {
	r.mu.Lock()
	r.ids[id] = struct{}{}
	r.mu.Unlock()
	r.mgr.AddServer(id, client)
}

// RemoveNode removes id from the id-set and forwards to the load manager.
func (r *Router) RemoveNode(id string) {
	r.mu.Lock()
	delete(r.ids, id)
	r.mu.Unlock()
	r.mgr.RemoveServer(id)
}

// ErrNoServers is returned by GetNode when the id-set is empty — the
// router's only internal error (spec §4.C).
var ErrNoServers = errors.New("hrw: no servers")

type candidate struct {
	id    string
	score uint32
}

// score computes murmur3_32(id + "-" + key) as an unsigned 32-bit
// integer, deterministic across calls for a fixed (id, key) pair.
func score(id, key string) uint32 {
	buf := make([]byte, 0, len(id)+1+len(key))
	buf = append(buf, id...)
	buf = append(buf, '-')
	buf = append(buf, key...)
	return murmur3.Sum32(buf)
}

// GetNode returns the chosen server id for key, or ErrNoServers if the
// id-set is empty.
//
// Every id is scored, candidates are sorted by descending score (ties
// broken by lexicographic max id, for determinism), and the first whose
// instantaneous load does not exceed its adaptive threshold
// (avg + 2*stddev) wins; an id missing from
// the snapshot is treated as not loaded (bootstrap grace). If none
// qualify, the plain rendezvous winner — the highest score overall — is
// returned.
func (r *Router) GetNode(key string) (string, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	if len(ids) == 0 {
		return "", ErrNoServers
	}

	snap := r.mgr.Snapshot()

	cands := make([]candidate, len(ids))
	for i, id := range ids {
		cands[i] = candidate{id: id, score: score(id, key)}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id > cands[j].id // lexicographic-max tie-break
	})

	winnerByScore := cands[0].id
	for _, c := range cands {
		if !isLoaded(snap, c.id) {
			return c.id, nil
		}
	}
	return winnerByScore, nil
}

// isLoaded reports whether id's instantaneous load is above its adaptive
// threshold; a load equal to the threshold (e.g. an idle server with a
// zero-variance history) is not loaded. An id absent from the snapshot
// (bootstrap grace) is treated as not loaded.
func isLoaded(snap *stats.Snapshot, id string) bool {
	inst, ok := snap.InstLoad[id]
	if !ok {
		return false
	}
	st := snap.Stats[id] // zero value {0,0} if absent
	threshold := st.Average + 2*st.Stddev
	return inst > threshold
}
