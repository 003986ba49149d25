package hrw_test

import (
	"context"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spaolacci/murmur3"

	"github.com/kvshard/memshard/core"
	"github.com/kvshard/memshard/hrw"
	"github.com/kvshard/memshard/stats"
)

// fakeServer is a no-op core.ServerHandle; the router never calls Stats
// or Close on it directly (that's the load manager's job), but AddNode
// forwards it to the fake manager below.
type fakeServer struct{ id string }

func (fakeServer) Stats(context.Context) (core.StatsResult, error) { return core.StatsResult{}, nil }
func (fakeServer) Close() error                                    { return nil }

// fakeManager is a hrw.LoadManager whose Snapshot is whatever the test
// injects directly, decoupling router tests from the real refresher's
// timing.
type fakeManager struct {
	snap *stats.Snapshot
}

func newFakeManager() *fakeManager {
	return &fakeManager{snap: &stats.Snapshot{InstLoad: map[string]float64{}, Stats: map[string]stats.LoadStat{}}}
}

func (f *fakeManager) AddServer(string, core.ServerHandle) {}
func (f *fakeManager) RemoveServer(string)                  {}
func (f *fakeManager) Snapshot() *stats.Snapshot            { return f.snap }

// plainWinner computes the murmur3-scored rendezvous winner directly,
// independent of the router implementation, to pin S1/S2/S3 expectations
// against the spec's hash primitive rather than against the router's own
// output.
func plainWinner(ids []string, key string) string {
	type cand struct {
		id    string
		score uint32
	}
	cands := make([]cand, len(ids))
	for i, id := range ids {
		cands[i] = cand{id: id, score: murmur3.Sum32([]byte(id + "-" + key))}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id > cands[j].id
	})
	return cands[0].id
}

var _ = Describe("Router", func() {
	var (
		mgr *fakeManager
		r   *hrw.Router
	)

	BeforeEach(func() {
		mgr = newFakeManager()
		r = hrw.New(mgr)
		for _, id := range []string{"a", "b", "c"} {
			r.AddNode(id, fakeServer{id: id})
		}
	})

	Describe("empty roster", func() {
		It("fails with ErrNoServers", func() {
			empty := hrw.New(newFakeManager())
			_, err := empty.GetNode("foo")
			Expect(err).To(MatchError(hrw.ErrNoServers))
		})
	})

	// S1 — plain rendezvous fallback: bootstrap snapshot is empty, so
	// every id is treated as not-loaded and the highest-scoring id wins.
	Describe("S1: plain rendezvous fallback under bootstrap grace", func() {
		It("matches the murmur3-pinned plain winner", func() {
			want := plainWinner([]string{"a", "b", "c"}, "foo")
			got, err := r.GetNode("foo")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		})

		It("is deterministic and independent of insertion order", func() {
			mgr2 := newFakeManager()
			r2 := hrw.New(mgr2)
			for _, id := range []string{"c", "a", "b"} {
				r2.AddNode(id, fakeServer{id: id})
			}
			got1, _ := r.GetNode("foo")
			got2, _ := r2.GetNode("foo")
			Expect(got1).To(Equal(got2))
		})
	})

	// S2 — load avoidance: "a" is loaded, so any key whose plain winner
	// is "a" must route to whichever of b/c scores higher for that key.
	Describe("S2: load avoidance", func() {
		BeforeEach(func() {
			mgr.snap.InstLoad = map[string]float64{"a": 10, "b": 0, "c": 0}
			mgr.snap.Stats = map[string]stats.LoadStat{
				"a": {Average: 0, Stddev: 0},
				"b": {Average: 0, Stddev: 0},
				"c": {Average: 0, Stddev: 0},
			}
		})

		It("skips the loaded id for any key whose plain winner is it", func() {
			found := false
			for i := range 200 {
				key := keyFor(i)
				if plainWinner([]string{"a", "b", "c"}, key) != "a" {
					continue
				}
				found = true
				want := plainWinner([]string{"b", "c"}, key)
				got, err := r.GetNode(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			}
			Expect(found).To(BeTrue(), "test fixture should exercise at least one key whose plain winner is 'a'")
		})
	})

	// S3 — all loaded: falls back to the plain rendezvous winner.
	Describe("S3: all loaded falls back to plain rendezvous", func() {
		It("returns the overall highest scorer when nothing qualifies", func() {
			mgr2 := newFakeManager()
			mgr2.snap.InstLoad = map[string]float64{"a": 100, "b": 100}
			mgr2.snap.Stats = map[string]stats.LoadStat{
				"a": {Average: 0, Stddev: 0},
				"b": {Average: 0, Stddev: 0},
			}
			r2 := hrw.New(mgr2)
			r2.AddNode("a", fakeServer{id: "a"})
			r2.AddNode("b", fakeServer{id: "b"})

			want := plainWinner([]string{"a", "b"}, "x")
			got, err := r2.GetNode("x")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		})
	})

	// Property 3 — load-skip stability: marking exactly one id loaded
	// must not change the choice for any key whose plain winner isn't it.
	Describe("load-skip stability", func() {
		It("leaves unaffected keys' routing unchanged", func() {
			for i := range 300 {
				key := keyFor(i)
				before := plainWinner([]string{"a", "b", "c"}, key)
				if before == "a" {
					continue // this key is expected to change; not under test here
				}
				mgr.snap.InstLoad = map[string]float64{"a": 999}
				mgr.snap.Stats = map[string]stats.LoadStat{"a": {Average: 0, Stddev: 0}}
				got, err := r.GetNode(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(before))
			}
		})
	})

	Describe("membership changes", func() {
		It("stops returning a removed node", func() {
			r.RemoveNode("b")
			for i := range 50 {
				got, err := r.GetNode(keyFor(i))
				Expect(err).NotTo(HaveOccurred())
				Expect(got).NotTo(Equal("b"))
			}
		})
	})
})

func keyFor(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i%10)) + "-key"
}
