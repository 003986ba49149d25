package stats

import "github.com/prometheus/client_golang/prometheus"

// PromExporter mirrors the teacher's stats/common_prom.go registration
// style (per-metric GaugeVec under a private Registry) but exports the
// load manager's own published snapshot instead of request counters.
// Exporting is decoupled from the hot path: Refresh reads the same
// Snapshot the router reads, under the same lock-free contract.
type PromExporter struct {
	mgr     *Manager
	instLd  *prometheus.GaugeVec
	avgLd   *prometheus.GaugeVec
	stdevLd *prometheus.GaugeVec
}

// NewPromExporter registers three gauges (instantaneous load, moving
// average, moving stddev) keyed by server id on reg.
func NewPromExporter(mgr *Manager, reg *prometheus.Registry) *PromExporter {
	e := &PromExporter{
		mgr: mgr,
		instLd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memshard", Name: "inst_load",
			Help: "instantaneous per-server load over the last refresh interval",
		}, []string{"id"}),
		avgLd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memshard", Name: "load_avg",
			Help: "moving average of per-server load",
		}, []string{"id"}),
		stdevLd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "memshard", Name: "load_stddev",
			Help: "moving sample stddev of per-server load",
		}, []string{"id"}),
	}
	reg.MustRegister(e.instLd, e.avgLd, e.stdevLd)
	return e
}

// Refresh re-populates the gauges from the manager's current snapshot.
// Callers typically invoke this from their own Prometheus scrape handler,
// or on a separate low-frequency ticker of their own.
func (e *PromExporter) Refresh() {
	snap := e.mgr.Snapshot()
	for id, load := range snap.InstLoad {
		e.instLd.WithLabelValues(id).Set(load)
	}
	for id, st := range snap.Stats {
		e.avgLd.WithLabelValues(id).Set(st.Average)
		e.stdevLd.WithLabelValues(id).Set(st.Stddev)
	}
}
