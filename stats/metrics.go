package stats

import "github.com/kvshard/memshard/core"

// LoadMetric is a tagged enum of the recognized load functions — modeled
// as an explicit dispatch rather than an open callback, per spec §9,
// since exactly two metrics are defined and each has specific field
// requirements on the stats payload.
type LoadMetric int

const (
	// CumReqLoad approximates requests/second served:
	// new_cumulative = cmd_get + cmd_set + cmd_flush + cmd_touch.
	CumReqLoad LoadMetric = iota
	// RusageLoad approximates CPU utilization:
	// new_cumulative = rusage_user + rusage_system.
	RusageLoad
)

func (m LoadMetric) String() string {
	switch m {
	case RusageLoad:
		return "rusage"
	default:
		return "cum_req"
	}
}

// compute returns (new_cumulative, rate) per spec §4.B. elapsed is assumed
// to already have passed the caller's epsilon check.
func (m LoadMetric) compute(st core.StatsResult, prevCumulative, elapsed float64) (newCumulative, rate float64) {
	switch m {
	case RusageLoad:
		newCumulative = st.RusageUser + st.RusageSystem
	default:
		newCumulative = float64(st.CmdGet + st.CmdSet + st.CmdFlush + st.CmdTouch)
	}
	rate = (newCumulative - prevCumulative) / elapsed
	if rate < 0 {
		// counter reset: clamp, per spec §4.B / §7.
		rate = 0
	}
	return newCumulative, rate
}
