package stats

import "time"

// Config mirrors the teacher's option-struct convention (cmn.Config):
// zero-value-friendly, normalized by Manager's constructor rather than by
// the caller.
type Config struct {
	// RefreshRate is the interval, in seconds, between refresh rounds.
	// Must be >= 1; 0 means "use the default".
	RefreshRate int

	// LoadMetric selects the enumerated load function. Zero value is
	// CumReqLoad, the spec's documented default.
	LoadMetric LoadMetric

	// WindowSize is the moving-window sample capacity. Must be >= 2; 0
	// means "use the default".
	WindowSize int

	// MaxConcurrentProbes bounds the number of stats() calls in flight
	// within one refresh round. 0 means "use the default".
	MaxConcurrentProbes int

	// ProbeTimeout bounds a single stats() call. 0 means "use the
	// default" (min(refresh_rate, 2s)).
	ProbeTimeout time.Duration

	// MaxProbesPerSecond, when > 0, rate-limits stats() calls issued by
	// the refresher across the whole roster. 0 means unbounded.
	MaxProbesPerSecond float64
}

const (
	defaultRefreshRate         = 1
	defaultWindowSize          = 100
	defaultMaxConcurrentProbes = 16
	defaultProbeTimeoutCap     = 2 * time.Second
	minElapsed                 = 1e-6 // epsilon guarding division by zero
)

func (c Config) normalized() Config {
	if c.RefreshRate < 1 {
		c.RefreshRate = defaultRefreshRate
	}
	if c.WindowSize < 2 {
		c.WindowSize = defaultWindowSize
	}
	if c.MaxConcurrentProbes < 1 {
		c.MaxConcurrentProbes = defaultMaxConcurrentProbes
	}
	if c.ProbeTimeout <= 0 {
		d := time.Duration(c.RefreshRate) * time.Second
		if d > defaultProbeTimeoutCap {
			d = defaultProbeTimeoutCap
		}
		c.ProbeTimeout = d
	}
	return c
}
