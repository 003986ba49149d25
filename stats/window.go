package stats

import "math"

// Window is a fixed-capacity sliding window of float64 samples reporting a
// running average and sample standard deviation in O(1) amortized per
// add(). Oldest samples are dropped FIFO once the window is full.
//
// Callers must serialize access: the load manager owns one Window per
// server entry and only ever touches it from the refresher goroutine
// (see spec §4.A — "adding and reading are never concurrent for a given
// window").
type Window struct {
	samples []float64
	head    int // index of the oldest sample, valid when len(samples) == cap
	cap     int
	sum     float64
	sumSq   float64
}

// NewWindow constructs a Window of the given capacity. cap must be >= 2;
// callers (stats.NewManager) enforce the spec's window_size >= 2 default.
func NewWindow(cap int) *Window {
	if cap < 1 {
		cap = 1
	}
	return &Window{cap: cap, samples: make([]float64, 0, cap)}
}

// Add appends x, evicting the oldest sample first if the window is full.
func (w *Window) Add(x float64) {
	if len(w.samples) < w.cap {
		w.samples = append(w.samples, x)
		w.sum += x
		w.sumSq += x * x
		return
	}
	old := w.samples[w.head]
	w.samples[w.head] = x
	w.head = (w.head + 1) % w.cap
	w.sum += x - old
	w.sumSq += x*x - old*old
}

// Len returns the number of samples currently held (<= capacity).
func (w *Window) Len() int { return len(w.samples) }

// Average is the arithmetic mean of the held samples, 0 when empty.
func (w *Window) Average() float64 {
	n := len(w.samples)
	if n == 0 {
		return 0
	}
	return w.sum / float64(n)
}

// Stddev is the sample standard deviation (divisor n-1), 0 when fewer than
// two samples are held. Guards against negative variance from floating
// point cancellation in the running sums.
func (w *Window) Stddev() float64 {
	n := len(w.samples)
	if n < 2 {
		return 0
	}
	mean := w.sum / float64(n)
	variance := (w.sumSq - float64(n)*mean*mean) / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
