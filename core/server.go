// Package core holds the small set of domain types shared between the load
// manager and the router: the server handle contract the outer memcached
// client layer must satisfy, and the probe result the load manager
// interprets.
package core

import "context"

// ServerHandle is the opaque per-server reference the load manager owns
// after add_server. The core never reaches past this interface into
// connection pooling or wire-protocol detail — those belong to the
// external memcached client layer (see package memcached).
type ServerHandle interface {
	// Stats returns the server's self-reported counters keyed by stat
	// name. Implementations must translate socket errors (refused, reset,
	// timed out) into a returned error rather than panicking; the load
	// manager treats any error here as non-fatal for this round.
	Stats(ctx context.Context) (StatsResult, error)

	// Close idempotently releases the handle. Called on remove_server and
	// on manager teardown.
	Close() error
}

// StatsResult is the fixed, small set of counters the load manager
// interprets (see spec §3). Fields absent from a given server's response
// are left at zero; a zero Uptime signals "absent" to the refresher, which
// falls back to the configured refresh interval as the elapsed estimate.
type StatsResult struct {
	RusageUser   float64
	RusageSystem float64
	CmdGet       int64
	CmdSet       int64
	CmdFlush     int64
	CmdTouch     int64
	Uptime       float64 // seconds; 0 means "not reported"
}
