// Package cos provides low-level error-classification helpers shared by the
// load manager and its external collaborators.
package cos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/atomic"
)

// ErrValue accumulates repeated occurrences of the same class of error
// (e.g. consecutive stats() failures for one server) without re-allocating
// or spamming the caller; only the first error is retained, the rest are
// just counted.
type ErrValue struct {
	atomic.Value
	cnt atomic.Int64
}

// errBox gives every stored value the same concrete type, since
// atomic.Value rejects nil and values of differing types.
type errBox struct{ err error }

func (ea *ErrValue) Store(err error) {
	if ea.cnt.Inc() == 1 {
		ea.Value.Store(errBox{err})
	}
}

func (ea *ErrValue) Reset() {
	ea.cnt.Store(0)
	ea.Value.Store(errBox{})
}

func (ea *ErrValue) _load() (err error) {
	if x := ea.Value.Load(); x != nil {
		err = x.(errBox).err
	}
	return
}

func (ea *ErrValue) Err() (err error) {
	err = ea._load()
	if err != nil {
		if cnt := ea.cnt.Load(); cnt > 1 {
			err = fmt.Errorf("%w (cnt=%d)", err, cnt)
		}
	}
	return
}

////////////////////////
// IS-syscall helpers //
////////////////////////

// IsErrConnectionRefused reports whether err is ECONNREFUSED — the target
// process isn't listening (likely down or not yet started).
func IsErrConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsErrConnectionReset reports a TCP RST or broken pipe on a previously
// established connection.
func IsErrConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || IsErrBrokenPipe(err)
}

func IsErrBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

// IsErrTimeout reports a context deadline or a net.Error reporting Timeout().
func IsErrTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// IsUnreachable bundles the transient network failure modes a refresh
// round must treat as "skip this server, retry next round" rather than as
// a fatal error (see spec §7).
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	return IsErrConnectionRefused(err) ||
		IsErrConnectionReset(err) ||
		IsErrTimeout(err) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
