package relay

import (
	"sync/atomic"
	"time"
)

// Heartbeat holds the time of the last successful location publish. The
// publisher writes it and the watchdog reads it.
type Heartbeat struct {
	unixNano atomic.Int64
}

// Beat records a successful publish at t.
func (h *Heartbeat) Beat(t time.Time) {
	h.unixNano.Store(t.UnixNano())
}

// Last returns the last recorded publish and false if none occurred yet.
func (h *Heartbeat) Last() (time.Time, bool) {
	n := h.unixNano.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}
