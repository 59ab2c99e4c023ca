package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/testutil"
)

func TestWatchdog_Check(t *testing.T) {
	start := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		beat    *time.Time
		now     time.Time
		stalled bool
	}{
		{name: "no publish yet", now: start.Add(time.Hour), stalled: false},
		{name: "recent publish", beat: &start, now: start.Add(time.Minute), stalled: false},
		{name: "exactly at timeout", beat: &start, now: start.Add(10 * time.Minute), stalled: false},
		{name: "stale publish", beat: &start, now: start.Add(10*time.Minute + time.Second), stalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := &Heartbeat{}
			if tt.beat != nil {
				hb.Beat(*tt.beat)
			}
			w := NewWatchdog(WatchdogDeps{Heartbeat: hb})
			assert.Equal(t, tt.stalled, w.Check(tt.now))
		})
	}
}

func TestWatchdog_RunExitsWhenStalled(t *testing.T) {
	start := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(start.Add(11 * time.Minute))

	hb := &Heartbeat{}
	hb.Beat(start)

	var code atomic.Int32
	code.Store(-1)

	w := NewWatchdog(WatchdogDeps{
		Heartbeat: hb,
		Interval:  10 * time.Millisecond,
		Clock:     clock.Now,
		Exit:      func(c int) { code.Store(int32(c)) },
	})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStalled))
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int32(1), code.Load())
}

func TestWatchdog_RunQuietDuringStartupGrace(t *testing.T) {
	exited := atomic.Bool{}
	w := NewWatchdog(WatchdogDeps{
		Heartbeat: &Heartbeat{},
		Interval:  5 * time.Millisecond,
		Exit:      func(int) { exited.Store(true) },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, w.Run(ctx))
	assert.False(t, exited.Load())
}
