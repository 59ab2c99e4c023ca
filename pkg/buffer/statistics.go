package buffer

import (
	"sync/atomic"
)

// Statistics tracks buffer activity.
type Statistics struct {
	writes  atomic.Int64
	reads   atomic.Int64
	drops   atomic.Int64
	blocked atomic.Int64
	size    atomic.Int64
	maxSize atomic.Int64
}

// NewStatistics creates a zeroed statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) write(size int) {
	s.writes.Add(1)
	s.updateSize(size)
}

func (s *Statistics) read(size int) {
	s.reads.Add(1)
	s.updateSize(size)
}

func (s *Statistics) updateSize(size int) {
	n := int64(size)
	s.size.Store(n)
	for {
		m := s.maxSize.Load()
		if n <= m || s.maxSize.CompareAndSwap(m, n) {
			return
		}
	}
}

// Writes returns the number of accepted writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of items read.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the number of items discarded by a drop policy.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// BlockedWrites returns how many writes had to wait for space.
func (s *Statistics) BlockedWrites() int64 { return s.blocked.Load() }

// CurrentSize returns the number of queued items.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }
