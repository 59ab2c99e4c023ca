// Package buffer provides a bounded, thread-safe FIFO with a configurable
// overflow policy. The relay uses it with Block so that a slow broker
// applies back-pressure to the feed reader instead of losing sightings.
package buffer

import (
	"context"
)

// Buffer is a bounded FIFO shared between producer and consumer goroutines.
type Buffer[T any] interface {
	// WriteContext appends item. Under Block it waits for space until ctx is
	// done or the buffer is closed.
	WriteContext(ctx context.Context, item T) error

	// ReadContext removes the oldest item, waiting until one is available,
	// ctx is done or the buffer is closed and drained.
	ReadContext(ctx context.Context) (T, error)

	// TryRead removes the oldest item without waiting.
	TryRead() (T, bool)

	// Size returns the number of queued items.
	Size() int

	// Capacity returns the maximum number of queued items.
	Capacity() int

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close rejects further writes and wakes all waiters. Queued items can
	// still be read.
	Close() error
}

// OverflowPolicy defines what a write does when the buffer is full.
type OverflowPolicy int

const (
	// Block waits for space.
	Block OverflowPolicy = iota

	// DropOldest discards the head to make room.
	DropOldest

	// DropNewest discards the item being written.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return "Block"
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback receives items discarded by a drop policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
