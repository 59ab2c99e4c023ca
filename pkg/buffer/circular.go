package buffer

import (
	"context"
	"sync"

	"github.com/c360/flightrelay/errors"
)

type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	notEmpty *sync.Cond
	notFull  *sync.Cond
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "buffer", "NewCircularBuffer",
			"capacity must be positive")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// wakeOnDone broadcasts cond when ctx ends so a waiter can notice. The
// returned stop must be called once waiting is over.
func (cb *circularBuffer[T]) wakeOnDone(ctx context.Context, cond *sync.Cond) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		cb.mu.Lock()
		cond.Broadcast()
		cb.mu.Unlock()
	})
}

func (cb *circularBuffer[T]) WriteContext(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var dropped *T
	defer func() {
		if dropped != nil && cb.opts.dropCallback != nil {
			cb.opts.dropCallback(*dropped)
		}
	}()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.ErrQueueClosed
	}

	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			old := cb.pop()
			dropped = &old
			cb.recordDrop()
		case DropNewest:
			dropped = &item
			cb.recordDrop()
			return nil
		default:
			cb.stats.blocked.Add(1)
			if cb.metrics != nil {
				cb.metrics.blocked.Inc()
			}

			stop := cb.wakeOnDone(ctx, cb.notFull)
			defer stop()

			for cb.size == cb.capacity && !cb.closed {
				if err := ctx.Err(); err != nil {
					return err
				}
				cb.notFull.Wait()
			}
			if cb.closed {
				return errors.ErrQueueClosed
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.write(cb.size)
	if cb.metrics != nil {
		cb.metrics.writes.Inc()
		cb.metrics.updateSize(cb.size, cb.capacity)
	}

	cb.notEmpty.Signal()
	return nil
}

func (cb *circularBuffer[T]) ReadContext(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 && !cb.closed {
		stop := cb.wakeOnDone(ctx, cb.notEmpty)
		defer stop()

		for cb.size == 0 && !cb.closed {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			cb.notEmpty.Wait()
		}
	}

	if cb.size == 0 {
		return zero, errors.ErrQueueClosed
	}

	item := cb.pop()
	cb.recordRead()
	return item, nil
}

func (cb *circularBuffer[T]) TryRead() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}

	item := cb.pop()
	cb.recordRead()
	return item, true
}

// pop removes the head item. Caller holds mu and has checked size > 0.
func (cb *circularBuffer[T]) pop() T {
	var zero T
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--
	cb.notFull.Signal()
	return item
}

func (cb *circularBuffer[T]) recordRead() {
	cb.stats.read(cb.size)
	if cb.metrics != nil {
		cb.metrics.reads.Inc()
		cb.metrics.updateSize(cb.size, cb.capacity)
	}
}

func (cb *circularBuffer[T]) recordDrop() {
	cb.stats.drops.Add(1)
	if cb.metrics != nil {
		cb.metrics.drops.Inc()
	}
}

func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true

	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()
	return nil
}
