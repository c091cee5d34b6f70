package connector

import "sync/atomic"

// Channel implements a [Connector] using a buffered channel.
type Channel[T any] struct {
	buffer chan T
	done   chan struct{}

	closed atomic.Bool
}

// NewChannel creates a new [Channel] with the given capacity.
func NewChannel[T any](size uint64) *Channel[T] {
	return &Channel[T]{
		buffer: make(chan T, size),
		done:   make(chan struct{}),
	}
}

func (c *Channel[T]) Write(item T) error {
	if c.closed.Load() {
		return ErrClosed
	}

	select {
	case c.buffer <- item:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Channel[T]) Read() (T, error) {
	// Drain buffered items even after the connector is closed.
	select {
	case item := <-c.buffer:
		return item, nil
	default:
	}

	select {
	case item := <-c.buffer:
		return item, nil
	case <-c.done:
		select {
		case item := <-c.buffer:
			return item, nil
		default:
			var zero T
			return zero, ErrClosed
		}
	}
}

// Close closes the [Channel] connector. Buffered items can still be read.
func (c *Channel[T]) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}
