// Package mailbox provides a bounded producer/consumer channel pair.
//
// A mailbox delivers values from one or more Senders to a single Receiver
// without polling. Send suspends while the mailbox is full, so the capacity
// is the backpressure limit between the two parties.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the mailbox has been closed.
var ErrClosed = errors.New("mailbox closed")

type box[T any] struct {
	values    chan T
	closed    chan struct{}
	closeOnce sync.Once
}

// Sender is the producing half of a mailbox.
type Sender[T any] struct {
	box *box[T]
}

// Receiver is the consuming half of a mailbox.
type Receiver[T any] struct {
	box *box[T]
}

// New creates a mailbox that buffers up to capacity values.
// A capacity below 1 is treated as 1.
func New[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	b := &box[T]{
		values: make(chan T, capacity),
		closed: make(chan struct{}),
	}
	return &Sender[T]{box: b}, &Receiver[T]{box: b}
}

// Send delivers v, waiting for free space if the mailbox is full.
func (s *Sender[T]) Send(ctx context.Context, v T) error {
	select {
	case <-s.box.closed:
		return ErrClosed
	default:
	}

	select {
	case s.box.values <- v:
		return nil
	case <-s.box.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend delivers v only if there is free space right now.
func (s *Sender[T]) TrySend(v T) bool {
	select {
	case <-s.box.closed:
		return false
	default:
	}

	select {
	case s.box.values <- v:
		return true
	default:
		return false
	}
}

// Close stops further sends. Values already buffered can still be received.
func (s *Sender[T]) Close() {
	s.box.closeOnce.Do(func() { close(s.box.closed) })
}

// Recv returns the next value. It reports false once the mailbox is closed
// and drained, or when ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, bool) {
	var zero T

	select {
	case v := <-r.box.values:
		return v, true
	default:
	}

	select {
	case v := <-r.box.values:
		return v, true
	case <-r.box.closed:
		// A send may have landed just before close.
		select {
		case v := <-r.box.values:
			return v, true
		default:
			return zero, false
		}
	case <-ctx.Done():
		return zero, false
	}
}

// Len reports how many values are buffered.
func (r *Receiver[T]) Len() int { return len(r.box.values) }

// Cap reports the mailbox capacity.
func (r *Receiver[T]) Cap() int { return cap(r.box.values) }
