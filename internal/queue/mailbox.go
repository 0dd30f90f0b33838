package queue

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrMailboxClosed is returned by Pop and Push once the mailbox has been closed.
var ErrMailboxClosed = errors.New("queue: mailbox closed")

// Mailbox is an unbounded multi-producer FIFO with a blocking Pop.
//
// Producers never block. Pop waits until an item arrives, the mailbox is
// closed, or the context ends.
type Mailbox[T any] struct {
	q      Queue[T]
	signal chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		q:      NewLockFreeQueue[T](),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends item to the mailbox.
func (m *Mailbox[T]) Push(item T) error {
	if m.closed.Load() {
		return ErrMailboxClosed
	}
	m.q.Enqueue(item)

	select {
	case m.signal <- struct{}{}:
	default:
	}

	return nil
}

// Pop removes the oldest item, blocking until one is available, ctx is done or
// the mailbox is closed.
func (m *Mailbox[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := m.q.Dequeue(); ok {
			return item, nil
		}

		var zero T
		select {
		case <-m.signal:
		case <-m.done:
			return zero, ErrMailboxClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryPop removes the oldest item without blocking.
func (m *Mailbox[T]) TryPop() (T, bool) {
	return m.q.Dequeue()
}

// Peek returns the oldest item without removing it.
func (m *Mailbox[T]) Peek() (T, bool) {
	return m.q.Peek()
}

// Len returns the number of waiting items.
func (m *Mailbox[T]) Len() int {
	return m.q.Length()
}

// Close rejects further pushes and wakes a blocked Pop. Items already queued stay
// available through TryPop and Drain. Close is idempotent.
func (m *Mailbox[T]) Close() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.done)
	}
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	return m.closed.Load()
}

// Drain removes and returns every queued item.
func (m *Mailbox[T]) Drain() []T {
	var items []T
	for {
		item, ok := m.q.Dequeue()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}
