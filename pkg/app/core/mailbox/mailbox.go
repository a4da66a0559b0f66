package mailbox

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the inbox size used between pipeline stages.
const DefaultCapacity = 32

// ErrClosed is returned by Send once the receiving side has closed the mailbox.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is a bounded FIFO queue with one consumer and any number of
// producers. Producers hold the *Mailbox by pointer; there is no separate
// sender handle to clone.
//
// The data channel is never closed. Closing is done by the receiver through
// the done channel, so a producer racing with Close gets ErrClosed instead of
// a panic on send.
type Mailbox[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

func New[T any](capacity int) *Mailbox[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues msg, blocking while the mailbox is full (back-pressure).
func (m *Mailbox[T]) Send(ctx context.Context, msg T) error {
	// Closed wins over free capacity: select picks randomly among ready cases.
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv dequeues the next message. ok is false once the mailbox is closed and
// drained, or when ctx is done.
func (m *Mailbox[T]) Recv(ctx context.Context) (msg T, ok bool) {
	select {
	case msg = <-m.ch:
		return msg, true
	default:
	}
	select {
	case msg = <-m.ch:
		return msg, true
	case <-m.done:
		return msg, false
	case <-ctx.Done():
		return msg, false
	}
}

// Close marks the receiver gone. Pending and future sends fail with ErrClosed.
// Safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Mailbox[T]) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Len returns queued messages (for tests/metrics).
func (m *Mailbox[T]) Len() int { return len(m.ch) }

func (m *Mailbox[T]) Cap() int { return cap(m.ch) }
