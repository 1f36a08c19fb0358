package transport

import (
	"context"
	"sync"
)

// Inbox is the buffered queue behind a Listener. Transport goroutines push
// received messages with Deliver and the owner drains them with Recv.
type Inbox struct {
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewInbox creates an inbox holding up to size pending messages
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 1
	}
	return &Inbox{
		messages: make(chan []byte, size),
		done:     make(chan struct{}),
	}
}

// Deliver queues a message, blocking while the inbox is full. It returns
// false once the inbox or ctx is done.
func (in *Inbox) Deliver(ctx context.Context, data []byte) bool {
	select {
	case <-in.done:
		return false
	default:
	}

	select {
	case in.messages <- data:
		return true
	case <-in.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Recv returns the next message, ErrClosed after Close, or the ctx error
func (in *Inbox) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-in.messages:
		return data, nil
	case <-in.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the inbox is closed
func (in *Inbox) Done() <-chan struct{} {
	return in.done
}

// Close wakes every blocked Deliver and Recv
func (in *Inbox) Close() {
	in.closeOnce.Do(func() {
		close(in.done)
	})
}
