package queue

import (
	"context"
	"encoding/json"
)

// Ticket is the completion handle returned by Enqueue. It settles exactly
// once: either with the transport result or with a typed error.
type Ticket struct {
	id     string
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newTicket(id string) *Ticket {
	return &Ticket{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the queued request's identifier.
func (t *Ticket) ID() string {
	return t.id
}

// Done is closed once the request reaches a terminal status.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the request settles or the context is cancelled.
func (t *Ticket) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.result, t.err
	}
}

// settle is called with the queue mutex held, after the owning request has
// transitioned to a terminal status. The status guard upstream makes a
// second settle unreachable.
func (t *Ticket) settle(result json.RawMessage, err error) {
	t.result = result
	t.err = err
	close(t.done)
}
