// Package actor provides the minimal mailbox runtime the stateful
// components (order book, ledger, orchestrator) run on. Each actor
// owns one goroutine that processes its mailbox strictly sequentially,
// which is what makes the per-asset bookkeeping safe without locks.
//
// Two delivery primitives are exposed: Ask is a blocking round-trip
// used whenever the sender's next step depends on the callee's state,
// Tell is a fire-and-forget send for notifications that do not gate
// correctness. Messages from one sender are processed in send order,
// so a Tell followed by an Ask observes the Tell's effects.
package actor

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned for sends to an actor that has shut down.
var ErrStopped = errors.New("actor_stopped")

// Handler processes a single message and returns the reply (ignored
// for Tell deliveries). Handlers run on the actor's own goroutine and
// never concurrently with themselves.
type Handler func(msg any) (any, error)

type envelope struct {
	msg   any
	reply chan result // nil for Tell
}

type result struct {
	value any
	err   error
}

// Actor is a single-goroutine mailbox around a Handler.
type Actor struct {
	name    string
	mailbox chan envelope
	quit    chan struct{}
	done    chan struct{}
	stop    sync.Once
}

// New starts an actor draining its mailbox with the given handler.
// The buffer size bounds how many Tell deliveries may be in flight.
func New(name string, buffer int, handler Handler) *Actor {
	a := &Actor{
		name:    name,
		mailbox: make(chan envelope, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run(handler)
	return a
}

func (a *Actor) run(handler Handler) {
	defer close(a.done)

	deliver := func(env envelope) {
		value, err := handler(env.msg)
		if env.reply != nil {
			env.reply <- result{value: value, err: err}
		}
	}

	for {
		select {
		case env := <-a.mailbox:
			deliver(env)
		case <-a.quit:
			// Drain what is already buffered, then exit.
			for {
				select {
				case env := <-a.mailbox:
					deliver(env)
				default:
					return
				}
			}
		}
	}
}

// Name identifies the actor in logs.
func (a *Actor) Name() string {
	return a.name
}

// Ask delivers msg and blocks until the handler replies, the context
// expires, or the actor stops. A context timeout is propagated to the
// caller, not swallowed: the callee may still process the message, but
// the caller must treat its own step as failed.
func (a *Actor) Ask(ctx context.Context, msg any) (any, error) {
	select {
	case <-a.quit:
		return nil, ErrStopped
	default:
	}

	reply := make(chan result, 1)
	select {
	case a.mailbox <- envelope{msg: msg, reply: reply}:
	case <-a.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Tell delivers msg without waiting for a reply. It blocks only if
// the mailbox is full.
func (a *Actor) Tell(ctx context.Context, msg any) error {
	select {
	case <-a.quit:
		return ErrStopped
	default:
	}

	select {
	case a.mailbox <- envelope{msg: msg}:
		return nil
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the actor down after draining already-buffered messages.
// Safe to call more than once. Messages sent concurrently with Stop
// may be dropped; callers are expected to stop sending first.
func (a *Actor) Stop() {
	a.stop.Do(func() {
		close(a.quit)
	})
	<-a.done
}
