package backtest

import (
	"context"
	"fmt"

	"github.com/dstolz/tradesim/internal/actor"
)

// ReplayAllMsg drives the full historical replay; replies with
// *Result. The round-trip blocks until the replay completes.
type ReplayAllMsg struct {
	Signals []Signal
}

// NewActor wraps the orchestrator in a mailbox actor so a replay can be
// requested like any other message.
func NewActor(o *Orchestrator) *actor.Actor {
	return actor.New("backtest", 8, func(msg any) (any, error) {
		switch m := msg.(type) {
		case ReplayAllMsg:
			return o.Replay(context.Background(), m.Signals)
		default:
			return nil, fmt.Errorf("backtest: unknown message %T", msg)
		}
	})
}

// Replayer bundles a running backtest actor with the scenario's
// signals, so a replay can be triggered repeatedly (the HTTP layer
// uses this).
type Replayer struct {
	actor   *actor.Actor
	signals []Signal
}

// NewReplayer creates a replayer over a running backtest actor.
func NewReplayer(a *actor.Actor, signals []Signal) *Replayer {
	return &Replayer{actor: a, signals: signals}
}

// ReplayAll drives the full replay and blocks until it completes.
func (r *Replayer) ReplayAll(ctx context.Context) (*Result, error) {
	reply, err := r.actor.Ask(ctx, ReplayAllMsg{Signals: r.signals})
	if err != nil {
		return nil, err
	}
	result, ok := reply.(*Result)
	if !ok {
		return nil, fmt.Errorf("backtest: unexpected reply %T", reply)
	}
	return result, nil
}
