package ledger

import (
	"fmt"
	"time"

	"github.com/dstolz/tradesim/internal/actor"
	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/timeseries"
)

// Messages the ledger actor accepts. Ticks revalue the held position,
// fills mutate it, the remaining messages are read-only queries.
type (
	// TickMsg revalues the tick's asset: bars mark at the close,
	// bid/ask ticks at their respective sides.
	TickMsg struct {
		Tick domain.Tick
	}

	// FillMsg applies a committed trade.
	FillMsg struct {
		Fill domain.Fill
	}

	// PortfolioValueMsg asks for the current snapshot; replies with
	// domain.PortfolioValue.
	PortfolioValueMsg struct{}

	// HistoryMsg asks for the valuation history up to AsOf (zero for
	// all); replies with []store.PositionRow.
	HistoryMsg struct {
		AsOf time.Time
	}

	// TradesMsg asks for the applied fills up to AsOf; replies with
	// []store.TradeRow.
	TradesMsg struct {
		AsOf time.Time
	}

	// PerformanceMsg asks for the reporting tables; replies with
	// *PerformanceReport.
	PerformanceMsg struct {
		AsOf time.Time
		Rule Resample
	}
)

// PerformanceReport bundles the three reporting tables.
type PerformanceReport struct {
	Values  *timeseries.Table
	Weights *timeseries.Table
	Curve   *timeseries.Table
}

// NewActor wraps the ledger in a mailbox actor. The ledger must not be
// touched directly once the actor is running.
func NewActor(l *Ledger) *actor.Actor {
	return actor.New("ledger", 256, func(msg any) (any, error) {
		switch m := msg.(type) {
		case TickMsg:
			bid, ask := revaluePrices(m.Tick)
			return nil, l.Revalue(m.Tick.Asset, m.Tick.Time, bid, ask)
		case FillMsg:
			return nil, l.ApplyFill(m.Fill)
		case PortfolioValueMsg:
			return l.PortfolioValue(), nil
		case HistoryMsg:
			return l.History(m.AsOf)
		case TradesMsg:
			return l.Trades(m.AsOf)
		case PerformanceMsg:
			values, weights, curve, err := l.Performance(m.AsOf, m.Rule)
			if err != nil {
				return nil, err
			}
			return &PerformanceReport{Values: values, Weights: weights, Curve: curve}, nil
		default:
			return nil, fmt.Errorf("ledger: unknown message %T", msg)
		}
	})
}

func revaluePrices(t domain.Tick) (bid, ask float64) {
	switch t.Kind {
	case domain.TickBidAsk:
		return t.Bid, t.Ask
	case domain.TickBar:
		return t.Close, t.Close
	default:
		return t.Price, t.Price
	}
}
