package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dstolz/tradesim/internal/actor"
	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/store"
)

// Client is the synchronous surface other components use to talk to a
// running ledger actor. Every call is a blocking round-trip so invariant
// violations (back-dated trades, cash breaches) propagate to the caller.
type Client struct {
	actor   *actor.Actor
	timeout time.Duration
}

// NewClient wraps a running ledger actor. A non-zero timeout bounds
// every round-trip.
func NewClient(a *actor.Actor, timeout time.Duration) *Client {
	return &Client{actor: a, timeout: timeout}
}

func (c *Client) ask(ctx context.Context, msg any) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.actor.Ask(ctx, msg)
}

// Tick revalues the tick's asset.
func (c *Client) Tick(ctx context.Context, t domain.Tick) error {
	_, err := c.ask(ctx, TickMsg{Tick: t})
	return err
}

// ApplyFill applies a committed trade and waits for it to be booked.
func (c *Client) ApplyFill(ctx context.Context, f domain.Fill) error {
	_, err := c.ask(ctx, FillMsg{Fill: f})
	return err
}

// PortfolioValue fetches the current snapshot.
func (c *Client) PortfolioValue(ctx context.Context) (domain.PortfolioValue, error) {
	reply, err := c.ask(ctx, PortfolioValueMsg{})
	if err != nil {
		return domain.PortfolioValue{}, err
	}
	pv, ok := reply.(domain.PortfolioValue)
	if !ok {
		return domain.PortfolioValue{}, fmt.Errorf("ledger: unexpected reply %T", reply)
	}
	return pv, nil
}

// History returns the valuation history up to asOf.
func (c *Client) History(ctx context.Context, asOf time.Time) ([]store.PositionRow, error) {
	reply, err := c.ask(ctx, HistoryMsg{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	rows, _ := reply.([]store.PositionRow)
	return rows, nil
}

// Trades returns the applied fills up to asOf.
func (c *Client) Trades(ctx context.Context, asOf time.Time) ([]store.TradeRow, error) {
	reply, err := c.ask(ctx, TradesMsg{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	rows, _ := reply.([]store.TradeRow)
	return rows, nil
}

// Performance returns the reporting tables.
func (c *Client) Performance(ctx context.Context, asOf time.Time, rule Resample) (*PerformanceReport, error) {
	reply, err := c.ask(ctx, PerformanceMsg{AsOf: asOf, Rule: rule})
	if err != nil {
		return nil, err
	}
	report, ok := reply.(*PerformanceReport)
	if !ok {
		return nil, fmt.Errorf("ledger: unexpected reply %T", reply)
	}
	return report, nil
}
