package book

import (
	"context"
	"fmt"
	"time"

	"github.com/dstolz/tradesim/internal/actor"
	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/store"
)

// Client is the synchronous surface other components use to talk to a
// running book actor.
type Client struct {
	actor   *actor.Actor
	timeout time.Duration
}

// NewClient wraps a running book actor. A non-zero timeout bounds
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

// Place submits an order and waits for acceptance.
func (c *Client) Place(ctx context.Context, o domain.Order) (domain.Order, error) {
	reply, err := c.ask(ctx, NewOrderMsg{Order: o})
	if err != nil {
		return domain.Order{}, err
	}
	accepted, ok := reply.(domain.Order)
	if !ok {
		return domain.Order{}, fmt.Errorf("book: unexpected reply %T", reply)
	}
	return accepted, nil
}

// Tick evaluates the book against a tick and returns the committed
// fills.
func (c *Client) Tick(ctx context.Context, t domain.Tick) ([]domain.Fill, error) {
	reply, err := c.ask(ctx, TickMsg{Tick: t})
	if err != nil {
		return nil, err
	}
	fills, _ := reply.([]domain.Fill)
	return fills, nil
}

// Cancel removes a pending order.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	_, err := c.ask(ctx, CancelMsg{OrderID: orderID})
	return err
}

// Pending returns the full order book.
func (c *Client) Pending(ctx context.Context) ([]domain.Order, error) {
	reply, err := c.ask(ctx, PendingMsg{})
	if err != nil {
		return nil, err
	}
	orders, _ := reply.([]domain.Order)
	return orders, nil
}

// ExecutedOrders returns the archive.
func (c *Client) ExecutedOrders(ctx context.Context, includeEvicted bool) ([]store.ArchivedOrder, error) {
	reply, err := c.ask(ctx, ExecutedOrdersMsg{IncludeEvicted: includeEvicted})
	if err != nil {
		return nil, err
	}
	recs, _ := reply.([]store.ArchivedOrder)
	return recs, nil
}
