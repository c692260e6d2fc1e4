package book

import (
	"context"
	"fmt"

	"github.com/dstolz/tradesim/internal/actor"
	"github.com/dstolz/tradesim/internal/domain"
)

// Messages the book actor accepts.
type (
	// NewOrderMsg places an order; replies with the accepted
	// domain.Order.
	NewOrderMsg struct {
		Order domain.Order
	}

	// TickMsg evaluates the book against a tick; replies with the
	// committed []domain.Fill.
	TickMsg struct {
		Tick domain.Tick
	}

	// CancelMsg removes a pending order.
	CancelMsg struct {
		OrderID string
	}

	// PendingMsg asks for the full order book; replies with
	// []domain.Order.
	PendingMsg struct{}

	// ExecutedOrdersMsg asks for the archive; replies with
	// []store.ArchivedOrder.
	ExecutedOrdersMsg struct {
		IncludeEvicted bool
	}
)

// NewActor wraps the book in a mailbox actor. The book must not be
// touched directly once the actor is running.
func NewActor(b *Book) *actor.Actor {
	return actor.New("book", 256, func(msg any) (any, error) {
		switch m := msg.(type) {
		case NewOrderMsg:
			return b.Place(m.Order)
		case TickMsg:
			return b.OnTick(context.Background(), m.Tick)
		case CancelMsg:
			return nil, b.Cancel(m.OrderID)
		case PendingMsg:
			return b.Pending()
		case ExecutedOrdersMsg:
			return b.ExecutedOrders(m.IncludeEvicted)
		default:
			return nil, fmt.Errorf("book: unknown message %T", msg)
		}
	})
}
