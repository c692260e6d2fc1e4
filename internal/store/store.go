// Package store persists order book and portfolio state. Two
// implementations exist: an in-memory store backing plain simulations
// and a SQLite store that survives process restarts, both keyed by a
// strategy identifier so several strategies can share one database.
package store

import (
	"errors"
	"time"

	"github.com/dstolz/tradesim/internal/domain"
)

// ErrClosed is returned for operations on a closed store.
var ErrClosed = errors.New("store_closed")

// ArchivedOrder is the terminal record kept for every order that left
// the book: executed, evicted, cancelled or discarded.
type ArchivedOrder struct {
	StrategyID     string
	OrderID        string
	Kind           domain.OrderKind
	Asset          domain.Asset
	RequestedSize  float64
	Limit          *float64
	StopLimit      *float64
	ValidFrom      time.Time
	ValidUntil     time.Time
	Status         domain.OrderStatus
	FilledQuantity float64
	FilledPrice    float64
	FilledFee      float64
	ExecutedAt     time.Time
}

// PositionRow is one row of the ledger's valuation history.
type PositionRow struct {
	StrategyID string
	Asset      domain.Asset
	Time       time.Time
	Quantity   float64
	CostBasis  float64
	Value      float64
}

// TradeRow records a fill the ledger has applied.
type TradeRow struct {
	StrategyID string
	Asset      domain.Asset
	Time       time.Time
	Quantity   float64
	Price      float64
	Fee        float64
}

// BookStore holds the pending orders of one strategy plus the archive
// of orders that reached a terminal state.
type BookStore interface {
	// Insert stores a pending order.
	Insert(o domain.Order) error

	// Remove deletes a pending order by id and returns it.
	// Returns domain.ErrOrderNotFound if no such order is pending.
	Remove(orderID string) (domain.Order, error)

	// Pending returns all pending orders, ordered by (validFrom,
	// priority, insertion).
	Pending() ([]domain.Order, error)

	// Executable returns the pending orders for asset that are in
	// force at t (validFrom <= t <= validUntil) and whose limit or
	// stop-limit is satisfiable inside the tick's low/high range:
	// buys need limit >= low, sells need limit <= high. Orders come
	// back in deterministic (validFrom, priority, insertion) order.
	Executable(asset domain.Asset, t time.Time, low, high float64) ([]domain.Order, error)

	// Evict removes and returns every pending order for asset whose
	// effective validUntil lies strictly before t.
	Evict(asset domain.Asset, t time.Time) ([]domain.Order, error)

	// Archive appends a terminal order record.
	Archive(rec ArchivedOrder) error

	// Archived returns archived orders sorted by (validFrom, asset).
	// Unless includeAll is set, only executed orders are returned.
	Archived(includeAll bool) ([]ArchivedOrder, error)

	Close() error
}

// PositionStore holds the ledger's append-only valuation history and
// trade log.
type PositionStore interface {
	AppendHistory(rec PositionRow) error

	// History returns valuation rows in append order, which is
	// monotonically non-decreasing in time per asset. A zero asOf
	// means no upper bound.
	History(asOf time.Time) ([]PositionRow, error)

	AppendTrade(rec TradeRow) error

	// Trades returns applied fills in time order.
	Trades(asOf time.Time) ([]TradeRow, error)

	Close() error
}

// executableSide reports whether a pending order could fill inside the
// given low/high range, applying the same side rule the execution
// price resolver uses. The SQLite store expresses the identical rule
// in its WHERE clause.
func executableSide(size float64, limit, stopLimit *float64, low, high float64) bool {
	check := func(l *float64) bool {
		if size < 0 {
			return *l <= high
		}
		return *l >= low
	}
	if limit == nil && stopLimit == nil {
		return true
	}
	if limit != nil && check(limit) {
		return true
	}
	return stopLimit != nil && check(stopLimit)
}
