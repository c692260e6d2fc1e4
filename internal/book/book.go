// Package book implements the order book: placement and cancellation of
// pending orders, eviction of expired ones, and deterministic execution
// of the executable ones against each incoming market data tick.
package book

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/store"
)

// Portfolio is the ledger surface the book needs while executing:
// snapshots to resolve portfolio-relative orders and a way to report
// committed fills. Both calls block so accounting errors propagate.
type Portfolio interface {
	PortfolioValue(ctx context.Context) (domain.PortfolioValue, error)
	ApplyFill(ctx context.Context, f domain.Fill) error
}

// FeeFunc computes the fee charged for a fill.
type FeeFunc func(qty, price float64) float64

// Config tunes one order book.
type Config struct {
	// StrategyID tags archived records.
	StrategyID string
	// MinimumQuantity rejects quantity orders smaller than this at
	// placement time.
	MinimumQuantity float64
	// Slippage worsens every fill price by this fraction.
	Slippage float64
	// RelativeOrderMinImpact discards fills whose trade value is a
	// smaller fraction of portfolio value than this. Zero disables the
	// check.
	RelativeOrderMinImpact float64
	// PercentAllowShort lets negative percent orders open shorts.
	PercentAllowShort bool
	// Fee computes per-fill fees; nil means no fees.
	Fee FeeFunc
}

// resolveEpsilon is the quantity below which a resolved order is a
// no-op rather than a trade.
const resolveEpsilon = 1e-9

// Book owns the pending orders of one strategy. It is not safe for
// concurrent use; run it behind its actor.
type Book struct {
	cfg   Config
	log   *slog.Logger
	store store.BookStore
	pf    Portfolio
}

// New creates an order book over st, reporting fills to pf.
func New(cfg Config, st store.BookStore, pf Portfolio, log *slog.Logger) *Book {
	if cfg.Fee == nil {
		cfg.Fee = func(qty, price float64) float64 { return 0 }
	}
	if log == nil {
		log = slog.Default()
	}
	return &Book{cfg: cfg, log: log, store: st, pf: pf}
}

// Place validates and stores an order, assigning it an id. Malformed
// orders are rejected synchronously; the caller decides whether to
// resubmit.
func (b *Book) Place(o domain.Order) (domain.Order, error) {
	if o.Asset == "" {
		return domain.Order{}, &domain.ValidationError{Message: "order needs an asset"}
	}
	if o.ValidFrom.IsZero() {
		return domain.Order{}, &domain.ValidationError{Message: "order needs a validFrom time"}
	}
	if !o.ValidUntil.IsZero() && !o.ValidUntil.After(o.ValidFrom) {
		return domain.Order{}, fmt.Errorf("%w: validUntil %s not after validFrom %s",
			domain.ErrOrderInvalidWindow, o.ValidUntil.Format(time.RFC3339), o.ValidFrom.Format(time.RFC3339))
	}

	switch o.Kind {
	case domain.OrderQuantity:
		if o.Size == 0 {
			return domain.Order{}, &domain.ValidationError{Message: "quantity order must not be zero-size"}
		}
		if math.Abs(o.Size) < b.cfg.MinimumQuantity {
			return domain.Order{}, fmt.Errorf("%w: |%g| below minimum %g",
				domain.ErrOrderTooSmall, o.Size, b.cfg.MinimumQuantity)
		}
	case domain.OrderPercent, domain.OrderTargetWeight:
		if o.Size > 1 || o.Size < -1 {
			return domain.Order{}, fmt.Errorf("%w: fraction %g outside ±1", domain.ErrWeightBounds, o.Size)
		}
	case domain.OrderClose, domain.OrderTargetQuantity:
	default:
		return domain.Order{}, &domain.ValidationError{Message: fmt.Sprintf("unknown order kind %q", o.Kind)}
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if err := b.store.Insert(o); err != nil {
		return domain.Order{}, err
	}
	b.log.Debug("order placed",
		slog.String("id", o.ID),
		slog.String("kind", string(o.Kind)),
		slog.String("asset", o.Asset.String()),
		slog.Float64("size", o.Size))
	return o, nil
}

// Cancel removes a pending order and archives it as cancelled.
func (b *Book) Cancel(orderID string) error {
	o, err := b.store.Remove(orderID)
	if err != nil {
		return err
	}
	return b.store.Archive(b.archived(o, domain.OrderStatusCancelled, 0, 0, 0, time.Time{}))
}

// Pending returns the full order book in deterministic order.
func (b *Book) Pending() ([]domain.Order, error) {
	return b.store.Pending()
}

// ExecutedOrders returns the archive: executed orders only, or every
// terminal record when includeEvicted is set.
func (b *Book) ExecutedOrders(includeEvicted bool) ([]store.ArchivedOrder, error) {
	return b.store.Archived(includeEvicted)
}

// OnTick advances the book by one tick for the tick's asset: expired
// orders are evicted, then the executable ones are resolved and filled
// in deterministic (validFrom, priority, insertion) order. At most one
// portfolio snapshot is requested per tick, re-fetched only when an
// earlier fill in the same tick has changed the portfolio and a later
// order needs fresh state. Committed fills are reported to the ledger
// before the next order in the sequence is resolved.
func (b *Book) OnTick(ctx context.Context, tick domain.Tick) ([]domain.Fill, error) {
	evicted, err := b.store.Evict(tick.Asset, tick.Time)
	if err != nil {
		return nil, err
	}
	for _, o := range evicted {
		if err := b.store.Archive(b.archived(o, domain.OrderStatusEvicted, 0, 0, 0, tick.Time)); err != nil {
			return nil, err
		}
		b.log.Debug("order evicted", slog.String("id", o.ID), slog.String("asset", o.Asset.String()))
	}

	low, high := tick.Range()
	orders, err := b.store.Executable(tick.Asset, tick.Time, low, high)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	px := tick.ExpectedPrice()
	opts := domain.ResolveOptions{PercentAllowShort: b.cfg.PercentAllowShort}

	var (
		fills []domain.Fill
		pv    *domain.PortfolioValue
		dirty bool
	)
	snapshot := func() (*domain.PortfolioValue, error) {
		if pv == nil || dirty {
			v, err := b.pf.PortfolioValue(ctx)
			if err != nil {
				return nil, err
			}
			pv, dirty = &v, false
		}
		return pv, nil
	}

	for _, o := range orders {
		if o.NeedsPortfolio() {
			if _, err := snapshot(); err != nil {
				return fills, err
			}
		}
		qty := o.Resolve(pv, px, opts)
		if math.Abs(qty) < resolveEpsilon {
			// A close against a flat position, or a target already
			// met. The order leaves the book as a zero-size no-op.
			if _, err := b.store.Remove(o.ID); err != nil {
				return fills, err
			}
			if err := b.store.Archive(b.archived(o, domain.OrderStatusExecuted, 0, 0, 0, tick.Time)); err != nil {
				return fills, err
			}
			continue
		}

		price, ok := tick.FillPrice(qty, o.ValidFrom, o.Limit)
		if !ok {
			continue // limit not met on this tick, order stays
		}
		price = domain.ApplySlippage(price, qty, b.cfg.Slippage)

		if b.cfg.RelativeOrderMinImpact > 0 {
			snap, err := snapshot()
			if err != nil {
				return fills, err
			}
			if total := snap.Value(); total > 0 && math.Abs(qty*price)/total < b.cfg.RelativeOrderMinImpact {
				if _, err := b.store.Remove(o.ID); err != nil {
					return fills, err
				}
				if err := b.store.Archive(b.archived(o, domain.OrderStatusDiscarded, qty, price, 0, tick.Time)); err != nil {
					return fills, err
				}
				b.log.Debug("fill discarded below impact threshold",
					slog.String("id", o.ID),
					slog.Float64("quantity", qty),
					slog.Float64("price", price))
				continue
			}
		}

		fee := b.cfg.Fee(qty, price)
		if _, err := b.store.Remove(o.ID); err != nil {
			return fills, err
		}
		fill := domain.Fill{Asset: o.Asset, Time: tick.Time, Quantity: qty, Price: price, Fee: fee}
		if err := b.pf.ApplyFill(ctx, fill); err != nil {
			return fills, err
		}
		if err := b.store.Archive(b.archived(o, domain.OrderStatusExecuted, qty, price, fee, tick.Time)); err != nil {
			return fills, err
		}
		fills = append(fills, fill)
		dirty = true
		b.log.Debug("order executed",
			slog.String("id", o.ID),
			slog.String("asset", o.Asset.String()),
			slog.Float64("quantity", qty),
			slog.Float64("price", price),
			slog.Float64("fee", fee))
	}
	return fills, nil
}

func (b *Book) archived(o domain.Order, status domain.OrderStatus, qty, price, fee float64, at time.Time) store.ArchivedOrder {
	return store.ArchivedOrder{
		StrategyID:     b.cfg.StrategyID,
		OrderID:        o.ID,
		Kind:           o.Kind,
		Asset:          o.Asset,
		RequestedSize:  o.Size,
		Limit:          o.Limit,
		StopLimit:      o.StopLimit,
		ValidFrom:      o.ValidFrom,
		ValidUntil:     o.EffectiveValidUntil(),
		Status:         status,
		FilledQuantity: qty,
		FilledPrice:    price,
		FilledFee:      fee,
		ExecutedAt:     at,
	}
}
