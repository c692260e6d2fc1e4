// Package backtest drives deterministic historical replays: strategy
// signals become time-bounded orders, every bar first revalues the
// ledger and then advances the order book, and the run produces the
// reporting tables.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dstolz/tradesim/internal/book"
	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/ledger"
	"github.com/dstolz/tradesim/internal/marketdata"
	"github.com/dstolz/tradesim/internal/store"
	"github.com/dstolz/tradesim/internal/timeseries"
)

// Signal is one strategy decision at a point in time. Either Weights
// (turned into a validated target-weight batch) or explicit Orders.
type Signal struct {
	Time    time.Time
	Weights map[domain.Asset]float64
	Orders  []domain.Order
}

// Config tunes one replay.
type Config struct {
	// SignalDelay is added to a signal's time to form the derived
	// orders' validFrom, so a signal computed from bar T can only
	// execute on a later bar. Zero means one second.
	SignalDelay time.Duration
	// Resample reduces the performance tables; empty keeps every
	// observation.
	Resample ledger.Resample
}

// Result bundles everything a replay produced.
type Result struct {
	// MarketData is the consumed price table, forward-filled over the
	// union index.
	MarketData *timeseries.Table
	// Placed are the signal-derived orders as the book accepted them.
	Placed []domain.Order
	// Orders is the archive of every order that reached a terminal
	// state, evicted ones included.
	Orders []store.ArchivedOrder
	// Values, Weights and Performance are the ledger's reporting
	// tables.
	Values      *timeseries.Table
	Weights     *timeseries.Table
	Performance *timeseries.Table
}

// Orchestrator replays a frame of market data against a running ledger
// and book.
type Orchestrator struct {
	cfg    Config
	log    *slog.Logger
	frame  *marketdata.Frame
	ledger *ledger.Client
	book   *book.Client
}

// New creates an orchestrator over the given frame and components.
func New(cfg Config, frame *marketdata.Frame, lc *ledger.Client, bc *book.Client, log *slog.Logger) *Orchestrator {
	if cfg.SignalDelay == 0 {
		cfg.SignalDelay = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, log: log, frame: frame, ledger: lc, book: bc}
}

// PlaceSignals turns strategy signals into orders and places them.
// Each derived order runs from the signal's time plus the configured
// delay until the asset's next bar, so it executes on exactly that bar
// or not at all. Orders carrying their own window keep it.
func (o *Orchestrator) PlaceSignals(ctx context.Context, signals []Signal) ([]domain.Order, error) {
	var placed []domain.Order
	for _, s := range signals {
		validFrom := s.Time.Add(o.cfg.SignalDelay)

		orders := s.Orders
		if len(s.Weights) > 0 {
			batch, err := domain.TargetWeightBatch(s.Weights, validFrom, time.Time{})
			if err != nil {
				return placed, fmt.Errorf("signal at %s: %w", s.Time.Format(time.RFC3339), err)
			}
			orders = append(orders, batch...)
		}

		for _, ord := range orders {
			if ord.ValidFrom.IsZero() {
				ord.ValidFrom = validFrom
			}
			if ord.ValidUntil.IsZero() {
				if next, ok := o.frame.Next(ord.Asset, s.Time); ok && !next.Before(ord.ValidFrom) {
					ord.ValidUntil = next
				}
			}
			accepted, err := o.book.Place(ctx, ord)
			if err != nil {
				return placed, fmt.Errorf("place %s %s: %w", ord.Kind, ord.Asset, err)
			}
			placed = append(placed, accepted)
		}
	}
	return placed, nil
}

// Replay walks the union time index in ascending order. For every
// asset with new data at a timestamp the ledger's revaluation is
// awaited before the book's tick is delivered; a revaluation failure
// or timeout aborts the replay because order resolution would
// otherwise run on stale state.
func (o *Orchestrator) Replay(ctx context.Context, signals []Signal) (*Result, error) {
	placed, err := o.PlaceSignals(ctx, signals)
	if err != nil {
		return nil, err
	}

	timestamps := o.frame.Timestamps()
	o.log.Info("replay started",
		slog.Int("timestamps", len(timestamps)),
		slog.Int("ticks", o.frame.Len()),
		slog.Int("orders", len(placed)))

	for _, ts := range timestamps {
		for _, tick := range o.frame.At(ts) {
			if err := o.ledger.Tick(ctx, tick); err != nil {
				return nil, fmt.Errorf("revalue %s at %s: %w", tick.Asset, ts.Format(time.RFC3339), err)
			}
			if _, err := o.book.Tick(ctx, tick); err != nil {
				return nil, fmt.Errorf("book tick %s at %s: %w", tick.Asset, ts.Format(time.RFC3339), err)
			}
		}
	}

	archive, err := o.book.ExecutedOrders(ctx, true)
	if err != nil {
		return nil, err
	}
	report, err := o.ledger.Performance(ctx, time.Time{}, o.cfg.Resample)
	if err != nil {
		return nil, err
	}

	o.log.Info("replay finished", slog.Int("archived_orders", len(archive)))
	return &Result{
		MarketData:  o.frame.Table(),
		Placed:      placed,
		Orders:      archive,
		Values:      report.Values,
		Weights:     report.Weights,
		Performance: report.Curve,
	}, nil
}
