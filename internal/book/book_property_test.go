package book

import (
	"context"
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/store"
)

// drawBar generates an OHLC bar whose open and close lie inside the
// low/high range.
func drawBar(t *rapid.T, asset domain.Asset, at time.Time) domain.Tick {
	low := rapid.Float64Range(1, 500).Draw(t, "low")
	high := rapid.Float64Range(low, low+500).Draw(t, "high")
	open := rapid.Float64Range(low, high).Draw(t, "open")
	clos := rapid.Float64Range(low, high).Draw(t, "close")
	return domain.NewBarTick(asset, at, open, high, low, clos)
}

// An unlimited order first in force at a bar must fill at that bar's
// open, never at its close: the close is not yet known at the moment
// the order becomes valid.
func TestOnTick_NoLookAhead(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		validFrom := day1.Add(time.Duration(rapid.Int64Range(0, 3600).Draw(rt, "offset")) * time.Second)
		size := rapid.Float64Range(1, 100).Draw(rt, "size")
		if rapid.Bool().Draw(rt, "short") {
			size = -size
		}

		pf := newFakePortfolio(0)
		b := New(Config{StrategyID: "prop"}, store.NewMemoryBookStore("prop"), pf, nil)
		if _, err := b.Place(domain.Order{Kind: domain.OrderQuantity, Asset: "X", Size: size, ValidFrom: validFrom}); err != nil {
			rt.Fatalf("place: %v", err)
		}

		// A bar strictly before validFrom must not touch the order.
		early := drawBar(rt, "X", validFrom.Add(-time.Second))
		fills, err := b.OnTick(context.Background(), early)
		if err != nil {
			rt.Fatalf("early tick: %v", err)
		}
		if len(fills) != 0 {
			rt.Fatalf("order filled before validFrom: %+v", fills)
		}

		// The first bar at validFrom fills at its open.
		bar := drawBar(rt, "X", validFrom)
		fills, err = b.OnTick(context.Background(), bar)
		if err != nil {
			rt.Fatalf("tick: %v", err)
		}
		if len(fills) != 1 {
			rt.Fatalf("expected one fill, got %d", len(fills))
		}
		if fills[0].Price != bar.Open {
			rt.Fatalf("fill at %g, want the open %g (close %g)", fills[0].Price, bar.Open, bar.Close)
		}
	})
}

// An order already in force before the bar fills at the bar's close.
func TestOnTick_InForceOrderFillsAtClose(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.Float64Range(1, 100).Draw(rt, "size")
		if rapid.Bool().Draw(rt, "short") {
			size = -size
		}

		pf := newFakePortfolio(0)
		b := New(Config{StrategyID: "prop"}, store.NewMemoryBookStore("prop"), pf, nil)
		if _, err := b.Place(domain.Order{
			Kind: domain.OrderQuantity, Asset: "X", Size: size,
			ValidFrom: day1, ValidUntil: day1.Add(48 * time.Hour),
		}); err != nil {
			rt.Fatalf("place: %v", err)
		}

		bar := drawBar(rt, "X", day1.Add(time.Hour))
		fills, err := b.OnTick(context.Background(), bar)
		if err != nil {
			rt.Fatalf("tick: %v", err)
		}
		if len(fills) != 1 {
			rt.Fatalf("expected one fill, got %d", len(fills))
		}
		if fills[0].Price != bar.Close {
			rt.Fatalf("fill at %g, want the close %g (open %g)", fills[0].Price, bar.Close, bar.Open)
		}
	})
}

// Whatever order a mixed same-validFrom batch is placed in, fills come
// out in non-decreasing priority rank: closes, then sell-side orders,
// then buy-side, then percents.
func TestOnTick_SequencingDeterminism(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		batch := []domain.Order{
			{Kind: domain.OrderClose, Asset: "X", ValidFrom: day1},
			{Kind: domain.OrderQuantity, Asset: "X", Size: -3, ValidFrom: day1},
			{Kind: domain.OrderQuantity, Asset: "X", Size: 2, ValidFrom: day1},
			{Kind: domain.OrderTargetWeight, Asset: "X", Size: 0.5, ValidFrom: day1},
			{Kind: domain.OrderPercent, Asset: "X", Size: 0.1, ValidFrom: day1},
		}
		perm := rapid.Permutation(batch).Draw(rt, "perm")

		pf := newFakePortfolio(10_000)
		pf.positions["X"] = 10
		pf.prices["X"] = 100
		b := New(Config{StrategyID: "prop"}, store.NewMemoryBookStore("prop"), pf, nil)
		for _, o := range perm {
			if _, err := b.Place(o); err != nil {
				rt.Fatalf("place %s: %v", o.Kind, err)
			}
		}

		if _, err := b.OnTick(context.Background(), domain.NewLastTick("X", day1, 100)); err != nil {
			rt.Fatalf("tick: %v", err)
		}

		archived, err := b.ExecutedOrders(true)
		if err != nil {
			rt.Fatalf("archived: %v", err)
		}
		if len(archived) != len(batch) {
			rt.Fatalf("expected %d terminal records, got %d", len(batch), len(archived))
		}
		wantKinds := []domain.OrderKind{
			domain.OrderClose,
			domain.OrderQuantity, // the negative one settles before the positive
			domain.OrderQuantity,
			domain.OrderTargetWeight,
			domain.OrderPercent,
		}
		for i, rec := range archived {
			if rec.Kind != wantKinds[i] {
				rt.Fatalf("slot %d: got %s, want %s (order %+v)", i, rec.Kind, wantKinds[i], archived)
			}
		}
		if archived[1].RequestedSize >= 0 {
			rt.Fatalf("sell-side quantity must settle first, got %+v", archived[1])
		}
	})
}

// An order is selectable for every tick up to and including its
// validUntil and gone for any tick after it.
func TestOnTick_EvictionWindow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ttl := time.Duration(rapid.Int64Range(1, 72).Draw(rt, "ttl")) * time.Hour
		probe := time.Duration(rapid.Int64Range(0, 96).Draw(rt, "probe")) * time.Hour

		pf := newFakePortfolio(0)
		b := New(Config{StrategyID: "prop"}, store.NewMemoryBookStore("prop"), pf, nil)
		if _, err := b.Place(domain.Order{
			Kind: domain.OrderQuantity, Asset: "X", Size: 1,
			ValidFrom: day1, ValidUntil: day1.Add(ttl),
			Limit: ptr(math.SmallestNonzeroFloat64), // unreachable buy limit, never fills
		}); err != nil {
			rt.Fatalf("place: %v", err)
		}

		at := day1.Add(probe)
		if _, err := b.OnTick(context.Background(), domain.NewLastTick("X", at, 100)); err != nil {
			rt.Fatalf("tick: %v", err)
		}

		pending, err := b.Pending()
		if err != nil {
			rt.Fatalf("pending: %v", err)
		}
		if expired := at.After(day1.Add(ttl)); expired != (len(pending) == 0) {
			rt.Fatalf("ttl %v, probe %v: expired=%v but %d pending", ttl, probe, expired, len(pending))
		}
	})
}
