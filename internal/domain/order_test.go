package domain

import (
	"errors"
	"testing"
	"time"
)

var (
	resolveTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tickTime    = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
)

// snapshot builds a PortfolioValue with cash plus the given positions.
func snapshot(cash float64, positions ...PositionValue) *PortfolioValue {
	pv := &PortfolioValue{Cash: cash, Positions: map[Asset]PositionValue{}}
	var total float64
	total = cash
	for _, p := range positions {
		total += p.Value
	}
	pv.Positions[CASH] = PositionValue{Asset: CASH, Qty: cash, Weight: cash / total, Value: cash}
	for _, p := range positions {
		p.Weight = p.Value / total
		pv.Positions[p.Asset] = p
	}
	return pv
}

func expected(t time.Time, open, close float64) ExpectedExecutionPrice {
	return ExpectedExecutionPrice{Time: t, OpenBid: open, OpenAsk: open, CloseBid: close, CloseAsk: close}
}

func TestResolve_Quantity_IsIdentity(t *testing.T) {
	o := Order{Kind: OrderQuantity, Asset: "AAPL", Size: -3, ValidFrom: resolveTime}
	if got := o.Resolve(nil, expected(tickTime, 100, 101), ResolveOptions{}); got != -3 {
		t.Errorf("expected -3, got %g", got)
	}
}

func TestResolve_Close(t *testing.T) {
	o := Order{Kind: OrderClose, Asset: "AAPL", ValidFrom: resolveTime}
	px := expected(tickTime, 100, 101)

	pv := snapshot(500, PositionValue{Asset: "AAPL", Qty: 4, Value: 400})
	if got := o.Resolve(pv, px, ResolveOptions{}); got != -4 {
		t.Errorf("expected -4, got %g", got)
	}

	// No snapshot and unknown asset both resolve to a no-op, not an error.
	if got := o.Resolve(nil, px, ResolveOptions{}); got != 0 {
		t.Errorf("expected 0 without snapshot, got %g", got)
	}
	if got := o.Resolve(snapshot(500), px, ResolveOptions{}); got != 0 {
		t.Errorf("expected 0 for unknown asset, got %g", got)
	}
}

func TestResolve_Percent(t *testing.T) {
	px := expected(tickTime, 100, 101)
	pv := snapshot(1000)

	o := Order{Kind: OrderPercent, Asset: "AAPL", Size: 0.5, ValidFrom: resolveTime}
	// Tick time is after validFrom, so the close-side ask applies.
	if got := o.Resolve(pv, px, ResolveOptions{}); !almostEqual(got, 0.5*1000/101) {
		t.Errorf("expected %g, got %g", 0.5*1000/101, got)
	}

	// Negative cash never produces a buy.
	if got := o.Resolve(snapshot(-200), px, ResolveOptions{}); got != 0 {
		t.Errorf("expected 0 with negative cash, got %g", got)
	}

	// Negative percent is clamped unless shorts are explicitly allowed.
	short := Order{Kind: OrderPercent, Asset: "AAPL", Size: -0.5, ValidFrom: resolveTime}
	if got := short.Resolve(pv, px, ResolveOptions{}); got != 0 {
		t.Errorf("expected clamped 0, got %g", got)
	}
	if got := short.Resolve(pv, px, ResolveOptions{PercentAllowShort: true}); !almostEqual(got, -0.5*1000/101) {
		t.Errorf("expected %g, got %g", -0.5*1000/101, got)
	}

	// With distinct sides an allowed short prices at the bid, not the ask.
	sided := ExpectedExecutionPrice{Time: tickTime, OpenBid: 99, OpenAsk: 100, CloseBid: 100, CloseAsk: 101}
	if got := short.Resolve(pv, sided, ResolveOptions{PercentAllowShort: true}); !almostEqual(got, -0.5*1000/100) {
		t.Errorf("expected short at the bid %g, got %g", -0.5*1000/100, got)
	}
	if got := o.Resolve(pv, sided, ResolveOptions{}); !almostEqual(got, 0.5*1000/101) {
		t.Errorf("expected buy at the ask %g, got %g", 0.5*1000/101, got)
	}

	if got := o.Resolve(nil, px, ResolveOptions{}); got != 0 {
		t.Errorf("expected 0 without snapshot, got %g", got)
	}
}

func TestResolve_TargetQuantity(t *testing.T) {
	px := expected(tickTime, 100, 101)
	o := Order{Kind: OrderTargetQuantity, Asset: "AAPL", Size: 10, ValidFrom: resolveTime}

	pv := snapshot(500, PositionValue{Asset: "AAPL", Qty: 4, Value: 400})
	if got := o.Resolve(pv, px, ResolveOptions{}); got != 6 {
		t.Errorf("expected 6, got %g", got)
	}

	// Unknown asset counts as a zero position.
	if got := o.Resolve(snapshot(500), px, ResolveOptions{}); got != 10 {
		t.Errorf("expected 10, got %g", got)
	}
}

func TestResolve_TargetWeight(t *testing.T) {
	px := expected(tickTime, 100, 101)
	// 400 of AAPL on 600 cash: total 1000, current weight 0.4.
	pv := snapshot(600, PositionValue{Asset: "AAPL", Qty: 4, Value: 400})

	o := Order{Kind: OrderTargetWeight, Asset: "AAPL", Size: 0.6, ValidFrom: resolveTime}
	// Buying side resolves at the close ask.
	want := 1000 * (0.6 - 0.4) / 101
	if got := o.Resolve(pv, px, ResolveOptions{}); !almostEqual(got, want) {
		t.Errorf("expected %g, got %g", want, got)
	}

	// Reducing the weight resolves at the bid side.
	down := Order{Kind: OrderTargetWeight, Asset: "AAPL", Size: 0.2, ValidFrom: resolveTime}
	bidPx := ExpectedExecutionPrice{Time: tickTime, OpenBid: 99, OpenAsk: 100, CloseBid: 100, CloseAsk: 101}
	wantDown := 1000 * (0.2 - 0.4) / 100
	if got := down.Resolve(pv, bidPx, ResolveOptions{}); !almostEqual(got, wantDown) {
		t.Errorf("expected %g, got %g", wantDown, got)
	}

	if got := o.Resolve(nil, px, ResolveOptions{}); got != 0 {
		t.Errorf("expected 0 without snapshot, got %g", got)
	}
}

func TestEffectiveValidUntil_DefaultsToEndOfDay(t *testing.T) {
	o := Order{Kind: OrderQuantity, Asset: "AAPL", Size: 1, ValidFrom: resolveTime}
	want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := o.EffectiveValidUntil(); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	explicit := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	o.ValidUntil = explicit
	if got := o.EffectiveValidUntil(); !got.Equal(explicit) {
		t.Errorf("expected explicit %v, got %v", explicit, got)
	}
}

func TestPriority_Ordering(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  int
	}{
		{"close", Order{Kind: OrderClose}, 0},
		{"negative quantity", Order{Kind: OrderQuantity, Size: -1}, 1},
		{"negative target quantity", Order{Kind: OrderTargetQuantity, Size: -1}, 2},
		{"negative target weight", Order{Kind: OrderTargetWeight, Size: -0.2}, 3},
		{"positive quantity", Order{Kind: OrderQuantity, Size: 1}, 4},
		{"positive target quantity", Order{Kind: OrderTargetQuantity, Size: 1}, 4},
		{"positive target weight", Order{Kind: OrderTargetWeight, Size: 0.2}, 4},
		{"percent", Order{Kind: OrderPercent, Size: 0.5}, 5},
	}
	for _, tt := range tests {
		if got := tt.order.Priority(); got != tt.want {
			t.Errorf("%s: expected priority %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestTargetWeightBatch_Valid(t *testing.T) {
	orders, err := TargetWeightBatch(map[Asset]float64{"AAPL": 0.25, "MSFT": 0.75}, resolveTime, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Kind != OrderTargetWeight {
			t.Errorf("expected target weight order, got %s", o.Kind)
		}
		if !o.ValidFrom.Equal(resolveTime) {
			t.Errorf("expected validFrom %v, got %v", resolveTime, o.ValidFrom)
		}
	}
}

func TestTargetWeightBatch_RejectsOutOfBounds(t *testing.T) {
	tests := []struct {
		name    string
		weights map[Asset]float64
	}{
		{"sum above one", map[Asset]float64{"AAPL": 0.5, "MSFT": 0.51}},
		{"sum below minus one", map[Asset]float64{"AAPL": -0.5, "MSFT": -0.51}},
		{"single weight above one", map[Asset]float64{"AAPL": 1.1, "MSFT": -0.5}},
		{"single weight below minus one", map[Asset]float64{"AAPL": -1.1, "MSFT": 0.5}},
	}
	for _, tt := range tests {
		if _, err := TargetWeightBatch(tt.weights, resolveTime, time.Time{}); !errors.Is(err, ErrWeightBounds) {
			t.Errorf("%s: expected ErrWeightBounds, got %v", tt.name, err)
		}
	}
}

func TestTargetWeightBatch_ToleratesEpsilon(t *testing.T) {
	if _, err := TargetWeightBatch(map[Asset]float64{"AAPL": 1.000001}, resolveTime, time.Time{}); err != nil {
		t.Errorf("weights within 1e-5 of the bound must pass, got %v", err)
	}
}

func TestTargetWeightBatch_RejectsEmpty(t *testing.T) {
	var vErr *ValidationError
	if _, err := TargetWeightBatch(nil, resolveTime, time.Time{}); !errors.As(err, &vErr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
