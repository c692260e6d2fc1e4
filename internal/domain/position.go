package domain

import "time"

// Position is the ledger's per-asset accounting state. Value always
// equals Quantity times the last applied price; CostBasis is the
// weighted-average price paid for the currently held quantity and is
// reset whenever the quantity crosses zero.
type Position struct {
	Asset       Asset
	Time        time.Time
	Quantity    float64
	CostBasis   float64
	Value       float64
	RealizedPnL float64
}

// ApplyTrade returns the position after a fill of dQty at price,
// leaving the receiver untouched. Realized PnL accumulates when the
// quantity is reduced toward or through zero:
//
//   - increasing an existing long or short: cost basis becomes the
//     weighted average, nothing is realized
//   - reducing without crossing zero: cost basis unchanged, the closed
//     portion realizes against it
//   - crossing zero: the portion up to zero realizes against the old
//     cost basis, the remainder opens a new position at the fill price
//   - from flat: cost basis is the fill price
func (p Position) ApplyTrade(dQty, price float64) Position {
	newQty := p.Quantity + dQty
	costBasis := p.CostBasis
	var realized float64

	switch {
	case p.Quantity > 0 && newQty < p.Quantity:
		// Long reduced (possibly into a short).
		if newQty < 0 {
			costBasis = price
		}
		closed := min(-dQty, p.Quantity)
		realized = closed*price - closed*p.CostBasis

	case p.Quantity > 0 && newQty > p.Quantity:
		costBasis = (p.CostBasis*p.Quantity + price*dQty) / newQty

	case p.Quantity < 0 && newQty > p.Quantity:
		// Short reduced (possibly into a long).
		if newQty > 0 {
			costBasis = price
		}
		closed := min(dQty, -p.Quantity)
		realized = closed*p.CostBasis - closed*price

	case p.Quantity < 0 && newQty < p.Quantity:
		costBasis = (p.CostBasis*p.Quantity + price*dQty) / newQty

	default:
		// From flat.
		costBasis = price
	}

	return Position{
		Asset:       p.Asset,
		Time:        p.Time,
		Quantity:    newQty,
		CostBasis:   costBasis,
		Value:       newQty * price,
		RealizedPnL: p.RealizedPnL + realized,
	}
}

// WithValuation returns the position restamped at t with the given
// market value. Quantity, cost basis and realized PnL are unchanged.
func (p Position) WithValuation(t time.Time, value float64) Position {
	p.Time = t
	p.Value = value
	return p
}

// UnrealizedPnL is the profit the position would realize if closed at
// the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.CostBasis) * p.Quantity
}

// Fill is a committed trade reported by the order book to the ledger.
type Fill struct {
	Asset    Asset
	Time     time.Time
	Quantity float64
	Price    float64
	Fee      float64
}
