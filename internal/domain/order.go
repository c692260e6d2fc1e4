package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderKind identifies how an order's Size is interpreted when the
// order is resolved into a concrete signed quantity.
type OrderKind string

const (
	// OrderClose flattens the current position; Size is ignored.
	OrderClose OrderKind = "close"
	// OrderQuantity trades the literal signed Size.
	OrderQuantity OrderKind = "quantity"
	// OrderTargetQuantity trades the difference between Size and the
	// currently held quantity.
	OrderTargetQuantity OrderKind = "target_quantity"
	// OrderPercent invests Size (a fraction in (0,1]) of the available
	// cash at the execution price.
	OrderPercent OrderKind = "percent"
	// OrderTargetWeight trades towards Size as the position's fraction
	// of total portfolio value.
	OrderTargetWeight OrderKind = "target_weight"
)

// OrderStatus represents the terminal lifecycle state of an archived
// order. A placed order reaches exactly one of these.
type OrderStatus string

const (
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusEvicted   OrderStatus = "evicted"
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusDiscarded marks a fill suppressed by the relative
	// order impact threshold.
	OrderStatusDiscarded OrderStatus = "discarded"
)

// Order is an immutable order intent. Size carries kind-specific
// meaning and Limit/StopLimit/ValidUntil are optional.
type Order struct {
	ID         string
	Kind       OrderKind
	Asset      Asset
	Size       float64
	ValidFrom  time.Time
	ValidUntil time.Time // zero value → end of the ValidFrom calendar day
	Limit      *float64
	StopLimit  *float64
}

// EffectiveValidUntil returns the order's expiry, defaulting to the
// midnight following ValidFrom when no explicit ValidUntil is set.
func (o Order) EffectiveValidUntil() time.Time {
	if !o.ValidUntil.IsZero() {
		return o.ValidUntil
	}
	next := o.ValidFrom.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
}

// NeedsPortfolio reports whether resolving the order requires a
// portfolio snapshot.
func (o Order) NeedsPortfolio() bool {
	return o.Kind != OrderQuantity
}

// Priority ranks same-tick orders for deterministic sequencing: closes
// settle first, then sell-side orders, so that later buy-side orders
// resolving against cash or weight observe the post-sale state.
func (o Order) Priority() int {
	switch o.Kind {
	case OrderClose:
		return 0
	case OrderQuantity:
		if o.Size < 0 {
			return 1
		}
		return 4
	case OrderTargetQuantity:
		if o.Size < 0 {
			return 2
		}
		return 4
	case OrderTargetWeight:
		if o.Size < 0 {
			return 3
		}
		return 4
	default: // OrderPercent
		return 5
	}
}

// ResolveOptions tune order resolution.
type ResolveOptions struct {
	// PercentAllowShort lets a negative percent order open a short;
	// when false negative percents resolve to zero.
	PercentAllowShort bool
}

// Resolve converts the order into a concrete signed quantity given a
// portfolio snapshot and an execution-price quote. It is a pure
// function: pv may be nil only for quantity orders, every other kind
// resolves to a zero-size no-op without a snapshot. An asset missing
// from the snapshot is treated as a zero position, not an error.
func (o Order) Resolve(pv *PortfolioValue, px ExpectedExecutionPrice, opts ResolveOptions) float64 {
	switch o.Kind {
	case OrderQuantity:
		return o.Size

	case OrderClose:
		if pv == nil {
			return 0
		}
		if p, ok := pv.Positions[o.Asset]; ok {
			return -p.Qty
		}
		return 0

	case OrderPercent:
		if pv == nil {
			return 0
		}
		pct := o.Size
		if !opts.PercentAllowShort {
			pct = math.Max(pct, 0)
		}
		if pct == 0 {
			return 0
		}
		// Buys price at the ask, shorts at the bid.
		price := px.Evaluate(sign(pct), o.ValidFrom, o.Limit)
		return pct * math.Max(pv.Cash, 0) / price

	case OrderTargetQuantity:
		if pv == nil {
			return 0
		}
		if p, ok := pv.Positions[o.Asset]; ok {
			return o.Size - p.Qty
		}
		return o.Size

	case OrderTargetWeight:
		if pv == nil {
			return 0
		}
		w := o.Size
		if p, ok := pv.Positions[o.Asset]; ok {
			w -= p.Weight
		}
		price := px.Evaluate(sign(w), o.ValidFrom, o.Limit)
		return pv.Value() * w / price

	default:
		return 0
	}
}

// weightEpsilon is the tolerance applied to target-weight bounds checks.
const weightEpsilon = 1e-5

// TargetWeightBatch builds one target-weight order per asset after
// validating the weight vector: the sum and every individual weight
// must lie within ±(1+1e-5). Violations are rejected at construction
// time, never at execution time.
func TargetWeightBatch(weights map[Asset]float64, validFrom, validUntil time.Time) ([]Order, error) {
	if len(weights) == 0 {
		return nil, &ValidationError{Message: "target weight batch must not be empty"}
	}

	var sum float64
	for asset, w := range weights {
		if w > 1+weightEpsilon || w < -1-weightEpsilon {
			return nil, fmt.Errorf("%w: weight %g for %s outside ±1", ErrWeightBounds, w, asset)
		}
		sum += w
	}
	if sum > 1+weightEpsilon || sum < -1-weightEpsilon {
		return nil, fmt.Errorf("%w: weight sum %g outside ±1", ErrWeightBounds, sum)
	}

	orders := make([]Order, 0, len(weights))
	for asset, w := range weights {
		orders = append(orders, Order{
			Kind:       OrderTargetWeight,
			Asset:      asset,
			Size:       w,
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
		})
	}
	return orders, nil
}
