package domain

import "time"

// TickKind distinguishes the three quote shapes a tick can carry.
type TickKind string

const (
	TickLast   TickKind = "last"
	TickBidAsk TickKind = "bid_ask"
	TickBar    TickKind = "bar"
)

// Tick is a single market data update for one asset. Exactly one of the
// price groups is meaningful, selected by Kind.
type Tick struct {
	Asset Asset
	Time  time.Time
	Kind  TickKind

	// TickLast
	Price float64

	// TickBidAsk
	Bid float64
	Ask float64

	// TickBar
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// NewLastTick creates a scalar last-price tick.
func NewLastTick(asset Asset, t time.Time, price float64) Tick {
	return Tick{Asset: asset, Time: t, Kind: TickLast, Price: price}
}

// NewBidAskTick creates a bid/ask tick.
func NewBidAskTick(asset Asset, t time.Time, bid, ask float64) Tick {
	return Tick{Asset: asset, Time: t, Kind: TickBidAsk, Bid: bid, Ask: ask}
}

// NewBarTick creates an OHLC bar tick.
func NewBarTick(asset Asset, t time.Time, open, high, low, close float64) Tick {
	return Tick{Asset: asset, Time: t, Kind: TickBar, Open: open, High: high, Low: low, Close: close}
}

// Range returns the (low, high) price range the tick spans, used for
// limit satisfaction checks.
func (t Tick) Range() (low, high float64) {
	switch t.Kind {
	case TickBidAsk:
		return t.Bid, t.Ask
	case TickBar:
		return t.Low, t.High
	default:
		return t.Price, t.Price
	}
}

// ExpectedPrice derives the open/close bid and ask sides used for
// order resolution. Scalar and bid/ask ticks have no open/close
// distinction, so both sides collapse to the same values.
func (t Tick) ExpectedPrice() ExpectedExecutionPrice {
	switch t.Kind {
	case TickBidAsk:
		return ExpectedExecutionPrice{Time: t.Time, OpenBid: t.Bid, OpenAsk: t.Ask, CloseBid: t.Bid, CloseAsk: t.Ask}
	case TickBar:
		return ExpectedExecutionPrice{Time: t.Time, OpenBid: t.Open, OpenAsk: t.Open, CloseBid: t.Close, CloseAsk: t.Close}
	default:
		return ExpectedExecutionPrice{Time: t.Time, OpenBid: t.Price, OpenAsk: t.Price, CloseBid: t.Price, CloseAsk: t.Price}
	}
}

// ExpectedExecutionPrice is the quote an order resolves against.
// The open/close split prevents look-ahead: an order that was already
// in force before this tick's reference time may only be resolved
// against the tick's opening side.
type ExpectedExecutionPrice struct {
	Time     time.Time
	OpenBid  float64
	OpenAsk  float64
	CloseBid float64
	CloseAsk float64
}

// Evaluate returns the price an order of the given sign would resolve
// at. A set limit always wins. Otherwise buys (sign>0) use the ask
// side and sells the bid side, choosing close-side values when the
// tick's time is strictly after the order's validFrom and open-side
// values otherwise.
func (p ExpectedExecutionPrice) Evaluate(sign float64, validFrom time.Time, limit *float64) float64 {
	if limit != nil {
		return *limit
	}
	open, close := p.OpenBid, p.CloseBid
	if sign > 0 {
		open, close = p.OpenAsk, p.CloseAsk
	}
	if p.Time.After(validFrom) {
		return close
	}
	return open
}

// LimitSatisfied reports whether a limit order of the given signed
// quantity could fill inside this tick's range: buys need the market
// to have traded down to the limit (limit >= low), sells need it to
// have traded up to the limit (limit <= high). A nil limit is always
// satisfied.
func (t Tick) LimitSatisfied(qty float64, limit *float64) bool {
	if limit == nil {
		return true
	}
	low, high := t.Range()
	if qty < 0 {
		return *limit <= high
	}
	return *limit >= low
}

// FillPrice decides whether and at what price an order for the given
// signed quantity would fill against this tick, before slippage.
// Scalar ticks fill at the last price when the limit is met. Bid/ask
// ticks fill buys at the ask and sells at the bid. Bars fill limit
// buys at min(open, limit) when the bar's low reached the limit, limit
// sells at max(open, limit) when the high reached it, and unlimited
// orders at the open or close side per the look-ahead selection rule.
func (t Tick) FillPrice(qty float64, validFrom time.Time, limit *float64) (float64, bool) {
	switch t.Kind {
	case TickLast:
		if limit != nil {
			if qty > 0 && *limit < t.Price {
				return 0, false
			}
			if qty < 0 && *limit > t.Price {
				return 0, false
			}
		}
		return t.Price, true

	case TickBidAsk:
		if qty < 0 {
			if limit != nil && *limit > t.Bid {
				return 0, false
			}
			return t.Bid, true
		}
		if limit != nil && *limit < t.Ask {
			return 0, false
		}
		return t.Ask, true

	case TickBar:
		if limit == nil {
			return t.ExpectedPrice().Evaluate(sign(qty), validFrom, nil), true
		}
		if qty < 0 {
			if *limit > t.High {
				return 0, false
			}
			return max(t.Open, *limit), true
		}
		if *limit < t.Low {
			return 0, false
		}
		return min(t.Open, *limit), true

	default:
		return 0, false
	}
}

// ApplySlippage worsens a fill price by the configured slippage
// fraction: buys pay more, sells receive less.
func ApplySlippage(price, qty, slippage float64) float64 {
	if qty < 0 {
		return price * (1 - slippage)
	}
	return price * (1 + slippage)
}

func sign(f float64) float64 {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}
