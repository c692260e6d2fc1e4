// Package marketdata supplies price data to the replay: a multi-asset
// frame over a union time index, a CSV bar loader and a websocket
// bid/ask stream source.
package marketdata

import (
	"sort"
	"time"

	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/timeseries"
)

// Frame holds per-asset tick series over a shared time axis. The
// replay walks the union of all assets' timestamps in ascending order
// and delivers, at each one, the ticks of the assets with new data.
type Frame struct {
	series map[domain.Asset][]domain.Tick
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{series: make(map[domain.Asset][]domain.Tick)}
}

// Add inserts one tick, keeping the asset's series sorted by time.
func (f *Frame) Add(t domain.Tick) {
	s := f.series[t.Asset]
	i := sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(t.Time) })
	s = append(s, domain.Tick{})
	copy(s[i+1:], s[i:])
	s[i] = t
	f.series[t.Asset] = s
}

// AddSeries inserts a whole series for one asset.
func (f *Frame) AddSeries(ticks []domain.Tick) {
	for _, t := range ticks {
		f.Add(t)
	}
}

// Assets returns the frame's assets in stable order.
func (f *Frame) Assets() []domain.Asset {
	out := make([]domain.Asset, 0, len(f.series))
	for a := range f.series {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the total number of ticks.
func (f *Frame) Len() int {
	var n int
	for _, s := range f.series {
		n += len(s)
	}
	return n
}

// Timestamps returns the sorted union of all assets' timestamps,
// deduplicated.
func (f *Frame) Timestamps() []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, s := range f.series {
		for _, t := range s {
			key := t.Time.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// At returns the ticks stamped exactly at ts, in asset order.
func (f *Frame) At(ts time.Time) []domain.Tick {
	var out []domain.Tick
	for _, asset := range f.Assets() {
		s := f.series[asset]
		i := sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(ts) })
		for ; i < len(s) && s[i].Time.Equal(ts); i++ {
			out = append(out, s[i])
		}
	}
	return out
}

// Next returns the asset's first timestamp strictly after ts, used to
// bound signal-derived orders to the next bar.
func (f *Frame) Next(asset domain.Asset, ts time.Time) (time.Time, bool) {
	s := f.series[asset]
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(ts) })
	if i >= len(s) {
		return time.Time{}, false
	}
	return s[i].Time, true
}

// Table flattens the frame into a reference-price table (bar close,
// bid/ask mid, or last) forward-filled over the union index, for the
// replay's market-data result.
func (f *Frame) Table() *timeseries.Table {
	tbl := timeseries.New()
	for asset, s := range f.series {
		for _, t := range s {
			tbl.Set(t.Time, asset.String(), referencePrice(t))
		}
	}
	tbl.ForwardFill()
	return tbl
}

func referencePrice(t domain.Tick) float64 {
	switch t.Kind {
	case domain.TickBar:
		return t.Close
	case domain.TickBidAsk:
		return (t.Bid + t.Ask) / 2
	default:
		return t.Price
	}
}
