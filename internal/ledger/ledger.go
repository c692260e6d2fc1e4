// Package ledger implements the portfolio ledger: per-asset position
// state with weighted-average cost basis, realized PnL, valuation
// history and performance reporting. Cash is tracked as a position of
// the reserved CASH asset, priced at 1.0 forever.
package ledger

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/store"
	"github.com/dstolz/tradesim/internal/timeseries"
)

// Config tunes one ledger instance.
type Config struct {
	// Funding is the initial cash balance.
	Funding float64
	// FundingTime is the instant the portfolio was funded; trades at
	// or before it are rejected.
	FundingTime time.Time
	// TrackCapital enables the accounting guard that fails the replay
	// when cash drops below -CashTolerance.
	TrackCapital bool
	// CashTolerance is how far below zero cash may go before the
	// guard fires. Only meaningful with TrackCapital.
	CashTolerance float64
	// RejectSameTimeTrades rejects the second fill for one asset at
	// an identical timestamp instead of applying it. Off by default:
	// one book tick may legitimately settle several orders on the same
	// asset at the same instant, and rejecting those would abort every
	// multi-order replay step.
	RejectSameTimeTrades bool
}

// Ledger is the single-writer portfolio state. It is not safe for
// concurrent use; run it behind its actor.
type Ledger struct {
	cfg       Config
	log       *slog.Logger
	positions map[domain.Asset]domain.Position
	lastTrade map[domain.Asset]time.Time
	store     store.PositionStore
}

// New creates a funded ledger writing its history through st.
func New(cfg Config, st store.PositionStore, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{
		cfg:       cfg,
		log:       log,
		positions: make(map[domain.Asset]domain.Position),
		lastTrade: make(map[domain.Asset]time.Time),
		store:     st,
	}

	cash := domain.Position{
		Asset:     domain.CASH,
		Time:      cfg.FundingTime,
		Quantity:  cfg.Funding,
		CostBasis: 1,
		Value:     cfg.Funding,
	}
	l.positions[domain.CASH] = cash
	if err := l.appendHistory(cash); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) appendHistory(p domain.Position) error {
	return l.store.AppendHistory(store.PositionRow{
		Asset:     p.Asset,
		Time:      p.Time,
		Quantity:  p.Quantity,
		CostBasis: p.CostBasis,
		Value:     p.Value,
	})
}

// Revalue updates the stored value of asset at time t: shorts are
// marked at the ask, longs and flats at the bid. Assets the ledger
// holds no position in are ignored. Back-dated revaluations are
// rejected.
func (l *Ledger) Revalue(asset domain.Asset, t time.Time, bid, ask float64) error {
	pos, ok := l.positions[asset]
	if !ok {
		return nil
	}
	if t.Before(pos.Time) {
		return fmt.Errorf("%w: position %s at %s, revalue at %s",
			domain.ErrBackdatedValuation, asset, pos.Time.Format(time.RFC3339), t.Format(time.RFC3339))
	}

	price := bid
	if pos.Quantity < 0 {
		price = ask
	}
	pos = pos.WithValuation(t, pos.Quantity*price)
	l.positions[asset] = pos
	return l.appendHistory(pos)
}

// ApplyFill books a committed trade: cash moves by -qty*price-fee,
// the traded asset's position is updated through the cost-basis
// algorithm, and both are revalued at the fill's own timestamp (the
// trade price is the one price we know exactly).
func (l *Ledger) ApplyFill(f domain.Fill) error {
	if !f.Time.After(l.cfg.FundingTime) {
		return fmt.Errorf("%w: trade at %s, funded at %s",
			domain.ErrTradeBeforeFunding, f.Time.Format(time.RFC3339), l.cfg.FundingTime.Format(time.RFC3339))
	}

	pos, ok := l.positions[f.Asset]
	if !ok {
		pos = domain.Position{Asset: f.Asset, Time: f.Time}
	}
	if f.Time.Before(pos.Time) {
		return fmt.Errorf("%w: position %s at %s, trade at %s",
			domain.ErrBackdatedValuation, f.Asset, pos.Time.Format(time.RFC3339), f.Time.Format(time.RFC3339))
	}
	if l.cfg.RejectSameTimeTrades && l.lastTrade[f.Asset].Equal(f.Time) {
		return fmt.Errorf("%w: second trade for %s at %s",
			domain.ErrOrderCollision, f.Asset, f.Time.Format(time.RFC3339))
	}

	cost := -f.Quantity*f.Price - f.Fee
	l.positions[domain.CASH] = l.positions[domain.CASH].ApplyTrade(cost, 1)
	l.positions[f.Asset] = pos.ApplyTrade(f.Quantity, f.Price)
	l.lastTrade[f.Asset] = f.Time

	if err := l.store.AppendTrade(store.TradeRow{
		Asset: f.Asset, Time: f.Time, Quantity: f.Quantity, Price: f.Price, Fee: f.Fee,
	}); err != nil {
		return err
	}

	if err := l.Revalue(f.Asset, f.Time, f.Price, f.Price); err != nil {
		return err
	}
	if err := l.Revalue(domain.CASH, f.Time, 1, 1); err != nil {
		return err
	}
	l.log.Debug("fill applied",
		slog.String("asset", f.Asset.String()),
		slog.Float64("quantity", f.Quantity),
		slog.Float64("price", f.Price),
		slog.Float64("fee", f.Fee),
		slog.Float64("cash", l.positions[domain.CASH].Quantity))

	if cash := l.positions[domain.CASH].Quantity; l.cfg.TrackCapital && cash < -l.cfg.CashTolerance {
		return &domain.CashBreachError{
			Time:      f.Time,
			Asset:     f.Asset,
			Quantity:  f.Quantity,
			Price:     f.Price,
			Cash:      cash,
			Tolerance: l.cfg.CashTolerance,
		}
	}
	return nil
}

// PortfolioValue snapshots the current portfolio. Weights are each
// position's share of total value; with negative cash they may exceed
// 1 or be negative, which is leverage and deliberately not clamped.
func (l *Ledger) PortfolioValue() domain.PortfolioValue {
	var total float64
	for _, p := range l.positions {
		total += p.Value
	}

	pv := domain.PortfolioValue{
		Cash:      l.positions[domain.CASH].Quantity,
		Positions: make(map[domain.Asset]domain.PositionValue, len(l.positions)),
	}
	for asset, p := range l.positions {
		var weight float64
		if total != 0 {
			weight = p.Value / total
		}
		pv.Positions[asset] = domain.PositionValue{
			Asset:  asset,
			Qty:    p.Quantity,
			Weight: weight,
			Value:  p.Value,
		}
	}
	return pv
}

// Position returns the current position for asset.
func (l *Ledger) Position(asset domain.Asset) (domain.Position, bool) {
	p, ok := l.positions[asset]
	return p, ok
}

// History returns the full valuation time series up to asOf (zero
// means everything). Rows are monotonically non-decreasing in time per
// asset.
func (l *Ledger) History(asOf time.Time) ([]store.PositionRow, error) {
	return l.store.History(asOf)
}

// Trades returns the applied fills up to asOf.
func (l *Ledger) Trades(asOf time.Time) ([]store.TradeRow, error) {
	return l.store.Trades(asOf)
}

// Resample selects an optional reduction of the performance tables.
type Resample string

const (
	ResampleNone  Resample = ""
	ResampleDaily Resample = "D"
)

// Performance derives the reporting tables from the valuation history:
// per-asset position values (forward-filled over the union index),
// per-asset weights, and the portfolio curve with value, return and a
// cumulative performance index starting at 1.0.
func (l *Ledger) Performance(asOf time.Time, rule Resample) (values, weights, curve *timeseries.Table, err error) {
	rows, err := l.History(asOf)
	if err != nil {
		return nil, nil, nil, err
	}

	values = timeseries.New()
	for _, row := range rows {
		values.Set(row.Time, row.Asset.String(), row.Value)
	}
	values.ForwardFill()
	if rule == ResampleDaily {
		values = values.ResampleDaily()
	}

	totals := values.RowSum()

	weights = timeseries.New(values.Columns...)
	for i, ts := range values.Times {
		for j, col := range values.Columns {
			if totals[i] == 0 {
				continue
			}
			v := values.Cells[i][j]
			if !math.IsNaN(v) {
				weights.Set(ts, col, v/totals[i])
			}
		}
	}

	returns := timeseries.PctChange(totals)
	perf := timeseries.CumProd(returns)
	curve = timeseries.New("value", "return", "performance")
	for i, ts := range values.Times {
		curve.Set(ts, "value", totals[i])
		curve.Set(ts, "return", returns[i])
		curve.Set(ts, "performance", perf[i])
	}
	return values, weights, curve, nil
}

// Assets returns the assets the ledger holds positions in, CASH
// included, in stable order.
func (l *Ledger) Assets() []domain.Asset {
	out := make([]domain.Asset, 0, len(l.positions))
	for a := range l.positions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
