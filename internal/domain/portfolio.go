package domain

// PositionValue is a read-only valuation snapshot of one position.
type PositionValue struct {
	Asset  Asset
	Qty    float64
	Weight float64
	Value  float64
}

// PortfolioValue is a point-in-time snapshot of the whole portfolio.
// Cash appears both as the Cash field and as a regular position under
// the CASH asset, so Value does not add it twice.
type PortfolioValue struct {
	Cash      float64
	Positions map[Asset]PositionValue
}

// Value is the total portfolio value: the sum of all position values,
// cash included as a position.
func (pv PortfolioValue) Value() float64 {
	var total float64
	for _, p := range pv.Positions {
		total += p.Value
	}
	return total
}
