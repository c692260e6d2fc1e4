package backtest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/marketdata"
)

// Scenario is a YAML-described backtest: the portfolio setup, per-asset
// CSV bar files and the signal schedule.
type Scenario struct {
	StrategyID  string    `yaml:"strategy_id"`
	Funding     float64   `yaml:"funding"`
	FundingDate time.Time `yaml:"funding_date"`
	Slippage    float64   `yaml:"slippage"`
	FeeRate     float64   `yaml:"fee_rate"`

	// Data maps each asset to its bar CSV path.
	Data map[string]string `yaml:"data"`

	Signals []scenarioSignal `yaml:"signals"`
}

type scenarioSignal struct {
	Time    time.Time          `yaml:"time"`
	Weights map[string]float64 `yaml:"weights"`
	Orders  []scenarioOrder    `yaml:"orders"`
}

type scenarioOrder struct {
	Kind      string   `yaml:"kind"`
	Asset     string   `yaml:"asset"`
	Size      float64  `yaml:"size"`
	Limit     *float64 `yaml:"limit"`
	StopLimit *float64 `yaml:"stop_limit"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.Funding <= 0 {
		return nil, fmt.Errorf("%s: funding must be positive, got %g", path, s.Funding)
	}
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("%s: no data files", path)
	}
	for i, sig := range s.Signals {
		if sig.Time.IsZero() {
			return nil, fmt.Errorf("%s: signal %d has no time", path, i)
		}
		if len(sig.Weights) == 0 && len(sig.Orders) == 0 {
			return nil, fmt.Errorf("%s: signal %d has neither weights nor orders", path, i)
		}
		if !sig.Time.After(s.FundingDate) {
			return nil, fmt.Errorf("%s: signal %d at %s precedes funding", path, i, sig.Time.Format(time.RFC3339))
		}
		for j, o := range sig.Orders {
			if o.Asset == "" {
				return nil, fmt.Errorf("%s: signal %d order %d has no asset", path, i, j)
			}
		}
	}
	return &s, nil
}

// LoadFrame reads every data file into one frame.
func (s *Scenario) LoadFrame() (*marketdata.Frame, error) {
	frame := marketdata.NewFrame()
	for asset, path := range s.Data {
		ticks, err := marketdata.LoadBarCSV(path, domain.Asset(asset))
		if err != nil {
			return nil, err
		}
		frame.AddSeries(ticks)
	}
	return frame, nil
}

// SignalList converts the scenario's schedule into orchestrator
// signals.
func (s *Scenario) SignalList() []Signal {
	out := make([]Signal, 0, len(s.Signals))
	for _, sig := range s.Signals {
		signal := Signal{Time: sig.Time}
		if len(sig.Weights) > 0 {
			signal.Weights = make(map[domain.Asset]float64, len(sig.Weights))
			for asset, w := range sig.Weights {
				signal.Weights[domain.Asset(asset)] = w
			}
		}
		for _, o := range sig.Orders {
			signal.Orders = append(signal.Orders, domain.Order{
				Kind:      domain.OrderKind(o.Kind),
				Asset:     domain.Asset(o.Asset),
				Size:      o.Size,
				Limit:     o.Limit,
				StopLimit: o.StopLimit,
			})
		}
		out = append(out, signal)
	}
	return out
}
