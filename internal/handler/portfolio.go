package handler

import (
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/ledger"
	"github.com/dstolz/tradesim/internal/timeseries"
)

// PortfolioHandler handles HTTP requests for portfolio endpoints.
type PortfolioHandler struct {
	ledger *ledger.Client
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(lc *ledger.Client) *PortfolioHandler {
	return &PortfolioHandler{ledger: lc}
}

// positionValueResponse is one position inside the snapshot.
type positionValueResponse struct {
	Asset    string  `json:"asset"`
	Quantity float64 `json:"quantity"`
	Weight   float64 `json:"weight"`
	Value    float64 `json:"value"`
}

// portfolioValueResponse is the JSON shape of a portfolio snapshot.
type portfolioValueResponse struct {
	Cash      float64                 `json:"cash"`
	Value     float64                 `json:"value"`
	Positions []positionValueResponse `json:"positions"`
}

// tableResponse serializes a timeseries table. Missing cells become
// JSON nulls because NaN is not representable.
type tableResponse struct {
	Times   []string     `json:"times"`
	Columns []string     `json:"columns"`
	Cells   [][]*float64 `json:"cells"`
}

// performanceResponse is the JSON shape of GET /portfolio/performance.
type performanceResponse struct {
	Values      tableResponse `json:"values"`
	Weights     tableResponse `json:"weights"`
	Performance tableResponse `json:"performance"`
}

// Value handles GET /portfolio/value.
func (h *PortfolioHandler) Value(w http.ResponseWriter, r *http.Request) {
	pv, err := h.ledger.PortfolioValue(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	resp := portfolioValueResponse{Cash: pv.Cash, Value: pv.Value()}
	assets := make([]domain.Asset, 0, len(pv.Positions))
	for a := range pv.Positions {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
	for _, a := range assets {
		p := pv.Positions[a]
		resp.Positions = append(resp.Positions, positionValueResponse{
			Asset:    a.String(),
			Quantity: p.Qty,
			Weight:   p.Weight,
			Value:    p.Value,
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Performance handles GET /portfolio/performance. Optional query
// parameters: as_of (RFC 3339) and resample (currently "D" for daily).
func (h *PortfolioHandler) Performance(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if s := r.URL.Query().Get("as_of"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "as_of must be a valid RFC 3339 timestamp")
			return
		}
		asOf = t
	}
	rule := ledger.Resample(r.URL.Query().Get("resample"))
	if rule != ledger.ResampleNone && rule != ledger.ResampleDaily {
		WriteError(w, http.StatusBadRequest, "validation_error", `resample must be empty or "D"`)
		return
	}

	report, err := h.ledger.Performance(r.Context(), asOf, rule)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, performanceResponse{
		Values:      buildTableResponse(report.Values),
		Weights:     buildTableResponse(report.Weights),
		Performance: buildTableResponse(report.Curve),
	})
}

func buildTableResponse(t *timeseries.Table) tableResponse {
	resp := tableResponse{
		Times:   make([]string, len(t.Times)),
		Columns: t.Columns,
		Cells:   make([][]*float64, len(t.Cells)),
	}
	for i, ts := range t.Times {
		resp.Times[i] = ts.UTC().Format(time.RFC3339)
	}
	for i, row := range t.Cells {
		out := make([]*float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) {
				v := v
				out[j] = &v
			}
		}
		resp.Cells[i] = out
	}
	return resp
}
