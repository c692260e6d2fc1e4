package handler

import (
	"net/http"

	"github.com/dstolz/tradesim/internal/backtest"
)

// ReplayHandler triggers the preloaded scenario's replay.
type ReplayHandler struct {
	replay *backtest.Replayer
}

// NewReplayHandler creates a new ReplayHandler.
func NewReplayHandler(r *backtest.Replayer) *ReplayHandler {
	return &ReplayHandler{replay: r}
}

// replayResponse summarizes a finished replay; the detailed tables are
// available through the portfolio and order endpoints afterwards.
type replayResponse struct {
	PlacedOrders   int           `json:"placed_orders"`
	ArchivedOrders int           `json:"archived_orders"`
	MarketData     tableResponse `json:"market_data"`
	Performance    tableResponse `json:"performance"`
}

// Replay handles POST /replay. The call blocks until the replay
// completes.
func (h *ReplayHandler) Replay(w http.ResponseWriter, r *http.Request) {
	result, err := h.replay.ReplayAll(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, replayResponse{
		PlacedOrders:   len(result.Placed),
		ArchivedOrders: len(result.Orders),
		MarketData:     buildTableResponse(result.MarketData),
		Performance:    buildTableResponse(result.Performance),
	})
}
