package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dstolz/tradesim/internal/book"
	"github.com/dstolz/tradesim/internal/domain"
	"github.com/dstolz/tradesim/internal/store"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	book *book.Client
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(bc *book.Client) *OrderHandler {
	return &OrderHandler{book: bc}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	Kind       string   `json:"kind"`
	Asset      string   `json:"asset"`
	Size       float64  `json:"size"`
	ValidFrom  string   `json:"valid_from"`
	ValidUntil *string  `json:"valid_until"`
	Limit      *float64 `json:"limit"`
	StopLimit  *float64 `json:"stop_limit"`
}

// orderResponse is the JSON shape of one pending order.
type orderResponse struct {
	OrderID    string   `json:"order_id"`
	Kind       string   `json:"kind"`
	Asset      string   `json:"asset"`
	Size       float64  `json:"size"`
	ValidFrom  string   `json:"valid_from"`
	ValidUntil string   `json:"valid_until"`
	Limit      *float64 `json:"limit"`
	StopLimit  *float64 `json:"stop_limit"`
}

// archivedOrderResponse is the JSON shape of one terminal order record.
type archivedOrderResponse struct {
	OrderID        string   `json:"order_id"`
	Kind           string   `json:"kind"`
	Asset          string   `json:"asset"`
	RequestedSize  float64  `json:"requested_size"`
	Limit          *float64 `json:"limit"`
	StopLimit      *float64 `json:"stop_limit"`
	ValidFrom      string   `json:"valid_from"`
	ValidUntil     string   `json:"valid_until"`
	Status         string   `json:"status"`
	FilledQuantity float64  `json:"filled_quantity"`
	FilledPrice    float64  `json:"filled_price"`
	FilledFee      float64  `json:"filled_fee"`
	ExecutedAt     *string  `json:"executed_at"`
}

// Place handles POST /orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "valid_from must be a valid RFC 3339 timestamp")
		return
	}
	var validUntil time.Time
	if req.ValidUntil != nil {
		validUntil, err = time.Parse(time.RFC3339, *req.ValidUntil)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "valid_until must be a valid RFC 3339 timestamp")
			return
		}
	}

	order, err := h.book.Place(r.Context(), domain.Order{
		Kind:       domain.OrderKind(req.Kind),
		Asset:      domain.Asset(req.Asset),
		Size:       req.Size,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		Limit:      req.Limit,
		StopLimit:  req.StopLimit,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// Cancel handles DELETE /orders/{order_id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	if err := h.book.Cancel(r.Context(), orderID); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": string(domain.OrderStatusCancelled)})
}

// Orderbook handles GET /orderbook.
func (h *OrderHandler) Orderbook(w http.ResponseWriter, r *http.Request) {
	pending, err := h.book.Pending(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]orderResponse, len(pending))
	for i, o := range pending {
		out[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, out)
}

// Executed handles GET /orders/executed. Evicted, cancelled and
// discarded records are included with ?include_evicted=true.
func (h *OrderHandler) Executed(w http.ResponseWriter, r *http.Request) {
	includeEvicted := r.URL.Query().Get("include_evicted") == "true"

	records, err := h.book.ExecutedOrders(r.Context(), includeEvicted)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]archivedOrderResponse, len(records))
	for i, rec := range records {
		out[i] = buildArchivedResponse(rec)
	}
	WriteJSON(w, http.StatusOK, out)
}

func buildOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:    o.ID,
		Kind:       string(o.Kind),
		Asset:      o.Asset.String(),
		Size:       o.Size,
		ValidFrom:  o.ValidFrom.UTC().Format(time.RFC3339),
		ValidUntil: o.EffectiveValidUntil().UTC().Format(time.RFC3339),
		Limit:      o.Limit,
		StopLimit:  o.StopLimit,
	}
}

func buildArchivedResponse(rec store.ArchivedOrder) archivedOrderResponse {
	resp := archivedOrderResponse{
		OrderID:        rec.OrderID,
		Kind:           string(rec.Kind),
		Asset:          rec.Asset.String(),
		RequestedSize:  rec.RequestedSize,
		Limit:          rec.Limit,
		StopLimit:      rec.StopLimit,
		ValidFrom:      rec.ValidFrom.UTC().Format(time.RFC3339),
		ValidUntil:     rec.ValidUntil.UTC().Format(time.RFC3339),
		Status:         string(rec.Status),
		FilledQuantity: rec.FilledQuantity,
		FilledPrice:    rec.FilledPrice,
		FilledFee:      rec.FilledFee,
	}
	if !rec.ExecutedAt.IsZero() {
		s := rec.ExecutedAt.UTC().Format(time.RFC3339)
		resp.ExecutedAt = &s
	}
	return resp
}
