package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/dstolz/tradesim/internal/domain"
)

// errorResponse is the error body every endpoint shares: a stable
// machine-readable code plus a human-readable message.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON serializes data with the given status. The Content-Type
// header has to be set before the status line goes out.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // nothing sensible to do with a write error here
}

// WriteError writes the shared error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorResponse{Error: code, Message: message})
}

// ParseJSON decodes a request body into v. The request must declare an
// application/json content type (parameters such as charset are fine)
// and may not carry fields v does not declare.
func ParseJSON(r *http.Request, v any) error {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return fmt.Errorf("content type must be application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON body: %v", err)
	}
	return nil
}

// mapError translates domain errors into HTTP responses: validation
// failures are 400s, a missing order is 404, and accounting conflicts
// (timestamp collisions, backdating, cash breaches) are 409s. Anything
// unrecognized becomes a 500 without leaking internals.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}
	var breach *domain.CashBreachError
	if errors.As(err, &breach) {
		WriteError(w, http.StatusConflict, "cash_breach", breach.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderTooSmall):
		WriteError(w, http.StatusBadRequest, "order_too_small", err.Error())
	case errors.Is(err, domain.ErrOrderInvalidWindow):
		WriteError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, domain.ErrWeightBounds):
		WriteError(w, http.StatusBadRequest, "weight_bounds", err.Error())
	case errors.Is(err, domain.ErrOrderCollision):
		WriteError(w, http.StatusConflict, "order_collision", err.Error())
	case errors.Is(err, domain.ErrTradeBeforeFunding):
		WriteError(w, http.StatusConflict, "trade_before_funding", err.Error())
	case errors.Is(err, domain.ErrBackdatedValuation):
		WriteError(w, http.StatusConflict, "backdated_valuation", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
