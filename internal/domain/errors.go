package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrOrderTooSmall      = errors.New("order_below_minimum_quantity")
	ErrOrderInvalidWindow = errors.New("order_valid_until_before_valid_from")
	ErrOrderCollision     = errors.New("order_collision_same_timestamp")
	ErrBackdatedValuation = errors.New("backdated_valuation")
	ErrTradeBeforeFunding = errors.New("trade_before_funding")
	ErrWeightBounds       = errors.New("target_weights_out_of_bounds")
	ErrAssetMismatch      = errors.New("asset_mismatch")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CashBreachError is raised when starting-capital tracking is enabled
// and the cash position drops below the configured tolerance. It carries
// the offending trade so the replay abort is diagnosable.
type CashBreachError struct {
	Time      time.Time
	Asset     Asset
	Quantity  float64
	Price     float64
	Cash      float64
	Tolerance float64
}

func (e *CashBreachError) Error() string {
	return fmt.Sprintf("cash_below_tolerance: cash=%g tolerance=%g after trade %s %s qty=%g price=%g",
		e.Cash, e.Tolerance, e.Time.Format(time.RFC3339), e.Asset, e.Quantity, e.Price)
}
