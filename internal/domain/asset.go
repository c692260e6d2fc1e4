package domain

// Asset is an opaque immutable symbol identifier. Equality is by
// symbol value, so Asset can be used directly as a map key.
type Asset string

// CASH is the reserved asset representing the currency position.
// The ledger prices it at 1.0 forever.
const CASH Asset = "$$$"

func (a Asset) String() string {
	return string(a)
}
