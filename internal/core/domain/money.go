package domain

import (
	"fmt"
	"math"
)

// Cents holds a monetary amount in minor units. 2.50 EUR is Cents(250).
// Integer arithmetic keeps settlement sums exact; floats only appear at
// the JSON boundary.
type Cents int64

// CentsFromFloat converts an API-level decimal amount to minor units.
func CentsFromFloat(amount float64) Cents {
	return Cents(math.Round(amount * 100))
}

// Float64 converts back to the decimal representation used on the wire.
func (c Cents) Float64() float64 {
	return float64(c) / 100
}

func (c Cents) String() string {
	return fmt.Sprintf("%.2f", c.Float64())
}

// IsFinite reports whether an API-level amount can be represented.
func IsFiniteAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0)
}
