package model

import (
	"math"
	"strconv"
)

// Cents is an amount in minor currency units. The backend speaks decimal
// major units; everything derived locally is computed in cents so repeated
// recomputation is exact.
type Cents int64

// ParseCents converts decimal string amounts (dollars) to cents.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) Cents {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return FromFloat(f)
}

// FromFloat converts a major-unit amount from a JSON number to cents.
func FromFloat(f float64) Cents {
	// math.Round handles both positive and negative numbers correctly
	return Cents(math.Round(f * 100))
}

// Float returns the amount in major units.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String formats the amount with two decimals, e.g. "22.50".
func (c Cents) String() string {
	return strconv.FormatFloat(c.Float(), 'f', 2, 64)
}

// Discount applies a percentage discount and rounds half away from zero to
// the nearest cent.
func (c Cents) Discount(pct float64) Cents {
	if pct <= 0 {
		return c
	}
	if pct >= 100 {
		return 0
	}
	return Cents(math.Round(float64(c) * (100 - pct) / 100))
}
