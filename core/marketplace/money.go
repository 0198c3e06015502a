package marketplace

import (
	"bytes"
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// Money is an amount in cents.
type Money int64

// MaxAmount is the largest price or balance change accepted: one trillion tokens.
const MaxAmount Money = 1_000_000_000_000_00

// MoneyFromFloat converts a decimal amount, rounding half away from zero to the cent.
// f must lie within ±MaxAmount; ParseMoney checks that for untrusted input.
func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// ParseMoney parses a decimal string such as "12.5" or "300".
func ParseMoney(s string) (Money, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if math.Abs(f) > MaxAmount.Float() {
		return 0, fmt.Errorf("amount %q exceeds the maximum of %s", s, MaxAmount)
	}
	return MoneyFromFloat(f), nil
}

// Float returns the amount in whole units.
func (m Money) Float() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a decimal number with two fraction digits.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	b = bytes.Trim(b, `"`)
	v, err := ParseMoney(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// percentOf returns m * bp / 10000 rounded half away from zero. bp must be
// within [0, 10000]; the product is taken in 128 bits so no price can wrap.
func percentOf(m Money, bp int64) Money {
	neg := m < 0
	mag := uint64(m)
	if neg {
		mag = -mag
	}
	hi, lo := bits.Mul64(mag, uint64(bp))
	lo, carry := bits.Add64(lo, 5000, 0)
	q, _ := bits.Div64(hi+carry, lo, 10000)
	if neg {
		return -Money(q)
	}
	return Money(q)
}
