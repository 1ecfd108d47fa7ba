// Package safe provides overflow-checked int64 arithmetic for unit balances
// and basis-point calculations. Balances are authoritative financial state,
// so silent wraparound is never acceptable.
package safe

import (
	"errors"
	"math"
)

var ErrOverflow = errors.New("int64 overflow")

// Add returns a+b, or ErrOverflow if the result wraps.
func Add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b, or ErrOverflow if the result wraps.
func Sub(a, b int64) (int64, error) {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*b, or ErrOverflow if the result wraps.
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a == math.MinInt64 || b == math.MinInt64 {
		return 0, ErrOverflow
	}
	result := a * b
	if result/b != a {
		return 0, ErrOverflow
	}
	return result, nil
}

// MulBps returns value*bps/10000 using checked arithmetic. Used for markup
// and fee calculations where bps is in [0, 10000].
func MulBps(value, bps int64) (int64, error) {
	product, err := Mul(value, bps)
	if err != nil {
		return 0, err
	}
	return product / 10_000, nil
}
