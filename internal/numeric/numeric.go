// Package numeric provides overflow-checked int64 arithmetic for sizes,
// prices, and collateral amounts. Overflow is a hard failure (ErrOverflow),
// never silent wraparound.
package numeric

import (
	"errors"
	"math"
	"math/big"
)

// ErrOverflow is returned when a checked operation overflows int64.
var ErrOverflow = errors.New("math overflow")

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrOverflow.
func CheckedSub(a, b int64) (int64, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ErrOverflow
	}
	return diff, nil
}

// CheckedMul returns a * b or ErrOverflow.
func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/b != a {
		return 0, ErrOverflow
	}
	if a == math.MinInt64 && b == -1 || b == math.MinInt64 && a == -1 {
		return 0, ErrOverflow
	}
	return prod, nil
}

// ClampNonNegative floors v at zero.
func ClampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WeightedAveragePrice recomputes a position's entry price when a
// same-direction leg is added:
//
//	(oldEntry*oldSize + addPrice*addSize) / (oldSize + addSize)
//
// The numerator is widened to 128 bits so the product of two large int64
// legs cannot wrap. The quotient is truncated toward zero, matching the
// source's u128 division. Returns ErrOverflow only if the quotient itself
// does not fit in int64.
func WeightedAveragePrice(oldEntry, oldSize, addPrice, addSize int64) (int64, error) {
	totalSize, err := CheckedAdd(oldSize, addSize)
	if err != nil {
		return 0, err
	}
	if totalSize == 0 {
		return 0, ErrOverflow
	}

	num := new(big.Int).Mul(big.NewInt(oldEntry), big.NewInt(oldSize))
	num.Add(num, new(big.Int).Mul(big.NewInt(addPrice), big.NewInt(addSize)))
	num.Quo(num, big.NewInt(totalSize))

	if !num.IsInt64() {
		return 0, ErrOverflow
	}
	return num.Int64(), nil
}

// MulBps applies a basis-point rate with the venue's 1000-denominator
// convention: v * bps / 1000, widened through 128 bits.
func MulBps(v, bps int64) (int64, error) {
	prod := new(big.Int).Mul(big.NewInt(v), big.NewInt(bps))
	prod.Quo(prod, big.NewInt(1000))
	if !prod.IsInt64() {
		return 0, ErrOverflow
	}
	return prod.Int64(), nil
}
