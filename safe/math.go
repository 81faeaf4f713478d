package safe

import (
	"errors"
	"math"
)

// ErrOverflow is returned when an amount operation exceeds the int64 range.
var ErrOverflow = errors.New("int64 overflow")

// ErrDivisionByZero is returned when attempting to divide by zero.
var ErrDivisionByZero = errors.New("division by zero")

// Add returns a + b, failing with ErrOverflow instead of wrapping.
//
// Example:
//
//	total, err := safe.Add(aliveSum, reservedSum)
//	if err != nil {
//	    return Balance{}, fmt.Errorf("sum balance: %w", err)
//	}
func Add(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}

	if b < 0 && a < math.MinInt64-b {
		return 0, ErrOverflow
	}

	return a + b, nil
}

// Sub returns a - b, failing with ErrOverflow instead of wrapping.
func Sub(a, b int64) (int64, error) {
	if b < 0 && a > math.MaxInt64+b {
		return 0, ErrOverflow
	}

	if b > 0 && a < math.MinInt64+b {
		return 0, ErrOverflow
	}

	return a - b, nil
}

// Mul returns a * b, failing with ErrOverflow instead of wrapping.
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}

	result := a * b
	if result/b != a {
		return 0, ErrOverflow
	}

	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, ErrOverflow
	}

	return result, nil
}

// CeilDiv returns ceil(a / b) for positive operands.
// Returns ErrDivisionByZero if b is zero.
//
// Used to compute fragment counts: ceil(amount / unit) is the number of
// value objects a mint of the given amount produces.
func CeilDiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}

	if a <= 0 || b < 0 {
		return a / b, nil
	}

	return (a + b - 1) / b, nil
}

// Min returns the smaller of two int64 values.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}

	return b
}
