package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Default fragmentation caps, in internal units.
const (
	fiatUnit   = 10_000
	cryptoUnit = 1_000_000_000_000_000_000
)

// Asset is an immutable currency or token definition.
//
// Unit bounds the amount a single value object may hold (the fragmentation
// cap). Decimals is a display-only scale factor: internal arithmetic is
// always exact int64 arithmetic, and Decimals only matters when converting
// to or from display values.
type Asset struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Unit      int64     `json:"unit"`
	Decimals  int32     `json:"decimals"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewAsset creates an asset definition. Unit must be positive and the code
// must be non-blank; assets are immutable once registered.
func NewAsset(code string, unit int64, decimals int32) (Asset, error) {
	if strings.TrimSpace(code) == "" {
		return Asset{}, fmt.Errorf("%w: asset code is required", ErrInvalidAmount)
	}

	if unit <= 0 {
		return Asset{}, fmt.Errorf("%w: unit must be positive", ErrInvalidAmount)
	}

	if decimals < 0 {
		return Asset{}, fmt.Errorf("%w: decimals must not be negative", ErrInvalidAmount)
	}

	return Asset{
		ID:        uuid.New(),
		Code:      code,
		Unit:      unit,
		Decimals:  decimals,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Fiat creates a two-decimal asset with a 100.00 fragmentation cap, the
// conventional setup for fiat currencies (amounts in cents).
func Fiat(code string) (Asset, error) {
	return NewAsset(code, fiatUnit, 2)
}

// Crypto creates an asset with an 18-decimal-style 1e18 fragmentation cap.
func Crypto(code string, decimals int32) (Asset, error) {
	return NewAsset(code, cryptoUnit, decimals)
}

// ToInternal converts a display value (e.g. 100.50) to internal units
// (e.g. 10050 for a 2-decimal asset). The conversion is exact: a display
// value with more fractional digits than the asset carries fails with
// ErrInvalidAmount rather than rounding silently.
func (a Asset) ToInternal(display decimal.Decimal) (int64, error) {
	scaled := display.Shift(a.Decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, display, a.Decimals)
	}

	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s does not fit in internal units", ErrInvalidAmount, display)
	}

	return scaled.IntPart(), nil
}

// ToDisplay converts an internal amount to its display value
// (e.g. 10050 -> 100.50 for a 2-decimal asset).
func (a Asset) ToDisplay(internal int64) decimal.Decimal {
	return decimal.NewFromInt(internal).Shift(-a.Decimals)
}
