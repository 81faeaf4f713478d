package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holdingFor(t *testing.T, code string, total int64) Holding {
	t.Helper()

	asset, err := Fiat(code)
	require.NoError(t, err)

	return NewHolding(asset, BalanceFromValueObjects(uuid.New(), asset.ID, total, 0))
}

func TestHoldingQuantityAndValue(t *testing.T) {
	t.Parallel()

	h := holdingFor(t, "USD", 25_000)

	assert.Equal(t, "250", h.Quantity().String())

	rate := decimal.RequireFromString("0.9")
	assert.Equal(t, "225", h.Value(rate).String())
}

func TestPortfolio(t *testing.T) {
	t.Parallel()

	usd := holdingFor(t, "USD", 10_000)
	eur := holdingFor(t, "EUR", 30_000)

	p := NewPortfolio([]Holding{usd, eur})

	assert.Equal(t, 2, p.Len())
	assert.False(t, p.IsEmpty())

	got, ok := p.Get("EUR")
	require.True(t, ok)
	assert.Equal(t, "EUR", got.Asset.Code)

	_, ok = p.Get("JPY")
	assert.False(t, ok)

	rates := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("1.1"),
	}

	// 100 * 1 + 300 * 1.1
	assert.Equal(t, "430", p.Value(rates).String())

	// Assets without a rate contribute zero.
	assert.Equal(t, "100", p.Value(map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)}).String())
}

func TestPortfolioSorting(t *testing.T) {
	t.Parallel()

	small := holdingFor(t, "AAA", 1_000)
	large := holdingFor(t, "ZZZ", 90_000)

	p := NewPortfolio([]Holding{small, large})

	p.SortByQuantityDesc()
	assert.Equal(t, "ZZZ", p.Holdings()[0].Asset.Code)

	p.SortByQuantityAsc()
	assert.Equal(t, "AAA", p.Holdings()[0].Asset.Code)

	rates := map[string]decimal.Decimal{
		"AAA": decimal.NewFromInt(1_000),
		"ZZZ": decimal.NewFromInt(1),
	}

	p.SortByValueDesc(rates)
	assert.Equal(t, "AAA", p.Holdings()[0].Asset.Code, "10 * 1000 outweighs 900 * 1")
}
