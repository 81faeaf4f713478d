package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Holding pairs an asset definition with the owner's balance in it.
type Holding struct {
	Asset   Asset
	Balance Balance
}

// NewHolding creates a holding.
func NewHolding(asset Asset, balance Balance) Holding {
	return Holding{Asset: asset, Balance: balance}
}

// Quantity is the display quantity of this holding (e.g. 2.5 BTC, not
// 250_000_000 satoshis).
func (h Holding) Quantity() decimal.Decimal {
	return h.Asset.ToDisplay(h.Balance.Total)
}

// Value is the holding's worth in a target currency: quantity * rate, where
// rate is how much 1 unit of this asset is worth in the target currency.
func (h Holding) Value(rate decimal.Decimal) decimal.Decimal {
	return h.Quantity().Mul(rate)
}

// Portfolio is an owned collection of holdings that can be queried and
// sorted as a unit.
type Portfolio struct {
	holdings []Holding
}

// NewPortfolio creates a portfolio from a holdings slice.
func NewPortfolio(holdings []Holding) Portfolio {
	return Portfolio{holdings: holdings}
}

// Holdings returns the underlying slice.
func (p Portfolio) Holdings() []Holding {
	return p.holdings
}

// Len returns the number of holdings.
func (p Portfolio) Len() int {
	return len(p.holdings)
}

// IsEmpty reports whether the portfolio has no holdings.
func (p Portfolio) IsEmpty() bool {
	return len(p.holdings) == 0
}

// Get finds a holding by asset code.
func (p Portfolio) Get(assetCode string) (Holding, bool) {
	for _, h := range p.holdings {
		if h.Asset.Code == assetCode {
			return h, true
		}
	}

	return Holding{}, false
}

// Value is the total portfolio worth in a target currency. rates maps asset
// code to the exchange rate into the target currency; assets absent from
// rates contribute zero.
func (p Portfolio) Value(rates map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero

	for _, h := range p.holdings {
		rate, ok := rates[h.Asset.Code]
		if !ok {
			continue
		}

		total = total.Add(h.Value(rate))
	}

	return total
}

// SortByQuantityDesc sorts holdings by display quantity, largest first.
func (p *Portfolio) SortByQuantityDesc() {
	sort.SliceStable(p.holdings, func(i, j int) bool {
		return p.holdings[i].Quantity().GreaterThan(p.holdings[j].Quantity())
	})
}

// SortByQuantityAsc sorts holdings by display quantity, smallest first.
func (p *Portfolio) SortByQuantityAsc() {
	sort.SliceStable(p.holdings, func(i, j int) bool {
		return p.holdings[i].Quantity().LessThan(p.holdings[j].Quantity())
	})
}

// SortByValueDesc sorts holdings by worth in a target currency, largest first.
func (p *Portfolio) SortByValueDesc(rates map[string]decimal.Decimal) {
	sort.SliceStable(p.holdings, func(i, j int) bool {
		return p.holdings[i].Value(rates[p.holdings[i].Asset.Code]).
			GreaterThan(p.holdings[j].Value(rates[p.holdings[j].Asset.Code]))
	})
}
