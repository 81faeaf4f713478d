package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Balance is the derived view over an owner's value objects for one asset:
// Available sums Alive fragments, Reserved sums Reserved fragments, and
// Total is their sum. Balances are read models; they are never stored.
type Balance struct {
	Owner     uuid.UUID `json:"owner"`
	Asset     uuid.UUID `json:"asset"`
	Available int64     `json:"available"`
	Reserved  int64     `json:"reserved"`
	Total     int64     `json:"total"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BalanceFromValueObjects derives a balance from the fragment sums.
func BalanceFromValueObjects(owner, asset uuid.UUID, aliveSum, reservedSum int64) Balance {
	return Balance{
		Owner:     owner,
		Asset:     asset,
		Available: aliveSum,
		Reserved:  reservedSum,
		Total:     aliveSum + reservedSum,
		UpdatedAt: time.Now().UTC(),
	}
}

// GetBalance resolves the asset code and reads the owner's balance through
// the context's adapter. The read is advisory under concurrency: final
// correctness is always re-derived under lock during plan execution.
func GetBalance(ctx context.Context, lc *LedgerContext, assetCode string, owner uuid.UUID) (Balance, error) {
	asset, err := lc.Adapter().GetAsset(ctx, assetCode)
	if err != nil {
		return Balance{}, err
	}

	return lc.Adapter().GetBalance(ctx, asset.ID, owner)
}
