package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentAmount(t *testing.T) {
	t.Parallel()

	asset, err := NewAsset("USD", 10_000, 2)
	require.NoError(t, err)

	owner := uuid.New()

	t.Run("splits at unit cap", func(t *testing.T) {
		t.Parallel()

		fragments := FragmentAmount(asset, owner, 25_000, nil)
		require.Len(t, fragments, 3)

		var total int64

		for _, vo := range fragments {
			assert.LessOrEqual(t, vo.Amount, asset.Unit)
			assert.Positive(t, vo.Amount)
			assert.Equal(t, StateAlive, vo.State)
			assert.Equal(t, owner, vo.Owner)
			total += vo.Amount
		}

		assert.EqualValues(t, 25_000, total)
	})

	t.Run("exact multiple of unit", func(t *testing.T) {
		t.Parallel()

		fragments := FragmentAmount(asset, owner, 20_000, nil)
		require.Len(t, fragments, 2)
		assert.EqualValues(t, 10_000, fragments[0].Amount)
		assert.EqualValues(t, 10_000, fragments[1].Amount)
	})

	t.Run("below unit", func(t *testing.T) {
		t.Parallel()

		fragments := FragmentAmount(asset, owner, 7, nil)
		require.Len(t, fragments, 1)
		assert.EqualValues(t, 7, fragments[0].Amount)
	})

	t.Run("zero amount mints nothing", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, FragmentAmount(asset, owner, 0, nil))
		assert.Empty(t, FragmentAmount(asset, owner, -5, nil))
	})

	t.Run("reserved fragments carry the authority", func(t *testing.T) {
		t.Parallel()

		authority := uuid.New()

		fragments := FragmentAmount(asset, owner, 15_000, &authority)
		require.Len(t, fragments, 2)

		for _, vo := range fragments {
			assert.Equal(t, StateReserved, vo.State)
			require.NotNil(t, vo.ReservedFor)
			assert.Equal(t, authority, *vo.ReservedFor)
		}
	})
}
