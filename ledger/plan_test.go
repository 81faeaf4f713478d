package ledger

import (
	"math"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocksAggregateSpendOperations(t *testing.T) {
	t.Parallel()

	asset := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	authority := uuid.New()

	plan := NewPlan(
		Operation{Type: OpMint, Asset: asset, Owner: alice, Amount: 1_000},
		Operation{Type: OpBurn, Asset: asset, Owner: alice, Amount: 200},
		Operation{Type: OpTransfer, Asset: asset, Owner: alice, Recipient: bob, Amount: 300},
		Operation{Type: OpReserve, Asset: asset, Owner: alice, Authority: authority, Amount: 100},
		Operation{Type: OpTransfer, Asset: asset, Owner: bob, Recipient: alice, Amount: 50},
		Operation{Type: OpSettle, Asset: asset, Authority: authority, Recipient: bob, Amount: 40},
	)

	locks, err := plan.Locks()
	require.NoError(t, err)
	require.Len(t, locks, 2, "mint and settle must not contribute lock entries")

	byOwner := map[uuid.UUID]int64{}
	for _, lock := range locks {
		assert.Equal(t, asset, lock.Asset)
		byOwner[lock.Owner] = lock.Amount
	}

	assert.EqualValues(t, 600, byOwner[alice])
	assert.EqualValues(t, 50, byOwner[bob])
}

func TestLocksSortedDeterministically(t *testing.T) {
	t.Parallel()

	asset := uuid.New()

	plan := NewPlan(
		Operation{Type: OpBurn, Asset: asset, Owner: uuid.New(), Amount: 1},
		Operation{Type: OpBurn, Asset: asset, Owner: uuid.New(), Amount: 1},
		Operation{Type: OpBurn, Asset: asset, Owner: uuid.New(), Amount: 1},
	)

	locks, err := plan.Locks()
	require.NoError(t, err)

	sorted := sort.SliceIsSorted(locks, func(i, j int) bool {
		if locks[i].Asset != locks[j].Asset {
			return locks[i].Asset.String() < locks[j].Asset.String()
		}

		return locks[i].Owner.String() < locks[j].Owner.String()
	})
	assert.True(t, sorted)
}

func TestLocksOverflow(t *testing.T) {
	t.Parallel()

	asset := uuid.New()
	owner := uuid.New()

	plan := NewPlan(
		Operation{Type: OpBurn, Asset: asset, Owner: owner, Amount: math.MaxInt64},
		Operation{Type: OpBurn, Asset: asset, Owner: owner, Amount: 1},
	)

	_, err := plan.Locks()
	require.Error(t, err)
}

func TestPlanTransactionsInIssueOrder(t *testing.T) {
	t.Parallel()

	asset := uuid.New()
	alice := uuid.New()

	first := NewTransaction(asset, "USD", nil, &alice, 0, 100, "first")
	second := NewTransaction(asset, "USD", &alice, nil, 50, 0, "second")

	plan := NewPlan(
		Operation{Type: OpMint, Asset: asset, Owner: alice, Amount: 100},
		Operation{Type: OpRecordTransaction, Transaction: &first},
		Operation{Type: OpBurn, Asset: asset, Owner: alice, Amount: 50},
		Operation{Type: OpRecordTransaction, Transaction: &second},
	)

	txs := plan.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, first.ID, txs[0].ID)
	assert.Equal(t, second.ID, txs[1].ID)
}
