package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TheOusia/ousia/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFiatLedger registers a two-decimal asset with a 100.00 fragmentation
// cap and returns the pieces most tests need. Amounts in tests are internal
// units: 10_000 is 100.00.
func newFiatLedger(t *testing.T) (*Adapter, *ledger.LedgerContext, ledger.Asset) {
	t.Helper()

	adapter := New()

	asset, err := ledger.Fiat("USD")
	require.NoError(t, err)
	require.NoError(t, adapter.CreateAsset(context.Background(), asset))

	return adapter, ledger.NewSystem(adapter).Context(), asset
}

func mint(t *testing.T, lc *ledger.LedgerContext, owner uuid.UUID, amount int64) {
	t.Helper()

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Mint(ctx, "USD", owner, amount, "seed")
	})
	require.NoError(t, err)
}

func available(t *testing.T, lc *ledger.LedgerContext, owner uuid.UUID) int64 {
	t.Helper()

	balance, err := ledger.GetBalance(context.Background(), lc, "USD", owner)
	require.NoError(t, err)

	return balance.Available
}

// fragments returns the owner's non-burned fragment amounts for an asset.
func fragments(a *Adapter, asset, owner uuid.UUID) []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []int64

	for _, vo := range a.valueObjects {
		if vo.Asset == asset && vo.Owner == owner && !vo.State.IsBurned() {
			out = append(out, vo.Amount)
		}
	}

	return out
}

func TestMintFragmentsAtUnitCap(t *testing.T) {
	t.Parallel()

	adapter, lc, asset := newFiatLedger(t)
	owner := uuid.New()

	mint(t, lc, owner, 25_000)

	assert.EqualValues(t, 25_000, available(t, lc, owner))

	frags := fragments(adapter, asset.ID, owner)
	require.Len(t, frags, 3)

	var total int64
	for _, amount := range frags {
		assert.LessOrEqual(t, amount, asset.Unit)
		total += amount
	}

	assert.EqualValues(t, 25_000, total)
}

func TestTransferLeavesChange(t *testing.T) {
	t.Parallel()

	adapter, lc, asset := newFiatLedger(t)
	sender := uuid.New()
	recipient := uuid.New()

	mint(t, lc, sender, 25_000)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		money, err := tx.Money(ctx, "USD", sender, 20_000)
		if err != nil {
			return err
		}

		slice, err := money.Slice(20_000)
		if err != nil {
			return err
		}

		return slice.TransferTo(ctx, recipient, "invoice")
	})
	require.NoError(t, err)

	assert.EqualValues(t, 5_000, available(t, lc, sender))
	assert.EqualValues(t, 20_000, available(t, lc, recipient))

	for _, amount := range fragments(adapter, asset.ID, sender) {
		assert.LessOrEqual(t, amount, asset.Unit)
	}

	for _, amount := range fragments(adapter, asset.ID, recipient) {
		assert.LessOrEqual(t, amount, asset.Unit)
	}
}

func TestNeverSlicedClaimAborts(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)
	owner := uuid.New()

	mint(t, lc, owner, 5_000)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		_, err := tx.Money(ctx, "USD", owner, 5_000)
		return err
	})

	var storageErr ledger.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Contains(t, storageErr.Msg, "never sliced")

	assert.EqualValues(t, 5_000, available(t, lc, owner), "aborted plan must not touch balances")
}

func TestUnconsumedSliceAborts(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)
	owner := uuid.New()

	mint(t, lc, owner, 5_000)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		money, err := tx.Money(ctx, "USD", owner, 5_000)
		if err != nil {
			return err
		}

		_, err = money.Slice(5_000)

		return err
	})

	require.ErrorIs(t, err, ledger.ErrUnconsumedSlice)
	assert.EqualValues(t, 5_000, available(t, lc, owner))
}

func TestReserveInsufficientFunds(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)
	owner := uuid.New()
	marketplace := uuid.New()

	mint(t, lc, owner, 5_000)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Reserve(ctx, "USD", owner, marketplace, 20_000, "escrow")
	})

	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.EqualValues(t, 5_000, available(t, lc, owner))
}

func TestSplitSlicesProduceOneRecordEach(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)
	sender := uuid.New()
	recipients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	parts := []int64{7_000, 2_000, 1_000}

	mint(t, lc, sender, 10_000)

	txs, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		money, err := tx.Money(ctx, "USD", sender, 10_000)
		if err != nil {
			return err
		}

		rest, err := money.Slice(10_000)
		if err != nil {
			return err
		}

		for i, part := range parts[:len(parts)-1] {
			cut, err := rest.Slice(part)
			if err != nil {
				return err
			}

			if err := cut.TransferTo(ctx, recipients[i], "payout"); err != nil {
				return err
			}
		}

		return rest.TransferTo(ctx, recipients[len(recipients)-1], "payout")
	})
	require.NoError(t, err)
	require.Len(t, txs, 3)

	var burned int64

	for _, tx := range txs {
		require.NotNil(t, tx.Sender)
		assert.Equal(t, sender, *tx.Sender)
		burned += tx.BurnedAmount
	}

	assert.EqualValues(t, 10_000, burned)

	for i, part := range parts {
		assert.EqualValues(t, part, available(t, lc, recipients[i]))
	}
}

func TestConservationAcrossPlans(t *testing.T) {
	t.Parallel()

	adapter, lc, asset := newFiatLedger(t)
	alice := uuid.New()
	bob := uuid.New()
	escrow := uuid.New()

	circulating := func() int64 {
		adapter.mu.RLock()
		defer adapter.mu.RUnlock()

		var total int64

		for _, vo := range adapter.valueObjects {
			if vo.Asset == asset.ID && !vo.State.IsBurned() {
				total += vo.Amount
			}
		}

		return total
	}

	mint(t, lc, alice, 30_000)
	require.EqualValues(t, 30_000, circulating())

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		money, err := tx.Money(ctx, "USD", alice, 12_500)
		if err != nil {
			return err
		}

		toBob, err := money.Slice(10_000)
		if err != nil {
			return err
		}

		if err := toBob.TransferTo(ctx, bob, "split"); err != nil {
			return err
		}

		gone, err := money.Slice(2_500)
		if err != nil {
			return err
		}

		if err := gone.Burn(ctx, "fee"); err != nil {
			return err
		}

		return tx.Reserve(ctx, "USD", alice, escrow, 4_000, "hold")
	})
	require.NoError(t, err)

	// 30_000 minus the 2_500 burn; transfers and reservations conserve.
	assert.EqualValues(t, 27_500, circulating())
	assert.EqualValues(t, 13_500, available(t, lc, alice))
	assert.EqualValues(t, 10_000, available(t, lc, bob))

	escrowBalance, err := ledger.GetBalance(context.Background(), lc, "USD", escrow)
	require.NoError(t, err)
	assert.EqualValues(t, 4_000, escrowBalance.Reserved)
}

func TestConcurrentClaimsCannotDoubleSpend(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)
	owner := uuid.New()
	left := uuid.New()
	right := uuid.New()

	mint(t, lc, owner, 10_000)

	spendAll := func(recipient uuid.UUID) error {
		_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
			money, err := tx.Money(ctx, "USD", owner, 10_000)
			if err != nil {
				return err
			}

			slice, err := money.Slice(10_000)
			if err != nil {
				return err
			}

			return slice.TransferTo(ctx, recipient, "race")
		})

		return err
	}

	var wg sync.WaitGroup

	errs := make([]error, 2)
	targets := []uuid.UUID{left, right}

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			errs[i] = spendAll(targets[i])
		}(i)
	}

	wg.Wait()

	var failures int

	for _, err := range errs {
		if err == nil {
			continue
		}

		failures++

		var conflict ledger.ConflictError
		if !errors.Is(err, ledger.ErrInsufficientFunds) && !errors.As(err, &conflict) {
			t.Fatalf("unexpected race outcome: %v", err)
		}
	}

	require.Equal(t, 1, failures, "exactly one of two full-balance claims must fail")

	assert.EqualValues(t, 0, available(t, lc, owner))
	assert.EqualValues(t, 10_000, available(t, lc, left)+available(t, lc, right))
}

func TestIdempotencyKeyReplayRejected(t *testing.T) {
	t.Parallel()

	adapter, lc, _ := newFiatLedger(t)
	owner := uuid.New()

	deposit := func() ([]ledger.Transaction, error) {
		return ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
			if err := tx.SetIdempotencyKey("deposit-42"); err != nil {
				return err
			}

			return tx.Mint(ctx, "USD", owner, 9_000, "deposit")
		})
	}

	first, err := deposit()
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = deposit()

	var dup ledger.DuplicateIdempotencyKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first[0].ID, dup.TransactionID)

	assert.EqualValues(t, 9_000, available(t, lc, owner), "replay must be a no-op")

	got, err := adapter.GetTransactionByIdempotencyKey(context.Background(), "deposit-42")
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, got.ID)

	require.ErrorAs(t, adapter.CheckIdempotencyKey(context.Background(), "deposit-42"), &dup)
	require.NoError(t, adapter.CheckIdempotencyKey(context.Background(), "deposit-43"))
}

func TestReserveSettleAndRelease(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)
	buyer := uuid.New()
	marketplace := uuid.New()
	seller := uuid.New()

	mint(t, lc, buyer, 10_000)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Reserve(ctx, "USD", buyer, marketplace, 6_000, "order escrow")
	})
	require.NoError(t, err)

	assert.EqualValues(t, 4_000, available(t, lc, buyer))

	escrow, err := ledger.GetBalance(context.Background(), lc, "USD", marketplace)
	require.NoError(t, err)
	assert.EqualValues(t, 6_000, escrow.Reserved)
	assert.EqualValues(t, 0, escrow.Available)

	_, err = ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Settle(ctx, "USD", marketplace, seller, 5_000, "order shipped")
	})
	require.NoError(t, err)

	assert.EqualValues(t, 5_000, available(t, lc, seller))

	escrow, err = ledger.GetBalance(context.Background(), lc, "USD", marketplace)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, escrow.Reserved)

	// Settling back to the buyer releases the remainder.
	_, err = ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Settle(ctx, "USD", marketplace, buyer, 1_000, "partial refund")
	})
	require.NoError(t, err)

	assert.EqualValues(t, 5_000, available(t, lc, buyer))

	escrow, err = ledger.GetBalance(context.Background(), lc, "USD", marketplace)
	require.NoError(t, err)
	assert.EqualValues(t, 0, escrow.Reserved)
}

func TestSettleWithoutReservation(t *testing.T) {
	t.Parallel()

	_, lc, _ := newFiatLedger(t)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Settle(ctx, "USD", uuid.New(), uuid.New(), 1_000, "nothing held")
	})

	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestCreateAssetRejectsDuplicateCode(t *testing.T) {
	t.Parallel()

	adapter, _, _ := newFiatLedger(t)

	again, err := ledger.Fiat("USD")
	require.NoError(t, err)

	err = adapter.CreateAsset(context.Background(), again)

	var conflict ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestGetAssetNotFound(t *testing.T) {
	t.Parallel()

	adapter := New()

	_, err := adapter.GetAsset(context.Background(), "EUR")

	var notFound ledger.AssetNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "EUR", notFound.Code)
}

func TestGetTransactionNotFound(t *testing.T) {
	t.Parallel()

	adapter := New()

	_, err := adapter.GetTransaction(context.Background(), uuid.New())
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestExecutePlanHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	adapter, lc, _ := newFiatLedger(t)
	owner := uuid.New()

	mint(t, lc, owner, 1_000)

	// Occupy the execution gate so the plan has to wait, then expire the
	// caller's deadline.
	adapter.sem <- struct{}{}
	defer func() { <-adapter.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ledger.Atomic(ctx, lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		return tx.Mint(ctx, "USD", owner, 1_000, "stuck")
	})

	var conflict ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestReaderQueries(t *testing.T) {
	t.Parallel()

	adapter, lc, asset := newFiatLedger(t)
	alice := uuid.New()
	bob := uuid.New()

	mint(t, lc, alice, 20_000)

	_, err := ledger.Atomic(context.Background(), lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
		money, err := tx.Money(ctx, "USD", alice, 8_000)
		if err != nil {
			return err
		}

		slice, err := money.Slice(8_000)
		if err != nil {
			return err
		}

		return slice.TransferTo(ctx, bob, "rent")
	})
	require.NoError(t, err)

	forAlice, err := adapter.GetTransactionsForOwner(context.Background(), alice, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, forAlice, 2, "mint to alice plus transfer from alice")

	forBob, err := adapter.GetTransactionsForOwner(context.Background(), bob, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, forBob, 1)

	forAsset, err := adapter.GetTransactionsForAsset(context.Background(), asset.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, forAsset, 2)

	none, err := adapter.GetTransactionsForAsset(context.Background(), asset.ID,
		time.Now().Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)

	holdings, err := adapter.GetHoldings(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "USD", holdings[0].Asset.Code)
	assert.EqualValues(t, 12_000, holdings[0].Balance.Available)

	empty, err := adapter.GetHoldings(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
