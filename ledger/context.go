package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// claimKey identifies the (asset, owner) pool a claim draws from.
type claimKey struct {
	asset uuid.UUID
	owner uuid.UUID
}

// moneyState tracks one claim's slicing progress inside a plan.
type moneyState struct {
	asset  Asset
	owner  uuid.UUID
	amount int64
	sliced int64
}

func (m *moneyState) remaining() int64 {
	return m.amount - m.sliced
}

// sliceState is the registry entry for one slice. The end-of-plan audit
// walks these instead of relying on finalizer timing.
type sliceState struct {
	id       uuid.UUID
	amount   int64
	consumed bool
}

// planState is the mutable state shared by a TransactionContext and every
// Money/MoneySlice handle derived from it. All access goes through mu: the
// handles are exclusively owned by the planning goroutine in normal use,
// but nothing breaks if a closure fans out across goroutines.
type planState struct {
	mu      sync.Mutex
	adapter Adapter
	plan    *ExecutionPlan
	moneys  []*moneyState
	slices  []*sliceState
	claimed map[claimKey]int64

	idempotencyKey *string
}

// TransactionContext is the plan builder handed to the Atomic closure. It
// accumulates an ExecutionPlan in memory, using pre-transaction balance
// reads only as optimistic pre-checks; no storage lock is held during
// planning.
type TransactionContext struct {
	state *planState
}

func newTransactionContext(adapter Adapter) *TransactionContext {
	return &TransactionContext{
		state: &planState{
			adapter: adapter,
			plan:    newExecutionPlan(),
			claimed: make(map[claimKey]int64),
		},
	}
}

// GetBalance reads the owner's balance for an asset code. The read reflects
// the pre-transaction snapshot and is advisory only; execution re-derives
// correctness under lock.
func (tx *TransactionContext) GetBalance(ctx context.Context, assetCode string, owner uuid.UUID) (Balance, error) {
	asset, err := tx.state.adapter.GetAsset(ctx, assetCode)
	if err != nil {
		return Balance{}, err
	}

	return tx.state.adapter.GetBalance(ctx, asset.ID, owner)
}

// Money stages a spend claim against an owner's balance and returns the
// claim handle. The availability check subtracts amounts already claimed by
// earlier Money or Reserve calls in this same plan, so one plan cannot
// over-claim a single owner's balance against itself.
func (tx *TransactionContext) Money(ctx context.Context, assetCode string, owner uuid.UUID, amount int64) (*Money, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	asset, err := tx.state.adapter.GetAsset(ctx, assetCode)
	if err != nil {
		return nil, err
	}

	if err := tx.claim(ctx, asset, owner, amount); err != nil {
		return nil, err
	}

	s := tx.state
	s.mu.Lock()
	s.moneys = append(s.moneys, &moneyState{asset: asset, owner: owner, amount: amount})
	index := len(s.moneys) - 1
	s.mu.Unlock()

	return &Money{state: s, index: index, asset: asset, owner: owner}, nil
}

// Mint stages creation of new value for an owner. There is no balance
// precondition: minting is the sole way value enters the system.
func (tx *TransactionContext) Mint(ctx context.Context, assetCode string, owner uuid.UUID, amount int64, metadata string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	asset, err := tx.state.adapter.GetAsset(ctx, assetCode)
	if err != nil {
		return err
	}

	record := NewTransaction(asset.ID, asset.Code, nil, &owner, 0, amount, metadata)

	s := tx.state
	s.mu.Lock()
	s.plan.add(Operation{Type: OpMint, Asset: asset.ID, Owner: owner, Amount: amount, Metadata: metadata})
	s.plan.add(Operation{Type: OpRecordTransaction, Transaction: &record})
	s.mu.Unlock()

	return nil
}

// Burn is the shorthand for claiming an amount, slicing all of it, and
// burning the slice. It carries the same availability precondition as Money.
func (tx *TransactionContext) Burn(ctx context.Context, assetCode string, owner uuid.UUID, amount int64, metadata string) error {
	money, err := tx.Money(ctx, assetCode, owner, amount)
	if err != nil {
		return err
	}

	slice, err := money.Slice(amount)
	if err != nil {
		return err
	}

	return slice.Burn(ctx, metadata)
}

// Reserve earmarks an owner's value under an authority without transferring
// ownership outright: custody of the reserved fragments moves to the
// authority, which alone can settle or release them. Same availability
// precondition as Money; one-shot, no claim handle is returned.
func (tx *TransactionContext) Reserve(ctx context.Context, assetCode string, owner, authority uuid.UUID, amount int64, metadata string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if authority == uuid.Nil || authority == owner {
		return ErrInvalidAuthority
	}

	asset, err := tx.state.adapter.GetAsset(ctx, assetCode)
	if err != nil {
		return err
	}

	if err := tx.claim(ctx, asset, owner, amount); err != nil {
		return err
	}

	record := NewTransaction(asset.ID, asset.Code, &owner, &authority, amount, amount, metadata)

	s := tx.state
	s.mu.Lock()
	s.plan.add(Operation{Type: OpReserve, Asset: asset.ID, Owner: owner, Authority: authority, Amount: amount, Metadata: metadata})
	s.plan.add(Operation{Type: OpRecordTransaction, Transaction: &record})
	s.mu.Unlock()

	return nil
}

// Settle moves reserved value held under an authority to a receiver as
// spendable fragments. Settling back to the original owner releases the
// reservation. The reserved-balance check here is advisory; execution
// re-verifies against the Reserved fragment set under lock.
func (tx *TransactionContext) Settle(ctx context.Context, assetCode string, authority, receiver uuid.UUID, amount int64, metadata string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if authority == uuid.Nil {
		return ErrInvalidAuthority
	}

	asset, err := tx.state.adapter.GetAsset(ctx, assetCode)
	if err != nil {
		return err
	}

	balance, err := tx.state.adapter.GetBalance(ctx, asset.ID, authority)
	if err != nil {
		return err
	}

	if balance.Reserved < amount {
		return ErrInsufficientFunds
	}

	record := NewTransaction(asset.ID, asset.Code, &authority, &receiver, amount, amount, metadata)

	s := tx.state
	s.mu.Lock()
	s.plan.add(Operation{Type: OpSettle, Asset: asset.ID, Authority: authority, Recipient: receiver, Amount: amount, Metadata: metadata})
	s.plan.add(Operation{Type: OpRecordTransaction, Transaction: &record})
	s.mu.Unlock()

	return nil
}

// SetIdempotencyKey attaches a plan-level idempotency key. The key is
// recorded on the plan's first transaction record; replaying a committed
// key fails the whole plan with DuplicateIdempotencyKeyError. Calling this
// twice on one plan is a caller defect.
func (tx *TransactionContext) SetIdempotencyKey(key string) error {
	s := tx.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idempotencyKey != nil {
		return ErrIdempotencyKeySet
	}

	s.idempotencyKey = &key

	return nil
}

// claim checks availability against the pre-transaction snapshot minus
// amounts this plan has already claimed, then registers the new claim.
func (tx *TransactionContext) claim(ctx context.Context, asset Asset, owner uuid.UUID, amount int64) error {
	balance, err := tx.state.adapter.GetBalance(ctx, asset.ID, owner)
	if err != nil {
		return err
	}

	key := claimKey{asset: asset.ID, owner: owner}

	s := tx.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance.Available-s.claimed[key] < amount {
		return ErrInsufficientFunds
	}

	s.claimed[key] += amount

	return nil
}

// validate runs the commit-time conservation audit: every claim fully
// sliced, every slice consumed exactly once. Called by Atomic before any
// adapter involvement; a violation means nothing was applied, not even in
// memory effects visible to others.
func (tx *TransactionContext) validate() error {
	s := tx.state
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, money := range s.moneys {
		if money.sliced == 0 {
			return StorageError{Msg: "money created but never sliced"}
		}

		if money.sliced < money.amount {
			return StorageError{Msg: "money not fully sliced"}
		}

		if money.sliced > money.amount {
			return ErrInvalidAmount
		}
	}

	for _, slice := range s.slices {
		if !slice.consumed && slice.amount > 0 {
			return ErrUnconsumedSlice
		}
	}

	return nil
}

// finalize stamps the plan-level idempotency key onto the first audit
// record and returns the finished plan.
func (tx *TransactionContext) finalize() (*ExecutionPlan, error) {
	s := tx.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idempotencyKey != nil {
		attached := false

		for i := range s.plan.operations {
			op := &s.plan.operations[i]
			if op.Type == OpRecordTransaction && op.Transaction != nil {
				op.Transaction.IdempotencyKey = s.idempotencyKey
				attached = true

				break
			}
		}

		if !attached {
			return nil, fmt.Errorf("%w: idempotency key set on a plan with no operations", ErrInvalidAmount)
		}
	}

	return s.plan, nil
}
