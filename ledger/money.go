package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Money is an ephemeral planning-time claim against an owner's balance,
// created by TransactionContext.Money. It exists only for the lifetime of
// one plan-building closure and must be fully divided into slices before
// the plan can commit.
type Money struct {
	state *planState
	index int
	asset Asset
	owner uuid.UUID
}

// Asset returns the asset the claim draws from.
func (m *Money) Asset() Asset { return m.asset }

// Owner returns the owner the claim draws from.
func (m *Money) Owner() uuid.UUID { return m.owner }

// Remaining returns the amount not yet carved into slices.
func (m *Money) Remaining() int64 {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	return m.state.moneys[m.index].remaining()
}

// Slice carves amount off the claim into a new slice. Requires
// 0 < amount <= Remaining(). The claim keeps no reference to the slice;
// ownership of the carved value transfers to the returned handle, which
// must be consumed exactly once before commit.
func (m *Money) Slice(amount int64) (*MoneySlice, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	money := s.moneys[m.index]
	if money.remaining() < amount {
		return nil, ErrInvalidAmount
	}

	money.sliced += amount

	entry := &sliceState{id: uuid.New(), amount: amount}
	s.slices = append(s.slices, entry)

	return &MoneySlice{
		state:  s,
		entry:  entry,
		asset:  m.asset,
		owner:  m.owner,
		amount: amount,
	}, nil
}

// MoneySlice is a staged intention to spend part of a claim. A slice may be
// divided further any number of times, but the value it still holds must be
// consumed exactly once — by TransferTo or Burn — before the enclosing plan
// commits.
type MoneySlice struct {
	state    *planState
	entry    *sliceState
	asset    Asset
	owner    uuid.UUID
	amount   int64
	consumed bool
}

// Amount returns the value currently held by the slice.
func (s *MoneySlice) Amount() int64 { return s.amount }

// Owner returns the owner the slice spends from.
func (s *MoneySlice) Owner() uuid.UUID { return s.owner }

// IsConsumed reports whether the slice was already transferred or burned.
func (s *MoneySlice) IsConsumed() bool { return s.consumed }

// Slice carves amount off into a new sub-slice, reducing this slice's
// value. Requires 0 < amount <= Amount(). Sub-slicing may nest arbitrarily.
func (s *MoneySlice) Slice(amount int64) (*MoneySlice, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ps := s.state
	ps.mu.Lock()
	defer ps.mu.Unlock()

	// Checked under the lock so concurrent carving cannot drive the slice
	// negative.
	if amount > s.amount {
		return nil, ErrInvalidAmount
	}

	s.amount -= amount
	s.entry.amount = s.amount

	entry := &sliceState{id: uuid.New(), amount: amount}
	ps.slices = append(ps.slices, entry)

	return &MoneySlice{
		state:  ps,
		entry:  entry,
		asset:  s.asset,
		owner:  s.owner,
		amount: amount,
	}, nil
}

// TransferTo consumes the slice, staging a transfer of its value to the
// recipient plus the matching audit record. Fails with ErrSliceConsumed if
// the slice was already consumed. A zero-value slice is consumed without
// staging anything.
func (s *MoneySlice) TransferTo(_ context.Context, recipient uuid.UUID, metadata string) error {
	ps := s.state
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if s.consumed {
		return ErrSliceConsumed
	}

	s.consumed = true
	s.entry.consumed = true

	if s.amount == 0 {
		return nil
	}

	record := NewTransaction(s.asset.ID, s.asset.Code, &s.owner, &recipient, s.amount, s.amount, metadata)

	ps.plan.add(Operation{
		Type:      OpTransfer,
		Asset:     s.asset.ID,
		Owner:     s.owner,
		Recipient: recipient,
		Amount:    s.amount,
		Metadata:  metadata,
	})
	ps.plan.add(Operation{Type: OpRecordTransaction, Transaction: &record})

	return nil
}

// Burn consumes the slice, staging destruction of its value plus the
// matching audit record. An amount of zero is a valid no-op consumption,
// used to dispose of an exhausted leftover.
func (s *MoneySlice) Burn(_ context.Context, metadata string) error {
	ps := s.state
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if s.consumed {
		return ErrSliceConsumed
	}

	s.consumed = true
	s.entry.consumed = true

	if s.amount == 0 {
		return nil
	}

	record := NewTransaction(s.asset.ID, s.asset.Code, &s.owner, nil, s.amount, 0, metadata)

	ps.plan.add(Operation{
		Type:     OpBurn,
		Asset:    s.asset.ID,
		Owner:    s.owner,
		Amount:   s.amount,
		Metadata: metadata,
	})
	ps.plan.add(Operation{Type: OpRecordTransaction, Transaction: &record})

	return nil
}
