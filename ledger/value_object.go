package ledger

import (
	"time"

	"github.com/google/uuid"
)

// ValueObjectState is the lifecycle state of a balance fragment.
type ValueObjectState string

const (
	// StateAlive marks a spendable fragment counted in the available balance.
	StateAlive ValueObjectState = "alive"
	// StateReserved marks a fragment earmarked under an authority, counted
	// in the reserved balance.
	StateReserved ValueObjectState = "reserved"
	// StateBurned marks a destroyed fragment. Terminal.
	StateBurned ValueObjectState = "burned"
)

// CanTransitionTo reports whether a state transition is legal. Burned is
// terminal; everything else may move between alive and reserved or be
// burned.
func (s ValueObjectState) CanTransitionTo(target ValueObjectState) bool {
	if s == target {
		return true
	}

	switch s {
	case StateAlive:
		return target == StateReserved || target == StateBurned
	case StateReserved:
		return target == StateAlive || target == StateBurned
	default:
		return false
	}
}

// IsAlive reports whether the state is Alive.
func (s ValueObjectState) IsAlive() bool { return s == StateAlive }

// IsReserved reports whether the state is Reserved.
func (s ValueObjectState) IsReserved() bool { return s == StateReserved }

// IsBurned reports whether the state is Burned.
func (s ValueObjectState) IsBurned() bool { return s == StateBurned }

// IsSpendable reports whether a fragment in this state can be selected for
// spending. Only Alive fragments are spendable; Reserved value moves only
// through settlement.
func (s ValueObjectState) IsSpendable() bool { return s.IsAlive() }

// ValueObject is an immutable, fixed-amount fragment of an owner's balance.
//
// Value objects are owned and mutated exclusively by the storage adapter,
// only inside an execution-phase transaction, and are never updated in
// place: every transition destroys the fragment and creates new ones.
// While non-Burned, 0 < Amount <= asset.Unit.
type ValueObject struct {
	ID          uuid.UUID        `json:"id"`
	Asset       uuid.UUID        `json:"asset"`
	Owner       uuid.UUID        `json:"owner"`
	Amount      int64            `json:"amount"`
	State       ValueObjectState `json:"state"`
	ReservedFor *uuid.UUID       `json:"reservedFor,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NewAliveValueObject creates a spendable fragment.
func NewAliveValueObject(asset, owner uuid.UUID, amount int64) ValueObject {
	return ValueObject{
		ID:        uuid.New(),
		Asset:     asset,
		Owner:     owner,
		Amount:    amount,
		State:     StateAlive,
		CreatedAt: time.Now().UTC(),
	}
}

// NewReservedValueObject creates a fragment earmarked under an authority.
// The authority is the only party that can later settle or release it.
func NewReservedValueObject(asset, owner uuid.UUID, amount int64, authority uuid.UUID) ValueObject {
	return ValueObject{
		ID:          uuid.New(),
		Asset:       asset,
		Owner:       owner,
		Amount:      amount,
		State:       StateReserved,
		ReservedFor: &authority,
		CreatedAt:   time.Now().UTC(),
	}
}
