package ledger

import (
	"github.com/TheOusia/ousia/safe"
	"github.com/google/uuid"
)

// FragmentAmount splits an amount into value objects each holding at most
// the asset's unit cap. A nil authority produces Alive fragments; a non-nil
// authority produces Reserved fragments earmarked under it. A zero amount
// produces no fragments.
//
// Every mint path — deposits, transfer outputs, reservation outputs, and
// change — goes through this function, so the 0 < amount <= unit fragment
// invariant holds everywhere by construction.
func FragmentAmount(asset Asset, owner uuid.UUID, amount int64, authority *uuid.UUID) []ValueObject {
	if amount <= 0 {
		return nil
	}

	count, err := safe.CeilDiv(amount, asset.Unit)
	if err != nil {
		// Unit > 0 is an Asset construction invariant.
		return nil
	}

	fragments := make([]ValueObject, 0, count)
	remaining := amount

	for remaining > 0 {
		chunk := safe.Min(remaining, asset.Unit)

		if authority != nil {
			fragments = append(fragments, NewReservedValueObject(asset.ID, owner, chunk, *authority))
		} else {
			fragments = append(fragments, NewAliveValueObject(asset.ID, owner, chunk))
		}

		remaining -= chunk
	}

	return fragments
}
