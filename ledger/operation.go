package ledger

import (
	"github.com/google/uuid"
)

// OperationType tags the variants of the operation algebra.
type OperationType string

const (
	// OpMint creates new value for an owner. The sole way value enters the
	// system.
	OpMint OperationType = "MINT"
	// OpBurn destroys value held by an owner.
	OpBurn OperationType = "BURN"
	// OpTransfer moves value from one owner to another.
	OpTransfer OperationType = "TRANSFER"
	// OpReserve earmarks an owner's value under an authority.
	OpReserve OperationType = "RESERVE"
	// OpSettle moves reserved value held under an authority to a receiver.
	OpSettle OperationType = "SETTLE"
	// OpRecordTransaction persists an audit record.
	OpRecordTransaction OperationType = "RECORD_TRANSACTION"
)

// Operation is one staged, not-yet-applied effect in an execution plan.
// Which fields are meaningful depends on Type:
//
//	Mint:     Asset, Owner, Amount, Metadata
//	Burn:     Asset, Owner, Amount, Metadata
//	Transfer: Asset, Owner (from), Recipient (to), Amount, Metadata
//	Reserve:  Asset, Owner (from), Authority, Amount, Metadata
//	Settle:   Asset, Authority, Recipient, Amount, Metadata
//	RecordTransaction: Transaction
type Operation struct {
	Type        OperationType `json:"type"`
	Asset       uuid.UUID     `json:"asset"`
	Owner       uuid.UUID     `json:"owner"`
	Recipient   uuid.UUID     `json:"recipient"`
	Authority   uuid.UUID     `json:"authority"`
	Amount      int64         `json:"amount"`
	Metadata    string        `json:"metadata"`
	Transaction *Transaction  `json:"transaction,omitempty"`
}
