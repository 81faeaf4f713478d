package ledger

import (
	"fmt"
	"sort"

	"github.com/TheOusia/ousia/safe"
	"github.com/google/uuid"
)

// Lock names one (asset, owner) pair a plan will spend from and the amount
// the executing adapter must be able to cover under lock.
type Lock struct {
	Asset  uuid.UUID
	Owner  uuid.UUID
	Amount int64
}

// ExecutionPlan is the staged description of a plan's effects, built
// entirely in memory in program order. It never re-reads storage once
// planning starts; the executing adapter re-derives correctness under lock.
type ExecutionPlan struct {
	operations []Operation
}

func newExecutionPlan() *ExecutionPlan {
	return &ExecutionPlan{}
}

// NewPlan assembles a plan directly from operations, bypassing the
// conservation audit that Atomic performs. Intended for adapter
// implementations and their tests; embedding code builds plans through
// Atomic and TransactionContext.
func NewPlan(ops ...Operation) *ExecutionPlan {
	return &ExecutionPlan{operations: ops}
}

func (p *ExecutionPlan) add(op Operation) {
	p.operations = append(p.operations, op)
}

// Operations returns the staged operations in issue order.
func (p *ExecutionPlan) Operations() []Operation {
	return p.operations
}

// Transactions returns the audit records staged in the plan, in issue order.
func (p *ExecutionPlan) Transactions() []Transaction {
	var txs []Transaction

	for _, op := range p.operations {
		if op.Type == OpRecordTransaction && op.Transaction != nil {
			txs = append(txs, *op.Transaction)
		}
	}

	return txs
}

// Locks sums the spend requirement per (asset, owner) pair across Burn,
// Transfer, and Reserve operations. Settle spends from the authority's
// reserved pool, which is locked by the same pair keyed on the authority.
// The result is sorted by (asset, owner) so adapters acquire row locks in a
// deterministic order, which prevents lock-order deadlocks between
// overlapping plans.
func (p *ExecutionPlan) Locks() ([]Lock, error) {
	type pair struct {
		asset uuid.UUID
		owner uuid.UUID
	}

	required := make(map[pair]int64)

	for _, op := range p.operations {
		var key pair

		switch op.Type {
		case OpBurn, OpTransfer, OpReserve:
			key = pair{asset: op.Asset, owner: op.Owner}
		default:
			continue
		}

		sum, err := safe.Add(required[key], op.Amount)
		if err != nil {
			return nil, fmt.Errorf("lock requirement for asset %s owner %s: %w", key.asset, key.owner, err)
		}

		required[key] = sum
	}

	locks := make([]Lock, 0, len(required))
	for key, amount := range required {
		locks = append(locks, Lock{Asset: key.asset, Owner: key.owner, Amount: amount})
	}

	sort.Slice(locks, func(i, j int) bool {
		if locks[i].Asset != locks[j].Asset {
			return locks[i].Asset.String() < locks[j].Asset.String()
		}

		return locks[i].Owner.String() < locks[j].Owner.String()
	})

	return locks, nil
}
