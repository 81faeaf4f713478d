// Package ledger is an embeddable double-entry ledger engine over
// fragmented balance units.
//
// Money movement is split into two phases. Planning happens purely in
// memory: the closure passed to Atomic receives a TransactionContext and
// stages mints, burns, transfers, and reservations through claims (Money)
// and slices (MoneySlice) that enforce conservation of value — every claim
// must be fully sliced and every slice consumed exactly once before the
// plan may commit. Execution happens inside a single locked storage
// transaction: the adapter selects fragments, burns them, mints outputs and
// change, and persists audit records, all or nothing.
//
//	sys := ledger.NewSystem(memory.New())
//	lc := sys.Context()
//
//	txs, err := ledger.Atomic(ctx, lc, func(ctx context.Context, tx *ledger.TransactionContext) error {
//		money, err := tx.Money(ctx, "USD", alice, 20_000)
//		if err != nil {
//			return err
//		}
//
//		slice, err := money.Slice(20_000)
//		if err != nil {
//			return err
//		}
//
//		return slice.TransferTo(ctx, bob, "invoice 42")
//	})
//
// Owners are opaque, equality-comparable UUIDs; the ledger never interprets
// owner identity beyond equality and lookup.
package ledger
