package ledger

import (
	"context"

	"github.com/TheOusia/ousia"
	"github.com/TheOusia/ousia/log"
)

// Atomic runs one plan-building closure and, if it succeeds and the
// conservation invariants hold, executes the finished plan through the
// adapter as a single all-or-nothing unit.
//
// The closure runs with no storage lock held; it may block on adapter reads
// without delaying unrelated transactions. A closure error — including
// business errors surfaced from Money or Reserve — aborts with zero adapter
// side effects. Validation failures likewise abort before any adapter call.
// Only a fully validated plan reaches ExecutePlan, which either commits
// everything or rolls back everything; no concurrent observer ever sees a
// partially applied plan.
//
// On success Atomic returns the committed transaction records in issue
// order. The ledger never retries internally: on ConflictError the caller
// may re-run the whole atomic block.
func Atomic(ctx context.Context, lc *LedgerContext, fn func(ctx context.Context, tx *TransactionContext) error) ([]Transaction, error) {
	tracer := ousia.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "ledger.atomic")
	defer span.End()

	logger := ousia.NewLoggerFromContext(ctx)

	txCtx := newTransactionContext(lc.Adapter())

	if err := fn(ctx, txCtx); err != nil {
		logger.Log(ctx, log.LevelDebug, "atomic block aborted by closure", log.Err(err))
		return nil, err
	}

	if err := txCtx.validate(); err != nil {
		logger.Log(ctx, log.LevelWarn, "atomic block failed conservation audit", log.Err(err))
		return nil, err
	}

	plan, err := txCtx.finalize()
	if err != nil {
		return nil, err
	}

	locks, err := plan.Locks()
	if err != nil {
		return nil, err
	}

	adapter := lc.Adapter()
	control, hasControl := adapter.(TransactionControl)

	if hasControl {
		if err := control.BeginTransaction(ctx); err != nil {
			return nil, NewStorageError("begin transaction", err)
		}
	}

	if err := adapter.ExecutePlan(ctx, plan, locks); err != nil {
		if hasControl {
			if rollbackErr := control.RollbackTransaction(ctx); rollbackErr != nil {
				logger.Log(ctx, log.LevelError, "rollback failed after plan execution error",
					log.Err(rollbackErr))
			}
		}

		return nil, err
	}

	if hasControl {
		if err := control.CommitTransaction(ctx); err != nil {
			return nil, NewStorageError("commit transaction", err)
		}
	}

	committed := plan.Transactions()

	logger.Log(ctx, log.LevelDebug, "atomic block committed",
		log.Int("operations", len(plan.Operations())),
		log.Int("transactions", len(committed)),
		log.Int("locks", len(locks)),
	)

	return committed, nil
}
