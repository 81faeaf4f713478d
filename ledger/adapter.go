package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Adapter is the storage contract. ExecutePlan is the mandatory integration
// point: it must apply the whole plan inside one storage-level atomic
// transaction — acquiring per-(asset, owner) locks, selecting and burning
// fragments, minting outputs and change, persisting audit records — or roll
// back entirely. Lock waits must be bounded and surfaced as ConflictError
// or StorageError, never as an indefinite hang.
//
// Read methods are snapshot reads used by the planning phase as optimistic
// pre-checks; no storage lock may be held while serving them.
type Adapter interface {
	CreateAsset(ctx context.Context, asset Asset) error
	GetAsset(ctx context.Context, code string) (Asset, error)
	GetBalance(ctx context.Context, asset, owner uuid.UUID) (Balance, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	ExecutePlan(ctx context.Context, plan *ExecutionPlan, locks []Lock) error
}

// TransactionControl is an optional extension for adapters that need
// explicit transaction handles around ExecutePlan. Adapters that open and
// commit their storage transaction inside ExecutePlan (both bundled
// adapters do) need not implement it; the orchestrator type-asserts and
// calls the hooks only when present.
type TransactionControl interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// Reader is an optional extension with the richer query surface: owner and
// asset transaction history, holdings, and idempotency lookups.
type Reader interface {
	GetTransactionsForOwner(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]Transaction, error)
	GetTransactionsForAsset(ctx context.Context, asset uuid.UUID, from, to time.Time) ([]Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
	CheckIdempotencyKey(ctx context.Context, key string) error
	GetHoldings(ctx context.Context, owner uuid.UUID) ([]Holding, error)
}

// System binds a chosen adapter to the orchestration entry point. It is the
// root object an embedding application constructs once and shares.
type System struct {
	adapter Adapter
}

// NewSystem initializes the ledger system with an adapter. The adapter is
// injected explicitly; there is no ambient global registry.
func NewSystem(adapter Adapter) *System {
	return &System{adapter: adapter}
}

// Adapter returns the bound adapter.
//
//nolint:ireturn
func (s *System) Adapter() Adapter {
	return s.adapter
}

// Context creates a LedgerContext bound to this system's adapter.
func (s *System) Context() *LedgerContext {
	return NewLedgerContext(s.adapter)
}

// LedgerContext is the handle passed around by embedding code: a thin,
// copy-friendly binding to an adapter.
type LedgerContext struct {
	adapter Adapter
}

// NewLedgerContext creates a context bound to the given adapter.
func NewLedgerContext(adapter Adapter) *LedgerContext {
	return &LedgerContext{adapter: adapter}
}

// Adapter returns the bound adapter.
//
//nolint:ireturn
func (lc *LedgerContext) Adapter() Adapter {
	return lc.adapter
}
