// Package memory provides the in-memory reference adapter. It is the
// executable definition of adapter semantics: a single exclusivity gate
// stands in for row locks, and every plan is staged against a scratch copy
// of the store so a failing plan leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TheOusia/ousia/ledger"
	"github.com/TheOusia/ousia/safe"
	"github.com/google/uuid"
)

// Compile-time contract checks.
var (
	_ ledger.Adapter = (*Adapter)(nil)
	_ ledger.Reader  = (*Adapter)(nil)
)

// Adapter is a process-local, non-durable store. All state lives in maps;
// ExecutePlan runs serialized behind a semaphore, which is the in-memory
// analogue of acquiring every row lock up front. Read methods serve
// consistent snapshots and never wait on an in-flight plan.
type Adapter struct {
	// sem serializes ExecutePlan. Acquired with the caller's context so a
	// lock wait is bounded by the caller's deadline, matching the bounded
	// lock-wait contract.
	sem chan struct{}

	mu           sync.RWMutex
	assetsByCode map[string]ledger.Asset
	assetsByID   map[uuid.UUID]ledger.Asset
	valueObjects map[uuid.UUID]ledger.ValueObject
	transactions map[uuid.UUID]ledger.Transaction
	idempotency  map[string]uuid.UUID
}

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{
		sem:          make(chan struct{}, 1),
		assetsByCode: make(map[string]ledger.Asset),
		assetsByID:   make(map[uuid.UUID]ledger.Asset),
		valueObjects: make(map[uuid.UUID]ledger.ValueObject),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		idempotency:  make(map[string]uuid.UUID),
	}
}

// CreateAsset registers an asset definition. Assets are immutable once
// registered; re-registering a code is rejected with ConflictError.
func (a *Adapter) CreateAsset(_ context.Context, asset ledger.Asset) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.assetsByCode[asset.Code]; ok {
		return ledger.ConflictError{Msg: "asset already registered: " + asset.Code}
	}

	a.assetsByCode[asset.Code] = asset
	a.assetsByID[asset.ID] = asset

	return nil
}

// GetAsset looks up an asset by code.
func (a *Adapter) GetAsset(_ context.Context, code string) (ledger.Asset, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	asset, ok := a.assetsByCode[code]
	if !ok {
		return ledger.Asset{}, ledger.AssetNotFoundError{Code: code}
	}

	return asset, nil
}

// GetBalance derives the owner's balance for an asset from the live
// fragment set. Reserved value is credited to the authority holding it, so
// an authority's balance carries the reservations it controls.
func (a *Adapter) GetBalance(_ context.Context, asset, owner uuid.UUID) (ledger.Balance, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var alive, reserved int64

	for _, vo := range a.valueObjects {
		if vo.Asset != asset || vo.Owner != owner {
			continue
		}

		var err error

		switch {
		case vo.State.IsAlive():
			alive, err = safe.Add(alive, vo.Amount)
		case vo.State.IsReserved():
			reserved, err = safe.Add(reserved, vo.Amount)
		}

		if err != nil {
			return ledger.Balance{}, ledger.NewStorageError("balance sum", err)
		}
	}

	return ledger.BalanceFromValueObjects(owner, asset, alive, reserved), nil
}

// GetTransaction fetches one audit record by ID.
func (a *Adapter) GetTransaction(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx, ok := a.transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}

	return tx, nil
}

// ExecutePlan applies a validated plan all or nothing. The plan is staged
// against a scratch copy of the fragment map; only a fully successful run
// publishes the scratch state back to the store.
func (a *Adapter) ExecutePlan(ctx context.Context, plan *ledger.ExecutionPlan, locks []ledger.Lock) error {
	select {
	case a.sem <- struct{}{}:
		defer func() { <-a.sem }()
	case <-ctx.Done():
		return ledger.ConflictError{Msg: "lock wait aborted: " + ctx.Err().Error()}
	}

	a.mu.RLock()
	scratch := make(map[uuid.UUID]ledger.ValueObject, len(a.valueObjects))
	for id, vo := range a.valueObjects {
		scratch[id] = vo
	}
	a.mu.RUnlock()

	var (
		newTxs  []ledger.Transaction
		newKeys = make(map[string]uuid.UUID)
	)

	// Phase 1: select fragments to cover each lock entry. Selection is
	// smallest-first with ties broken by fragment ID, so overlapping plans
	// contend for the same rows in the same order.
	type selection struct {
		lock  ledger.Lock
		ids   []uuid.UUID
		total int64
	}

	selections := make([]selection, 0, len(locks))

	for _, lock := range locks {
		ids, total, err := selectFragments(scratch, lock.Asset, lock.Owner, ledger.StateAlive, nil, lock.Amount)
		if err != nil {
			return err
		}

		selections = append(selections, selection{lock: lock, ids: ids, total: total})
	}

	// Phase 2: apply operations in plan order against the scratch state.
	for _, op := range plan.Operations() {
		switch op.Type {
		case ledger.OpMint:
			asset, err := a.assetForID(op.Asset)
			if err != nil {
				return err
			}

			stage(scratch, ledger.FragmentAmount(asset, op.Owner, op.Amount, nil))

		case ledger.OpTransfer:
			asset, err := a.assetForID(op.Asset)
			if err != nil {
				return err
			}

			stage(scratch, ledger.FragmentAmount(asset, op.Recipient, op.Amount, nil))

		case ledger.OpReserve:
			asset, err := a.assetForID(op.Asset)
			if err != nil {
				return err
			}

			stage(scratch, ledger.FragmentAmount(asset, op.Authority, op.Amount, &op.Authority))

		case ledger.OpBurn:
			// Covered by phase 1 selection and phase 3 burn.

		case ledger.OpSettle:
			if err := a.settle(scratch, op); err != nil {
				return err
			}

		case ledger.OpRecordTransaction:
			if op.Transaction == nil {
				return ledger.StorageError{Msg: "record operation without transaction"}
			}

			tx := *op.Transaction

			if tx.IdempotencyKey != nil {
				hash := ledger.HashIdempotencyKey(*tx.IdempotencyKey)

				if existing, err := a.committedKey(hash, newKeys); err == nil {
					return ledger.DuplicateIdempotencyKeyError{TransactionID: existing}
				}

				newKeys[hash] = tx.ID
			}

			newTxs = append(newTxs, tx)

		default:
			return ledger.StorageError{Msg: "unknown operation type: " + string(op.Type)}
		}
	}

	// Phase 3: burn every selected fragment and mint the change back to the
	// owner as fresh spendable fragments.
	for _, sel := range selections {
		for _, id := range sel.ids {
			vo := scratch[id]
			vo.State = ledger.StateBurned
			scratch[id] = vo
		}

		change, err := safe.Sub(sel.total, sel.lock.Amount)
		if err != nil || change < 0 {
			return ledger.StorageError{Msg: "selection total below lock requirement"}
		}

		if change > 0 {
			asset, err := a.assetForID(sel.lock.Asset)
			if err != nil {
				return err
			}

			stage(scratch, ledger.FragmentAmount(asset, sel.lock.Owner, change, nil))
		}
	}

	a.mu.Lock()
	a.valueObjects = scratch

	for _, tx := range newTxs {
		a.transactions[tx.ID] = tx
	}

	for hash, id := range newKeys {
		a.idempotency[hash] = id
	}
	a.mu.Unlock()

	return nil
}

// settle moves reserved value held under an authority to the receiver. The
// receiver's fragments come back Alive; change stays Reserved under the
// authority. Settling back to the original owner is the release path.
func (a *Adapter) settle(scratch map[uuid.UUID]ledger.ValueObject, op ledger.Operation) error {
	asset, err := a.assetForID(op.Asset)
	if err != nil {
		return err
	}

	ids, total, err := selectFragments(scratch, op.Asset, op.Authority, ledger.StateReserved, &op.Authority, op.Amount)
	if err != nil {
		return err
	}

	for _, id := range ids {
		vo := scratch[id]
		vo.State = ledger.StateBurned
		scratch[id] = vo
	}

	stage(scratch, ledger.FragmentAmount(asset, op.Recipient, op.Amount, nil))

	if change := total - op.Amount; change > 0 {
		stage(scratch, ledger.FragmentAmount(asset, op.Authority, change, &op.Authority))
	}

	return nil
}

// selectFragments picks fragments of the given state covering amount,
// smallest amount first, ties by ID. An empty candidate set for a reserved
// selection means there is no reservation to settle; a non-empty set that
// cannot cover the amount is an insufficiency.
func selectFragments(scratch map[uuid.UUID]ledger.ValueObject, asset, owner uuid.UUID, state ledger.ValueObjectState, reservedFor *uuid.UUID, amount int64) ([]uuid.UUID, int64, error) {
	var candidates []ledger.ValueObject

	for _, vo := range scratch {
		if vo.Asset != asset || vo.Owner != owner || vo.State != state {
			continue
		}

		if reservedFor != nil && (vo.ReservedFor == nil || *vo.ReservedFor != *reservedFor) {
			continue
		}

		candidates = append(candidates, vo)
	}

	if state.IsReserved() && len(candidates) == 0 {
		return nil, 0, ledger.ErrReservationNotFound
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Amount != candidates[j].Amount {
			return candidates[i].Amount < candidates[j].Amount
		}

		return candidates[i].ID.String() < candidates[j].ID.String()
	})

	var (
		ids   []uuid.UUID
		total int64
	)

	for _, vo := range candidates {
		if total >= amount {
			break
		}

		sum, err := safe.Add(total, vo.Amount)
		if err != nil {
			return nil, 0, ledger.NewStorageError("selection sum", err)
		}

		total = sum

		ids = append(ids, vo.ID)
	}

	if total < amount {
		return nil, 0, ledger.ErrInsufficientFunds
	}

	return ids, total, nil
}

// stage inserts freshly minted fragments into the scratch state.
func stage(scratch map[uuid.UUID]ledger.ValueObject, fragments []ledger.ValueObject) {
	for _, vo := range fragments {
		scratch[vo.ID] = vo
	}
}

// assetForID resolves an asset definition by ID; plans reference assets by
// ID only.
func (a *Adapter) assetForID(id uuid.UUID) (ledger.Asset, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	asset, ok := a.assetsByID[id]
	if !ok {
		return ledger.Asset{}, ledger.AssetNotFoundError{Code: id.String()}
	}

	return asset, nil
}

// committedKey reports the transaction already holding a hashed idempotency
// key, checking both committed state and keys staged earlier in the same
// plan.
func (a *Adapter) committedKey(hash string, staged map[string]uuid.UUID) (uuid.UUID, error) {
	if id, ok := staged[hash]; ok {
		return id, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if id, ok := a.idempotency[hash]; ok {
		return id, nil
	}

	return uuid.Nil, ledger.ErrTransactionNotFound
}

// GetTransactionsForOwner returns audit records where the owner is sender
// or receiver, created within [from, to]. A zero bound is open-ended.
func (a *Adapter) GetTransactionsForOwner(_ context.Context, owner uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []ledger.Transaction

	for _, tx := range a.transactions {
		involved := (tx.Sender != nil && *tx.Sender == owner) || (tx.Receiver != nil && *tx.Receiver == owner)
		if involved && inWindow(tx.CreatedAt, from, to) {
			out = append(out, tx)
		}
	}

	sortTransactions(out)

	return out, nil
}

// GetTransactionsForAsset returns audit records for an asset created within
// [from, to]. A zero bound is open-ended.
func (a *Adapter) GetTransactionsForAsset(_ context.Context, asset uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []ledger.Transaction

	for _, tx := range a.transactions {
		if tx.Asset == asset && inWindow(tx.CreatedAt, from, to) {
			out = append(out, tx)
		}
	}

	sortTransactions(out)

	return out, nil
}

// GetTransactionByIdempotencyKey resolves a raw idempotency key to the
// transaction that committed it.
func (a *Adapter) GetTransactionByIdempotencyKey(_ context.Context, key string) (ledger.Transaction, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.idempotency[ledger.HashIdempotencyKey(key)]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}

	tx, ok := a.transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}

	return tx, nil
}

// CheckIdempotencyKey reports whether a raw key was already committed,
// returning DuplicateIdempotencyKeyError if so.
func (a *Adapter) CheckIdempotencyKey(_ context.Context, key string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if id, ok := a.idempotency[ledger.HashIdempotencyKey(key)]; ok {
		return ledger.DuplicateIdempotencyKeyError{TransactionID: id}
	}

	return nil
}

// GetHoldings returns the owner's non-empty balances across all registered
// assets, sorted by asset code.
func (a *Adapter) GetHoldings(ctx context.Context, owner uuid.UUID) ([]ledger.Holding, error) {
	a.mu.RLock()
	assets := make([]ledger.Asset, 0, len(a.assetsByCode))
	for _, asset := range a.assetsByCode {
		assets = append(assets, asset)
	}
	a.mu.RUnlock()

	sort.Slice(assets, func(i, j int) bool { return assets[i].Code < assets[j].Code })

	var holdings []ledger.Holding

	for _, asset := range assets {
		balance, err := a.GetBalance(ctx, asset.ID, owner)
		if err != nil {
			return nil, err
		}

		if balance.Total == 0 {
			continue
		}

		holdings = append(holdings, ledger.NewHolding(asset, balance))
	}

	return holdings, nil
}

func inWindow(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}

	if !to.IsZero() && at.After(to) {
		return false
	}

	return true
}

func sortTransactions(txs []ledger.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		}

		return txs[i].ID.String() < txs[j].ID.String()
	})
}
