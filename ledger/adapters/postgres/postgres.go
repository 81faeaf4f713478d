// Package postgres provides the durable ledger adapter. Plans execute in a
// single database transaction on the primary: fragment rows are locked with
// SELECT ... FOR UPDATE under a bounded lock_timeout, re-verified against
// the Alive set, burned, and replaced. Reads go through the resolver and
// may land on a replica.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TheOusia/ousia/ledger"
	"github.com/TheOusia/ousia/log"
	pgdb "github.com/TheOusia/ousia/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Compile-time contract checks.
var (
	_ ledger.Adapter = (*Adapter)(nil)
	_ ledger.Reader  = (*Adapter)(nil)
)

const defaultLockTimeout = 5 * time.Second

// Postgres error codes mapped to ConflictError: lock_not_available,
// serialization_failure, deadlock_detected.
const (
	pgCodeLockNotAvailable     = "55P03"
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
)

// Config holds the adapter dependencies. Client is required.
type Config struct {
	Client *pgdb.Client
	Logger log.Logger

	// LockTimeout bounds how long a plan waits for contended fragment rows
	// before failing with ConflictError. Zero takes the package default.
	LockTimeout time.Duration
}

// Adapter is the durable storage adapter backed by PostgreSQL.
type Adapter struct {
	client      *pgdb.Client
	logger      log.Logger
	lockTimeout time.Duration
}

// New creates a postgres-backed adapter on top of a connection hub client.
func New(cfg Config) (*Adapter, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: client is required", pgdb.ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	return &Adapter{client: cfg.Client, logger: logger, lockTimeout: lockTimeout}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ledger_assets (
		id UUID PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		unit BIGINT NOT NULL CHECK (unit > 0),
		decimals SMALLINT NOT NULL CHECK (decimals >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_value_objects (
		id UUID PRIMARY KEY,
		asset UUID NOT NULL REFERENCES ledger_assets(id),
		owner UUID NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		state TEXT NOT NULL CHECK (state IN ('alive', 'reserved', 'burned')),
		reserved_for UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Selection order is amount ASC, id ASC; the composite index serves the
	// lock query without a sort.
	`CREATE INDEX IF NOT EXISTS idx_value_objects_selection
		ON ledger_value_objects(asset, owner, state, amount ASC, id ASC)`,
	`CREATE INDEX IF NOT EXISTS idx_value_objects_owner
		ON ledger_value_objects(owner)`,
	// Burned rows are cold and archivable; keep them out of the index used
	// by live queries.
	`CREATE INDEX IF NOT EXISTS idx_value_objects_live
		ON ledger_value_objects(asset, owner, amount ASC)
		WHERE state != 'burned'`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id UUID PRIMARY KEY,
		asset UUID NOT NULL REFERENCES ledger_assets(id),
		sender UUID,
		receiver UUID,
		burned_amount BIGINT NOT NULL,
		minted_amount BIGINT NOT NULL,
		metadata TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_asset
		ON ledger_transactions(asset)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_sender
		ON ledger_transactions(sender)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_receiver
		ON ledger_transactions(receiver)`,
	`CREATE TABLE IF NOT EXISTS ledger_transaction_idempotency_keys (
		key TEXT NOT NULL PRIMARY KEY,
		transaction_id UUID NOT NULL REFERENCES ledger_transactions(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_keys_transaction_id
		ON ledger_transaction_idempotency_keys(transaction_id)`,
}

// InitSchema creates the ledger tables and indexes in one transaction.
// Intended for standalone embedding; applications running golang-migrate
// should ship equivalent DDL as a migration instead.
func (a *Adapter) InitSchema(ctx context.Context) error {
	db, err := a.client.Primary()
	if err != nil {
		return ledger.NewStorageError("init schema", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.NewStorageError("begin schema transaction", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()

			return ledger.NewStorageError("create schema", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ledger.NewStorageError("commit schema transaction", err)
	}

	a.logger.Log(ctx, log.LevelInfo, "ledger schema initialized")

	return nil
}

// CreateAsset registers an asset definition. Assets are immutable once
// registered; an existing code is rejected with ConflictError.
func (a *Adapter) CreateAsset(ctx context.Context, asset ledger.Asset) error {
	db, err := a.client.Primary()
	if err != nil {
		return ledger.NewStorageError("create asset", err)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO ledger_assets (id, code, unit, decimals, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (code) DO NOTHING`,
		asset.ID, asset.Code, asset.Unit, asset.Decimals, asset.CreatedAt)
	if err != nil {
		return mapError("create asset", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ledger.NewStorageError("create asset", err)
	}

	if affected == 0 {
		return ledger.ConflictError{Msg: "asset already registered: " + asset.Code}
	}

	return nil
}

// GetAsset looks up an asset by code.
func (a *Adapter) GetAsset(ctx context.Context, code string) (ledger.Asset, error) {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return ledger.Asset{}, ledger.NewStorageError("get asset", err)
	}

	var asset ledger.Asset

	err = db.QueryRowContext(ctx,
		`SELECT id, code, unit, decimals, created_at FROM ledger_assets WHERE code = $1`,
		code).Scan(&asset.ID, &asset.Code, &asset.Unit, &asset.Decimals, &asset.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Asset{}, ledger.AssetNotFoundError{Code: code}
	}

	if err != nil {
		return ledger.Asset{}, mapError("get asset", err)
	}

	return asset, nil
}

// GetBalance derives the owner's balance from the fragment sums.
func (a *Adapter) GetBalance(ctx context.Context, asset, owner uuid.UUID) (ledger.Balance, error) {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return ledger.Balance{}, ledger.NewStorageError("get balance", err)
	}

	var alive, reserved int64

	err = db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE state = 'alive'), 0)::BIGINT,
			COALESCE(SUM(amount) FILTER (WHERE state = 'reserved'), 0)::BIGINT
		 FROM ledger_value_objects
		 WHERE asset = $1 AND owner = $2`,
		asset, owner).Scan(&alive, &reserved)
	if err != nil {
		return ledger.Balance{}, mapError("get balance", err)
	}

	return ledger.BalanceFromValueObjects(owner, asset, alive, reserved), nil
}

const transactionColumns = `
	lt.id, lt.asset, la.code, lt.sender, lt.receiver,
	lt.burned_amount, lt.minted_amount, lt.metadata, lt.created_at,
	ik.key AS idempotency_key`

const transactionJoins = `
	FROM ledger_transactions lt
	LEFT JOIN ledger_assets la ON lt.asset = la.id
	LEFT JOIN ledger_transaction_idempotency_keys ik ON ik.transaction_id = lt.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var (
		tx       ledger.Transaction
		code     sql.NullString
		sender   uuid.NullUUID
		receiver uuid.NullUUID
		key      sql.NullString
	)

	err := row.Scan(&tx.ID, &tx.Asset, &code, &sender, &receiver,
		&tx.BurnedAmount, &tx.MintedAmount, &tx.Metadata, &tx.CreatedAt, &key)
	if err != nil {
		return ledger.Transaction{}, err
	}

	tx.Code = code.String

	if sender.Valid {
		tx.Sender = &sender.UUID
	}

	if receiver.Valid {
		tx.Receiver = &receiver.UUID
	}

	if key.Valid {
		tx.IdempotencyKey = &key.String
	}

	return tx, nil
}

// GetTransaction fetches one audit record by ID. The stored idempotency key
// is the hashed form.
func (a *Adapter) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return ledger.Transaction{}, ledger.NewStorageError("get transaction", err)
	}

	row := db.QueryRowContext(ctx,
		`SELECT`+transactionColumns+transactionJoins+` WHERE lt.id = $1`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}

	if err != nil {
		return ledger.Transaction{}, mapError("get transaction", err)
	}

	return tx, nil
}

// ExecutePlan applies a validated plan inside one database transaction on
// the primary. Fragment rows are locked in the deterministic lock order,
// re-verified under lock, burned, and replaced; any failure rolls the whole
// transaction back.
func (a *Adapter) ExecutePlan(ctx context.Context, plan *ledger.ExecutionPlan, locks []ledger.Lock) error {
	db, err := a.client.Primary()
	if err != nil {
		return ledger.NewStorageError("execute plan", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin plan transaction", err)
	}

	if err := a.executePlanTx(ctx, tx, plan, locks); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			a.logger.Log(ctx, log.LevelError, "plan rollback failed", log.Err(rollbackErr))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit plan transaction", err)
	}

	return nil
}

func (a *Adapter) executePlanTx(ctx context.Context, tx *sql.Tx, plan *ledger.ExecutionPlan, locks []ledger.Lock) error {
	// lock_timeout bounds every FOR UPDATE wait in this transaction; an
	// expired wait surfaces as 55P03 and maps to ConflictError.
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = %d", a.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		return mapError("set lock timeout", err)
	}

	// Phase 1: lock and verify coverage for every spend pair. Selection is
	// smallest-first with ties by id, the same order for every plan, so
	// overlapping plans queue on the same rows instead of deadlocking.
	type selection struct {
		lock  ledger.Lock
		ids   []uuid.UUID
		total int64
	}

	selections := make([]selection, 0, len(locks))

	for _, lock := range locks {
		ids, total, err := lockFragments(ctx, tx, lock.Asset, lock.Owner, string(ledger.StateAlive), lock.Amount)
		if err != nil {
			return err
		}

		// Checked inside the lock; this is the real double-spend guard.
		if total < lock.Amount {
			return ledger.ErrInsufficientFunds
		}

		selections = append(selections, selection{lock: lock, ids: ids, total: total})
	}

	// Phase 2: apply operations in plan order.
	for _, op := range plan.Operations() {
		switch op.Type {
		case ledger.OpMint:
			if err := a.mintFragments(ctx, tx, op.Asset, op.Owner, op.Amount, nil); err != nil {
				return err
			}

		case ledger.OpTransfer:
			if err := a.mintFragments(ctx, tx, op.Asset, op.Recipient, op.Amount, nil); err != nil {
				return err
			}

		case ledger.OpReserve:
			if err := a.mintFragments(ctx, tx, op.Asset, op.Authority, op.Amount, &op.Authority); err != nil {
				return err
			}

		case ledger.OpBurn:
			// Covered by the phase 1 selection and phase 3 burn.

		case ledger.OpSettle:
			if err := a.settleTx(ctx, tx, op); err != nil {
				return err
			}

		case ledger.OpRecordTransaction:
			if op.Transaction == nil {
				return ledger.StorageError{Msg: "record operation without transaction"}
			}

			if err := recordTransactionTx(ctx, tx, *op.Transaction); err != nil {
				return err
			}

		default:
			return ledger.StorageError{Msg: "unknown operation type: " + string(op.Type)}
		}
	}

	// Phase 3: burn the selected fragments and mint change back to each
	// owner as fresh spendable fragments.
	for _, sel := range selections {
		if err := burnFragments(ctx, tx, sel.ids); err != nil {
			return err
		}

		if change := sel.total - sel.lock.Amount; change > 0 {
			if err := a.mintFragments(ctx, tx, sel.lock.Asset, sel.lock.Owner, change, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// lockFragments locks the owner's fragments of the given state in selection
// order, accumulating until the amount is covered. It returns everything
// selected, which may exceed amount; the caller decides what shortfall
// means.
func lockFragments(ctx context.Context, tx *sql.Tx, asset, owner uuid.UUID, state string, amount int64) ([]uuid.UUID, int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, amount
		 FROM ledger_value_objects
		 WHERE asset = $1 AND owner = $2 AND state = $3
		 ORDER BY amount ASC, id ASC
		 FOR UPDATE`,
		asset, owner, state)
	if err != nil {
		return nil, 0, mapError("lock fragments", err)
	}

	defer rows.Close()

	var (
		ids   []uuid.UUID
		total int64
	)

	for rows.Next() {
		var (
			id  uuid.UUID
			amt int64
		)

		if err := rows.Scan(&id, &amt); err != nil {
			return nil, 0, mapError("scan fragment", err)
		}

		ids = append(ids, id)
		total += amt

		if total >= amount {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, 0, mapError("iterate fragments", err)
	}

	return ids, total, nil
}

func burnFragments(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ledger_value_objects SET state = 'burned' WHERE id = $1`, id); err != nil {
			return mapError("burn fragment", err)
		}
	}

	return nil
}

// mintFragments inserts fresh fragments covering amount, each at most the
// asset's unit cap. A non-nil authority mints Reserved fragments.
func (a *Adapter) mintFragments(ctx context.Context, tx *sql.Tx, assetID, owner uuid.UUID, amount int64, authority *uuid.UUID) error {
	asset, err := getAssetByIDTx(ctx, tx, assetID)
	if err != nil {
		return err
	}

	for _, vo := range ledger.FragmentAmount(asset, owner, amount, authority) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_value_objects (id, asset, owner, amount, state, reserved_for, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			vo.ID, vo.Asset, vo.Owner, vo.Amount, string(vo.State), vo.ReservedFor, vo.CreatedAt); err != nil {
			return mapError("mint fragment", err)
		}
	}

	return nil
}

// settleTx moves reserved value held under an authority to the receiver.
// Change stays Reserved under the authority.
func (a *Adapter) settleTx(ctx context.Context, tx *sql.Tx, op ledger.Operation) error {
	ids, total, err := lockFragments(ctx, tx, op.Asset, op.Authority, string(ledger.StateReserved), op.Amount)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return ledger.ErrReservationNotFound
	}

	if total < op.Amount {
		return ledger.ErrInsufficientFunds
	}

	if err := burnFragments(ctx, tx, ids); err != nil {
		return err
	}

	if change := total - op.Amount; change > 0 {
		if err := a.mintFragments(ctx, tx, op.Asset, op.Authority, change, &op.Authority); err != nil {
			return err
		}
	}

	return a.mintFragments(ctx, tx, op.Asset, op.Recipient, op.Amount, nil)
}

// recordTransactionTx persists one audit record. The transaction row is
// inserted before the key row so the key's foreign key resolves; on a
// replayed key the plan aborts and the rollback discards the row.
func recordTransactionTx(ctx context.Context, tx *sql.Tx, record ledger.Transaction) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_transactions
			(id, asset, sender, receiver, burned_amount, minted_amount, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Asset, record.Sender, record.Receiver,
		record.BurnedAmount, record.MintedAmount, record.Metadata, record.CreatedAt); err != nil {
		return mapError("insert transaction", err)
	}

	if record.IdempotencyKey == nil {
		return nil
	}

	hash := ledger.HashIdempotencyKey(*record.IdempotencyKey)

	var insertedKey string

	err := tx.QueryRowContext(ctx,
		`INSERT INTO ledger_transaction_idempotency_keys (key, transaction_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO NOTHING
		 RETURNING key`,
		hash, record.ID).Scan(&insertedKey)
	if errors.Is(err, sql.ErrNoRows) {
		var existing uuid.UUID

		lookupErr := tx.QueryRowContext(ctx,
			`SELECT transaction_id FROM ledger_transaction_idempotency_keys WHERE key = $1`,
			hash).Scan(&existing)
		if lookupErr != nil {
			return mapError("resolve duplicate idempotency key", lookupErr)
		}

		return ledger.DuplicateIdempotencyKeyError{TransactionID: existing}
	}

	if err != nil {
		return mapError("insert idempotency key", err)
	}

	return nil
}

func getAssetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (ledger.Asset, error) {
	var asset ledger.Asset

	err := tx.QueryRowContext(ctx,
		`SELECT id, code, unit, decimals, created_at FROM ledger_assets WHERE id = $1`,
		id).Scan(&asset.ID, &asset.Code, &asset.Unit, &asset.Decimals, &asset.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Asset{}, ledger.AssetNotFoundError{Code: id.String()}
	}

	if err != nil {
		return ledger.Asset{}, mapError("get asset by id", err)
	}

	return asset, nil
}

// GetTransactionsForOwner returns audit records where the owner is sender
// or receiver, created within [from, to]. A zero bound is open-ended.
func (a *Adapter) GetTransactionsForOwner(ctx context.Context, owner uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	return a.queryTransactions(ctx,
		`SELECT`+transactionColumns+transactionJoins+`
		 WHERE (lt.sender = $1 OR lt.receiver = $1) AND lt.created_at BETWEEN $2 AND $3
		 ORDER BY lt.created_at ASC, lt.id ASC`,
		owner, windowStart(from), windowEnd(to))
}

// GetTransactionsForAsset returns audit records for an asset created within
// [from, to]. A zero bound is open-ended.
func (a *Adapter) GetTransactionsForAsset(ctx context.Context, asset uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	return a.queryTransactions(ctx,
		`SELECT`+transactionColumns+transactionJoins+`
		 WHERE lt.asset = $1 AND lt.created_at BETWEEN $2 AND $3
		 ORDER BY lt.created_at ASC, lt.id ASC`,
		asset, windowStart(from), windowEnd(to))
}

func (a *Adapter) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return nil, ledger.NewStorageError("query transactions", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("query transactions", err)
	}

	defer rows.Close()

	var txs []ledger.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, mapError("scan transaction", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError("iterate transactions", err)
	}

	return txs, nil
}

// GetTransactionByIdempotencyKey resolves a raw idempotency key to the
// transaction that committed it.
func (a *Adapter) GetTransactionByIdempotencyKey(ctx context.Context, key string) (ledger.Transaction, error) {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return ledger.Transaction{}, ledger.NewStorageError("get transaction by key", err)
	}

	row := db.QueryRowContext(ctx,
		`SELECT`+transactionColumns+transactionJoins+` WHERE ik.key = $1`,
		ledger.HashIdempotencyKey(key))

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}

	if err != nil {
		return ledger.Transaction{}, mapError("get transaction by key", err)
	}

	return tx, nil
}

// CheckIdempotencyKey reports whether a raw key was already committed,
// returning DuplicateIdempotencyKeyError if so.
func (a *Adapter) CheckIdempotencyKey(ctx context.Context, key string) error {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return ledger.NewStorageError("check idempotency key", err)
	}

	var existing uuid.UUID

	err = db.QueryRowContext(ctx,
		`SELECT transaction_id FROM ledger_transaction_idempotency_keys WHERE key = $1`,
		ledger.HashIdempotencyKey(key)).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}

	if err != nil {
		return mapError("check idempotency key", err)
	}

	return ledger.DuplicateIdempotencyKeyError{TransactionID: existing}
}

// GetHoldings returns the owner's non-empty balances across all assets,
// sorted by asset code.
func (a *Adapter) GetHoldings(ctx context.Context, owner uuid.UUID) ([]ledger.Holding, error) {
	db, err := a.client.Resolver(ctx)
	if err != nil {
		return nil, ledger.NewStorageError("get holdings", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT
			la.id, la.code, la.unit, la.decimals, la.created_at,
			COALESCE(SUM(vo.amount) FILTER (WHERE vo.state = 'alive'), 0)::BIGINT AS alive_sum,
			COALESCE(SUM(vo.amount) FILTER (WHERE vo.state = 'reserved'), 0)::BIGINT AS reserved_sum
		 FROM ledger_value_objects vo
		 JOIN ledger_assets la ON vo.asset = la.id
		 WHERE vo.owner = $1
		 GROUP BY la.id, la.code, la.unit, la.decimals, la.created_at
		 HAVING COALESCE(SUM(vo.amount) FILTER (WHERE vo.state IN ('alive', 'reserved')), 0) > 0
		 ORDER BY la.code ASC`,
		owner)
	if err != nil {
		return nil, mapError("get holdings", err)
	}

	defer rows.Close()

	var holdings []ledger.Holding

	for rows.Next() {
		var (
			asset    ledger.Asset
			alive    int64
			reserved int64
		)

		if err := rows.Scan(&asset.ID, &asset.Code, &asset.Unit, &asset.Decimals, &asset.CreatedAt,
			&alive, &reserved); err != nil {
			return nil, mapError("scan holding", err)
		}

		holdings = append(holdings, ledger.NewHolding(asset,
			ledger.BalanceFromValueObjects(owner, asset.ID, alive, reserved)))
	}

	if err := rows.Err(); err != nil {
		return nil, mapError("iterate holdings", err)
	}

	return holdings, nil
}

func windowStart(from time.Time) time.Time {
	if from.IsZero() {
		return time.Unix(0, 0).UTC()
	}

	return from
}

func windowEnd(to time.Time) time.Time {
	if to.IsZero() {
		// Far enough out to be open-ended for any practical query.
		return time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
	}

	return to
}

// mapError translates driver errors into the ledger taxonomy. Lock waits
// that time out, serialization failures, and deadlocks become ConflictError
// so callers know the whole atomic block may be retried.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeLockNotAvailable, pgCodeSerializationFailure, pgCodeDeadlockDetected:
			return ledger.ConflictError{Msg: op + ": " + pgErr.Message}
		}
	}

	return ledger.NewStorageError(op, err)
}
