package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for conditions that carry no payload. Match with errors.Is.
var (
	// ErrInsufficientFunds indicates the owner's available balance cannot
	// cover the requested amount. Raised during planning against the
	// optimistic balance read, and again during execution against the Alive
	// fragment set under lock. Callers may retry with a smaller amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount indicates a zero, negative, or out-of-range amount.
	// This is a caller defect, not a retryable condition.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnconsumedSlice indicates a slice was created but never transferred
	// or burned before the plan was committed.
	ErrUnconsumedSlice = errors.New("not all slices were consumed")

	// ErrSliceConsumed indicates a transfer or burn was attempted on a slice
	// that was already consumed.
	ErrSliceConsumed = errors.New("slice already consumed")

	// ErrReservationNotFound indicates a settle targeted an authority with no
	// reserved value for the asset.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvalidAuthority indicates a reserve or settle named an authority
	// that cannot hold the reservation (for example, the owner itself).
	ErrInvalidAuthority = errors.New("invalid authority")

	// ErrTransactionNotFound indicates no transaction record exists for the
	// requested ID or idempotency key.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrIdempotencyKeySet indicates SetIdempotencyKey was called more than
	// once on the same plan.
	ErrIdempotencyKeySet = errors.New("idempotency key already set for this plan")
)

// AssetNotFoundError indicates the requested asset code is not registered.
// This is a configuration error and is not retryable.
type AssetNotFoundError struct {
	Code string
}

func (e AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset not found: %s", e.Code)
}

// DuplicateIdempotencyKeyError indicates a plan replayed an idempotency key
// that was already committed. The original transaction ID is attached so the
// caller can fetch the prior result. Treated as a rejected no-op: nothing
// from the replayed plan is applied.
type DuplicateIdempotencyKeyError struct {
	TransactionID uuid.UUID
}

func (e DuplicateIdempotencyKeyError) Error() string {
	return fmt.Sprintf("duplicate idempotency key: %s", e.TransactionID)
}

// ConflictError indicates concurrent modification was detected during
// execution (for example, a lock wait timed out or fragments the plan
// selected were burned by an overlapping transaction). The whole atomic
// block may be retried.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Msg)
}

// StorageError indicates an adapter or storage failure. The storage
// transaction is guaranteed to have been rolled back.
type StorageError struct {
	Msg string
	Err error
}

func (e StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error: %s: %v", e.Msg, e.Err)
	}

	return fmt.Sprintf("storage error: %s", e.Msg)
}

// Unwrap exposes the underlying driver error for errors.Is/As chains.
func (e StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps an adapter failure with a short operation label.
func NewStorageError(msg string, err error) error {
	return StorageError{Msg: msg, Err: err}
}
