package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewStorageError("insert fragment", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert fragment")
	assert.Contains(t, err.Error(), "connection reset")

	var storageErr StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, cause, storageErr.Err)
}

func TestStorageErrorWithoutCause(t *testing.T) {
	t.Parallel()

	err := StorageError{Msg: "money not fully sliced"}
	assert.Equal(t, "storage error: money not fully sliced", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestTypedErrors(t *testing.T) {
	t.Parallel()

	t.Run("asset not found carries the code", func(t *testing.T) {
		t.Parallel()

		err := AssetNotFoundError{Code: "EUR"}
		assert.Equal(t, "asset not found: EUR", err.Error())

		var notFound AssetNotFoundError
		require.ErrorAs(t, fmt.Errorf("lookup: %w", err), &notFound)
		assert.Equal(t, "EUR", notFound.Code)
	})

	t.Run("duplicate key carries the original transaction", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		err := DuplicateIdempotencyKeyError{TransactionID: id}
		assert.Contains(t, err.Error(), id.String())
	})

	t.Run("conflict carries the message", func(t *testing.T) {
		t.Parallel()

		err := ConflictError{Msg: "lock wait timed out"}
		assert.Equal(t, "conflict: lock wait timed out", err.Error())
	})
}
