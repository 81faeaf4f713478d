package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Transaction is the audit record persisted once per logical operation in a
// committed plan. Sender is nil for mints (value entering the system) and
// Receiver is nil for burns (value leaving it).
type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	Asset          uuid.UUID  `json:"asset"`
	Code           string     `json:"code"`
	Sender         *uuid.UUID `json:"sender,omitempty"`
	Receiver       *uuid.UUID `json:"receiver,omitempty"`
	BurnedAmount   int64      `json:"burnedAmount"`
	MintedAmount   int64      `json:"mintedAmount"`
	Metadata       string     `json:"metadata"`
	CreatedAt      time.Time  `json:"createdAt"`
	IdempotencyKey *string    `json:"idempotencyKey,omitempty"`
}

// NewTransaction creates an audit record for one logical operation.
func NewTransaction(asset uuid.UUID, code string, sender, receiver *uuid.UUID, burned, minted int64, metadata string) Transaction {
	return Transaction{
		ID:           uuid.New(),
		Asset:        asset,
		Code:         code,
		Sender:       sender,
		Receiver:     receiver,
		BurnedAmount: burned,
		MintedAmount: minted,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
}

// HashIdempotencyKey derives the stored form of an idempotency key. Raw keys
// are caller-supplied and may embed order numbers or user identifiers, so
// only the SHA-256 hex digest is persisted.
func HashIdempotencyKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
