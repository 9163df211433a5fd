package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind identifies which table family a batch targets. Each kind
// accumulates and flushes independently.
type RecordKind string

const (
	KindAccount      RecordKind = "account"
	KindTransaction  RecordKind = "transaction"
	KindSlot         RecordKind = "slot"
	KindTokenAccount RecordKind = "token_account"
)

// Kinds lists every record kind, in the order batches are reported.
var Kinds = []RecordKind{KindAccount, KindTransaction, KindSlot, KindTokenAccount}

// Batch is an ordered group of records of one kind. The accumulator owns it
// until hand-off to the dispatch queue; after that exactly one worker owns it.
// All records in a batch commit in a single store transaction.
type Batch struct {
	ID     string
	Kind   RecordKind
	Opened time.Time

	Accounts      []*AccountUpdate
	Transactions  []*TransactionRecord
	Slots         []*SlotStatusUpdate
	TokenAccounts []TokenAccountRow

	// Attempts counts store executions so far, maintained by the worker's
	// supervisor.
	Attempts int
}

// NewBatch opens an empty batch of the given kind.
func NewBatch(kind RecordKind) *Batch {
	return &Batch{
		ID:     uuid.NewString(),
		Kind:   kind,
		Opened: time.Now(),
	}
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	switch b.Kind {
	case KindAccount:
		return len(b.Accounts)
	case KindTransaction:
		return len(b.Transactions)
	case KindSlot:
		return len(b.Slots)
	case KindTokenAccount:
		return len(b.TokenAccounts)
	}
	return 0
}

// Age returns how long the batch has been open.
func (b *Batch) Age() time.Duration {
	return time.Since(b.Opened)
}
