package domain

// TxStatus is the execution outcome of a confirmed transaction.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
)

// Instruction is one parsed instruction of a transaction, in execution order.
type Instruction struct {
	ProgramIndex uint8  `json:"program_index"`
	Accounts     []byte `json:"accounts"`
	Data         []byte `json:"data"`
}

// TransactionRecord is one transaction notification from the validator,
// immutable once created.
type TransactionRecord struct {
	Signature    [SignatureLen]byte
	Slot         uint64
	IsVote       bool
	Status       TxStatus
	Instructions []Instruction
	Logs         []string
}
