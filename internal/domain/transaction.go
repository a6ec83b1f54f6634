package domain

import (
	"time"
)

// TransactionType classifies the kind of transfer an edge represents.
type TransactionType string

const (
	TxTransfer   TransactionType = "transfer"
	TxPayment    TransactionType = "payment"
	TxDebit      TransactionType = "debit"
	TxWithdrawal TransactionType = "withdrawal"
)

// Transaction is a directed edge in the transaction graph. Parallel edges
// between the same pair of accounts are allowed; each transaction remains
// individually addressable. Immutable once created.
type Transaction struct {
	ID     string `json:"id"`
	Source string `json:"senderId"`
	Target string `json:"receiverId"`

	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Type TransactionType `json:"type"`
}

// Valid reports whether the transaction satisfies the edge invariants:
// positive amount, distinct endpoints, non-empty identifiers.
func (t *Transaction) Valid() error {
	switch {
	case t.ID == "":
		return invalidTransaction("missing transaction id")
	case t.Source == "":
		return invalidTransaction("missing sender id")
	case t.Target == "":
		return invalidTransaction("missing receiver id")
	case t.Source == t.Target:
		return invalidTransaction("sender and receiver must differ")
	case t.Amount <= 0:
		return invalidTransaction("amount must be positive")
	case t.Timestamp.IsZero():
		return invalidTransaction("missing timestamp")
	}
	return nil
}
