// Package events defines the settlement event contract. Publishing is
// strictly post-commit and best-effort: a failed publish is logged by the
// caller and never affects the settlement it describes.
package events

import "time"

// TopicTransactionSettled carries one event per settled transaction.
const TopicTransactionSettled = "transaction_settled"

// TransactionSettled is emitted after a transaction has been durably
// committed together with its balance update.
type TransactionSettled struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	Kind          string    `json:"kind"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers events to an external broker.
type Publisher interface {
	Publish(topic string, event any) error
}

// Nop is the default publisher when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
