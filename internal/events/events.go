package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicTransactionRecorded = "wallet.transaction_recorded"
	TopicTransferCompleted   = "wallet.transfer_completed"
)

// TransactionRecorded is published after a ledger mutation commits. The
// notification service consumes it and owns user lookup and delivery;
// the ledger only ships the opaque user reference.
type TransactionRecorded struct {
	UserID     uuid.UUID       `json:"user_id"`
	Type       string          `json:"type"`
	Genus      string          `json:"genus"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type TransferCompleted struct {
	FromUserID      uuid.UUID       `json:"from_user_id"`
	ToUserID        uuid.UUID       `json:"to_user_id"`
	Amount          decimal.Decimal `json:"amount"`
	DebitReference  string          `json:"debit_reference"`
	CreditReference string          `json:"credit_reference"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
