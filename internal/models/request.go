package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MutationRequest is the typed payload for a single ledger mutation.
// Reference is optional; the engine generates one when empty.
type MutationRequest struct {
	UserID      uuid.UUID
	Type        TransactionType
	Genus       Genus
	Description string
	Amount      decimal.Decimal
	Reference   string
}

type TransferRequest struct {
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Amount     decimal.Decimal
}

// TransferResult acknowledges a committed transfer. Balances are not
// returned; callers re-query if they need them.
type TransferResult struct {
	DebitReference  string `json:"debitReference"`
	CreditReference string `json:"creditReference"`
}

// LedgerHoldRequest moves funds between balance and ledger_balance.
// Credit direction earmarks spendable funds, debit direction releases them.
type LedgerHoldRequest struct {
	Direction TransactionType
	Amount    decimal.Decimal
}

// TransactionFilter holds optional equality predicates; nil means "any".
type TransactionFilter struct {
	UserID    *uuid.UUID
	Type      *TransactionType
	Genus     *Genus
	Confirmed *bool
	Reference *string
}

type Pagination struct {
	Limit  int
	Offset int
}

type TransactionPage struct {
	Items  []LedgerTransaction `json:"items"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// HTTP request bodies. Binding tags reject malformed payloads at the
// boundary; unknown fields are never copied onto persisted entities.

type WalletOperationRequest struct {
	UserID        uuid.UUID       `json:"userId" binding:"required"`
	OperationType string          `json:"operationType" binding:"required,oneof=credit debit"`
	Genus         string          `json:"genus" binding:"required,oneof=transfer withdrawal deposit payment referral earned purchase"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Reference     string          `json:"reference"`
}

type TransferHTTPRequest struct {
	FromUserID uuid.UUID       `json:"fromUserId" binding:"required"`
	ToUserID   uuid.UUID       `json:"toUserId" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
}

type LedgerHoldHTTPRequest struct {
	Direction string          `json:"direction" binding:"required,oneof=credit debit"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}
