package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeCredit TransactionType = "credit"
	TypeDebit  TransactionType = "debit"
)

// Genus classifies the business reason behind a ledger transaction.
type Genus string

const (
	GenusTransfer   Genus = "transfer"
	GenusWithdrawal Genus = "withdrawal"
	GenusDeposit    Genus = "deposit"
	GenusPayment    Genus = "payment"
	GenusReferral   Genus = "referral"
	GenusEarned     Genus = "earned"
	GenusPurchase   Genus = "purchase"
)

// PooledWallet is the single shared balance record backing all users.
// Balance holds spendable funds, LedgerBalance holds funds earmarked
// by holds but not yet spendable.
type PooledWallet struct {
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	LedgerBalance decimal.Decimal `db:"ledger_balance" json:"ledgerBalance"`
}

// LedgerTransaction is an immutable audit record. PrevBalance and
// CurrBalance snapshot the pooled balance around the mutation, so the
// balance history is reconstructible from the log alone.
type LedgerTransaction struct {
	ID          int64           `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"userId"`
	Type        TransactionType `db:"type" json:"type"`
	Genus       Genus           `db:"genus" json:"genus"`
	Description string          `db:"description" json:"description"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PrevBalance decimal.Decimal `db:"prev_balance" json:"prevBalance"`
	CurrBalance decimal.Decimal `db:"curr_balance" json:"currBalance"`
	Confirmed   bool            `db:"confirmed" json:"confirmed"`
	Reference   string          `db:"reference" json:"reference"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}
