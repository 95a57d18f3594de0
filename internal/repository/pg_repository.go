package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pooled_wallet/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound     = errors.New("pooled wallet not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidRecipient   = errors.New("transfer recipient equals sender")
	ErrStorageConflict    = errors.New("storage conflict, retry the operation")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidReference   = errors.New("missing or malformed transaction reference")
	ErrDuplicateReference = errors.New("transaction reference already exists")
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so read paths
// can run either standalone or inside a caller's transactional scope.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type LedgerPGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewLedgerPGRepository(pool *pgxpool.Pool, logger *slog.Logger) *LedgerPGRepository {
	return &LedgerPGRepository{
		pool:   pool,
		logger: logger,
	}
}

// SeedWallet creates the singleton pooled wallet row with zero balances.
// Idempotent; meant to run once at bootstrap.
func (r *LedgerPGRepository) SeedWallet(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pooled_wallets (id, balance, ledger_balance) VALUES (1, 0, 0)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		r.logger.Error("Failed to seed pooled wallet", slog.Any("err", err))
		return err
	}
	return nil
}

// WithinTransaction runs fn inside a single pgx transaction. The scope
// it hands to fn can be threaded into ApplyMutation so several ledger
// mutations commit or roll back together.
func (r *LedgerPGRepository) WithinTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		r.logger.Error("Failed to begin transaction", slog.Any("err", err))
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Error("Failed to rollback transaction", slog.Any("err", err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerPGRepository) GetWallet(ctx context.Context) (models.PooledWallet, error) {
	return r.getWallet(ctx, r.pool, false)
}

// GetWalletForUpdate locks the wallet row for the remainder of tx, so a
// read-then-write sequence inside the scope cannot lose updates.
func (r *LedgerPGRepository) GetWalletForUpdate(ctx context.Context, tx pgx.Tx) (models.PooledWallet, error) {
	return r.getWallet(ctx, tx, true)
}

func (r *LedgerPGRepository) getWallet(ctx context.Context, q Querier, forUpdate bool) (models.PooledWallet, error) {
	query := "SELECT balance, ledger_balance FROM pooled_wallets WHERE id = 1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var w models.PooledWallet
	err := q.QueryRow(ctx, query).Scan(&w.Balance, &w.LedgerBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PooledWallet{}, ErrWalletNotFound
	}
	if err != nil {
		r.logger.Error("Failed to select pooled wallet", slog.Any("err", err))
		return models.PooledWallet{}, err
	}
	return w, nil
}

// ApplyMutation records one ledger transaction and the matching balance
// update as a single atomic unit. When scope is nil it opens its own
// transaction; otherwise both writes join the caller's scope and commit
// with it. A debit that crosses zero is permitted here: sufficiency is
// the caller's concern (see Transfer / CanTransact).
func (r *LedgerPGRepository) ApplyMutation(ctx context.Context, scope pgx.Tx, req models.MutationRequest) (models.LedgerTransaction, error) {
	if scope != nil {
		return r.applyMutation(ctx, scope, req)
	}

	var txn models.LedgerTransaction
	err := r.WithinTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		txn, err = r.applyMutation(ctx, tx, req)
		return err
	})
	return txn, err
}

func (r *LedgerPGRepository) applyMutation(ctx context.Context, tx pgx.Tx, req models.MutationRequest) (models.LedgerTransaction, error) {
	if !req.Amount.IsPositive() {
		return models.LedgerTransaction{}, ErrInvalidAmount
	}
	if req.Reference == "" {
		return models.LedgerTransaction{}, ErrInvalidReference
	}

	wallet, err := r.getWallet(ctx, tx, true)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	prev := wallet.Balance
	var curr decimal.Decimal
	switch req.Type {
	case models.TypeCredit:
		curr = prev.Add(req.Amount)
	case models.TypeDebit:
		curr = prev.Sub(req.Amount)
	default:
		return models.LedgerTransaction{}, fmt.Errorf("unknown transaction type %q", req.Type)
	}

	txn := models.LedgerTransaction{
		UserID:      req.UserID,
		Type:        req.Type,
		Genus:       req.Genus,
		Description: req.Description,
		Amount:      req.Amount,
		PrevBalance: prev,
		CurrBalance: curr,
		Confirmed:   true,
		Reference:   req.Reference,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_transactions
			(user_id, type, genus, description, amount, prev_balance, curr_balance, confirmed, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		txn.UserID, txn.Type, txn.Genus, txn.Description, txn.Amount,
		txn.PrevBalance, txn.CurrBalance, txn.Confirmed, txn.Reference,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.LedgerTransaction{}, ErrDuplicateReference
		}
		r.logger.Error("Failed to insert ledger transaction",
			slog.String("reference", txn.Reference),
			slog.Any("err", err),
		)
		return models.LedgerTransaction{}, err
	}

	_, err = tx.Exec(ctx, "UPDATE pooled_wallets SET balance = $1 WHERE id = 1", curr)
	if err != nil {
		r.logger.Error("Failed to update pooled wallet balance",
			slog.String("reference", txn.Reference),
			slog.Any("err", err),
		)
		return models.LedgerTransaction{}, err
	}

	return txn, nil
}

// UpdateLedgerHold shifts funds between balance and ledger_balance.
// Credit earmarks: balance -= amount, ledger_balance += amount.
// Debit releases: ledger_balance -= amount, balance += amount.
// No negative guard is applied at this layer.
func (r *LedgerPGRepository) UpdateLedgerHold(ctx context.Context, req models.LedgerHoldRequest) (models.PooledWallet, error) {
	if !req.Amount.IsPositive() {
		return models.PooledWallet{}, ErrInvalidAmount
	}

	var updated models.PooledWallet
	err := r.WithinTransaction(ctx, func(tx pgx.Tx) error {
		wallet, err := r.getWallet(ctx, tx, true)
		if err != nil {
			return err
		}

		switch req.Direction {
		case models.TypeCredit:
			updated.Balance = wallet.Balance.Sub(req.Amount)
			updated.LedgerBalance = wallet.LedgerBalance.Add(req.Amount)
		case models.TypeDebit:
			updated.Balance = wallet.Balance.Add(req.Amount)
			updated.LedgerBalance = wallet.LedgerBalance.Sub(req.Amount)
		default:
			return fmt.Errorf("unknown hold direction %q", req.Direction)
		}

		_, err = tx.Exec(ctx,
			"UPDATE pooled_wallets SET balance = $1, ledger_balance = $2 WHERE id = 1",
			updated.Balance, updated.LedgerBalance)
		if err != nil {
			r.logger.Error("Failed to update ledger hold", slog.Any("err", err))
		}
		return err
	})
	if err != nil {
		return models.PooledWallet{}, err
	}
	return updated, nil
}

// ReferenceExists reports whether a transaction reference is already taken.
func (r *LedgerPGRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_transactions WHERE reference = $1)",
		reference).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check reference existence",
			slog.String("reference", reference),
			slog.Any("err", err),
		)
		return false, err
	}
	return exists, nil
}

// ListTransactions returns a newest-first page of the transaction log.
func (r *LedgerPGRepository) ListTransactions(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (models.TransactionPage, error) {
	where, args := buildFilter(filter)

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	result := models.TransactionPage{
		Items:  []models.LedgerTransaction{},
		Limit:  limit,
		Offset: offset,
	}

	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ledger_transactions"+where, args...,
	).Scan(&result.Total)
	if err != nil {
		r.logger.Error("Failed to count ledger transactions", slog.Any("err", err))
		return models.TransactionPage{}, err
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, genus, description, amount,
		       prev_balance, curr_balance, confirmed, reference, created_at
		FROM ledger_transactions%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		r.logger.Error("Failed to list ledger transactions", slog.Any("err", err))
		return models.TransactionPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var t models.LedgerTransaction
		err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Genus, &t.Description, &t.Amount,
			&t.PrevBalance, &t.CurrBalance, &t.Confirmed, &t.Reference, &t.CreatedAt)
		if err != nil {
			return models.TransactionPage{}, err
		}
		result.Items = append(result.Items, t)
	}
	if err := rows.Err(); err != nil {
		return models.TransactionPage{}, err
	}

	return result, nil
}

func buildFilter(filter models.TransactionFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.UserID != nil {
		add("user_id", *filter.UserID)
	}
	if filter.Type != nil {
		add("type", *filter.Type)
	}
	if filter.Genus != nil {
		add("genus", *filter.Genus)
	}
	if filter.Confirmed != nil {
		add("confirmed", *filter.Confirmed)
	}
	if filter.Reference != nil {
		add("reference", *filter.Reference)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
