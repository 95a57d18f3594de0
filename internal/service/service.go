package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pooled_wallet/internal/events"
	"pooled_wallet/internal/models"
	"pooled_wallet/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=../../test/mock_ledger_repository.go -package=test LedgerRepository

type LedgerRepository interface {
	GetWallet(ctx context.Context) (models.PooledWallet, error)
	GetWalletForUpdate(ctx context.Context, tx pgx.Tx) (models.PooledWallet, error)
	ApplyMutation(ctx context.Context, scope pgx.Tx, req models.MutationRequest) (models.LedgerTransaction, error)
	UpdateLedgerHold(ctx context.Context, req models.LedgerHoldRequest) (models.PooledWallet, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (models.TransactionPage, error)
	WithinTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type ReferenceGenerator interface {
	Generate(ctx context.Context) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// LedgerService orchestrates all mutations of the pooled wallet. Every
// balance change goes through here; nothing else writes to the store.
type LedgerService struct {
	repo       LedgerRepository
	refs       ReferenceGenerator
	publisher  EventPublisher
	logger     *slog.Logger
	maxRetries int
}

func NewLedgerService(repo LedgerRepository, refs ReferenceGenerator, publisher EventPublisher, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		repo:       repo,
		refs:       refs,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 3,
	}
}

func (s *LedgerService) GetBalance(ctx context.Context) (models.PooledWallet, error) {
	wallet, err := s.repo.GetWallet(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			s.logger.Warn("GetBalance: pooled wallet not seeded")
			return models.PooledWallet{}, err
		}
		s.logger.Error("GetBalance failed", slog.Any("err", err))
		return models.PooledWallet{}, err
	}
	return wallet, nil
}

func (s *LedgerService) Credit(ctx context.Context, req models.MutationRequest) (models.LedgerTransaction, error) {
	req.Type = models.TypeCredit
	return s.ApplyMutation(ctx, req)
}

func (s *LedgerService) Debit(ctx context.Context, req models.MutationRequest) (models.LedgerTransaction, error) {
	req.Type = models.TypeDebit
	return s.ApplyMutation(ctx, req)
}

// ApplyMutation records a single credit or debit. The transaction log
// insert and the balance update commit atomically; retryable storage
// failures are retried whole (re-read, recompute, re-write) before
// surfacing as ErrStorageConflict. The notification event is published
// only after the commit and its failure never affects the outcome.
func (s *LedgerService) ApplyMutation(ctx context.Context, req models.MutationRequest) (models.LedgerTransaction, error) {
	if !req.Amount.IsPositive() {
		s.logger.Error("Mutation rejected: amount must be positive",
			slog.String("user_id", req.UserID.String()),
			slog.Any("amount", req.Amount),
		)
		return models.LedgerTransaction{}, repository.ErrInvalidAmount
	}

	if req.Reference == "" {
		ref, err := s.refs.Generate(ctx)
		if err != nil {
			s.logger.Error("Failed to generate transaction reference", slog.Any("err", err))
			return models.LedgerTransaction{}, err
		}
		req.Reference = ref
	}

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		txn, err := s.repo.ApplyMutation(ctx, nil, req)
		if err == nil {
			s.notifyMutation(ctx, txn)
			return txn, nil
		}
		if isRetryableError(err) {
			s.logger.Warn("Retrying ledger mutation",
				slog.String("reference", req.Reference),
				slog.Int("attempt", i+1),
				slog.Any("err", err),
			)
			time.Sleep(time.Duration(1<<i) * 10 * time.Millisecond)
			lastErr = err
			continue
		}
		s.logger.Error("Ledger mutation failed",
			slog.String("user_id", req.UserID.String()),
			slog.String("reference", req.Reference),
			slog.Any("amount", req.Amount),
			slog.Any("err", err),
		)
		return models.LedgerTransaction{}, err
	}
	s.logger.Error("Ledger mutation failed after retries",
		slog.String("reference", req.Reference),
		slog.Any("err", lastErr),
	)
	return models.LedgerTransaction{}, fmt.Errorf("%w: %v", repository.ErrStorageConflict, lastErr)
}

// CanTransact reports whether amount is covered by the pooled balance.
// Enough funds returns (true, nil); not enough is an error, not a plain
// false. The check is advisory: the pool is shared across all users.
func (s *LedgerService) CanTransact(ctx context.Context, amount decimal.Decimal, userID uuid.UUID) (bool, error) {
	wallet, err := s.repo.GetWallet(ctx)
	if err != nil {
		return false, err
	}
	if amount.GreaterThan(wallet.Balance) {
		s.logger.Warn("Insufficient pooled funds",
			slog.String("user_id", userID.String()),
			slog.Any("amount", amount),
			slog.Any("balance", wallet.Balance),
		)
		return false, repository.ErrInsufficientFunds
	}
	return true, nil
}

// Transfer moves funds between two users as a debit leg and a credit
// leg against the same pooled balance. Both legs share one storage
// transaction, so no reader can observe one leg without the other. The
// sufficiency check runs against the row-locked balance inside that
// same scope.
func (s *LedgerService) Transfer(ctx context.Context, req models.TransferRequest) (models.TransferResult, error) {
	if req.FromUserID == req.ToUserID {
		s.logger.Warn("Transfer rejected: recipient equals sender",
			slog.String("user_id", req.FromUserID.String()),
		)
		return models.TransferResult{}, repository.ErrInvalidRecipient
	}
	if !req.Amount.IsPositive() {
		return models.TransferResult{}, repository.ErrInvalidAmount
	}

	debitRef, err := s.refs.Generate(ctx)
	if err != nil {
		return models.TransferResult{}, err
	}
	creditRef, err := s.refs.Generate(ctx)
	if err != nil {
		return models.TransferResult{}, err
	}

	debitLeg := models.MutationRequest{
		UserID:      req.FromUserID,
		Type:        models.TypeDebit,
		Genus:       models.GenusTransfer,
		Description: fmt.Sprintf("Transfer to user %s", req.ToUserID),
		Amount:      req.Amount,
		Reference:   debitRef,
	}
	creditLeg := models.MutationRequest{
		UserID:      req.ToUserID,
		Type:        models.TypeCredit,
		Genus:       models.GenusTransfer,
		Description: fmt.Sprintf("Transfer from user %s", req.FromUserID),
		Amount:      req.Amount,
		Reference:   creditRef,
	}

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		err := s.repo.WithinTransaction(ctx, func(tx pgx.Tx) error {
			wallet, err := s.repo.GetWalletForUpdate(ctx, tx)
			if err != nil {
				return err
			}
			if req.Amount.GreaterThan(wallet.Balance) {
				return repository.ErrInsufficientFunds
			}
			if _, err := s.repo.ApplyMutation(ctx, tx, debitLeg); err != nil {
				return err
			}
			if _, err := s.repo.ApplyMutation(ctx, tx, creditLeg); err != nil {
				return err
			}
			return nil
		})
		if err == nil {
			s.notifyTransfer(ctx, req, debitRef, creditRef)
			return models.TransferResult{DebitReference: debitRef, CreditReference: creditRef}, nil
		}
		if isRetryableError(err) {
			s.logger.Warn("Retrying transfer",
				slog.String("from", req.FromUserID.String()),
				slog.String("to", req.ToUserID.String()),
				slog.Int("attempt", i+1),
				slog.Any("err", err),
			)
			time.Sleep(time.Duration(1<<i) * 10 * time.Millisecond)
			lastErr = err
			continue
		}
		if errors.Is(err, repository.ErrInsufficientFunds) {
			s.logger.Warn("Transfer rejected: insufficient pooled funds",
				slog.String("from", req.FromUserID.String()),
				slog.Any("amount", req.Amount),
			)
		} else {
			s.logger.Error("Transfer failed",
				slog.String("from", req.FromUserID.String()),
				slog.String("to", req.ToUserID.String()),
				slog.Any("err", err),
			)
		}
		return models.TransferResult{}, err
	}
	s.logger.Error("Transfer failed after retries", slog.Any("err", lastErr))
	return models.TransferResult{}, fmt.Errorf("%w: %v", repository.ErrStorageConflict, lastErr)
}

// UpdateLedgerHold moves funds between the spendable and earmarked
// balances. No negative guard: callers own sufficiency.
func (s *LedgerService) UpdateLedgerHold(ctx context.Context, req models.LedgerHoldRequest) (models.PooledWallet, error) {
	if !req.Amount.IsPositive() {
		return models.PooledWallet{}, repository.ErrInvalidAmount
	}

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		wallet, err := s.repo.UpdateLedgerHold(ctx, req)
		if err == nil {
			return wallet, nil
		}
		if isRetryableError(err) {
			s.logger.Warn("Retrying ledger hold update",
				slog.Int("attempt", i+1),
				slog.Any("err", err),
			)
			time.Sleep(time.Duration(1<<i) * 10 * time.Millisecond)
			lastErr = err
			continue
		}
		s.logger.Error("Ledger hold update failed",
			slog.String("direction", string(req.Direction)),
			slog.Any("amount", req.Amount),
			slog.Any("err", err),
		)
		return models.PooledWallet{}, err
	}
	s.logger.Error("Ledger hold update failed after retries", slog.Any("err", lastErr))
	return models.PooledWallet{}, fmt.Errorf("%w: %v", repository.ErrStorageConflict, lastErr)
}

func (s *LedgerService) ListTransactions(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (models.TransactionPage, error) {
	result, err := s.repo.ListTransactions(ctx, filter, page)
	if err != nil {
		s.logger.Error("ListTransactions failed", slog.Any("err", err))
		return models.TransactionPage{}, err
	}
	return result, nil
}

func (s *LedgerService) notifyMutation(ctx context.Context, txn models.LedgerTransaction) {
	title := "Wallet credited"
	verb := "credited with"
	if txn.Type == models.TypeDebit {
		title = "Wallet debited"
		verb = "debited"
	}
	event := events.TransactionRecorded{
		UserID:     txn.UserID,
		Type:       string(txn.Type),
		Genus:      string(txn.Genus),
		Amount:     txn.Amount,
		Reference:  txn.Reference,
		Title:      title,
		Message:    fmt.Sprintf("Your wallet was %s %s (%s)", verb, txn.Amount.StringFixed(2), txn.Genus),
		OccurredAt: txn.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, events.TopicTransactionRecorded, event); err != nil {
		// The mutation is already committed; a lost notification must
		// not reverse it.
		s.logger.Error("Failed to publish transaction event",
			slog.String("reference", txn.Reference),
			slog.Any("err", err),
		)
	}
}

func (s *LedgerService) notifyTransfer(ctx context.Context, req models.TransferRequest, debitRef, creditRef string) {
	event := events.TransferCompleted{
		FromUserID:      req.FromUserID,
		ToUserID:        req.ToUserID,
		Amount:          req.Amount,
		DebitReference:  debitRef,
		CreditReference: creditRef,
		OccurredAt:      time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, events.TopicTransferCompleted, event); err != nil {
		s.logger.Error("Failed to publish transfer event",
			slog.String("debit_reference", debitRef),
			slog.Any("err", err),
		)
	}
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
