package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"pooled_wallet/internal/models"
	"pooled_wallet/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=http_handlers.go -destination=../../test/mock_ledger_service.go -package=test LedgerService

type LedgerService interface {
	Credit(ctx context.Context, req models.MutationRequest) (models.LedgerTransaction, error)
	Debit(ctx context.Context, req models.MutationRequest) (models.LedgerTransaction, error)
	Transfer(ctx context.Context, req models.TransferRequest) (models.TransferResult, error)
	UpdateLedgerHold(ctx context.Context, req models.LedgerHoldRequest) (models.PooledWallet, error)
	GetBalance(ctx context.Context) (models.PooledWallet, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (models.TransactionPage, error)
}

type LedgerHTTPHandler struct {
	service LedgerService
}

func NewLedgerHTTPHandler(service LedgerService) *LedgerHTTPHandler {
	return &LedgerHTTPHandler{service: service}
}

func (h *LedgerHTTPHandler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/wallet", h.HandleWalletOperation)
		v1.POST("/wallet/transfer", h.HandleTransfer)
		v1.POST("/wallet/hold", h.HandleLedgerHold)
		v1.GET("/wallet/balance", h.HandleGetBalance)
		v1.GET("/wallet/transactions", h.HandleListTransactions)
	}
}

func (h *LedgerHTTPHandler) HandleWalletOperation(c *gin.Context) {
	var req models.WalletOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if req.Amount.Cmp(decimal.Zero) <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be > 0"})
		return
	}

	mutation := models.MutationRequest{
		UserID:      req.UserID,
		Genus:       models.Genus(req.Genus),
		Description: req.Description,
		Amount:      req.Amount,
		Reference:   req.Reference,
	}

	var txn models.LedgerTransaction
	var err error
	switch models.TransactionType(req.OperationType) {
	case models.TypeCredit:
		txn, err = h.service.Credit(c.Request.Context(), mutation)
	case models.TypeDebit:
		txn, err = h.service.Debit(c.Request.Context(), mutation)
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"reference": txn.Reference,
		"balance":   txn.CurrBalance.String(),
	})
}

func (h *LedgerHTTPHandler) HandleTransfer(c *gin.Context) {
	var req models.TransferHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if req.Amount.Cmp(decimal.Zero) <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be > 0"})
		return
	}

	result, err := h.service.Transfer(c.Request.Context(), models.TransferRequest{
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LedgerHTTPHandler) HandleLedgerHold(c *gin.Context) {
	var req models.LedgerHoldHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if req.Amount.Cmp(decimal.Zero) <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be > 0"})
		return
	}

	wallet, err := h.service.UpdateLedgerHold(c.Request.Context(), models.LedgerHoldRequest{
		Direction: models.TransactionType(req.Direction),
		Amount:    req.Amount,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":       wallet.Balance.String(),
		"ledgerBalance": wallet.LedgerBalance.String(),
	})
}

func (h *LedgerHTTPHandler) HandleGetBalance(c *gin.Context) {
	wallet, err := h.service.GetBalance(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":       wallet.Balance.String(),
		"ledgerBalance": wallet.LedgerBalance.String(),
	})
}

func (h *LedgerHTTPHandler) HandleListTransactions(c *gin.Context) {
	var filter models.TransactionFilter
	if v := c.Query("userId"); v != "" {
		userID, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
			return
		}
		filter.UserID = &userID
	}
	if v := c.Query("type"); v != "" {
		t := models.TransactionType(v)
		filter.Type = &t
	}
	if v := c.Query("genus"); v != "" {
		g := models.Genus(v)
		filter.Genus = &g
	}
	if v := c.Query("reference"); v != "" {
		filter.Reference = &v
	}
	if v := c.Query("confirmed"); v != "" {
		confirmed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confirmed flag"})
			return
		}
		filter.Confirmed = &confirmed
	}

	page := models.Pagination{}
	if v := c.Query("limit"); v != "" {
		page.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		page.Offset, _ = strconv.Atoi(v)
	}

	result, err := h.service.ListTransactions(c.Request.Context(), filter, page)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// statusFor maps ledger errors to stable HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, repository.ErrInvalidRecipient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrInvalidAmount),
		errors.Is(err, repository.ErrInvalidReference),
		errors.Is(err, repository.ErrDuplicateReference):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}
