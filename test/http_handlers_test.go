package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pooled_wallet/internal/handlers"
	"pooled_wallet/internal/models"
	"pooled_wallet/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func setupMockRouter(t *testing.T) (*gin.Engine, *MockLedgerService, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	mockService := NewMockLedgerService(ctrl)
	handler := handlers.NewLedgerHTTPHandler(mockService)
	r := gin.Default()
	handler.RegisterRoutes(r)
	return r, mockService, ctrl
}

func postJSON(r *gin.Engine, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleWalletOperation_Credit_Success(t *testing.T) {
	r, mockService, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	userID := uuid.New()
	mockService.EXPECT().
		Credit(gomock.Any(), models.MutationRequest{
			UserID: userID,
			Genus:  models.GenusDeposit,
			Amount: decimal.NewFromInt(100),
		}).
		Return(models.LedgerTransaction{
			Reference:   "TXN-ABC",
			CurrBalance: decimal.NewFromInt(200),
		}, nil)

	w := postJSON(r, "/api/v1/wallet", map[string]interface{}{
		"userId":        userID,
		"operationType": "credit",
		"genus":         "deposit",
		"amount":        "100",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "TXN-ABC")
	assert.Contains(t, w.Body.String(), "200")
}

func TestHandleWalletOperation_Debit_StorageConflict(t *testing.T) {
	r, mockService, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	mockService.EXPECT().
		Debit(gomock.Any(), gomock.Any()).
		Return(models.LedgerTransaction{}, repository.ErrStorageConflict)

	w := postJSON(r, "/api/v1/wallet", map[string]interface{}{
		"userId":        uuid.New(),
		"operationType": "debit",
		"genus":         "withdrawal",
		"amount":        "10",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleTransfer_InsufficientFunds(t *testing.T) {
	r, mockService, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	mockService.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(models.TransferResult{}, repository.ErrInsufficientFunds)

	w := postJSON(r, "/api/v1/wallet/transfer", map[string]interface{}{
		"fromUserId": uuid.New(),
		"toUserId":   uuid.New(),
		"amount":     "500",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleTransfer_InvalidRecipient(t *testing.T) {
	r, mockService, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	mockService.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(models.TransferResult{}, repository.ErrInvalidRecipient)

	userID := uuid.New()
	w := postJSON(r, "/api/v1/wallet/transfer", map[string]interface{}{
		"fromUserId": userID,
		"toUserId":   userID,
		"amount":     "10",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleGetBalance_NotFound(t *testing.T) {
	r, mockService, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	mockService.EXPECT().
		GetBalance(gomock.Any()).
		Return(models.PooledWallet{}, repository.ErrWalletNotFound)

	req, _ := http.NewRequest("GET", "/api/v1/wallet/balance", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleLedgerHold_Success(t *testing.T) {
	r, mockService, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	mockService.EXPECT().
		UpdateLedgerHold(gomock.Any(), models.LedgerHoldRequest{
			Direction: models.TypeCredit,
			Amount:    decimal.NewFromInt(20),
		}).
		Return(models.PooledWallet{
			Balance:       decimal.NewFromInt(80),
			LedgerBalance: decimal.NewFromInt(20),
		}, nil)

	w := postJSON(r, "/api/v1/wallet/hold", map[string]interface{}{
		"direction": "credit",
		"amount":    "20",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "80")
	assert.Contains(t, w.Body.String(), "20")
}

func TestHandleWalletOperation_MalformedBody(t *testing.T) {
	r, _, ctrl := setupMockRouter(t)
	defer ctrl.Finish()

	w := postJSON(r, "/api/v1/wallet", map[string]interface{}{
		"operationType": "credit",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
