package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"pooled_wallet/internal/reference"
	"pooled_wallet/internal/repository"
	"pooled_wallet/internal/service"
	"pooled_wallet/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type discardPublisher struct{}

func (discardPublisher) Publish(ctx context.Context, topic string, event any) error { return nil }

func setupIntegrationRouter(t *testing.T) (*gin.Engine, func()) {
	pool, teardown := testutil.SetupTestDB(t)
	repo := repository.NewLedgerPGRepository(pool, testLogger)
	refs := reference.NewGenerator(repo)
	svc := service.NewLedgerService(repo, refs, discardPublisher{}, testLogger)
	handler := NewLedgerHTTPHandler(svc)
	r := gin.Default()
	handler.RegisterRoutes(r)
	return r, teardown
}

func doJSON(r *gin.Engine, method, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIntegration_CreditDebitAndBalance(t *testing.T) {
	r, teardown := setupIntegrationRouter(t)
	defer teardown()
	userID := uuid.New()

	w := doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
		"userId":        userID,
		"operationType": "credit",
		"genus":         "deposit",
		"amount":        "100.50",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Reference string
		Balance   string
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NotEmpty(t, resp.Reference)
	d, _ := decimal.NewFromString(resp.Balance)
	assert.True(t, d.Equal(decimal.NewFromFloat(100.5)))

	w = doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
		"userId":        userID,
		"operationType": "debit",
		"genus":         "withdrawal",
		"amount":        "50.25",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, "GET", "/api/v1/wallet/balance", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var balResp struct {
		Balance       string
		LedgerBalance string
	}
	json.Unmarshal(w.Body.Bytes(), &balResp)
	d, _ = decimal.NewFromString(balResp.Balance)
	assert.True(t, d.Equal(decimal.NewFromFloat(50.25)))
}

func TestIntegration_Transfer(t *testing.T) {
	r, teardown := setupIntegrationRouter(t)
	defer teardown()
	alice := uuid.New()
	bob := uuid.New()

	w := doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
		"userId":        alice,
		"operationType": "credit",
		"genus":         "deposit",
		"amount":        "100",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, "POST", "/api/v1/wallet/transfer", map[string]interface{}{
		"fromUserId": alice,
		"toUserId":   bob,
		"amount":     "40",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var result struct {
		DebitReference  string `json:"debitReference"`
		CreditReference string `json:"creditReference"`
	}
	json.Unmarshal(w.Body.Bytes(), &result)
	assert.NotEmpty(t, result.DebitReference)
	assert.NotEmpty(t, result.CreditReference)

	// Insufficient funds maps to 409.
	w = doJSON(r, "POST", "/api/v1/wallet/transfer", map[string]interface{}{
		"fromUserId": alice,
		"toUserId":   bob,
		"amount":     "5000",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Self transfer maps to 422.
	w = doJSON(r, "POST", "/api/v1/wallet/transfer", map[string]interface{}{
		"fromUserId": alice,
		"toUserId":   alice,
		"amount":     "5",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIntegration_LedgerHold(t *testing.T) {
	r, teardown := setupIntegrationRouter(t)
	defer teardown()

	w := doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
		"userId":        uuid.New(),
		"operationType": "credit",
		"genus":         "deposit",
		"amount":        "60",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, "POST", "/api/v1/wallet/hold", map[string]interface{}{
		"direction": "credit",
		"amount":    "20",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Balance       string
		LedgerBalance string
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	balance, _ := decimal.NewFromString(resp.Balance)
	held, _ := decimal.NewFromString(resp.LedgerBalance)
	assert.True(t, balance.Equal(decimal.NewFromInt(40)))
	assert.True(t, held.Equal(decimal.NewFromInt(20)))
}

func TestIntegration_ListTransactions(t *testing.T) {
	r, teardown := setupIntegrationRouter(t)
	defer teardown()
	alice := uuid.New()

	for _, amount := range []string{"10", "20", "30"} {
		w := doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
			"userId":        alice,
			"operationType": "credit",
			"genus":         "deposit",
			"amount":        amount,
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(r, "GET", "/api/v1/wallet/transactions?userId="+alice.String()+"&limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []struct {
			Amount string `json:"amount"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	json.Unmarshal(w.Body.Bytes(), &page)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)

	w = doJSON(r, "GET", "/api/v1/wallet/transactions?userId=not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntegration_InvalidOperationPayloads(t *testing.T) {
	r, teardown := setupIntegrationRouter(t)
	defer teardown()

	// Unknown operation type rejected at the binding boundary.
	w := doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
		"userId":        uuid.New(),
		"operationType": "TRANSMUTE",
		"genus":         "deposit",
		"amount":        "10",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Non-positive amount.
	w = doJSON(r, "POST", "/api/v1/wallet", map[string]interface{}{
		"userId":        uuid.New(),
		"operationType": "credit",
		"genus":         "deposit",
		"amount":        "-5",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
