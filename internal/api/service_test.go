package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-ledger-go/internal/copytrading"
	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"
	"wallet-ledger-go/internal/testutil"
	"wallet-ledger-go/internal/withdrawal"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc    *database.Service
	router *mux.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := testutil.NewStore(t)
	rec := &events.Recorder{}
	l := ledger.NewBalanceLedger(svc, svc, rec)
	assets := models.NewAssetRegistry([]models.AssetConfig{
		{Symbol: "USDT", Network: "ethereum-mainnet", WithdrawalsEnabled: true, MinWithdrawal: d("10"), NetworkFee: d("1.5")},
	})

	router := NewRouter(&Dependencies{
		Ledger:      l,
		History:     svc,
		Withdrawals: withdrawal.NewService(svc, l, nil, assets, rec),
		CopyTrading: copytrading.NewEngine(svc, l, rec, models.CopyTradeConfig{ClaimWindow: time.Hour}),
	})
	testutil.Fund(t, svc, "user1", "USDT", "100")
	return &fixture{svc: svc, router: router}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), "body: %s", w.Body.String())
	return out
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).Code)

	metricsResp := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, metricsResp.Code)
	assert.Contains(t, metricsResp.Body.String(), "wallet_http_requests_total")
}

func TestRouter_Readyz_DatabaseDown(t *testing.T) {
	f := newFixture(t)
	f.svc.Close()

	w := f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetBalance(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/users/user1/balances/usdt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[models.BalanceView](t, w)
	assert.True(t, view.Balance.Equal(d("100")))
	assert.True(t, view.Available.Equal(d("100")))

	w = f.do(t, http.MethodGet, "/api/v1/users/nobody/balances/USDT", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.BalanceView](t, w).Balance.IsZero())
}

func TestWithdrawalLifecycle_ManualPayout(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/withdrawals", models.CreateWithdrawalRequest{
		UserId: "user1", Asset: "USDT", Amount: d("40"), ToAddress: "0xexternal",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.WithdrawalView](t, w)
	assert.Equal(t, models.WithdrawalStatusPending, created.Status)

	bal := testutil.Balance(t, f.svc, "user1", "USDT")
	assert.True(t, bal.LockedBalance.Equal(d("40")))

	base := "/api/v1/admin/withdrawals/" + created.Id
	w = f.do(t, http.MethodPost, base+"/approve", models.ReviewRequest{ReviewerId: "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.ProcessingTypeManual, decode[models.WithdrawalView](t, w).ProcessingType)

	w = f.do(t, http.MethodPost, base+"/execute", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.WithdrawalStatusProcessing, decode[models.WithdrawalView](t, w).Status)

	w = f.do(t, http.MethodPost, base+"/complete", models.ReviewRequest{ReviewerId: "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "tx hash is required")

	w = f.do(t, http.MethodPost, base+"/complete", models.ReviewRequest{ReviewerId: "admin", TxHash: "0xabc"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[models.WithdrawalView](t, w)
	assert.Equal(t, models.WithdrawalStatusCompleted, done.Status)
	assert.Equal(t, "0xabc", done.TxHash)

	w = f.do(t, http.MethodGet, "/api/v1/withdrawals/"+created.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.WithdrawalStatusCompleted, decode[models.WithdrawalView](t, w).Status)

	bal = testutil.Balance(t, f.svc, "user1", "USDT")
	assert.True(t, bal.Balance.Equal(d("60")), "balance %s", bal.Balance)
	assert.True(t, bal.LockedBalance.IsZero(), "locked %s", bal.LockedBalance)
}

func TestWithdrawal_ErrorMapping(t *testing.T) {
	f := newFixture(t)

	t.Run("insufficient balance carries available", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/withdrawals", models.CreateWithdrawalRequest{
			UserId: "user1", Asset: "USDT", Amount: d("500"), ToAddress: "0xexternal",
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		body := decode[models.ErrorResponse](t, w)
		assert.Equal(t, "insufficient_balance", body.Code)
		require.NotNil(t, body.Available)
		assert.True(t, body.Available.Equal(d("100")))
	})

	t.Run("below minimum is invalid amount", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/withdrawals", models.CreateWithdrawalRequest{
			UserId: "user1", Asset: "USDT", Amount: d("5"), ToAddress: "0xexternal",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_amount", decode[models.ErrorResponse](t, w).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/withdrawals", bytes.NewBufferString(`{"amount": "ten"`))
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", decode[models.ErrorResponse](t, w).Code)
	})

	t.Run("unknown withdrawal", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/withdrawals/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("wrong state", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/withdrawals", models.CreateWithdrawalRequest{
			UserId: "user1", Asset: "USDT", Amount: d("20"), ToAddress: "0xexternal",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		id := decode[models.WithdrawalView](t, w).Id

		w = f.do(t, http.MethodPost, "/api/v1/admin/withdrawals/"+id+"/execute", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "invalid_state", decode[models.ErrorResponse](t, w).Code)
	})
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/withdrawals/quote", models.QuoteRequest{
		Asset: "USDT", Amount: d("50"), ToAddress: "0xexternal",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := decode[models.WithdrawalQuote](t, w)
	assert.True(t, quote.Fee.Equal(d("1.5")), "fee %s", quote.Fee)
	assert.False(t, quote.Estimated)
}

func TestCopyTrading_Routes(t *testing.T) {
	f := newFixture(t)
	testutil.SeedTrader(t, f.svc, "trader-1", 1, models.RiskLow, "2", "6", "0.2")
	testutil.Fund(t, f.svc, "user2", "USDT", "100")

	w := f.do(t, http.MethodGet, "/api/v1/traders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	traders := decode[[]models.TraderView](t, w)
	require.Len(t, traders, 1)
	assert.Equal(t, 1, traders[0].RemainingCapacity)

	w = f.do(t, http.MethodPost, "/api/v1/copy-trading/positions", models.StartCopyRequest{
		UserId: "user1", TraderId: "trader-1", Amount: d("50"),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pos := decode[models.PositionView](t, w)
	assert.Equal(t, models.PositionStatusActive, pos.Status)

	w = f.do(t, http.MethodPost, "/api/v1/copy-trading/positions", models.StartCopyRequest{
		UserId: "user2", TraderId: "trader-1", Amount: d("50"),
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	full := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "capacity_filled", full.Code)
	require.NotNil(t, full.RemainingCapacity)
	assert.Equal(t, 0, *full.RemainingCapacity)

	w = f.do(t, http.MethodPost, "/api/v1/copy-trading/waitlist", models.JoinWaitlistRequest{
		UserId: "user2", TraderId: "trader-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "user2", decode[models.WaitlistView](t, w).UserId)

	w = f.do(t, http.MethodPost, "/api/v1/copy-trading/positions/"+pos.Id+"/stop", models.StopCopyRequest{UserId: "user1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stopped := decode[models.StopCopyResult](t, w)
	assert.Equal(t, models.PositionStatusStopped, stopped.Position.Status)
	assert.True(t, stopped.Payout.Equal(d("50")), "payout %s", stopped.Payout)
}

func TestAdminDeposit_Idempotent(t *testing.T) {
	f := newFixture(t)
	body := models.DepositRequest{
		UserId: "user3", Asset: "usdt", Amount: d("25"), Reference: "bank-wire-7", ReviewerId: "ops",
	}

	w := f.do(t, http.MethodPost, "/api/v1/admin/deposits", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := decode[models.DepositResult](t, w)
	assert.Equal(t, models.TransactionTypeAdminAdjustment, result.Transaction.Type)
	assert.Equal(t, models.TransactionStatusCompleted, result.Transaction.Status)
	assert.True(t, result.Balance.Balance.Equal(d("25")))

	w = f.do(t, http.MethodPost, "/api/v1/admin/deposits", body)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	bal := testutil.Balance(t, f.svc, "user3", "USDT")
	assert.True(t, bal.Balance.Equal(d("25")), "credited twice: %s", bal.Balance)

	w = f.do(t, http.MethodGet, "/api/v1/users/user3/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.TransactionView](t, w)
	require.Len(t, history, 2)
	statuses := []string{history[0].Status, history[1].Status}
	assert.ElementsMatch(t, []string{models.TransactionStatusCompleted, models.TransactionStatusFailed}, statuses)
}

func TestAdminDeposit_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/admin/deposits", models.DepositRequest{
		UserId: "user3", Asset: "USDT", Amount: d("25"),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "reviewer is required")

	w = f.do(t, http.MethodPost, "/api/v1/admin/deposits", models.DepositRequest{
		UserId: "user3", Asset: "USDT", Amount: d("-1"), ReviewerId: "ops",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_amount", decode[models.ErrorResponse](t, w).Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"compensation failure wins over domain error", errors.Join(
			&store.InsufficientBalanceError{Asset: "USDT"},
			fmt.Errorf("%w: release pending", store.ErrCompensationFailed),
		), http.StatusInternalServerError, "internal"},
		{"claim expired", fmt.Errorf("%w: window closed", store.ErrClaimExpired), http.StatusGone, "claim_expired"},
		{"duplicate position", store.ErrDuplicatePosition, http.StatusConflict, "duplicate_position"},
		{"bare capacity sentinel", store.ErrCapacityFilled, http.StatusConflict, "capacity_filled"},
		{"not found", fmt.Errorf("%w: trader x", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"unclassified", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			assert.Equal(t, tt.status, w.Code)
			body := decode[models.ErrorResponse](t, w)
			assert.Equal(t, tt.code, body.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, genericFailure, body.Error)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
