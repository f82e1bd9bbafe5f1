package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/gateway"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"
	"wallet-ledger-go/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testAssets = models.NewAssetRegistry([]models.AssetConfig{
	{Symbol: "USDT", Network: "ethereum-mainnet", WithdrawalsEnabled: true, MinWithdrawal: d("10"), NetworkFee: d("1.5")},
	{Symbol: "BTC", Network: "bitcoin-mainnet", WithdrawalsEnabled: false, MinWithdrawal: d("0.001"), NetworkFee: d("0.0001")},
})

type fakeGateway struct {
	mu          sync.Mutex
	result      *gateway.WithdrawResult
	err         error
	estimate    *gateway.FeeEstimate
	estimateErr error
	calls       []gateway.WithdrawParams
}

func (g *fakeGateway) Withdraw(_ context.Context, params gateway.WithdrawParams) (*gateway.WithdrawResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, params)
	return g.result, g.err
}

func (g *fakeGateway) EstimateFee(context.Context, string, string, decimal.Decimal) (*gateway.FeeEstimate, error) {
	return g.estimate, g.estimateErr
}

// crashingPrimitives dies inside the first settle, after the transfer has
// committed and before any ledger action is marked.
type crashingPrimitives struct {
	store.Ledger
}

func (crashingPrimitives) Unlock(context.Context, string, string, decimal.Decimal, bool) (*models.Balance, error) {
	panic("process killed")
}

// failingCreate stores nothing when asked to create a withdrawal.
type failingCreate struct {
	store.WithdrawalStore
}

func (failingCreate) CreateWithdrawal(context.Context, *models.Transaction, *models.WithdrawalRequest) error {
	return errors.New("disk I/O error")
}

type fixture struct {
	svc     *database.Service
	service *Service
	gateway *fakeGateway
	events  *events.Recorder
}

func newFixture(t *testing.T, withGateway bool) *fixture {
	t.Helper()
	svc := testutil.NewStore(t)
	rec := &events.Recorder{}
	f := &fixture{svc: svc, events: rec, gateway: &fakeGateway{
		result: &gateway.WithdrawResult{Success: true, TxHash: "activity-1", Fee: d("1.2")},
	}}

	var gw gateway.PaymentGateway
	if withGateway {
		gw = f.gateway
	}
	f.service = NewService(svc, ledger.NewBalanceLedger(svc, svc, rec), gw, testAssets, rec)
	testutil.Fund(t, svc, "user1", "USDT", "100")
	return f
}

func (f *fixture) addDepositAddress(t *testing.T, userId, address string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, userId, "User "+userId, userId+"@example.com")
	require.NoError(t, err)
	_, err = f.svc.StoreAddress(ctx, store.StoreAddressParams{
		UserId:  userId,
		Asset:   "USDT",
		Network: "ethereum-mainnet",
		Address: address,
	})
	require.NoError(t, err)
}

func (f *fixture) assertBalance(t *testing.T, userId, balance, locked string) {
	t.Helper()
	bal := testutil.Balance(t, f.svc, userId, "USDT")
	assert.True(t, bal.Balance.Equal(d(balance)), "%s balance: got %s, want %s", userId, bal.Balance, balance)
	assert.True(t, bal.LockedBalance.Equal(d(locked)), "%s locked: got %s, want %s", userId, bal.LockedBalance, locked)
}

func (f *fixture) assertTransactionStatus(t *testing.T, req *models.WithdrawalRequest, want string) {
	t.Helper()
	tx, err := f.svc.GetTransaction(context.Background(), req.TransactionId)
	require.NoError(t, err)
	assert.Equal(t, want, tx.Status)
}

func TestCreate_LocksAndStores(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	req, err := f.service.Create(ctx, "user1", "usdt", d("40"), " 0xexternal ")
	require.NoError(t, err)

	assert.Equal(t, models.WithdrawalStatusPending, req.Status)
	assert.Equal(t, "USDT", req.Asset)
	assert.Equal(t, "0xexternal", req.ToAddress)
	assert.False(t, req.IsInternalTransfer)
	f.assertBalance(t, "user1", "100", "40")
	f.assertTransactionStatus(t, req, models.TransactionStatusPending)

	stored, err := f.service.Get(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, req.TransactionId, stored.TransactionId)
	assert.Equal(t, "", stored.ProcessingType)
	assert.Equal(t, []string{events.WithdrawalCreated}, f.events.Types())
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		asset   string
		amount  string
		address string
		wantErr error
	}{
		{"unknown asset", "DOGE", "20", "0xabc", store.ErrInvalidRequest},
		{"withdrawals disabled", "BTC", "1", "bc1abc", store.ErrInvalidRequest},
		{"zero amount", "USDT", "0", "0xabc", store.ErrInvalidAmount},
		{"negative amount", "USDT", "-5", "0xabc", store.ErrInvalidAmount},
		{"below minimum", "USDT", "9.99", "0xabc", store.ErrInvalidAmount},
		{"missing address", "USDT", "20", "  ", store.ErrInvalidRequest},
		{"insufficient balance", "USDT", "100.01", "0xabc", store.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			_, err := f.service.Create(context.Background(), "user1", tt.asset, d(tt.amount), tt.address)
			require.ErrorIs(t, err, tt.wantErr)
			f.assertBalance(t, "user1", "100", "0")
			assert.Empty(t, f.events.Types())
		})
	}
}

func TestCreate_InsufficientCarriesAvailable(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.service.Create(context.Background(), "user1", "USDT", d("150"), "0xabc")

	var insufficient *store.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(d("100")))
}

func TestCreate_RollsBackLockWhenRecordsFail(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	service := NewService(failingCreate{f.svc}, ledger.NewBalanceLedger(f.svc, f.svc, f.events), f.gateway, testAssets, f.events)

	_, err := service.Create(ctx, "user1", "USDT", d("40"), "0xabc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrCompensationFailed)

	f.assertBalance(t, "user1", "100", "0")

	journal, err := f.svc.GetJournal(ctx, "user1", "USDT")
	require.NoError(t, err)
	require.Len(t, journal, 3)
	assert.Equal(t, models.OperationLock, journal[1].Operation)
	assert.Equal(t, models.OperationUnlockRelease, journal[2].Operation)

	open, err := f.svc.ListLedgerActions(ctx, models.ActionStatusPending, models.ActionStatusFailed)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCreate_DetectsInternalTransfer(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.addDepositAddress(t, "user2", "0xUser2Deposit")

	req, err := f.service.Create(ctx, "user1", "USDT", d("25"), "0xuser2deposit")
	require.NoError(t, err)
	assert.True(t, req.IsInternalTransfer)
	assert.Equal(t, "user2", req.RecipientUserId)
}

func TestCreate_RejectsOwnDepositAddress(t *testing.T) {
	f := newFixture(t, true)
	f.addDepositAddress(t, "user1", "0xUser1Deposit")

	_, err := f.service.Create(context.Background(), "user1", "USDT", d("25"), "0xUser1Deposit")
	require.ErrorIs(t, err, store.ErrInvalidRequest)
	f.assertBalance(t, "user1", "100", "0")
}

func TestInternalTransfer(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.addDepositAddress(t, "user2", "0xUser2Deposit")

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xUser2Deposit")
	require.NoError(t, err)

	approved, err := f.service.Approve(ctx, req.Id, "admin", models.ProcessingTypeGateway)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingTypeInternal, approved.ProcessingType, "internal transfers never use the gateway")

	done, err := f.service.Execute(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, done.Status)
	assert.Empty(t, f.gateway.calls)

	f.assertBalance(t, "user1", "60", "0")
	f.assertBalance(t, "user2", "40", "0")
	f.assertTransactionStatus(t, req, models.TransactionStatusCompleted)

	history, err := f.svc.GetTransactionHistory(ctx, "user2", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransactionTypeDeposit, history[0].Type)
	assert.Equal(t, req.Id, history[0].Metadata["withdrawal_id"])

	assert.Equal(t, []string{
		events.WithdrawalCreated,
		events.WithdrawalApproved,
		events.WithdrawalCompleted,
	}, f.events.Types())
}

func TestInternalTransfer_CrashAfterCommitResumes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.addDepositAddress(t, "user2", "0xUser2Deposit")

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xUser2Deposit")
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, req.Id, "admin", "")
	require.NoError(t, err)

	crashing := NewService(f.svc, ledger.NewBalanceLedger(crashingPrimitives{f.svc}, f.svc, nil), nil, testAssets, nil)
	assert.Panics(t, func() { _, _ = crashing.Execute(ctx, req.Id) })

	stored, err := f.svc.GetWithdrawal(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, stored.Status)
	f.assertBalance(t, "user1", "100", "40")
	f.assertBalance(t, "user2", "0", "0")

	// Restart: the settle and the credit are still pending.
	restarted := ledger.NewBalanceLedger(f.svc, f.svc, nil)
	open, err := restarted.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)

	resumed, err := restarted.ResumePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resumed)
	f.assertBalance(t, "user1", "60", "0")
	f.assertBalance(t, "user2", "40", "0")

	resumed, err = restarted.ResumePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, resumed)
}

func TestInternalTransfer_StuckProcessingRecovers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.addDepositAddress(t, "user2", "0xUser2Deposit")

	stuck := func() *models.WithdrawalRequest {
		req, err := f.service.Create(ctx, "user1", "USDT", d("30"), "0xUser2Deposit")
		require.NoError(t, err)
		_, err = f.service.Approve(ctx, req.Id, "admin", "")
		require.NoError(t, err)
		// Execute's first step committed, then the process died.
		_, err = f.svc.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
			Id:   req.Id,
			From: []string{models.WithdrawalStatusAdminApproved},
			To:   models.WithdrawalStatusProcessing,
		})
		require.NoError(t, err)
		return req
	}

	first := stuck()
	second := stuck()
	f.assertBalance(t, "user1", "100", "60")

	_, err := f.service.Execute(ctx, first.Id)
	require.ErrorIs(t, err, store.ErrInvalidState)

	done, err := f.service.CompletePayout(ctx, first.Id, "ops", "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, done.Status)
	f.assertBalance(t, "user2", "30", "0")

	failed, err := f.service.FailPayout(ctx, second.Id, "ops", "abandoned")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusFailed, failed.Status)

	f.assertBalance(t, "user1", "70", "0")
	f.assertBalance(t, "user2", "30", "0")
}

func TestGatewayPayout(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
	require.NoError(t, err)
	approved, err := f.service.Approve(ctx, req.Id, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingTypeGateway, approved.ProcessingType)

	done, err := f.service.Execute(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, done.Status)
	assert.Equal(t, "activity-1", done.TxHash)
	assert.True(t, done.Fee.Equal(d("1.2")))

	require.Len(t, f.gateway.calls, 1)
	call := f.gateway.calls[0]
	assert.Equal(t, req.Id, call.RequestId)
	assert.Equal(t, "0xexternal", call.Address)
	assert.Equal(t, "ethereum-mainnet", call.Network)
	assert.True(t, call.Amount.Equal(d("40")))

	f.assertBalance(t, "user1", "60", "0")
	f.assertTransactionStatus(t, req, models.TransactionStatusCompleted)
}

func TestGatewayPayout_RejectedReleases(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.gateway.result = &gateway.WithdrawResult{Success: false, Error: "address not allowlisted"}

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, req.Id, "admin", models.ProcessingTypeGateway)
	require.NoError(t, err)

	done, err := f.service.Execute(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusFailed, done.Status)
	assert.Equal(t, "address not allowlisted", done.FailureReason)

	f.assertBalance(t, "user1", "100", "0")
	f.assertTransactionStatus(t, req, models.TransactionStatusFailed)
}

func TestGatewayPayout_UnknownOutcomeStaysProcessing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.gateway.result = nil
	f.gateway.err = errors.New("connection reset by peer")

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, req.Id, "admin", models.ProcessingTypeGateway)
	require.NoError(t, err)

	_, err = f.service.Execute(ctx, req.Id)
	require.Error(t, err)

	stored, err := f.service.Get(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusProcessing, stored.Status)
	f.assertBalance(t, "user1", "100", "40")

	failed, err := f.service.FailPayout(ctx, req.Id, "ops", "gateway confirmed not sent")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusFailed, failed.Status)
	f.assertBalance(t, "user1", "100", "0")
}

func TestManualPayout(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, req.Id, "admin", models.ProcessingTypeGateway)
	require.ErrorIs(t, err, store.ErrInvalidRequest, "no gateway configured")

	approved, err := f.service.Approve(ctx, req.Id, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingTypeManual, approved.ProcessingType)

	processing, err := f.service.Execute(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusProcessing, processing.Status)
	f.assertBalance(t, "user1", "100", "40")

	_, err = f.service.CompletePayout(ctx, req.Id, "ops", "")
	require.ErrorIs(t, err, store.ErrInvalidRequest)

	done, err := f.service.CompletePayout(ctx, req.Id, "ops", "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, done.Status)
	assert.Equal(t, "0xdeadbeef", done.TxHash)
	f.assertBalance(t, "user1", "60", "0")

	_, err = f.service.FailPayout(ctx, req.Id, "ops", "too late")
	require.ErrorIs(t, err, store.ErrInvalidState)
	f.assertBalance(t, "user1", "60", "0")
}

func TestReject(t *testing.T) {
	for _, approveFirst := range []bool{false, true} {
		f := newFixture(t, true)
		ctx := context.Background()

		req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
		require.NoError(t, err)
		if approveFirst {
			_, err = f.service.Approve(ctx, req.Id, "admin", "")
			require.NoError(t, err)
		}

		rejected, err := f.service.Reject(ctx, req.Id, "admin", "suspicious destination")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalStatusRejected, rejected.Status)
		assert.Equal(t, "suspicious destination", rejected.FailureReason)
		f.assertBalance(t, "user1", "100", "0")
		f.assertTransactionStatus(t, req, models.TransactionStatusFailed)

		_, err = f.service.Reject(ctx, req.Id, "admin", "again")
		require.ErrorIs(t, err, store.ErrInvalidState)
		_, err = f.service.Execute(ctx, req.Id)
		require.ErrorIs(t, err, store.ErrInvalidState)
		f.assertBalance(t, "user1", "100", "0")
	}
}

func TestTransitions_RequireExpectedState(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	req, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
	require.NoError(t, err)

	_, err = f.service.Execute(ctx, req.Id)
	require.ErrorIs(t, err, store.ErrInvalidState, "execute before approval")

	_, err = f.service.Approve(ctx, req.Id, "", "")
	require.ErrorIs(t, err, store.ErrInvalidRequest)
	_, err = f.service.Approve(ctx, req.Id, "admin", models.ProcessingTypeInternal)
	require.ErrorIs(t, err, store.ErrInvalidRequest)

	_, err = f.service.Approve(ctx, req.Id, "admin", "")
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, req.Id, "admin", "")
	require.ErrorIs(t, err, store.ErrInvalidState)

	_, err = f.service.CompletePayout(ctx, req.Id, "ops", "0xhash")
	require.ErrorIs(t, err, store.ErrInvalidState, "complete before processing")

	_, err = f.service.Approve(ctx, "missing", "admin", "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentReviewHasOneWinner(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	approveReq, err := f.service.Create(ctx, "user1", "USDT", d("40"), "0xexternal")
	require.NoError(t, err)
	rejectReq, err := f.service.Create(ctx, "user1", "USDT", d("30"), "0xexternal")
	require.NoError(t, err)

	const reviewers = 5
	var wg sync.WaitGroup
	approveErrs := make([]error, reviewers)
	rejectErrs := make([]error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, approveErrs[i] = f.service.Approve(ctx, approveReq.Id, "admin", "")
		}(i)
		go func(i int) {
			defer wg.Done()
			_, rejectErrs[i] = f.service.Reject(ctx, rejectReq.Id, "admin", "duplicate request")
		}(i)
	}
	wg.Wait()

	countOK := func(errs []error) int {
		n := 0
		for _, err := range errs {
			if err == nil {
				n++
				continue
			}
			assert.ErrorIs(t, err, store.ErrInvalidState)
		}
		return n
	}
	assert.Equal(t, 1, countOK(approveErrs))
	assert.Equal(t, 1, countOK(rejectErrs))

	// Only the winning reject released its lock.
	f.assertBalance(t, "user1", "100", "40")
	journal, err := f.svc.GetJournal(ctx, "user1", "USDT")
	require.NoError(t, err)
	releases := 0
	for _, entry := range journal {
		if entry.Operation == models.OperationUnlockRelease {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to configured fee", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.estimateErr = gateway.ErrFeeEstimateUnavailable

		quote, err := f.service.Quote(ctx, "USDT", "0xexternal", d("50"))
		require.NoError(t, err)
		assert.True(t, quote.Fee.Equal(d("1.5")))
		assert.Equal(t, "USDT", quote.FeeCurrency)
		assert.False(t, quote.Estimated)
	})

	t.Run("uses gateway estimate", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.estimate = &gateway.FeeEstimate{Fee: d("0.8"), Currency: "ETH"}

		quote, err := f.service.Quote(ctx, "USDT", "0xexternal", d("50"))
		require.NoError(t, err)
		assert.True(t, quote.Fee.Equal(d("0.8")))
		assert.Equal(t, "ETH", quote.FeeCurrency)
		assert.True(t, quote.Estimated)
	})

	t.Run("gateway error falls back", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.estimateErr = errors.New("timeout")

		quote, err := f.service.Quote(ctx, "USDT", "0xexternal", d("50"))
		require.NoError(t, err)
		assert.True(t, quote.Fee.Equal(d("1.5")))
	})

	t.Run("internal transfer is free", func(t *testing.T) {
		f := newFixture(t, true)
		f.addDepositAddress(t, "user2", "0xUser2Deposit")

		quote, err := f.service.Quote(ctx, "USDT", "0xUser2Deposit", d("50"))
		require.NoError(t, err)
		assert.True(t, quote.IsInternalTransfer)
		assert.True(t, quote.Fee.IsZero())
	})

	t.Run("unknown asset", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.service.Quote(ctx, "DOGE", "0xexternal", d("50"))
		require.ErrorIs(t, err, store.ErrInvalidRequest)
	})
}
