package copytrading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"
	"wallet-ledger-go/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc    *database.Service
	engine *Engine
	events *events.Recorder
	clock  time.Time
}

func newFixture(t *testing.T, maxCopiers int) *fixture {
	t.Helper()
	svc := testutil.NewStore(t)
	testutil.SeedTrader(t, svc, "trader-1", maxCopiers, models.RiskMedium, "5", "15", "0.2")

	rec := &events.Recorder{}
	f := &fixture{
		svc:    svc,
		events: rec,
		clock:  time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(svc, ledger.NewBalanceLedger(svc, svc, rec), rec, models.CopyTradeConfig{ClaimWindow: time.Hour})
	f.engine.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) lastOfferToken(t *testing.T) string {
	t.Helper()
	evts := f.events.Events()
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type == events.WaitlistSlotOffered {
			return evts[i].Data["claim_token"]
		}
	}
	t.Fatal("no waitlist offer published")
	return ""
}

func TestDailyPnlRate(t *testing.T) {
	tests := []struct {
		allocation, roiMin, roiMax, want string
	}{
		{"1000", "5", "15", "3.33333333"},
		{"300", "10", "20", "1.5"},
		{"100", "0", "0", "0"},
	}
	for _, tt := range tests {
		trader := models.Trader{HistoricalRoiMin: d(tt.roiMin), HistoricalRoiMax: d(tt.roiMax)}
		got := DailyPnlRate(d(tt.allocation), trader)
		assert.True(t, got.Equal(d(tt.want)), "allocation %s: got %s, want %s", tt.allocation, got, tt.want)
	}
}

func TestStartCopy(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	testutil.Fund(t, f.svc, "user1", "USDT", "1000")

	pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("400"))
	require.NoError(t, err)
	assert.Equal(t, models.PositionStatusActive, pos.Status)
	assert.True(t, pos.DailyPnlRate.Equal(d("1.33333333")), "got %s", pos.DailyPnlRate)

	bal := testutil.Balance(t, f.svc, "user1", "USDT")
	assert.True(t, bal.Balance.Equal(d("600")))

	trader, err := f.svc.GetTrader(ctx, "trader-1")
	require.NoError(t, err)
	assert.Equal(t, 1, trader.CurrentCopiers)
	assert.True(t, trader.AumUsdt.Equal(d("400")))

	history, err := f.svc.GetTransactionHistory(ctx, "user1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransactionTypeCopyTradeStart, history[0].Type)
	assert.Equal(t, pos.Id, history[0].Metadata["position_id"])

	assert.Equal(t, []string{events.CopyTradeStarted}, f.events.Types())
}

func TestStartCopy_Rejections(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	testutil.Fund(t, f.svc, "user1", "USDT", "100")

	_, err := f.engine.StartCopy(ctx, "user1", "trader-1", decimal.Zero)
	assert.ErrorIs(t, err, store.ErrInvalidAmount)

	_, err = f.engine.StartCopy(ctx, "user1", "missing", d("10"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.engine.StartCopy(ctx, "user1", "trader-1", d("150"))
	var insufficient *store.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(d("100")))

	_, err = f.engine.StartCopy(ctx, "user1", "trader-1", d("60"))
	require.NoError(t, err)
	_, err = f.engine.StartCopy(ctx, "user1", "trader-1", d("10"))
	assert.ErrorIs(t, err, store.ErrDuplicatePosition)

	assert.True(t, testutil.Balance(t, f.svc, "user1", "USDT").Balance.Equal(d("40")), "only the one open moved money")
}

func TestStartCopy_CapacityRace(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	const contenders = 10
	for i := 0; i < contenders; i++ {
		testutil.Fund(t, f.svc, fmt.Sprintf("user%d", i), "USDT", "100")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(userId string) {
			defer wg.Done()
			_, err := f.engine.StartCopy(ctx, userId, "trader-1", d("50"))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(fmt.Sprintf("user%d", i))
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var filled *store.CapacityFilledError
		require.ErrorAs(t, err, &filled)
		assert.Zero(t, filled.Remaining)
	}
	assert.Equal(t, 1, successes)

	trader, err := f.svc.GetTrader(ctx, "trader-1")
	require.NoError(t, err)
	assert.Equal(t, 1, trader.CurrentCopiers)
	assert.True(t, trader.AumUsdt.Equal(d("50")))

	// Every loser got the allocation back.
	total := decimal.Zero
	for i := 0; i < contenders; i++ {
		bal := testutil.Balance(t, f.svc, fmt.Sprintf("user%d", i), "USDT")
		require.True(t, bal.Valid())
		total = total.Add(bal.Balance)
	}
	assert.True(t, total.Equal(d("950")), "got %s", total)
}

// failingOpen makes OpenPosition fail after the debit.
type failingOpen struct {
	store.CopyTradingStore
}

func (failingOpen) OpenPosition(context.Context, store.OpenPositionParams) error {
	return errors.New("disk full")
}

func TestStartCopy_CreditsBackOnOpenFailure(t *testing.T) {
	svc := testutil.NewStore(t)
	testutil.SeedTrader(t, svc, "trader-1", 5, models.RiskLow, "5", "15", "0.2")
	testutil.Fund(t, svc, "user1", "USDT", "100")
	ctx := context.Background()

	engine := NewEngine(failingOpen{svc}, ledger.NewBalanceLedger(svc, svc, nil), nil, models.CopyTradeConfig{})

	_, err := engine.StartCopy(ctx, "user1", "trader-1", d("70"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrCompensationFailed)

	bal := testutil.Balance(t, svc, "user1", "USDT")
	assert.True(t, bal.Balance.Equal(d("100")), "got %s", bal.Balance)

	applied, err := svc.ListLedgerActions(ctx, models.ActionStatusApplied)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, models.ActionKindCredit, applied[0].Kind)
}

func TestStopCopy(t *testing.T) {
	tests := []struct {
		name       string
		pnl        string
		wantPayout string
	}{
		{"profit", "12.5", "412.5"},
		{"loss", "-100", "300"},
		{"wiped out", "-450", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5)
			ctx := context.Background()
			testutil.Fund(t, f.svc, "user1", "USDT", "400")

			pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("400"))
			require.NoError(t, err)

			ok, err := f.svc.UpdatePositionPnl(ctx, store.PnlUpdateParams{
				PositionId: pos.Id, Version: 1, CurrentPnl: d(tt.pnl), TickAt: f.clock,
			})
			require.NoError(t, err)
			require.True(t, ok)

			res, err := f.engine.StopCopy(ctx, "user1", pos.Id)
			require.NoError(t, err)
			assert.True(t, res.Payout.Equal(d(tt.wantPayout)), "payout %s", res.Payout)
			assert.True(t, res.Position.FinalPnl.Equal(d(tt.pnl)))

			assert.True(t, testutil.Balance(t, f.svc, "user1", "USDT").Balance.Equal(d(tt.wantPayout)))

			trader, err := f.svc.GetTrader(ctx, "trader-1")
			require.NoError(t, err)
			assert.Zero(t, trader.CurrentCopiers)
			assert.True(t, trader.AumUsdt.IsZero())

			history, err := f.svc.GetTransactionHistory(ctx, "user1", 10, 0)
			require.NoError(t, err)
			for _, tx := range history {
				assert.Equal(t, models.TransactionStatusCompleted, tx.Status, tx.Type)
			}

			_, err = f.engine.StopCopy(ctx, "user1", pos.Id)
			assert.ErrorIs(t, err, store.ErrInvalidState)
		})
	}
}

func TestStopCopy_WrongUser(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	testutil.Fund(t, f.svc, "user1", "USDT", "100")

	pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("100"))
	require.NoError(t, err)

	_, err = f.engine.StopCopy(ctx, "intruder", pos.Id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWaitlist_OfferAndClaim(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	testutil.Fund(t, f.svc, "user1", "USDT", "100")
	testutil.Fund(t, f.svc, "user2", "USDT", "100")

	_, err := f.engine.JoinWaitlist(ctx, "user2", "trader-1")
	assert.ErrorIs(t, err, store.ErrInvalidRequest, "capacity remains")

	pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("100"))
	require.NoError(t, err)

	_, err = f.engine.StartCopy(ctx, "user2", "trader-1", d("10"))
	var filled *store.CapacityFilledError
	require.ErrorAs(t, err, &filled)

	_, err = f.engine.JoinWaitlist(ctx, "user2", "trader-1")
	require.NoError(t, err)
	_, err = f.engine.JoinWaitlist(ctx, "user2", "trader-1")
	assert.ErrorIs(t, err, store.ErrDuplicatePosition)

	_, err = f.engine.StopCopy(ctx, "user1", pos.Id)
	require.NoError(t, err)
	token := f.lastOfferToken(t)

	claimed, err := f.engine.ClaimWaitlist(ctx, token, d("80"))
	require.NoError(t, err)
	assert.Equal(t, "user2", claimed.UserId)
	assert.True(t, testutil.Balance(t, f.svc, "user2", "USDT").Balance.Equal(d("20")))

	_, err = f.engine.ClaimWaitlist(ctx, token, d("10"))
	assert.ErrorIs(t, err, store.ErrInvalidState, "a claim is single use")

	_, err = f.engine.ClaimWaitlist(ctx, "no-such-token", d("10"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWaitlist_ClaimExpired(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	for _, u := range []string{"user1", "user2", "user3"} {
		testutil.Fund(t, f.svc, u, "USDT", "100")
	}

	pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("100"))
	require.NoError(t, err)
	_, err = f.engine.JoinWaitlist(ctx, "user2", "trader-1")
	require.NoError(t, err)
	f.clock = f.clock.Add(time.Second)
	_, err = f.engine.JoinWaitlist(ctx, "user3", "trader-1")
	require.NoError(t, err)

	_, err = f.engine.StopCopy(ctx, "user1", pos.Id)
	require.NoError(t, err)
	staleToken := f.lastOfferToken(t)

	f.clock = f.clock.Add(time.Hour + time.Minute)
	_, err = f.engine.ClaimWaitlist(ctx, staleToken, d("50"))
	require.ErrorIs(t, err, store.ErrClaimExpired)
	assert.True(t, testutil.Balance(t, f.svc, "user2", "USDT").Balance.Equal(d("100")), "no money moved")

	// The slot moved on to the next user in line.
	nextToken := f.lastOfferToken(t)
	require.NotEqual(t, staleToken, nextToken)
	claimed, err := f.engine.ClaimWaitlist(ctx, nextToken, d("50"))
	require.NoError(t, err)
	assert.Equal(t, "user3", claimed.UserId)
}

func TestWaitlist_ClaimLosesToDirectStart(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	for _, u := range []string{"user1", "user2", "user3"} {
		testutil.Fund(t, f.svc, u, "USDT", "100")
	}

	pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("100"))
	require.NoError(t, err)
	_, err = f.engine.JoinWaitlist(ctx, "user2", "trader-1")
	require.NoError(t, err)
	_, err = f.engine.StopCopy(ctx, "user1", pos.Id)
	require.NoError(t, err)
	token := f.lastOfferToken(t)

	_, err = f.engine.StartCopy(ctx, "user3", "trader-1", d("100"))
	require.NoError(t, err)

	_, err = f.engine.ClaimWaitlist(ctx, token, d("50"))
	require.ErrorIs(t, err, store.ErrCapacityFilled)
	assert.True(t, testutil.Balance(t, f.svc, "user2", "USDT").Balance.Equal(d("100")))
}

func TestExpireClaims(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	testutil.Fund(t, f.svc, "user1", "USDT", "100")

	pos, err := f.engine.StartCopy(ctx, "user1", "trader-1", d("100"))
	require.NoError(t, err)
	_, err = f.engine.JoinWaitlist(ctx, "user2", "trader-1")
	require.NoError(t, err)
	_, err = f.engine.StopCopy(ctx, "user1", pos.Id)
	require.NoError(t, err)

	n, err := f.engine.ExpireClaims(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "claim still inside its window")

	f.clock = f.clock.Add(2 * time.Hour)
	n, err = f.engine.ExpireClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.engine.ExpireClaims(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
