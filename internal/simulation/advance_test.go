package simulation

import (
	"math"
	"testing"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mediumTrader() models.Trader {
	return models.Trader{
		Id:               "trader-1",
		RiskLevel:        models.RiskMedium,
		HistoricalRoiMin: decimal.NewFromInt(5),
		HistoricalRoiMax: decimal.NewFromInt(15),
		MaxDrawdown:      decimal.RequireFromString("0.2"),
	}
}

func TestParamsFor(t *testing.T) {
	p := ParamsFor(mediumTrader(), decimal.NewFromInt(1000))

	assert.InDelta(t, 10.0, p.TargetMonthlyRoi, 1e-12)
	assert.InDelta(t, 0.00320, p.DailyDrift, 0.00003)
	assert.Equal(t, 0.015, p.DailyVolatility)
	assert.InDelta(t, -200.0, p.MaxDrawdownUsdt, 1e-9)

	tests := []struct {
		risk string
		want float64
	}{
		{models.RiskLow, 0.008},
		{models.RiskMedium, 0.015},
		{models.RiskHigh, 0.025},
		{"HIGH", 0.025},
		{"unknown", 0.015},
	}
	for _, tt := range tests {
		tr := mediumTrader()
		tr.RiskLevel = tt.risk
		assert.Equal(t, tt.want, ParamsFor(tr, decimal.NewFromInt(1)).DailyVolatility, tt.risk)
	}
}

func TestStep_DriftOnlyScenario(t *testing.T) {
	p := ParamsFor(mediumTrader(), decimal.NewFromInt(1000))

	pnl, momentum := step(1000, 0, p, 0, 0, Shock{Z: 0, U: 0})

	assert.InDelta(t, 0.0111, pnl, 0.0001)
	assert.Zero(t, momentum)
}

func TestAdvance_Deterministic(t *testing.T) {
	p := ParamsFor(mediumTrader(), decimal.NewFromInt(1000))
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 3, 12, 7, 0, 0, time.UTC)

	pnl1, mom1 := Advance(1000, 12.5, p, started, "trader-1", now, 0.4)
	pnl2, mom2 := Advance(1000, 12.5, p, started, "trader-1", now.Add(2*time.Minute), 0.4)

	// Same bucket: identical results down to the bit.
	assert.Equal(t, math.Float64bits(pnl1), math.Float64bits(pnl2))
	assert.Equal(t, math.Float64bits(mom1), math.Float64bits(mom2))
}

func TestAdvance_UsesBucketStart(t *testing.T) {
	p := ParamsFor(mediumTrader(), decimal.NewFromInt(1000))
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 9, 18, 44, 59, 0, time.UTC)

	pnl1, mom1 := Advance(1000, -3.25, p, started, "trader-1", now, -0.2)
	pnl2, mom2 := Advance(1000, -3.25, p, started, "trader-1", BucketStart(now), -0.2)

	assert.Equal(t, math.Float64bits(pnl1), math.Float64bits(pnl2))
	assert.Equal(t, math.Float64bits(mom1), math.Float64bits(mom2))
}

func TestRoundPnl(t *testing.T) {
	assert.Equal(t, "-0.915234", RoundPnl(-0.91523398).String())
	assert.Equal(t, "12.5", RoundPnl(12.5).String())
}

func TestShockAt_SharedPerTraderAndBucket(t *testing.T) {
	at := time.Date(2026, 5, 17, 9, 31, 0, 0, time.UTC)

	a := ShockAt("trader-1", at)
	b := ShockAt("trader-1", at.Add(3*time.Minute+59*time.Second))
	assert.Equal(t, a, b, "every position of a trader sees one shock per bucket")

	assert.NotEqual(t, a, ShockAt("trader-1", at.Add(5*time.Minute)), "next bucket differs")
	assert.NotEqual(t, a, ShockAt("trader-2", at), "other trader differs")

	assert.False(t, math.IsNaN(a.Z) || math.IsInf(a.Z, 0))
	assert.GreaterOrEqual(t, a.U, 0.0)
	assert.Less(t, a.U, 1.0)
}

func TestShockAt_StandardNormal(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const n = 20000

	var sum, sumSq float64
	for i := 0; i < n; i++ {
		z := ShockAt("trader-1", start.Add(time.Duration(i)*BucketSize)).Z
		sum += z
		sumSq += z * z
	}
	mean := sum / n
	variance := sumSq/n - mean*mean

	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, variance, 0.05)
}

func TestStep_JumpCap(t *testing.T) {
	p := ParamsFor(mediumTrader(), decimal.NewFromInt(1000))
	p.DailyVolatility = 5 // absurd on purpose

	up, _ := step(1000, 0, p, 0, 0, Shock{Z: 8})
	down, _ := step(1000, 0, p, 0, 0, Shock{Z: -8})

	assert.InDelta(t, 50, up, 1e-9)
	assert.InDelta(t, -50, down, 1e-9)
}

func TestStep_DrawdownFloor(t *testing.T) {
	p := ParamsFor(mediumTrader(), decimal.NewFromInt(1000))
	floor := p.MaxDrawdownUsdt
	bounce := bounceFraction * 1000

	pnl, momentum := 0.0, 0.0
	hitFloor := false
	for i := 0; i < 500; i++ {
		pnl, momentum = step(1000, pnl, p, float64(i)/TicksPerDay, momentum, Shock{Z: -6, U: 0.75})
		require.GreaterOrEqual(t, pnl, floor, "tick %d", i)
		if pnl < floor+bounce+1e-9 {
			hitFloor = true
		}
	}
	assert.True(t, hitFloor, "adverse shocks should reach the floor")
	assert.Equal(t, -1.0, momentum, "momentum saturates")
}

func TestBucketStart(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 14, 59, 999, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC), BucketStart(at))
	assert.Equal(t, BucketStart(at), BucketStart(at.In(time.FixedZone("x", 3600))))
}

func TestMissedBuckets(t *testing.T) {
	last := time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC)

	assert.Empty(t, MissedBuckets(last, last.Add(4*time.Minute), 10))

	got := MissedBuckets(last, last.Add(16*time.Minute), 10)
	require.Len(t, got, 3)
	assert.Equal(t, last.Add(5*time.Minute), got[0])
	assert.Equal(t, last.Add(15*time.Minute), got[2])

	capped := MissedBuckets(last, last.Add(24*time.Hour), 4)
	require.Len(t, capped, 4)
	assert.Equal(t, last.Add(24*time.Hour), capped[3])
	assert.Equal(t, last.Add(24*time.Hour-15*time.Minute), capped[0])
}
