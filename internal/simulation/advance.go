package simulation

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	// BucketSize is the shock window; all copiers of a trader share one
	// shock per bucket.
	BucketSize  = 5 * time.Minute
	TicksPerDay = 288

	dt = 1.0 / TicksPerDay

	meanReversion   = -0.1
	momentumDecay   = 0.95
	momentumNudge   = 0.3
	momentumTilt    = 0.25
	jumpCapFraction = 0.05
	bounceFraction  = 0.01
)

// Shock is the random input of one bucket: a standard normal Z and a
// uniform U used for the floor bounce.
type Shock struct {
	Z float64
	U float64
}

// BucketStart floors t to its five minute bucket.
func BucketStart(t time.Time) time.Time {
	secs := t.Unix()
	size := int64(BucketSize / time.Second)
	return time.Unix(secs-mod(secs, size), 0).UTC()
}

// ShockAt derives the shock for traderId in the bucket containing t. The
// seed is FNV-1a 64 over the trader id followed by the bucket's unix seconds.
func ShockAt(traderId string, t time.Time) Shock {
	h := fnv.New64a()
	_, _ = h.Write([]byte(traderId))
	_, _ = h.Write([]byte(strconv.FormatInt(BucketStart(t).Unix(), 10)))
	seed := h.Sum64()

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	u1 := 1 - r.Float64() // (0, 1], keeps the log finite
	u2 := r.Float64()

	return Shock{
		Z: math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2),
		U: r.Float64(),
	}
}

// Advance moves a position's PnL forward by one bucket. It is a pure
// function of its inputs, and any now within the same bucket gives the
// same result.
func Advance(allocation, currentPnl float64, p Params, startedAt time.Time, traderId string, now time.Time, momentum float64) (newPnl, newMomentum float64) {
	bucket := BucketStart(now)
	days := bucket.Sub(startedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return step(allocation, currentPnl, p, days, momentum, ShockAt(traderId, bucket))
}

func step(allocation, pnl float64, p Params, days, momentum float64, s Shock) (float64, float64) {
	value := allocation + pnl
	sqrtDt := math.Sqrt(dt)

	newMomentum := clamp(momentumDecay*momentum+momentumNudge*s.Z, -1, 1)

	expected := allocation * (math.Pow(1+p.TargetMonthlyRoi/100, days/30) - 1)

	drift := p.DailyDrift * value * dt
	vol := p.DailyVolatility * value * sqrtDt * s.Z
	reversion := meanReversion * dt * (pnl - expected)
	tilt := momentumTilt * newMomentum * p.DailyVolatility * value * sqrtDt

	jumpCap := jumpCapFraction * allocation
	change := clamp(drift+vol+reversion+tilt, -jumpCap, jumpCap)

	next := pnl + change
	if next < p.MaxDrawdownUsdt {
		next = p.MaxDrawdownUsdt + s.U*bounceFraction*allocation
	}
	return next, newMomentum
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
