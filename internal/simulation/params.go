// Package simulation evolves copy-position PnL as a bounded random walk.
// Every copier of a trader sees the same shock in a given five minute
// bucket, and the walk is fully replayable from trader id and time.
package simulation

import (
	"math"
	"strings"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Daily standard deviation by trader risk level.
var volatilityByRisk = map[string]float64{
	models.RiskLow:    0.008,
	models.RiskMedium: 0.015,
	models.RiskHigh:   0.025,
}

// Params are derived from the trader and never persisted.
type Params struct {
	TargetMonthlyRoi float64 // percent
	DailyDrift       float64
	DailyVolatility  float64
	// MaxDrawdownUsdt is the PnL floor, zero or negative.
	MaxDrawdownUsdt float64
}

// ParamsFor derives the walk parameters for one allocation to trader.
// Unknown risk levels are treated as medium.
func ParamsFor(trader models.Trader, allocation decimal.Decimal) Params {
	monthly := MonthlyRoiTarget(trader)

	vol, ok := volatilityByRisk[strings.ToLower(trader.RiskLevel)]
	if !ok {
		vol = volatilityByRisk[models.RiskMedium]
	}

	drawdown := trader.MaxDrawdown.InexactFloat64()
	drawdown = math.Max(0, math.Min(1, drawdown))

	return Params{
		TargetMonthlyRoi: monthly,
		DailyDrift:       math.Pow(1+monthly/100, 1.0/30) - 1,
		DailyVolatility:  vol,
		MaxDrawdownUsdt:  -allocation.InexactFloat64() * drawdown,
	}
}

// MonthlyRoiTarget is the midpoint of the trader's historical ROI band.
func MonthlyRoiTarget(trader models.Trader) float64 {
	return trader.HistoricalRoiMin.Add(trader.HistoricalRoiMax).Div(decimal.NewFromInt(2)).InexactFloat64()
}
