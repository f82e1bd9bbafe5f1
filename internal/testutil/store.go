// Package testutil builds the SQLite-backed store shared by the service
// package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewStore opens a fresh database in a temp dir. A single connection makes
// concurrent callers serialize at the database, the same way row locks do
// on Postgres.
func NewStore(t *testing.T) *database.Service {
	t.Helper()

	undo := zap.ReplaceGlobals(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))
	t.Cleanup(undo)

	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

// Fund credits amount of asset to userId or fails the test.
func Fund(t *testing.T, svc *database.Service, userId, asset, amount string) {
	t.Helper()
	if _, err := svc.Credit(context.Background(), userId, asset, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("Failed to fund %s with %s %s: %v", userId, amount, asset, err)
	}
}

// SeedTrader stores a trader with the given capacity and ROI band.
func SeedTrader(t *testing.T, svc *database.Service, id string, maxCopiers int, risk, roiMin, roiMax, maxDrawdown string) *models.Trader {
	t.Helper()
	trader := &models.Trader{
		Id:               id,
		Name:             "Trader " + id,
		MaxCopiers:       maxCopiers,
		AumUsdt:          decimal.Zero,
		RiskLevel:        risk,
		HistoricalRoiMin: decimal.RequireFromString(roiMin),
		HistoricalRoiMax: decimal.RequireFromString(roiMax),
		MaxDrawdown:      decimal.RequireFromString(maxDrawdown),
	}
	if err := svc.UpsertTrader(context.Background(), trader); err != nil {
		t.Fatalf("Failed to seed trader %s: %v", id, err)
	}
	return trader
}

// Balance reads the balance row or fails the test.
func Balance(t *testing.T, svc *database.Service, userId, asset string) *models.Balance {
	t.Helper()
	bal, err := svc.GetBalance(context.Background(), userId, asset)
	if err != nil {
		t.Fatalf("Failed to read balance for %s: %v", userId, err)
	}
	return bal
}
