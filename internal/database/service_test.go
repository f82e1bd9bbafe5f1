package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	service := newService(db, dialectSQLite)

	// Use the actual schema initialization
	if err := service.initSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func mustCredit(t *testing.T, s *Service, userId, asset, amount string) {
	t.Helper()
	if _, err := s.Credit(context.Background(), userId, asset, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("Credit %s %s to %s failed: %v", amount, asset, userId, err)
	}
}

func TestNewService_FileDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	}

	service, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer service.Close()

	if err := service.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	// Schema creation must be repeatable across restarts.
	if err := service.initSchema(ctx); err != nil {
		t.Fatalf("Second schema init failed: %v", err)
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"no connections", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"no ping timeout", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}},
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"postgres without dsn", models.DatabaseConfig{Driver: "postgres", MaxOpenConns: 1, PingTimeout: time.Second}},
		{"unknown driver", models.DatabaseConfig{Driver: "mysql", MaxOpenConns: 1, PingTimeout: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(ctx, tt.cfg); err == nil {
				t.Errorf("Expected error for %s config", tt.name)
			}
		})
	}
}

func TestUsersAndAddresses(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	user, err := service.CreateUser(ctx, "user1", "Test User", "test@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Id != "user1" || user.Email != "test@example.com" {
		t.Errorf("Unexpected user: %+v", user)
	}

	if _, err := service.CreateUser(ctx, "user2", "Other", "test@example.com"); err == nil {
		t.Errorf("Expected duplicate email to fail")
	}

	addr, err := service.StoreAddress(ctx, store.StoreAddressParams{
		UserId:  "user1",
		Asset:   "usdt",
		Network: "ethereum-mainnet",
		Address: "0xAbC123",
	})
	if err != nil {
		t.Fatalf("StoreAddress failed: %v", err)
	}
	if addr.Asset != "USDT" {
		t.Errorf("Expected asset to be upper-cased, got %s", addr.Asset)
	}

	found, foundAddr, err := service.FindUserByAddress(ctx, "0xabc123", "USDT")
	if err != nil {
		t.Fatalf("FindUserByAddress failed: %v", err)
	}
	if found.Id != "user1" || foundAddr.Id != addr.Id {
		t.Errorf("Expected user1 and address %s, got %s and %s", addr.Id, found.Id, foundAddr.Id)
	}

	if _, _, err := service.FindUserByAddress(ctx, "0xabc123", "BTC"); err == nil {
		t.Errorf("Expected no match for a different asset")
	}

	users, err := service.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(users))
	}
}
