package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected sqlite3 driver, got %s", cfg.Database.Driver)
	}
	if cfg.Ledger.Backend != "sql" {
		t.Errorf("expected sql ledger backend, got %s", cfg.Ledger.Backend)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Simulator.TickInterval != 5*time.Minute {
		t.Errorf("expected 5m tick interval, got %s", cfg.Simulator.TickInterval)
	}
	if cfg.Simulator.MaxCatchUpTicks != 288 {
		t.Errorf("expected 288 catch-up ticks, got %d", cfg.Simulator.MaxCatchUpTicks)
	}
	if cfg.CopyTrade.ClaimWindow != 24*time.Hour {
		t.Errorf("expected 24h claim window, got %s", cfg.CopyTrade.ClaimWindow)
	}
	if cfg.Prime.Enabled() {
		t.Error("Prime should be disabled without credentials")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_DSN", "postgres://wallet@localhost/wallet?sslmode=disable")
	t.Setenv("SIMULATOR_WORKERS", "3")
	t.Setenv("SIMULATOR_ENABLED", "false")
	t.Setenv("CLAIM_WINDOW", "2h")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Simulator.Workers != 3 || cfg.Simulator.Enabled {
		t.Errorf("unexpected simulator config %+v", cfg.Simulator)
	}
	if cfg.CopyTrade.ClaimWindow != 2*time.Hour {
		t.Errorf("expected 2h claim window, got %s", cfg.CopyTrade.ClaimWindow)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SIMULATOR_TICK_INTERVAL", "five minutes"},
		{"DATABASE_DRIVER", "mysql"},
		{"LEDGER_BACKEND", "spreadsheet"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
