/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"
)

// Load reads the configuration from the environment. Durations use Go
// syntax ("5m", "24h").
func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	tickInterval, err := getEnvDuration("SIMULATOR_TICK_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	lockTTL, err := getEnvDuration("SIMULATOR_LOCK_TTL", 4*time.Minute)
	if err != nil {
		return nil, err
	}

	claimWindow, err := getEnvDuration("CLAIM_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	claimExpiryInterval, err := getEnvDuration("CLAIM_EXPIRY_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite3"))
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want sqlite3 or postgres", driver)
	}
	backend := strings.ToLower(getEnvString("LEDGER_BACKEND", "sql"))
	if backend != "sql" && backend != "formance" {
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q: want sql or formance", backend)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Driver:          driver,
			Path:            getEnvString("DATABASE_PATH", "wallet.db"),
			DSN:             getEnvString("DATABASE_DSN", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Ledger: models.LedgerConfig{
			Backend:    backend,
			MaxRetries: getEnvInt("LEDGER_MAX_RETRIES", 5),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "wallet-ledger"),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ShutdownTimeout: shutdownTimeout,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
		},
		Simulator: models.SimulatorConfig{
			Enabled:         getEnvBool("SIMULATOR_ENABLED", true),
			TickInterval:    tickInterval,
			MaxCatchUpTicks: getEnvInt("SIMULATOR_MAX_CATCHUP_TICKS", 288),
			Workers:         getEnvInt("SIMULATOR_WORKERS", 8),
			LockTTL:         lockTTL,
		},
		CopyTrade: models.CopyTradeConfig{
			ClaimWindow:         claimWindow,
			ClaimExpiryInterval: claimExpiryInterval,
		},
		Redis: models.RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Nats: models.NatsConfig{
			URL:    getEnvString("NATS_URL", ""),
			Stream: getEnvString("NATS_STREAM", "WALLET_EVENTS"),
		},
		Prime: models.PrimeConfig{
			AccessKey:   getEnvString("PRIME_ACCESS_KEY", ""),
			Passphrase:  getEnvString("PRIME_PASSPHRASE", ""),
			SigningKey:  getEnvString("PRIME_SIGNING_KEY", ""),
			PortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
		},
		AssetsFile: getEnvString("ASSETS_FILE", "assets.yaml"),
		TraderFile: getEnvString("TRADERS_FILE", "traders.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
