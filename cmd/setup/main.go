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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"

	"go.uber.org/zap"
)

// seedTraders upserts the trader catalogue. The upsert leaves live copier
// counters untouched, so re-running setup only changes trader profiles.
func seedTraders(ctx context.Context, services *common.Services, file string) (int, error) {
	traders, err := common.LoadTraders(file)
	if err != nil {
		return 0, err
	}

	for i := range traders {
		trader := &traders[i]
		if err := services.DbService.UpsertTrader(ctx, trader); err != nil {
			return i, fmt.Errorf("failed to upsert trader %s: %w", trader.Id, err)
		}
		zap.L().Info("Trader seeded",
			zap.String("id", trader.Id),
			zap.String("name", trader.Name),
			zap.Int("max_copiers", trader.MaxCopiers),
			zap.String("risk_level", trader.RiskLevel))
	}
	return len(traders), nil
}

func generateAddresses(ctx context.Context, services *common.Services) {
	users, err := services.DbService.GetUsers(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read users from database", zap.Error(err))
	}

	var totalAddresses int
	var failedAssets []string
	for _, user := range users {
		zap.L().Info("Processing user",
			zap.String("id", user.Id),
			zap.String("name", user.Name),
			zap.String("email", user.Email))

		created, failed, err := services.ProvisionAddresses(ctx, user)
		if err != nil {
			zap.L().Fatal("Address generation unavailable", zap.Error(err))
		}
		totalAddresses += created
		for _, asset := range failed {
			failedAssets = append(failedAssets, fmt.Sprintf("%s/%s", user.Name, asset))
		}
	}

	if len(failedAssets) > 0 {
		zap.L().Warn("Address generation completed with some failures",
			zap.Int("total_addresses_created", totalAddresses),
			zap.Int("failed_addresses", len(failedAssets)),
			zap.Strings("failed_user_assets", failedAssets))
	} else {
		zap.L().Info("Address generation completed successfully",
			zap.Int("total_addresses_created", totalAddresses))
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	addressesFlag := flag.Bool("addresses", false, "Also generate missing Prime deposit addresses for every user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database applies the schema.
	zap.L().Info("Initializing database", zap.String("driver", cfg.Database.Driver))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	count, err := seedTraders(ctx, services, cfg.TraderFile)
	if err != nil {
		zap.L().Fatal("Failed to seed traders", zap.String("file", cfg.TraderFile), zap.Error(err))
	}

	missing, err := services.VerifyPrimeWallets(ctx)
	if err != nil {
		zap.L().Error("Failed to verify Prime wallets", zap.Error(err))
	}

	if *addressesFlag {
		generateAddresses(ctx, services)
	}

	common.PrintHeader("SETUP COMPLETE", common.DefaultWidth)
	common.PrintField("Database", cfg.Database.Driver)
	common.PrintField("Ledger backend", cfg.Ledger.Backend)
	common.PrintField("Traders seeded", count)
	common.PrintField("Assets loaded", len(services.Assets))
	if len(missing) > 0 {
		common.PrintField("Missing wallets", strings.Join(missing, ", "))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
