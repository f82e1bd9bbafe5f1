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

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	totalBalances     int
	usersWithBalances int
}

func printBalance(balance models.Balance, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-8s: %20s  locked %16s  available %16s (v%d, updated: %s)\n",
		symbol,
		balance.Asset,
		balance.Balance.String(),
		balance.LockedBalance.String(),
		balance.Available().String(),
		balance.Version,
		balance.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printUserHeader(account common.Account, balanceCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", account.Name, account.Email)
	fmt.Printf("│  ID: %s\n", account.Id)
	fmt.Printf("│  Assets: %d  Copy positions: %d\n", balanceCount, len(account.Positions))
	common.PrintBoxSeparator(common.WideWidth - 2)
}

func printPosition(pos models.CopyPosition, isLast bool) {
	fmt.Printf("%s copy %-20s allocation %12s  pnl %12s  payout %12s (since %s)\n",
		common.BoxPrefix(isLast),
		pos.TraderId,
		pos.AllocationUsdt.String(),
		pos.CurrentPnl.String(),
		pos.Payout().String(),
		pos.StartedAt.Format("2006-01-02 15:04"))
}

// balanceSource lists one user's balances.
type balanceSource func(ctx context.Context, userId string) ([]models.Balance, error)

// formanceBalances reads every configured asset from the Formance accounts,
// which hold the balances when LEDGER_BACKEND=formance.
func formanceBalances(ledger store.Ledger, assets models.AssetRegistry) balanceSource {
	return func(ctx context.Context, userId string) ([]models.Balance, error) {
		var balances []models.Balance
		for _, asset := range assets {
			bal, err := ledger.GetBalance(ctx, userId, asset.Symbol)
			if err != nil {
				return nil, err
			}
			if !bal.Balance.IsZero() {
				balances = append(balances, *bal)
			}
		}
		return balances, nil
	}
}

func processUser(ctx context.Context, account common.Account, source balanceSource) (int, error) {
	balances, err := source(ctx, account.Id)
	if err != nil {
		return 0, fmt.Errorf("failed to get balances: %w", err)
	}
	if len(balances) == 0 && len(account.Positions) == 0 {
		return 0, nil
	}

	printUserHeader(account, len(balances))
	for i, balance := range balances {
		printBalance(balance, i == len(balances)-1 && len(account.Positions) == 0)
	}
	for i, pos := range account.Positions {
		printPosition(pos, i == len(account.Positions)-1)
	}
	return len(balances), nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	userFlag := flag.String("user", "", "Filter by user id (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	var dbService *database.Service
	var source balanceSource
	if cfg.Ledger.Backend == "formance" {
		services, err := common.InitializeServices(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to initialize services", zap.Error(err))
		}
		defer services.Close()
		dbService = services.DbService
		source = formanceBalances(services.Primitives, services.Assets)
	} else {
		// Read-only report, so only the database is opened.
		dbService, err = common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer dbService.Close()
		source = dbService.GetAllUserBalances
	}

	accounts, err := common.LoadAccounts(ctx, dbService, dbService, common.AccountFilter{UserId: *userFlag, Email: *emailFlag})
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("USER BALANCE REPORT", common.WideWidth)

	stats := balanceStats{}
	for _, account := range accounts {
		stats.totalUsers++
		count, err := processUser(ctx, account, source)
		if err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", account.Id),
				zap.String("user_name", account.Name),
				zap.Error(err))
			continue
		}
		if count > 0 {
			stats.usersWithBalances++
			stats.totalBalances += count
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d users with balances (%d total balances across %d users queried)",
		stats.usersWithBalances, stats.totalBalances, stats.totalUsers)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("total_balances", stats.totalBalances))
}
