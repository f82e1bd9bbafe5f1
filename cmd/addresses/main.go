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
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

type reportStats struct {
	totalUsers         int
	totalAddresses     int
	usersWithAddresses int
}

func printUserHeader(account common.Account, addressCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", account.Name, account.Email)
	fmt.Printf("│  ID: %s\n", account.Id)
	fmt.Printf("│  Addresses: %d\n", addressCount)
	common.PrintBoxSeparator(common.WideWidth - 2)
}

func printAddress(addr models.Address, isLast bool) {
	assetNetwork := fmt.Sprintf("%s-%s", addr.Asset, addr.Network)
	fmt.Printf("%s %-30s → %s\n", common.BoxPrefix(isLast), assetNetwork, addr.Address)
	fmt.Printf("%s   Registered: %s\n", common.BoxDetailPrefix(isLast), addr.CreatedAt.Format("2006-01-02 15:04:05"))
}

func processUser(ctx context.Context, account common.Account, users store.UserStore) (int, error) {
	addresses, err := users.GetAllUserAddresses(ctx, account.Id)
	if err != nil {
		return 0, fmt.Errorf("failed to get addresses: %w", err)
	}
	if len(addresses) == 0 {
		return 0, nil
	}

	printUserHeader(account, len(addresses))
	for i, addr := range addresses {
		printAddress(addr, i == len(addresses)-1)
	}
	return len(addresses), nil
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

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accounts, err := common.LoadAccounts(ctx, dbService, nil, common.AccountFilter{UserId: *userFlag, Email: *emailFlag})
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("DEPOSIT ADDRESSES REPORT", common.WideWidth)

	stats := reportStats{}
	for _, account := range accounts {
		stats.totalUsers++
		count, err := processUser(ctx, account, dbService)
		if err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", account.Id),
				zap.String("user_name", account.Name),
				zap.Error(err))
			continue
		}
		if count > 0 {
			stats.usersWithAddresses++
			stats.totalAddresses += count
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d users with addresses (%d total addresses across %d users queried)",
		stats.usersWithAddresses, stats.totalAddresses, stats.totalUsers)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Address query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_addresses", stats.usersWithAddresses),
		zap.Int("total_addresses", stats.totalAddresses))
}
