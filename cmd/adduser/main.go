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
	"errors"
	"flag"
	"fmt"
	"regexp"
	"strings"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	userId := uuid.New().String()
	user, err := services.DbService.CreateUser(ctx, userId, *nameFlag, *emailFlag)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRequest) {
			zap.L().Fatal("User already exists", zap.String("email", *emailFlag), zap.Error(err))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	common.PrintField("ID", user.Id)
	common.PrintField("Name", user.Name)
	common.PrintField("Email", user.Email)
	common.PrintSeparator("=", common.DefaultWidth)

	zap.L().Info("User created successfully", zap.String("id", user.Id))

	if services.Prime == nil {
		fmt.Println("Prime credentials not set; no deposit addresses generated")
		fmt.Println("Configure Prime and run: go run ./cmd/setup --addresses")
		return
	}

	created, failed, err := services.ProvisionAddresses(ctx, *user)
	if err != nil {
		zap.L().Fatal("Failed to generate deposit addresses", zap.Error(err))
	}

	addresses, err := services.DbService.GetAllUserAddresses(ctx, user.Id)
	if err != nil {
		zap.L().Error("Failed to read back addresses", zap.Error(err))
	}
	common.PrintHeader("DEPOSIT ADDRESSES", common.DefaultWidth)
	for i, addr := range addresses {
		fmt.Printf("%s %-30s → %s\n", common.BoxPrefix(i == len(addresses)-1), addr.Asset+"-"+addr.Network, addr.Address)
	}
	fmt.Printf("\nCreated: %d   Failed: %d\n", created, len(failed))
	if len(failed) > 0 {
		common.PrintField("Failed assets", strings.Join(failed, ", "))
		fmt.Println("You can re-run setup to retry: go run ./cmd/setup --addresses")
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
