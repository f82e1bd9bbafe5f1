package main

import (
	"context"
	"flag"
	"fmt"

	"wallet-ledger-go/internal/api"
	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email (required)")
	assetFlag := flag.String("asset", "", "Asset symbol, e.g. USDT (required)")
	amountFlag := flag.String("amount", "", "Amount to credit (required)")
	referenceFlag := flag.String("reference", "", "External reference; resubmitting it is rejected")
	operatorFlag := flag.String("operator", "", "Operator id recorded on the transaction (required)")
	noteFlag := flag.String("note", "", "Free-form note")
	flag.Parse()

	if *emailFlag == "" || *assetFlag == "" || *amountFlag == "" || *operatorFlag == "" {
		zap.L().Fatal("Flags --email, --asset, --amount and --operator are required")
	}
	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount format", zap.String("amount", *amountFlag), zap.Error(err))
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

	user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
	}

	result, err := api.ProcessDeposit(ctx, services.Ledger, services.DbService, models.DepositRequest{
		UserId:     user.Id,
		Asset:      *assetFlag,
		Amount:     amount,
		Reference:  *referenceFlag,
		ReviewerId: *operatorFlag,
		Note:       *noteFlag,
	})
	if err != nil {
		zap.L().Fatal("Deposit failed", zap.Error(err))
	}

	common.PrintHeader("DEPOSIT CREDITED", common.DefaultWidth)
	common.PrintField("User", fmt.Sprintf("%s (%s)", user.Name, user.Email))
	common.PrintField("Transaction", result.Transaction.Id)
	common.PrintField("Amount", fmt.Sprintf("%s %s", result.Transaction.Amount.String(), result.Transaction.Asset))
	common.PrintField("New balance", fmt.Sprintf("%s (available %s)", result.Balance.Balance.String(), result.Balance.Available.String()))
	common.PrintSeparator("=", common.DefaultWidth)
}
