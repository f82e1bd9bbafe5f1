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
	"time"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type options struct {
	list      string
	olderThan time.Duration

	email       string
	asset       string
	amount      string
	destination string

	approve  string
	reject   string
	execute  string
	complete string
	fail     string

	reviewer       string
	processingType string
	reason         string
	txHash         string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.list, "list", "", "List requests in this status (pending, admin_approved, processing, ...)")
	flag.DurationVar(&o.olderThan, "older-than", 0, "With --list, only requests not updated for this long")

	flag.StringVar(&o.email, "email", "", "Create: user email")
	flag.StringVar(&o.asset, "asset", "", "Create: asset symbol, e.g. USDT")
	flag.StringVar(&o.amount, "amount", "", "Create: amount to withdraw")
	flag.StringVar(&o.destination, "destination", "", "Create: destination address")

	flag.StringVar(&o.approve, "approve", "", "Approve the request with this id")
	flag.StringVar(&o.reject, "reject", "", "Reject the request with this id (needs --reason)")
	flag.StringVar(&o.execute, "execute", "", "Execute the approved request with this id")
	flag.StringVar(&o.complete, "complete", "", "Record an off-system payout for this id (needs --tx-hash)")
	flag.StringVar(&o.fail, "fail", "", "Fail the processing request with this id (needs --reason)")

	flag.StringVar(&o.reviewer, "reviewer", "", "Reviewer id recorded on admin actions")
	flag.StringVar(&o.processingType, "type", "", "With --approve: internal, gateway or manual")
	flag.StringVar(&o.reason, "reason", "", "Rejection or failure reason")
	flag.StringVar(&o.txHash, "tx-hash", "", "With --complete: payout transaction hash")
	flag.Parse()
	return o
}

func printRequest(req *models.WithdrawalRequest) {
	common.PrintHeader("WITHDRAWAL "+req.Id, common.DefaultWidth)
	common.PrintField("User", req.UserId)
	common.PrintField("Amount", fmt.Sprintf("%s %s (%s)", req.Amount.String(), req.Asset, req.Network))
	common.PrintField("Destination", req.ToAddress)
	common.PrintField("Status", req.Status)
	if req.IsInternalTransfer {
		common.PrintField("Internal to", req.RecipientUserId)
	}
	if req.ProcessingType != "" {
		common.PrintField("Processing", req.ProcessingType)
	}
	if req.TxHash != "" {
		common.PrintField("Tx hash", fmt.Sprintf("%s (fee %s)", req.TxHash, req.Fee.String()))
	}
	if req.FailureReason != "" {
		common.PrintField("Reason", req.FailureReason)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func listRequests(ctx context.Context, services *common.Services, status string, olderThan time.Duration) {
	requests, err := services.DbService.ListWithdrawalsByStatus(ctx, status, time.Now().UTC().Add(-olderThan))
	if err != nil {
		zap.L().Fatal("Failed to list withdrawals", zap.String("status", status), zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("WITHDRAWALS: %s (%d)", status, len(requests)), common.WideWidth)
	for i, req := range requests {
		fmt.Printf("%s %s  %12s %-6s → %s  updated %s\n",
			common.BoxPrefix(i == len(requests)-1),
			req.Id, req.Amount.String(), req.Asset, req.ToAddress,
			req.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	common.PrintSeparator("=", common.WideWidth)
}

func createRequest(ctx context.Context, services *common.Services, o options) (*models.WithdrawalRequest, error) {
	amount, err := decimal.NewFromString(o.amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	user, err := services.DbService.GetUserByEmail(ctx, o.email)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	quote, err := services.Withdrawals.Quote(ctx, o.asset, o.destination, amount)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Withdrawal quote",
		zap.String("fee", quote.Fee.String()),
		zap.String("fee_currency", quote.FeeCurrency),
		zap.Bool("internal", quote.IsInternalTransfer),
		zap.Bool("estimated", quote.Estimated))

	return services.Withdrawals.Create(ctx, user.Id, o.asset, amount, o.destination)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	o := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var req *models.WithdrawalRequest
	switch {
	case o.list != "":
		listRequests(ctx, services, o.list, o.olderThan)
		return
	case o.approve != "":
		req, err = services.Withdrawals.Approve(ctx, o.approve, o.reviewer, o.processingType)
	case o.reject != "":
		req, err = services.Withdrawals.Reject(ctx, o.reject, o.reviewer, o.reason)
	case o.execute != "":
		req, err = services.Withdrawals.Execute(ctx, o.execute)
	case o.complete != "":
		req, err = services.Withdrawals.CompletePayout(ctx, o.complete, o.reviewer, o.txHash)
	case o.fail != "":
		req, err = services.Withdrawals.FailPayout(ctx, o.fail, o.reviewer, o.reason)
	case o.email != "" && o.asset != "" && o.amount != "" && o.destination != "":
		req, err = createRequest(ctx, services, o)
	default:
		flag.Usage()
		return
	}

	if err != nil {
		zap.L().Fatal("Withdrawal command failed", zap.Error(err))
	}
	printRequest(req)
}
