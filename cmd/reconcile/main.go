package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/models"

	"go.uber.org/zap"
)

func printActions(actions []models.LedgerAction) {
	if len(actions) == 0 {
		fmt.Println("No pending or failed ledger actions")
		return
	}
	for i, a := range actions {
		prefix := common.BoxPrefix(i == len(actions)-1)
		fmt.Printf("%s %s  %-8s %-8s %s %s %s (attempts %d)\n",
			prefix, a.Id, a.Status, a.Kind, a.UserId, a.Amount.String(), a.Asset, a.Attempts)
		detail := common.BoxDetailPrefix(i == len(actions)-1)
		fmt.Printf("%s   reason: %s\n", detail, a.Reason)
		if a.LastError != "" {
			fmt.Printf("%s   last error: %s\n", detail, a.LastError)
		}
	}
}

func printDiscrepancies(found []ledger.Discrepancy, checked int) {
	if len(found) == 0 {
		fmt.Printf("All %d balance rows match their journal\n", checked)
		return
	}
	for i, d := range found {
		prefix := common.BoxPrefix(i == len(found)-1)
		fmt.Printf("%s %s %s: balance %s (journal %s), locked %s (journal %s), %d entries\n",
			prefix, d.UserId, d.Asset,
			d.Balance.String(), d.JournalBalance.String(),
			d.LockedBalance.String(), d.JournalLocked.String(),
			d.Entries)
	}
}

func main() {
	os.Exit(run())
}

// run returns 1 when an operator action fails and 2 when balances drift
// from the journal.
func run() int {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	retryFlag := flag.String("retry", "", "Re-apply the failed ledger action with this id")
	resolveFlag := flag.String("resolve", "", "Mark the failed ledger action with this id resolved")
	noteFlag := flag.String("note", "", "Operator note recorded with --resolve (required with --resolve)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *retryFlag != "":
		if err := services.Ledger.Retry(ctx, *retryFlag); err != nil {
			zap.L().Error("Retry failed", zap.String("action_id", *retryFlag), zap.Error(err))
			return 1
		}
		fmt.Printf("Ledger action %s applied\n", *retryFlag)
		return 0
	case *resolveFlag != "":
		if *noteFlag == "" {
			zap.L().Fatal("--note is required with --resolve")
		}
		if err := services.Ledger.Resolve(ctx, *resolveFlag, *noteFlag); err != nil {
			zap.L().Error("Resolve failed", zap.String("action_id", *resolveFlag), zap.Error(err))
			return 1
		}
		fmt.Printf("Ledger action %s resolved\n", *resolveFlag)
		return 0
	}

	common.PrintHeader("OPEN LEDGER ACTIONS", common.WideWidth)
	open, err := services.Ledger.ListOpen(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list ledger actions", zap.Error(err))
	}
	printActions(open)

	code := 0
	common.PrintHeader("BALANCE VS JOURNAL", common.WideWidth)
	if cfg.Ledger.Backend == "formance" {
		fmt.Println("Skipped: the Formance ledger keeps its own postings and the SQL journal is unused")
	} else {
		found, checked, err := ledger.Reconcile(ctx, services.DbService)
		if err != nil {
			zap.L().Fatal("Reconciliation failed", zap.Error(err))
		}
		printDiscrepancies(found, checked)
		if len(found) > 0 {
			code = 2
		}
	}
	common.PrintSeparator("=", common.WideWidth)
	return code
}
