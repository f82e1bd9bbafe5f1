package ledger

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Discrepancy is a balance row that its journal does not explain.
type Discrepancy struct {
	UserId         string
	Asset          string
	Balance        decimal.Decimal
	LockedBalance  decimal.Decimal
	JournalBalance decimal.Decimal
	JournalLocked  decimal.Decimal
	Entries        int
}

// Replay sums the journal into the balance and locked amount it implies.
func Replay(entries []models.JournalEntry) (decimal.Decimal, decimal.Decimal, error) {
	balance, locked := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Operation {
		case models.OperationCredit:
			balance = balance.Add(e.Amount)
		case models.OperationDebit:
			balance = balance.Sub(e.Amount)
		case models.OperationLock:
			locked = locked.Add(e.Amount)
		case models.OperationUnlockRelease:
			locked = locked.Sub(e.Amount)
		case models.OperationUnlockDeduct:
			balance = balance.Sub(e.Amount)
			locked = locked.Sub(e.Amount)
		default:
			return decimal.Zero, decimal.Zero, fmt.Errorf("journal entry %s has unknown operation %q", e.Id, e.Operation)
		}
	}
	return balance, locked, nil
}

// Reconcile replays every balance row's journal and reports the rows that
// disagree with it.
func Reconcile(ctx context.Context, rs store.ReconcileStore) ([]Discrepancy, int, error) {
	balances, err := rs.ListBalances(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list balances: %w", err)
	}

	var found []Discrepancy
	for _, bal := range balances {
		entries, err := rs.GetJournal(ctx, bal.UserId, bal.Asset)
		if err != nil {
			return nil, 0, err
		}
		journalBalance, journalLocked, err := Replay(entries)
		if err != nil {
			return nil, 0, err
		}
		if journalBalance.Equal(bal.Balance) && journalLocked.Equal(bal.LockedBalance) {
			continue
		}

		zap.L().Error("CRITICAL: balance does not match journal",
			zap.String("user_id", bal.UserId),
			zap.String("asset", bal.Asset),
			zap.String("balance", bal.Balance.String()),
			zap.String("journal_balance", journalBalance.String()),
			zap.String("locked_balance", bal.LockedBalance.String()),
			zap.String("journal_locked", journalLocked.String()))
		found = append(found, Discrepancy{
			UserId:         bal.UserId,
			Asset:          bal.Asset,
			Balance:        bal.Balance,
			LockedBalance:  bal.LockedBalance,
			JournalBalance: journalBalance,
			JournalLocked:  journalLocked,
			Entries:        len(entries),
		})
	}
	return found, len(balances), nil
}
