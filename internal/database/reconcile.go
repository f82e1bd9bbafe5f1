package database

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) ListBalances(ctx context.Context) ([]models.Balance, error) {
	return s.queryBalances(ctx, queryListBalances)
}

func (s *Service) GetAllUserBalances(ctx context.Context, userId string) ([]models.Balance, error) {
	zap.L().Debug("Querying all balances for user", zap.String("user_id", userId))
	return s.queryBalances(ctx, queryGetAllUserBalances, userId)
}

func (s *Service) queryBalances(ctx context.Context, query string, args ...any) ([]models.Balance, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		zap.L().Error("Failed to query balances", zap.Error(err))
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer closeRows(rows)

	var balances []models.Balance
	for rows.Next() {
		bal, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, *bal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

// GetJournal returns every primitive applied to one balance, oldest first.
func (s *Service) GetJournal(ctx context.Context, userId, asset string) ([]models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryGetJournal), userId, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer closeRows(rows)

	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e                                       models.JournalEntry
			amount, balBefore, balAfter, lockBefore string
			lockAfter                               string
		)
		err := rows.Scan(&e.Id, &e.UserId, &e.Asset, &e.Operation, &amount,
			&balBefore, &balAfter, &lockBefore, &lockAfter, &e.Reference, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		fields := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&e.Amount, amount},
			{&e.BalanceBefore, balBefore},
			{&e.BalanceAfter, balAfter},
			{&e.LockedBefore, lockBefore},
			{&e.LockedAfter, lockAfter},
		}
		for _, f := range fields {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("failed to parse journal decimal '%s': %w", f.src, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}
	return entries, nil
}
