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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Ledger.
var _ store.Ledger = (*Service)(nil)

type balanceMutation func(b *models.Balance) error

func (s *Service) Credit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	return s.applyPrimitive(ctx, models.OperationCredit, userId, asset, amount, func(b *models.Balance) error {
		b.Balance = b.Balance.Add(amount)
		return nil
	})
}

func (s *Service) Debit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	return s.applyPrimitive(ctx, models.OperationDebit, userId, asset, amount, func(b *models.Balance) error {
		if b.Available().LessThan(amount) {
			return &store.InsufficientBalanceError{Asset: b.Asset, Available: b.Available(), Requested: amount}
		}
		b.Balance = b.Balance.Sub(amount)
		return nil
	})
}

func (s *Service) Lock(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	return s.applyPrimitive(ctx, models.OperationLock, userId, asset, amount, func(b *models.Balance) error {
		if b.Available().LessThan(amount) {
			return &store.InsufficientBalanceError{Asset: b.Asset, Available: b.Available(), Requested: amount}
		}
		b.LockedBalance = b.LockedBalance.Add(amount)
		return nil
	})
}

// Unlock releases locked funds back to available, or burns them when deduct is set.
func (s *Service) Unlock(ctx context.Context, userId, asset string, amount decimal.Decimal, deduct bool) (*models.Balance, error) {
	op := models.OperationUnlockRelease
	if deduct {
		op = models.OperationUnlockDeduct
	}
	return s.applyPrimitive(ctx, op, userId, asset, amount, func(b *models.Balance) error {
		if amount.GreaterThan(b.LockedBalance) {
			return fmt.Errorf("%w: unlock %s exceeds locked %s", store.ErrInvalidState, amount.String(), b.LockedBalance.String())
		}
		b.LockedBalance = b.LockedBalance.Sub(amount)
		if deduct {
			b.Balance = b.Balance.Sub(amount)
		}
		return nil
	})
}

// GetBalance returns the balance row, or a zero balance when none exists yet.
func (s *Service) GetBalance(ctx context.Context, userId, asset string) (*models.Balance, error) {
	asset = models.NormalizeAsset(asset)
	bal, err := scanBalance(s.db.QueryRowContext(ctx, s.q(queryGetBalanceRow), userId, asset))
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Balance{UserId: userId, Asset: asset}, nil
	}
	if err != nil {
		zap.L().Error("Failed to query balance", zap.String("user_id", userId), zap.String("asset", asset), zap.Error(err))
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

// applyPrimitive retries lost version checks and lock contention; every
// other failure is returned as is.
func (s *Service) applyPrimitive(ctx context.Context, op, userId, asset string, amount decimal.Decimal, mutate balanceMutation) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be positive, got %s", store.ErrInvalidAmount, op, amount.String())
	}
	asset = models.NormalizeAsset(asset)

	reference := models.LedgerReference(ctx)

	var bal *models.Balance
	err := s.withRetry(ctx, op, func() error {
		var err error
		bal, err = s.applyPrimitiveOnce(ctx, op, userId, asset, amount, reference, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Ledger primitive applied",
		zap.String("operation", op),
		zap.String("user_id", userId),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("balance", bal.Balance.String()),
		zap.String("locked_balance", bal.LockedBalance.String()),
		zap.String("reference", reference))
	return bal, nil
}

func (s *Service) applyPrimitiveOnce(ctx context.Context, op, userId, asset string, amount decimal.Decimal, reference string, mutate balanceMutation) (*models.Balance, error) {
	var result *models.Balance

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		if reference != "" {
			var existingId string
			err := tx.QueryRowContext(ctx, s.q(queryCheckJournalReference), reference).Scan(&existingId)
			if err == nil {
				return fmt.Errorf("%w: reference %s already applied", store.ErrDuplicateTransaction, reference)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to check journal reference: %w", err)
			}
		}

		bal, err := s.lockBalanceRow(ctx, tx, userId, asset, now)
		if err != nil {
			return err
		}
		before := *bal

		if err := mutate(bal); err != nil {
			return err
		}
		if !bal.Valid() {
			return fmt.Errorf("%w: %s would leave balance=%s locked=%s",
				store.ErrInvalidState, op, bal.Balance.String(), bal.LockedBalance.String())
		}

		// Update balance (with optimistic locking)
		res, err := tx.ExecContext(ctx, s.q(queryUpdateBalanceRow),
			bal.Balance.String(), bal.LockedBalance.String(), now, userId, asset, before.Version)
		if err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
		}

		_, err = tx.ExecContext(ctx, s.q(queryInsertJournalEntry),
			uuid.New().String(), userId, asset, op, amount.String(),
			before.Balance.String(), bal.Balance.String(),
			before.LockedBalance.String(), bal.LockedBalance.String(),
			nullString(reference), now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: reference %s already applied", store.ErrDuplicateTransaction, reference)
			}
			return fmt.Errorf("failed to add journal entry: %w", err)
		}

		bal.Version = before.Version + 1
		bal.UpdatedAt = now
		result = bal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockBalanceRow reads the balance row for update, creating it at zero first
// if the user has never held the asset.
func (s *Service) lockBalanceRow(ctx context.Context, tx *sql.Tx, userId, asset string, now time.Time) (*models.Balance, error) {
	query := s.q(s.dialect.forUpdate(queryGetBalanceRow))

	bal, err := scanBalance(tx.QueryRowContext(ctx, query, userId, asset))
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.q(queryInsertBalanceRow), userId, asset, now); err != nil {
		return nil, fmt.Errorf("failed to create balance row: %w", err)
	}

	bal, err = scanBalance(tx.QueryRowContext(ctx, query, userId, asset))
	if err != nil {
		return nil, fmt.Errorf("failed to read created balance row: %w", err)
	}
	return bal, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (*models.Balance, error) {
	var (
		bal                 models.Balance
		balanceStr, lockStr string
	)
	if err := row.Scan(&bal.UserId, &bal.Asset, &balanceStr, &lockStr, &bal.Version, &bal.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	bal.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	bal.LockedBalance, err = decimal.NewFromString(lockStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse locked balance '%s': %w", lockStr, err)
	}
	return &bal, nil
}
