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

// Package ledger is the balance API the domain services use. It validates
// inputs before touching the primitives, translates backend failures into
// the shared error taxonomy, and owns the outbox through which compensations
// and settlements are applied exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BalanceLedger struct {
	primitives store.Ledger
	actions    store.ActionStore
	publisher  events.Publisher
}

func NewBalanceLedger(primitives store.Ledger, actions store.ActionStore, publisher events.Publisher) *BalanceLedger {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &BalanceLedger{
		primitives: primitives,
		actions:    actions,
		publisher:  publisher,
	}
}

// Credit adds amount to the balance.
func (l *BalanceLedger) Credit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	asset, err := validate(models.OperationCredit, userId, asset, amount)
	if err != nil {
		return nil, err
	}
	return l.observe(models.OperationCredit, func() (*models.Balance, error) {
		return l.primitives.Credit(ctx, userId, asset, amount)
	})
}

// Debit removes amount from the available balance.
func (l *BalanceLedger) Debit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	asset, err := validate(models.OperationDebit, userId, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := l.requireAvailable(ctx, userId, asset, amount); err != nil {
		return nil, err
	}
	return l.observe(models.OperationDebit, func() (*models.Balance, error) {
		return l.primitives.Debit(ctx, userId, asset, amount)
	})
}

// Lock reserves amount of the available balance.
func (l *BalanceLedger) Lock(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	asset, err := validate(models.OperationLock, userId, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := l.requireAvailable(ctx, userId, asset, amount); err != nil {
		return nil, err
	}
	return l.observe(models.OperationLock, func() (*models.Balance, error) {
		return l.primitives.Lock(ctx, userId, asset, amount)
	})
}

// Unlock releases a reservation, or burns it when deduct is set.
func (l *BalanceLedger) Unlock(ctx context.Context, userId, asset string, amount decimal.Decimal, deduct bool) (*models.Balance, error) {
	op := models.OperationUnlockRelease
	if deduct {
		op = models.OperationUnlockDeduct
	}
	asset, err := validate(op, userId, asset, amount)
	if err != nil {
		return nil, err
	}
	return l.observe(op, func() (*models.Balance, error) {
		return l.primitives.Unlock(ctx, userId, asset, amount, deduct)
	})
}

func (l *BalanceLedger) GetBalance(ctx context.Context, userId, asset string) (*models.Balance, error) {
	if userId == "" || asset == "" {
		return nil, fmt.Errorf("%w: user and asset are required", store.ErrInvalidRequest)
	}
	return l.primitives.GetBalance(ctx, userId, models.NormalizeAsset(asset))
}

// requireAvailable rejects an obviously unaffordable request without opening
// a write transaction. The primitive re-checks atomically.
func (l *BalanceLedger) requireAvailable(ctx context.Context, userId, asset string, amount decimal.Decimal) error {
	bal, err := l.primitives.GetBalance(ctx, userId, asset)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if bal.Available().LessThan(amount) {
		zap.L().Debug("Ledger pre-check rejected request",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("requested", amount.String()),
			zap.String("available", bal.Available().String()))
		return &store.InsufficientBalanceError{Asset: asset, Available: bal.Available(), Requested: amount}
	}
	return nil
}

func (l *BalanceLedger) observe(op string, call func() (*models.Balance, error)) (*models.Balance, error) {
	start := time.Now()
	bal, err := call()
	metrics.LedgerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.LedgerOperations.WithLabelValues(op, resultLabel(err)).Inc()
	return bal, err
}

func validate(op, userId, asset string, amount decimal.Decimal) (string, error) {
	if userId == "" || asset == "" {
		return "", fmt.Errorf("%w: user and asset are required", store.ErrInvalidRequest)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: %s amount must be positive, got %s", store.ErrInvalidAmount, op, amount.String())
	}
	return models.NormalizeAsset(asset), nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, store.ErrDuplicateTransaction):
		return "duplicate"
	case errors.Is(err, store.ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}
