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

// Package copytrading opens and closes copy positions against trader
// capacity, and runs the waitlist through which freed slots are offered.
package copytrading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultClaimWindow = 24 * time.Hour

type Engine struct {
	store       store.CopyTradingStore
	ledger      *ledger.BalanceLedger
	publisher   events.Publisher
	claimWindow time.Duration
	now         func() time.Time
}

func NewEngine(s store.CopyTradingStore, l *ledger.BalanceLedger, publisher events.Publisher, cfg models.CopyTradeConfig) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	window := cfg.ClaimWindow
	if window <= 0 {
		window = defaultClaimWindow
	}
	return &Engine{
		store:       s,
		ledger:      l,
		publisher:   publisher,
		claimWindow: window,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StopResult is a stopped position and what was paid back.
type StopResult struct {
	Position *models.CopyPosition
	Payout   decimal.Decimal
}

// DailyPnlRate is the display estimate stored at open:
// allocation × ((avg ROI / 100) / 30).
func DailyPnlRate(allocation decimal.Decimal, trader models.Trader) decimal.Decimal {
	avg := trader.HistoricalRoiMin.Add(trader.HistoricalRoiMax).Div(decimal.NewFromInt(2))
	return allocation.Mul(avg.Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(30))).Round(8)
}

func (e *Engine) ListTraders(ctx context.Context) ([]models.Trader, error) {
	return e.store.ListTraders(ctx)
}

// StartCopy debits the allocation and opens a position. Capacity is checked
// here for a fast answer and again inside the open transaction.
func (e *Engine) StartCopy(ctx context.Context, userId, traderId string, amount decimal.Decimal) (*models.CopyPosition, error) {
	pos, err := e.startCopy(ctx, userId, traderId, amount)
	metrics.CopyTradeEvents.WithLabelValues("start", resultLabel(err)).Inc()
	return pos, err
}

func (e *Engine) startCopy(ctx context.Context, userId, traderId string, amount decimal.Decimal) (*models.CopyPosition, error) {
	if err := validateStart(userId, traderId, amount); err != nil {
		return nil, err
	}

	trader, err := e.precheck(ctx, userId, traderId)
	if err != nil {
		return nil, err
	}
	return e.open(ctx, userId, trader, amount, "")
}

// JoinWaitlist queues the user for a full trader.
func (e *Engine) JoinWaitlist(ctx context.Context, userId, traderId string) (*models.WaitlistEntry, error) {
	entry, err := e.joinWaitlist(ctx, userId, traderId)
	metrics.CopyTradeEvents.WithLabelValues("waitlist_join", resultLabel(err)).Inc()
	return entry, err
}

func (e *Engine) joinWaitlist(ctx context.Context, userId, traderId string) (*models.WaitlistEntry, error) {
	if userId == "" || traderId == "" {
		return nil, fmt.Errorf("%w: user and trader are required", store.ErrInvalidRequest)
	}

	trader, err := e.store.GetTrader(ctx, traderId)
	if err != nil {
		return nil, err
	}
	if remaining := trader.RemainingCapacity(); remaining > 0 {
		return nil, fmt.Errorf("%w: trader %s has %d open slots, start copying directly",
			store.ErrInvalidRequest, traderId, remaining)
	}
	if err := e.requireNoActivePosition(ctx, userId, traderId); err != nil {
		return nil, err
	}

	now := e.now()
	entry := &models.WaitlistEntry{
		Id:        uuid.New().String(),
		UserId:    userId,
		TraderId:  traderId,
		Status:    models.WaitlistStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.AddToWaitlist(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ClaimWaitlist opens a position with an offered claim token. The token is
// consumed in the same transaction as the open; a token past its window is
// expired and its slot offered to the next user.
func (e *Engine) ClaimWaitlist(ctx context.Context, token string, amount decimal.Decimal) (*models.CopyPosition, error) {
	pos, err := e.claimWaitlist(ctx, token, amount)
	metrics.CopyTradeEvents.WithLabelValues("claim", resultLabel(err)).Inc()
	return pos, err
}

func (e *Engine) claimWaitlist(ctx context.Context, token string, amount decimal.Decimal) (*models.CopyPosition, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: claim token is required", store.ErrInvalidRequest)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: allocation must be positive, got %s", store.ErrInvalidAmount, amount.String())
	}

	entry, err := e.store.GetWaitlistEntryByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.WaitlistStatusNotified {
		return nil, fmt.Errorf("%w: claim is %s", store.ErrInvalidState, entry.Status)
	}

	now := e.now()
	if entry.ClaimExpiresAt == nil || now.After(*entry.ClaimExpiresAt) {
		if err := e.expire(ctx, *entry, now); err != nil {
			zap.L().Warn("Failed to expire claim", zap.String("entry_id", entry.Id), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: claim window closed", store.ErrClaimExpired)
	}

	trader, err := e.precheck(ctx, entry.UserId, entry.TraderId)
	if err != nil {
		return nil, err
	}
	return e.open(ctx, entry.UserId, trader, amount, entry.Id)
}

// StopCopy closes the position and pays back max(0, allocation + pnl).
func (e *Engine) StopCopy(ctx context.Context, userId, positionId string) (*StopResult, error) {
	res, err := e.stopCopy(ctx, userId, positionId)
	metrics.CopyTradeEvents.WithLabelValues("stop", resultLabel(err)).Inc()
	return res, err
}

func (e *Engine) stopCopy(ctx context.Context, userId, positionId string) (*StopResult, error) {
	if userId == "" || positionId == "" {
		return nil, fmt.Errorf("%w: user and position are required", store.ErrInvalidRequest)
	}

	closed, err := e.store.ClosePosition(ctx, store.ClosePositionParams{
		PositionId: positionId,
		UserId:     userId,
		Now:        e.now(),
	})
	if err != nil {
		return nil, err
	}
	pos := closed.Position

	if closed.Payout != nil {
		// The close is committed; from here the payout is owed and must not
		// be lost to a cancelled request.
		ctx = context.WithoutCancel(ctx)
		if err := e.ledger.Apply(ctx, closed.Payout); err != nil {
			return nil, err
		}
		if err := e.store.UpdateTransactionStatus(ctx, closed.Transaction.Id, models.TransactionStatusCompleted, nil); err != nil {
			zap.L().Warn("Failed to complete stop transaction",
				zap.String("transaction_id", closed.Transaction.Id),
				zap.Error(err))
		}
	}

	payout := pos.Payout()
	zap.L().Info("Copy trading stopped",
		zap.String("position_id", pos.Id),
		zap.String("user_id", pos.UserId),
		zap.String("trader_id", pos.TraderId),
		zap.String("final_pnl", pos.CurrentPnl.String()),
		zap.String("payout", payout.String()))

	e.publisher.Publish(ctx, events.Event{
		Type:    events.CopyTradeStopped,
		UserId:  pos.UserId,
		Subject: pos.Id,
		Data: map[string]string{
			"trader_id": pos.TraderId,
			"final_pnl": pos.CurrentPnl.String(),
			"payout":    payout.String(),
		},
	})

	e.offerFreedSlot(ctx, pos.TraderId)
	return &StopResult{Position: pos, Payout: payout}, nil
}

// ExpireClaims expires notified entries past their window and offers each
// slot onward. It returns the number expired.
func (e *Engine) ExpireClaims(ctx context.Context) (int, error) {
	now := e.now()
	entries, err := e.store.ListExpiredClaims(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired claims: %w", err)
	}

	expired := 0
	for _, entry := range entries {
		if err := e.expire(ctx, entry, now); err != nil {
			zap.L().Warn("Failed to expire claim", zap.String("entry_id", entry.Id), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// RunExpiryLoop calls ExpireClaims every interval until ctx is done.
func (e *Engine) RunExpiryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := e.ExpireClaims(ctx); err != nil {
				zap.L().Error("Claim expiry pass failed", zap.Error(err))
			} else if n > 0 {
				zap.L().Info("Expired waitlist claims", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) expire(ctx context.Context, entry models.WaitlistEntry, now time.Time) error {
	if err := e.store.MarkWaitlistExpired(ctx, entry.Id, now); err != nil {
		return err
	}
	metrics.CopyTradeEvents.WithLabelValues("claim_expired", "ok").Inc()
	e.offerFreedSlot(ctx, entry.TraderId)
	return nil
}

// precheck rejects full traders and duplicate positions before any money moves.
func (e *Engine) precheck(ctx context.Context, userId, traderId string) (*models.Trader, error) {
	trader, err := e.store.GetTrader(ctx, traderId)
	if err != nil {
		return nil, err
	}
	if trader.RemainingCapacity() == 0 {
		return nil, &store.CapacityFilledError{TraderId: traderId, Remaining: 0}
	}
	if err := e.requireNoActivePosition(ctx, userId, traderId); err != nil {
		return nil, err
	}
	return trader, nil
}

func (e *Engine) requireNoActivePosition(ctx context.Context, userId, traderId string) error {
	_, err := e.store.GetActivePosition(ctx, userId, traderId)
	switch {
	case err == nil:
		return fmt.Errorf("%w: user %s already copies trader %s", store.ErrDuplicatePosition, userId, traderId)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

// open debits the allocation and commits the position. Any failure after the
// debit credits the allocation back.
func (e *Engine) open(ctx context.Context, userId string, trader *models.Trader, amount decimal.Decimal, claimEntryId string) (*models.CopyPosition, error) {
	now := e.now()
	pos := &models.CopyPosition{
		Id:             uuid.New().String(),
		UserId:         userId,
		TraderId:       trader.Id,
		AllocationUsdt: amount,
		CurrentPnl:     decimal.Zero,
		DailyPnlRate:   DailyPnlRate(amount, *trader),
		Status:         models.PositionStatusActive,
		StartedAt:      now,
		LastTickAt:     now,
	}

	debitCtx := models.WithLedgerReference(ctx, "copy_trade_start:"+pos.Id)
	if _, err := e.ledger.Debit(debitCtx, userId, models.CopyTradeAsset, amount); err != nil {
		return nil, err
	}

	saga := e.ledger.NewSaga("copy_trade_start")
	saga.OnFailure(ledger.Compensation{
		Kind:   models.ActionKindCredit,
		UserId: userId,
		Asset:  models.CopyTradeAsset,
		Amount: amount,
		Reason: "copy_trade_start_failed:" + pos.Id,
	})

	metadata := map[string]string{
		"position_id": pos.Id,
		"trader_id":   trader.Id,
	}
	if claimEntryId != "" {
		metadata["waitlist_entry_id"] = claimEntryId
	}
	record := &models.Transaction{
		Id:          uuid.New().String(),
		UserId:      userId,
		Type:        models.TransactionTypeCopyTradeStart,
		Asset:       models.CopyTradeAsset,
		Amount:      amount,
		Status:      models.TransactionStatusCompleted,
		Metadata:    metadata,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	err := e.store.OpenPosition(ctx, store.OpenPositionParams{
		Position:     pos,
		Transaction:  record,
		ClaimEntryId: claimEntryId,
		Now:          now,
	})
	if err != nil {
		zap.L().Warn("Position open failed after debit, crediting back",
			zap.String("user_id", userId),
			zap.String("trader_id", trader.Id),
			zap.String("amount", amount.String()),
			zap.Error(err))
		if cerr := saga.Compensate(ctx); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	zap.L().Info("Copy trading started",
		zap.String("position_id", pos.Id),
		zap.String("user_id", userId),
		zap.String("trader_id", trader.Id),
		zap.String("allocation", amount.String()),
		zap.String("daily_pnl_rate", pos.DailyPnlRate.String()))

	e.publisher.Publish(ctx, events.Event{
		Type:    events.CopyTradeStarted,
		UserId:  userId,
		Subject: pos.Id,
		Data: map[string]string{
			"trader_id":  trader.Id,
			"allocation": amount.String(),
		},
	})
	return pos, nil
}

// offerFreedSlot hands an open slot to the oldest waiting user, if any.
func (e *Engine) offerFreedSlot(ctx context.Context, traderId string) {
	trader, err := e.store.GetTrader(ctx, traderId)
	if err != nil {
		zap.L().Warn("Failed to load trader for waitlist offer", zap.String("trader_id", traderId), zap.Error(err))
		return
	}
	if trader.RemainingCapacity() == 0 {
		return
	}

	now := e.now()
	expiresAt := now.Add(e.claimWindow)
	entry, err := e.store.OfferNextWaitlistSlot(ctx, traderId, uuid.New().String(), expiresAt, now)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		zap.L().Warn("Failed to offer waitlist slot", zap.String("trader_id", traderId), zap.Error(err))
		return
	}

	e.publisher.Publish(ctx, events.Event{
		Type:    events.WaitlistSlotOffered,
		UserId:  entry.UserId,
		Subject: entry.Id,
		Data: map[string]string{
			"trader_id":   traderId,
			"claim_token": entry.ClaimToken,
			"expires_at":  expiresAt.Format(time.RFC3339),
		},
	})
}

func validateStart(userId, traderId string, amount decimal.Decimal) error {
	if userId == "" || traderId == "" {
		return fmt.Errorf("%w: user and trader are required", store.ErrInvalidRequest)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: allocation must be positive, got %s", store.ErrInvalidAmount, amount.String())
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrCapacityFilled):
		return "capacity_filled"
	case errors.Is(err, store.ErrClaimExpired):
		return "claim_expired"
	case errors.Is(err, store.ErrDuplicatePosition):
		return "duplicate"
	case errors.Is(err, store.ErrInsufficientBalance):
		return "insufficient"
	default:
		return "error"
	}
}
