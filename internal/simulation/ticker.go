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

package simulation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"wallet-ledger-go/internal/lock"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tickLockKey = "simulation-tick"

// PositionStore is what the ticker reads and writes.
type PositionStore interface {
	ListTraders(ctx context.Context) ([]models.Trader, error)
	ListActivePositions(ctx context.Context) ([]models.CopyPosition, error)
	UpdatePositionPnl(ctx context.Context, params store.PnlUpdateParams) (bool, error)
}

// TickStats summarizes one pass.
type TickStats struct {
	Positions int
	Updated   int
	Skipped   int
	Failed    int
	Buckets   int
}

type Ticker struct {
	store      PositionStore
	locker     lock.Locker
	interval   time.Duration
	maxCatchUp int
	workers    int
	lockTTL    time.Duration
	now        func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewTicker(positions PositionStore, locker lock.Locker, cfg models.SimulatorConfig) *Ticker {
	t := &Ticker{
		store:      positions,
		locker:     locker,
		interval:   cfg.TickInterval,
		maxCatchUp: cfg.MaxCatchUpTicks,
		workers:    cfg.Workers,
		lockTTL:    cfg.LockTTL,
		now:        func() time.Time { return time.Now().UTC() },
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
	if t.interval <= 0 {
		t.interval = BucketSize
	}
	if t.maxCatchUp <= 0 {
		t.maxCatchUp = TicksPerDay
	}
	if t.workers <= 0 {
		t.workers = 8
	}
	if t.lockTTL <= 0 {
		t.lockTTL = t.interval
	}
	if t.locker == nil {
		t.locker = lock.NewLocalLocker()
	}
	return t
}

// Start runs a pass immediately and then every interval until Stop.
func (t *Ticker) Start(ctx context.Context) {
	zap.L().Info("Starting PnL ticker",
		zap.Duration("interval", t.interval),
		zap.Int("max_catch_up_ticks", t.maxCatchUp),
		zap.Int("workers", t.workers))
	go t.loop(ctx)
}

// Stop waits for the pass in flight to finish.
func (t *Ticker) Stop() {
	zap.L().Info("Stopping PnL ticker")
	close(t.stopChan)
	<-t.doneChan
	zap.L().Info("PnL ticker stopped")
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.doneChan)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.runLocked(ctx)

	for {
		select {
		case <-ticker.C:
			t.runLocked(ctx)
		case <-t.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *Ticker) runLocked(ctx context.Context) {
	release, ok, err := t.locker.Acquire(ctx, tickLockKey, t.lockTTL)
	if err != nil {
		zap.L().Error("Failed to acquire tick lock", zap.Error(err))
		return
	}
	if !ok {
		zap.L().Debug("Tick lock held elsewhere, skipping pass")
		return
	}
	defer release()

	if _, err := t.RunOnce(ctx); err != nil {
		zap.L().Error("PnL tick failed", zap.Error(err))
	}
}

// RunOnce advances every active position through each bucket it has missed,
// up to the catch-up cap. A position stopped or changed concurrently keeps
// its state and is counted as skipped.
func (t *Ticker) RunOnce(ctx context.Context) (TickStats, error) {
	start := time.Now()
	defer func() {
		metrics.SimulationRunDuration.Observe(time.Since(start).Seconds())
	}()

	traders, err := t.store.ListTraders(ctx)
	if err != nil {
		return TickStats{}, fmt.Errorf("failed to list traders: %w", err)
	}
	byId := make(map[string]models.Trader, len(traders))
	for _, tr := range traders {
		byId[tr.Id] = tr
	}

	positions, err := t.store.ListActivePositions(ctx)
	if err != nil {
		return TickStats{}, fmt.Errorf("failed to list active positions: %w", err)
	}
	metrics.ActivePositions.Set(float64(len(positions)))

	now := t.now()
	var updated, skipped, failed, buckets atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for _, pos := range positions {
		trader, ok := byId[pos.TraderId]
		if !ok {
			zap.L().Warn("Active position references unknown trader",
				zap.String("position_id", pos.Id),
				zap.String("trader_id", pos.TraderId))
			failed.Add(1)
			metrics.SimulationTicks.WithLabelValues("error").Inc()
			continue
		}

		g.Go(func() error {
			n, applied, err := t.advancePosition(gctx, pos, trader, now)
			switch {
			case err != nil:
				failed.Add(1)
				metrics.SimulationTicks.WithLabelValues("error").Inc()
				zap.L().Error("Failed to advance position",
					zap.String("position_id", pos.Id),
					zap.Error(err))
			case n == 0:
			case applied:
				updated.Add(1)
				buckets.Add(int64(n))
				metrics.SimulationTicks.WithLabelValues("updated").Inc()
			default:
				skipped.Add(1)
				metrics.SimulationTicks.WithLabelValues("skipped").Inc()
			}
			// Per-position failures never cancel the rest of the pass.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TickStats{}, err
	}

	stats := TickStats{
		Positions: len(positions),
		Updated:   int(updated.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		Buckets:   int(buckets.Load()),
	}
	zap.L().Info("PnL tick complete",
		zap.Int("positions", stats.Positions),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("buckets", stats.Buckets),
		zap.Duration("duration", time.Since(start)))
	return stats, nil
}

// advancePosition returns the number of buckets replayed and whether the
// version-checked write won.
func (t *Ticker) advancePosition(ctx context.Context, pos models.CopyPosition, trader models.Trader, now time.Time) (int, bool, error) {
	due := MissedBuckets(pos.LastTickAt, now, t.maxCatchUp)
	if len(due) == 0 {
		return 0, false, nil
	}

	params := ParamsFor(trader, pos.AllocationUsdt)
	allocation := pos.AllocationUsdt.InexactFloat64()
	pnl := pos.CurrentPnl.InexactFloat64()
	momentum := pos.Momentum

	for _, bucket := range due {
		pnl, momentum = Advance(allocation, pnl, params, pos.StartedAt, trader.Id, bucket, momentum)
	}

	applied, err := t.store.UpdatePositionPnl(ctx, store.PnlUpdateParams{
		PositionId: pos.Id,
		Version:    pos.Version,
		CurrentPnl: RoundPnl(pnl),
		Momentum:   momentum,
		TickAt:     due[len(due)-1],
	})
	if err != nil {
		return len(due), false, err
	}
	if !applied {
		zap.L().Debug("Position changed during tick, skipping", zap.String("position_id", pos.Id))
	}
	return len(due), applied, nil
}

// RoundPnl converts a simulated PnL to the settlement precision of the
// copy-trading asset, so the stop payout is always a postable amount.
func RoundPnl(pnl float64) decimal.Decimal {
	return decimal.NewFromFloat(pnl).Round(models.AssetPrecision(models.CopyTradeAsset))
}

// MissedBuckets lists the bucket starts after lastTick up to now, keeping
// only the most recent limit of them.
func MissedBuckets(lastTick, now time.Time, limit int) []time.Time {
	first := BucketStart(lastTick).Add(BucketSize)
	last := BucketStart(now)
	if last.Before(first) {
		return nil
	}

	n := int(last.Sub(first)/BucketSize) + 1
	if n > limit {
		first = last.Add(-time.Duration(limit-1) * BucketSize)
		n = limit
	}

	buckets := make([]time.Time, n)
	for i := range buckets {
		buckets[i] = first.Add(time.Duration(i) * BucketSize)
	}
	return buckets
}
