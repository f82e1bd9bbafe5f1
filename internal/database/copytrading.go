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

func (s *Service) UpsertTrader(ctx context.Context, trader *models.Trader) error {
	_, err := s.db.ExecContext(ctx, s.q(queryUpsertTrader),
		trader.Id, trader.Name, trader.MaxCopiers, trader.RiskLevel,
		trader.HistoricalRoiMin.String(), trader.HistoricalRoiMax.String(), trader.MaxDrawdown.String())
	if err != nil {
		zap.L().Error("Failed to upsert trader", zap.String("trader_id", trader.Id), zap.Error(err))
		return fmt.Errorf("failed to upsert trader: %w", err)
	}
	zap.L().Info("Trader upserted",
		zap.String("trader_id", trader.Id),
		zap.String("name", trader.Name),
		zap.Int("max_copiers", trader.MaxCopiers))
	return nil
}

func (s *Service) GetTrader(ctx context.Context, id string) (*models.Trader, error) {
	trader, err := scanTrader(s.db.QueryRowContext(ctx, s.q(queryGetTrader), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trader %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trader: %w", err)
	}
	return trader, nil
}

func (s *Service) ListTraders(ctx context.Context) ([]models.Trader, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryListTraders))
	if err != nil {
		return nil, fmt.Errorf("failed to query traders: %w", err)
	}
	defer closeRows(rows)

	var traders []models.Trader
	for rows.Next() {
		trader, err := scanTrader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trader: %w", err)
		}
		traders = append(traders, *trader)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating traders: %w", err)
	}
	return traders, nil
}

func (s *Service) GetPosition(ctx context.Context, id string) (*models.CopyPosition, error) {
	pos, err := scanPosition(s.db.QueryRowContext(ctx, s.q(queryGetPosition), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: position %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return pos, nil
}

func (s *Service) GetActivePosition(ctx context.Context, userId, traderId string) (*models.CopyPosition, error) {
	pos, err := scanPosition(s.db.QueryRowContext(ctx, s.q(queryGetActivePosition), userId, traderId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active position for user %s on trader %s", store.ErrNotFound, userId, traderId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active position: %w", err)
	}
	return pos, nil
}

func (s *Service) ListActivePositions(ctx context.Context) ([]models.CopyPosition, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryListActivePositions))
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions: %w", err)
	}
	defer closeRows(rows)

	var positions []models.CopyPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// OpenPosition re-checks trader capacity and bumps the counters in the same
// database transaction that inserts the position, so at most max_copiers
// opens can ever commit.
func (s *Service) OpenPosition(ctx context.Context, params store.OpenPositionParams) error {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	pos := params.Position

	err := s.withRetry(ctx, "open_position", func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			trader, err := s.lockTrader(ctx, tx, pos.TraderId)
			if err != nil {
				return err
			}

			if params.ClaimEntryId != "" {
				if err := s.claimWaitlistEntry(ctx, tx, params.ClaimEntryId, now); err != nil {
					return err
				}
			}

			if trader.RemainingCapacity() == 0 {
				return &store.CapacityFilledError{TraderId: trader.Id, Remaining: 0}
			}

			if err := s.updateTraderCounters(ctx, tx, trader,
				trader.CurrentCopiers+1, trader.AumUsdt.Add(pos.AllocationUsdt)); err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, s.q(queryInsertPosition),
				pos.Id, pos.UserId, pos.TraderId, pos.AllocationUsdt.String(), pos.CurrentPnl.String(),
				pos.Momentum, pos.DailyPnlRate.String(), models.PositionStatusActive, pos.StartedAt, pos.LastTickAt)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: user %s already copies trader %s", store.ErrDuplicatePosition, pos.UserId, pos.TraderId)
				}
				return fmt.Errorf("failed to insert position: %w", err)
			}

			if params.Transaction != nil {
				if err := s.insertTransaction(ctx, tx, params.Transaction); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	pos.Status = models.PositionStatusActive
	pos.Version = 1
	zap.L().Info("Copy position opened",
		zap.String("position_id", pos.Id),
		zap.String("user_id", pos.UserId),
		zap.String("trader_id", pos.TraderId),
		zap.String("allocation", pos.AllocationUsdt.String()))
	return nil
}

// ClosePosition freezes the PnL, releases the trader slot and enqueues the
// payout in one database transaction. The caller applies the payout action.
func (s *Service) ClosePosition(ctx context.Context, params store.ClosePositionParams) (*store.ClosePositionResult, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result *store.ClosePositionResult
	err := s.withRetry(ctx, "close_position", func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			pos, err := scanPosition(tx.QueryRowContext(ctx, s.q(s.dialect.forUpdate(queryGetPosition)), params.PositionId))
			if errors.Is(err, sql.ErrNoRows) || (err == nil && pos.UserId != params.UserId) {
				return fmt.Errorf("%w: position %s", store.ErrNotFound, params.PositionId)
			}
			if err != nil {
				return fmt.Errorf("failed to load position: %w", err)
			}
			if pos.Status != models.PositionStatusActive {
				return fmt.Errorf("%w: position %s is %s", store.ErrInvalidState, pos.Id, pos.Status)
			}

			res, err := tx.ExecContext(ctx, s.q(queryStopPosition), now, pos.CurrentPnl.String(), pos.Id, pos.Version)
			if err != nil {
				return fmt.Errorf("failed to stop position: %w", err)
			}
			if err := expectOneRow(res, "position "+pos.Id); err != nil {
				return err
			}

			trader, err := s.lockTrader(ctx, tx, pos.TraderId)
			if err != nil {
				return err
			}
			copiers := trader.CurrentCopiers - 1
			if copiers < 0 {
				copiers = 0
			}
			aum := trader.AumUsdt.Sub(pos.AllocationUsdt)
			if aum.IsNegative() {
				aum = decimal.Zero
			}
			if err := s.updateTraderCounters(ctx, tx, trader, copiers, aum); err != nil {
				return err
			}

			finalPnl := pos.CurrentPnl
			pos.Status = models.PositionStatusStopped
			pos.StoppedAt = &now
			pos.FinalPnl = &finalPnl
			pos.Version++
			payout := pos.Payout()

			record := &models.Transaction{
				Id:     uuid.New().String(),
				UserId: pos.UserId,
				Type:   models.TransactionTypeCopyTradeStop,
				Asset:  models.CopyTradeAsset,
				Amount: payout,
				Status: models.TransactionStatusPending,
				Metadata: map[string]string{
					"position_id": pos.Id,
					"trader_id":   pos.TraderId,
					"allocation":  pos.AllocationUsdt.String(),
					"final_pnl":   finalPnl.String(),
				},
				CreatedAt: now,
			}

			var action *models.LedgerAction
			if payout.IsPositive() {
				action = &models.LedgerAction{
					Id:        uuid.New().String(),
					Kind:      models.ActionKindCredit,
					UserId:    pos.UserId,
					Asset:     models.CopyTradeAsset,
					Amount:    payout,
					Reason:    "copy_trade_stop:" + pos.Id,
					Status:    models.ActionStatusPending,
					CreatedAt: now,
				}
				record.Metadata["ledger_action_id"] = action.Id
				if err := s.insertLedgerAction(ctx, tx, action); err != nil {
					return err
				}
			} else {
				record.Status = models.TransactionStatusCompleted
				record.CompletedAt = &now
			}

			if err := s.insertTransaction(ctx, tx, record); err != nil {
				return err
			}

			result = &store.ClosePositionResult{Position: pos, Transaction: record, Payout: action}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Copy position closed",
		zap.String("position_id", result.Position.Id),
		zap.String("user_id", result.Position.UserId),
		zap.String("final_pnl", result.Position.FinalPnl.String()),
		zap.String("payout", result.Transaction.Amount.String()))
	return result, nil
}

func (s *Service) UpdatePositionPnl(ctx context.Context, params store.PnlUpdateParams) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(queryUpdatePositionPnl),
		params.CurrentPnl.String(), params.Momentum, params.TickAt, params.PositionId, params.Version)
	if err != nil {
		return false, fmt.Errorf("failed to update position pnl: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *Service) lockTrader(ctx context.Context, tx *sql.Tx, traderId string) (*models.Trader, error) {
	trader, err := scanTrader(tx.QueryRowContext(ctx, s.q(s.dialect.forUpdate(queryGetTrader)), traderId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trader %s", store.ErrNotFound, traderId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trader: %w", err)
	}
	return trader, nil
}

func (s *Service) updateTraderCounters(ctx context.Context, tx *sql.Tx, trader *models.Trader, copiers int, aum decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, s.q(queryUpdateTraderCounters), copiers, aum.String(), trader.Id, trader.Version)
	if err != nil {
		return fmt.Errorf("failed to update trader counters: %w", err)
	}
	return expectOneRow(res, "trader "+trader.Id)
}

func expectOneRow(res sql.Result, what string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s update failed - %w", what, store.ErrConcurrentModification)
	}
	return nil
}

func scanTrader(row rowScanner) (*models.Trader, error) {
	var (
		trader                           models.Trader
		aum, roiMin, roiMax, maxDrawdown string
	)
	err := row.Scan(&trader.Id, &trader.Name, &trader.MaxCopiers, &trader.CurrentCopiers, &aum,
		&trader.RiskLevel, &roiMin, &roiMax, &maxDrawdown, &trader.Version)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&trader.AumUsdt, aum},
		{&trader.HistoricalRoiMin, roiMin},
		{&trader.HistoricalRoiMax, roiMax},
		{&trader.MaxDrawdown, maxDrawdown},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("failed to parse trader decimal '%s': %w", f.src, err)
		}
	}
	return &trader, nil
}

func scanPosition(row rowScanner) (*models.CopyPosition, error) {
	var (
		pos                        models.CopyPosition
		allocation, pnl, dailyRate string
		stoppedAt                  sql.NullTime
		finalPnl                   sql.NullString
	)
	err := row.Scan(&pos.Id, &pos.UserId, &pos.TraderId, &allocation, &pnl, &pos.Momentum, &dailyRate,
		&pos.Status, &pos.StartedAt, &stoppedAt, &finalPnl, &pos.LastTickAt, &pos.Version)
	if err != nil {
		return nil, err
	}

	if pos.AllocationUsdt, err = decimal.NewFromString(allocation); err != nil {
		return nil, fmt.Errorf("failed to parse allocation '%s': %w", allocation, err)
	}
	if pos.CurrentPnl, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("failed to parse pnl '%s': %w", pnl, err)
	}
	if pos.DailyPnlRate, err = decimal.NewFromString(dailyRate); err != nil {
		return nil, fmt.Errorf("failed to parse daily pnl rate '%s': %w", dailyRate, err)
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		pos.StoppedAt = &t
	}
	if finalPnl.Valid {
		d, err := decimal.NewFromString(finalPnl.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final pnl '%s': %w", finalPnl.String, err)
		}
		pos.FinalPnl = &d
	}
	return &pos, nil
}
