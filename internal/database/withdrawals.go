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
	"slices"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateWithdrawal writes the pending transaction and its request together;
// neither row exists without the other.
func (s *Service) CreateWithdrawal(ctx context.Context, tx *models.Transaction, req *models.WithdrawalRequest) error {
	err := s.withTx(ctx, func(dbTx *sql.Tx) error {
		if err := s.insertTransaction(ctx, dbTx, tx); err != nil {
			return err
		}

		_, err := dbTx.ExecContext(ctx, s.q(queryInsertWithdrawal),
			req.Id, req.TransactionId, req.UserId, req.Asset, req.Network, req.Amount.String(), req.ToAddress,
			req.Status, req.IsInternalTransfer, nullString(req.RecipientUserId), nullString(req.ProcessingType),
			req.Fee.String(), req.CreatedAt, req.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: withdrawal %s already exists", store.ErrDuplicateTransaction, req.Id)
			}
			return fmt.Errorf("failed to insert withdrawal request: %w", err)
		}
		return nil
	})
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("withdrawal_id", req.Id),
			zap.String("user_id", req.UserId),
			zap.Error(err))
		return err
	}

	zap.L().Info("Withdrawal request stored",
		zap.String("withdrawal_id", req.Id),
		zap.String("transaction_id", tx.Id),
		zap.String("status", req.Status),
		zap.Bool("internal", req.IsInternalTransfer))
	return nil
}

func (s *Service) GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	req, err := scanWithdrawal(s.db.QueryRowContext(ctx, s.q(queryGetWithdrawal), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return req, nil
}

// TransitionWithdrawal moves a request along its state machine. The status
// check and the update are one compare-and-set, so two concurrent reviewers
// cannot both win.
func (s *Service) TransitionWithdrawal(ctx context.Context, params store.WithdrawalTransitionParams) (*models.WithdrawalRequest, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated *models.WithdrawalRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanWithdrawal(tx.QueryRowContext(ctx, s.q(s.dialect.forUpdate(queryGetWithdrawal)), params.Id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, params.Id)
		}
		if err != nil {
			return fmt.Errorf("failed to load withdrawal: %w", err)
		}

		if !slices.Contains(params.From, current.Status) {
			return fmt.Errorf("%w: withdrawal %s is %s, expected one of %v",
				store.ErrInvalidState, params.Id, current.Status, params.From)
		}

		next := *current
		next.Status = params.To
		next.UpdatedAt = now
		if params.ProcessingType != "" {
			next.ProcessingType = params.ProcessingType
		}
		if params.ReviewedBy != "" {
			next.ReviewedBy = params.ReviewedBy
		}
		if params.TxHash != "" {
			next.TxHash = params.TxHash
		}
		if params.Fee != nil {
			next.Fee = *params.Fee
		}
		if params.FailureReason != "" {
			next.FailureReason = params.FailureReason
		}

		res, err := tx.ExecContext(ctx, s.q(queryUpdateWithdrawal),
			next.Status, nullString(next.ProcessingType), nullString(next.ReviewedBy), nullString(next.TxHash),
			next.Fee.String(), nullString(next.FailureReason), now, params.Id, current.Status)
		if err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: withdrawal %s changed concurrently", store.ErrInvalidState, params.Id)
		}

		if params.TransactionStatus != "" {
			metadata := map[string]string{"withdrawal_status": next.Status}
			if next.TxHash != "" {
				metadata["tx_hash"] = next.TxHash
			}
			if next.FailureReason != "" {
				metadata["failure_reason"] = next.FailureReason
			}
			if err := s.updateTransactionStatus(ctx, tx, next.TransactionId, params.TransactionStatus, metadata, now); err != nil {
				return err
			}
		}

		for _, action := range params.Actions {
			if err := s.insertLedgerAction(ctx, tx, action); err != nil {
				return err
			}
		}
		if params.Record != nil {
			if err := s.insertTransaction(ctx, tx, params.Record); err != nil {
				return err
			}
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal transitioned",
		zap.String("withdrawal_id", params.Id),
		zap.String("status", updated.Status),
		zap.String("processing_type", updated.ProcessingType))
	return updated, nil
}

func (s *Service) ListWithdrawalsByStatus(ctx context.Context, status string, updatedBefore time.Time) ([]models.WithdrawalRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryListWithdrawalsByStatus), status, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer closeRows(rows)

	var requests []models.WithdrawalRequest
	for rows.Next() {
		req, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}
	return requests, nil
}

func scanWithdrawal(row rowScanner) (*models.WithdrawalRequest, error) {
	var (
		req               models.WithdrawalRequest
		amountStr, feeStr string
	)
	err := row.Scan(&req.Id, &req.TransactionId, &req.UserId, &req.Asset, &req.Network, &amountStr, &req.ToAddress,
		&req.Status, &req.IsInternalTransfer, &req.RecipientUserId, &req.ProcessingType, &req.TxHash, &feeStr,
		&req.FailureReason, &req.ReviewedBy, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	req.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	req.Fee, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fee '%s': %w", feeStr, err)
	}
	return &req, nil
}
