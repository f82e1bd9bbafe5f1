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

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessDeposit credits a user as an admin adjustment and records it in the
// audit trail. Resubmitting the same reference returns
// store.ErrDuplicateTransaction without crediting twice.
func ProcessDeposit(ctx context.Context, ledger BalanceLedger, txs store.TransactionStore, req models.DepositRequest) (*models.DepositResult, error) {
	if req.UserId == "" || req.Asset == "" || req.ReviewerId == "" {
		return nil, fmt.Errorf("%w: user_id, asset and reviewer_id are required", store.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive, got %s", store.ErrInvalidAmount, req.Amount.String())
	}
	asset := strings.ToUpper(req.Asset)

	zap.L().Info("Processing admin deposit",
		zap.String("user_id", req.UserId),
		zap.String("asset", asset),
		zap.String("amount", req.Amount.String()),
		zap.String("reviewer_id", req.ReviewerId),
		zap.String("reference", req.Reference))

	tx := &models.Transaction{
		Id:     uuid.New().String(),
		UserId: req.UserId,
		Type:   models.TransactionTypeAdminAdjustment,
		Asset:  asset,
		Amount: req.Amount,
		Status: models.TransactionStatusPending,
		Metadata: map[string]string{
			"reviewer_id": req.ReviewerId,
		},
		CreatedAt: time.Now().UTC(),
	}
	if req.Reference != "" {
		tx.Metadata["reference"] = req.Reference
	}
	if req.Note != "" {
		tx.Metadata["note"] = req.Note
	}
	if err := txs.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}

	reference := req.Reference
	if reference == "" {
		reference = tx.Id
	}
	balance, err := ledger.Credit(models.WithLedgerReference(ctx, "admin_adjustment:"+reference), req.UserId, asset, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			zap.L().Info("Duplicate deposit reference",
				zap.String("user_id", req.UserId),
				zap.String("reference", req.Reference))
		}
		if uerr := txs.UpdateTransactionStatus(context.WithoutCancel(ctx), tx.Id, models.TransactionStatusFailed,
			map[string]string{"failure_reason": err.Error()}); uerr != nil {
			zap.L().Warn("Failed to mark deposit transaction failed",
				zap.String("transaction_id", tx.Id),
				zap.Error(uerr))
		}
		return nil, err
	}

	if err := txs.UpdateTransactionStatus(context.WithoutCancel(ctx), tx.Id, models.TransactionStatusCompleted, nil); err != nil {
		// The credit is applied; only the audit status lags.
		zap.L().Error("Failed to complete deposit transaction",
			zap.String("transaction_id", tx.Id),
			zap.Error(err))
	} else {
		now := time.Now().UTC()
		tx.Status = models.TransactionStatusCompleted
		tx.CompletedAt = &now
	}

	zap.L().Info("Deposit processed successfully",
		zap.String("user_id", req.UserId),
		zap.String("asset", asset),
		zap.String("amount", req.Amount.String()),
		zap.String("new_balance", balance.Balance.String()))

	return &models.DepositResult{
		Transaction: models.NewTransactionView(*tx),
		Balance:     models.NewBalanceView(*balance),
	}, nil
}

func (h *handler) adminDeposit(w http.ResponseWriter, r *http.Request) {
	var body models.DepositRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := ProcessDeposit(r.Context(), h.deps.Ledger, h.deps.History, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
