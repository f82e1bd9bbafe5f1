package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.insertTransaction(ctx, s.db, tx)
}

func (s *Service) insertTransaction(ctx context.Context, q querier, tx *models.Transaction) error {
	metadata, err := encodeMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	var completedAt any
	if tx.CompletedAt != nil {
		completedAt = *tx.CompletedAt
	}

	_, err = q.ExecContext(ctx, s.q(queryInsertTransaction),
		tx.Id, tx.UserId, tx.Type, tx.Asset, tx.Amount.String(), tx.Status, metadata, tx.CreatedAt, completedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s already exists", store.ErrDuplicateTransaction, tx.Id)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, s.q(queryGetTransaction), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransactionStatus moves a transaction to status, merging metadata
// into what is stored. Terminal statuses stamp completed_at.
func (s *Service) UpdateTransactionStatus(ctx context.Context, id, status string, metadata map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateTransactionStatus(ctx, tx, id, status, metadata, time.Now().UTC())
	})
}

func (s *Service) updateTransactionStatus(ctx context.Context, q querier, id, status string, metadata map[string]string, now time.Time) error {
	current, err := scanTransaction(q.QueryRowContext(ctx, s.q(queryGetTransaction), id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: transaction %s", store.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	merged := current.Metadata
	if merged == nil {
		merged = map[string]string{}
	}
	for k, v := range metadata {
		merged[k] = v
	}
	encoded, err := encodeMetadata(merged)
	if err != nil {
		return err
	}

	var completedAt any
	if status != models.TransactionStatusPending {
		completedAt = now
	}

	if _, err := q.ExecContext(ctx, s.q(queryUpdateTransactionStatus), status, encoded, completedAt, id); err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	zap.L().Debug("Transaction status updated",
		zap.String("transaction_id", id),
		zap.String("from", current.Status),
		zap.String("to", status))
	return nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryGetTransactionHistory), userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx          models.Transaction
		amountStr   string
		metadata    string
		completedAt sql.NullTime
	)
	err := row.Scan(&tx.Id, &tx.UserId, &tx.Type, &tx.Asset, &amountStr, &tx.Status, &metadata, &tx.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	return &tx, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}
