package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) InsertLedgerAction(ctx context.Context, action *models.LedgerAction) error {
	return s.insertLedgerAction(ctx, s.db, action)
}

func (s *Service) insertLedgerAction(ctx context.Context, q querier, action *models.LedgerAction) error {
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = action.CreatedAt
	if action.Status == "" {
		action.Status = models.ActionStatusPending
	}

	_, err := q.ExecContext(ctx, s.q(queryInsertLedgerAction),
		action.Id, action.Kind, action.UserId, action.Asset, action.Amount.String(), action.Reason,
		action.Status, action.CreatedAt, action.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ledger action %s already exists", store.ErrDuplicateTransaction, action.Id)
		}
		return fmt.Errorf("failed to insert ledger action: %w", err)
	}

	zap.L().Debug("Ledger action enqueued",
		zap.String("action_id", action.Id),
		zap.String("kind", action.Kind),
		zap.String("user_id", action.UserId),
		zap.String("amount", action.Amount.String()))
	return nil
}

func (s *Service) GetLedgerAction(ctx context.Context, id string) (*models.LedgerAction, error) {
	action, err := scanLedgerAction(s.db.QueryRowContext(ctx, s.q(queryGetLedgerAction), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger action %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger action: %w", err)
	}
	return action, nil
}

func (s *Service) MarkLedgerAction(ctx context.Context, id, status, lastError string) error {
	res, err := s.db.ExecContext(ctx, s.q(queryMarkLedgerAction), status, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark ledger action: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: ledger action %s", store.ErrNotFound, id)
	}
	return nil
}

// ListLedgerActions returns actions in any of statuses, oldest first. With no
// statuses it returns every action.
func (s *Service) ListLedgerActions(ctx context.Context, statuses ...string) ([]models.LedgerAction, error) {
	query := `SELECT ` + actionColumns + ` FROM ledger_actions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
		query += ` WHERE status IN (` + placeholders + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger actions: %w", err)
	}
	defer closeRows(rows)

	var actions []models.LedgerAction
	for rows.Next() {
		action, err := scanLedgerAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger action: %w", err)
		}
		actions = append(actions, *action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger actions: %w", err)
	}
	return actions, nil
}

func scanLedgerAction(row rowScanner) (*models.LedgerAction, error) {
	var (
		action    models.LedgerAction
		amountStr string
	)
	err := row.Scan(&action.Id, &action.Kind, &action.UserId, &action.Asset, &amountStr, &action.Reason,
		&action.Status, &action.Attempts, &action.LastError, &action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}
	action.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	return &action, nil
}
