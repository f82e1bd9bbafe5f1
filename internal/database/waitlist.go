package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

func (s *Service) AddToWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	if entry.Status == "" {
		entry.Status = models.WaitlistStatusWaiting
	}
	_, err := s.db.ExecContext(ctx, s.q(queryInsertWaitlistEntry),
		entry.Id, entry.UserId, entry.TraderId, entry.Status, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s is already on the waitlist for trader %s",
				store.ErrDuplicatePosition, entry.UserId, entry.TraderId)
		}
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}

	zap.L().Info("User joined waitlist",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("trader_id", entry.TraderId))
	return nil
}

func (s *Service) GetWaitlistEntryByToken(ctx context.Context, token string) (*models.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(s.db.QueryRowContext(ctx, s.q(queryGetWaitlistByToken), token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim token", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return entry, nil
}

// MarkWaitlistExpired expires a notified entry. Entries that were claimed or
// already expired are left alone.
func (s *Service) MarkWaitlistExpired(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(queryExpireWaitlistEntry), now, id)
	if err != nil {
		return fmt.Errorf("failed to expire waitlist entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		zap.L().Info("Waitlist claim expired", zap.String("entry_id", id))
	}
	return nil
}

func (s *Service) OfferNextWaitlistSlot(ctx context.Context, traderId, token string, expiresAt, now time.Time) (*models.WaitlistEntry, error) {
	var offered *models.WaitlistEntry
	err := s.withRetry(ctx, "offer_waitlist_slot", func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			entry, err := scanWaitlistEntry(tx.QueryRowContext(ctx, s.q(s.dialect.forUpdate(queryNextWaitingEntry)), traderId))
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: nobody waiting for trader %s", store.ErrNotFound, traderId)
			}
			if err != nil {
				return fmt.Errorf("failed to load next waitlist entry: %w", err)
			}

			res, err := tx.ExecContext(ctx, s.q(queryOfferWaitlistSlot), token, expiresAt, now, entry.Id)
			if err != nil {
				return fmt.Errorf("failed to offer waitlist slot: %w", err)
			}
			if err := expectOneRow(res, "waitlist entry "+entry.Id); err != nil {
				return err
			}

			entry.Status = models.WaitlistStatusNotified
			entry.ClaimToken = token
			entry.ClaimExpiresAt = &expiresAt
			entry.UpdatedAt = now
			offered = entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Waitlist slot offered",
		zap.String("entry_id", offered.Id),
		zap.String("user_id", offered.UserId),
		zap.String("trader_id", traderId),
		zap.Time("expires_at", expiresAt))
	return offered, nil
}

func (s *Service) ListExpiredClaims(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(queryListExpiredClaims), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired claims: %w", err)
	}
	defer closeRows(rows)

	var entries []models.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waitlist entries: %w", err)
	}
	return entries, nil
}

// claimWaitlistEntry consumes a notified entry inside an open transaction.
func (s *Service) claimWaitlistEntry(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	res, err := tx.ExecContext(ctx, s.q(queryClaimWaitlistEntry), now, id, now)
	if err != nil {
		return fmt.Errorf("failed to claim waitlist entry: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	entry, err := scanWaitlistEntry(tx.QueryRowContext(ctx, s.q(`SELECT `+waitlistColumns+` FROM copy_waitlist WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: waitlist entry %s", store.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load waitlist entry: %w", err)
	}
	if entry.Status == models.WaitlistStatusClaimed {
		return fmt.Errorf("%w: claim already used", store.ErrInvalidState)
	}
	return fmt.Errorf("%w: claim window closed", store.ErrClaimExpired)
}

func scanWaitlistEntry(row rowScanner) (*models.WaitlistEntry, error) {
	var (
		entry     models.WaitlistEntry
		expiresAt sql.NullTime
	)
	err := row.Scan(&entry.Id, &entry.UserId, &entry.TraderId, &entry.Status, &entry.ClaimToken,
		&expiresAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		entry.ClaimExpiresAt = &t
	}
	return &entry, nil
}
