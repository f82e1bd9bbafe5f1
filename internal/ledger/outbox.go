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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compensation describes one ledger follow-up before it is persisted.
type Compensation struct {
	Kind   string
	UserId string
	Asset  string
	Amount decimal.Decimal
	Reason string
}

// NewAction builds a pending outbox row for c. Callers that need the action
// committed together with a state change pass it to the store themselves.
func NewAction(c Compensation) *models.LedgerAction {
	return &models.LedgerAction{
		Id:        uuid.New().String(),
		Kind:      c.Kind,
		UserId:    c.UserId,
		Asset:     c.Asset,
		Amount:    c.Amount,
		Reason:    c.Reason,
		Status:    models.ActionStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Compensate persists c and applies it. A failure is recorded for manual
// reconciliation and returned wrapped in store.ErrCompensationFailed.
func (l *BalanceLedger) Compensate(ctx context.Context, c Compensation) error {
	ctx = context.WithoutCancel(ctx)

	action := NewAction(c)
	if err := l.actions.InsertLedgerAction(ctx, action); err != nil {
		l.reportFailure(ctx, action, err)
		return fmt.Errorf("%w: could not persist %s for %s: %v", store.ErrCompensationFailed, c.Kind, c.UserId, err)
	}
	return l.Apply(ctx, action)
}

// Apply runs a persisted action through the primitives exactly once. The
// action id is the journal reference, so an action that already reached the
// ledger is only marked applied.
func (l *BalanceLedger) Apply(ctx context.Context, action *models.LedgerAction) error {
	ctx = models.WithLedgerReference(context.WithoutCancel(ctx), action.Reference())

	var err error
	switch action.Kind {
	case models.ActionKindCredit:
		_, err = l.Credit(ctx, action.UserId, action.Asset, action.Amount)
	case models.ActionKindRelease:
		_, err = l.Unlock(ctx, action.UserId, action.Asset, action.Amount, false)
	case models.ActionKindSettle:
		_, err = l.Unlock(ctx, action.UserId, action.Asset, action.Amount, true)
	default:
		err = fmt.Errorf("%w: unknown ledger action kind %q", store.ErrInvalidRequest, action.Kind)
	}

	if errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Info("Ledger action already applied", zap.String("action_id", action.Id))
		err = nil
	}

	if err != nil {
		if markErr := l.actions.MarkLedgerAction(ctx, action.Id, models.ActionStatusFailed, err.Error()); markErr != nil {
			zap.L().Error("Failed to mark ledger action failed", zap.String("action_id", action.Id), zap.Error(markErr))
		}
		action.Status = models.ActionStatusFailed
		action.LastError = err.Error()
		l.reportFailure(ctx, action, err)
		return fmt.Errorf("%w: %s %s %s for %s: %v",
			store.ErrCompensationFailed, action.Kind, action.Amount.String(), action.Asset, action.UserId, err)
	}

	if markErr := l.actions.MarkLedgerAction(ctx, action.Id, models.ActionStatusApplied, ""); markErr != nil {
		// The journal reference already guards against a second application;
		// the row stays pending and ResumePending will settle it.
		zap.L().Warn("Failed to mark ledger action applied", zap.String("action_id", action.Id), zap.Error(markErr))
	}
	action.Status = models.ActionStatusApplied
	metrics.LedgerActions.WithLabelValues(action.Kind, models.ActionStatusApplied).Inc()

	zap.L().Info("Ledger action applied",
		zap.String("action_id", action.Id),
		zap.String("kind", action.Kind),
		zap.String("user_id", action.UserId),
		zap.String("asset", action.Asset),
		zap.String("amount", action.Amount.String()),
		zap.String("reason", action.Reason))
	return nil
}

// ResumePending applies actions left pending by a crash between commit and
// apply. It returns how many were applied.
func (l *BalanceLedger) ResumePending(ctx context.Context) (int, error) {
	pending, err := l.actions.ListLedgerActions(ctx, models.ActionStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending ledger actions: %w", err)
	}

	applied := 0
	for i := range pending {
		if err := l.Apply(ctx, &pending[i]); err != nil {
			continue
		}
		applied++
	}

	if len(pending) > 0 {
		zap.L().Info("Resumed pending ledger actions",
			zap.Int("pending", len(pending)),
			zap.Int("applied", applied))
	}
	return applied, nil
}

// Retry re-applies one failed action on operator request.
func (l *BalanceLedger) Retry(ctx context.Context, id string) error {
	action, err := l.actions.GetLedgerAction(ctx, id)
	if err != nil {
		return err
	}
	if action.Status != models.ActionStatusFailed && action.Status != models.ActionStatusPending {
		return fmt.Errorf("%w: ledger action %s is %s", store.ErrInvalidState, id, action.Status)
	}
	zap.L().Info("Retrying ledger action", zap.String("action_id", id), zap.Int("attempts", action.Attempts))
	return l.Apply(ctx, action)
}

// Resolve closes a failed action that an operator settled by other means.
func (l *BalanceLedger) Resolve(ctx context.Context, id, note string) error {
	action, err := l.actions.GetLedgerAction(ctx, id)
	if err != nil {
		return err
	}
	if action.Status != models.ActionStatusFailed {
		return fmt.Errorf("%w: only failed actions can be resolved, %s is %s", store.ErrInvalidState, id, action.Status)
	}
	if err := l.actions.MarkLedgerAction(ctx, id, models.ActionStatusResolved, note); err != nil {
		return err
	}
	metrics.LedgerActions.WithLabelValues(action.Kind, models.ActionStatusResolved).Inc()
	zap.L().Info("Ledger action resolved", zap.String("action_id", id), zap.String("note", note))
	return nil
}

// ListOpen returns actions that are pending or failed.
func (l *BalanceLedger) ListOpen(ctx context.Context) ([]models.LedgerAction, error) {
	return l.actions.ListLedgerActions(ctx, models.ActionStatusPending, models.ActionStatusFailed)
}

func (l *BalanceLedger) reportFailure(ctx context.Context, action *models.LedgerAction, cause error) {
	zap.L().Error("CRITICAL: ledger action failed, reconciliation required",
		zap.String("action_id", action.Id),
		zap.String("kind", action.Kind),
		zap.String("user_id", action.UserId),
		zap.String("asset", action.Asset),
		zap.String("amount", action.Amount.String()),
		zap.String("reason", action.Reason),
		zap.Error(cause))
	metrics.ReconciliationRequired.Inc()
	metrics.LedgerActions.WithLabelValues(action.Kind, models.ActionStatusFailed).Inc()

	l.publisher.Publish(ctx, events.Event{
		Type:    events.LedgerActionFailed,
		UserId:  action.UserId,
		Subject: action.Id,
		Data: map[string]string{
			"kind":   action.Kind,
			"asset":  action.Asset,
			"amount": action.Amount.String(),
			"reason": action.Reason,
			"error":  cause.Error(),
		},
	})
}

// Saga collects the compensations of a multi-step operation so they can be
// run in reverse order when a later step fails.
type Saga struct {
	ledger *BalanceLedger
	name   string
	undo   []Compensation
}

func (l *BalanceLedger) NewSaga(name string) *Saga {
	return &Saga{ledger: l, name: name}
}

// OnFailure registers the compensation for a step that just succeeded.
func (s *Saga) OnFailure(c Compensation) {
	s.undo = append(s.undo, c)
}

// Compensate runs every registered compensation, newest first. All of them
// are attempted even when one fails.
func (s *Saga) Compensate(ctx context.Context) error {
	var errs []error
	for i := len(s.undo) - 1; i >= 0; i-- {
		if err := s.ledger.Compensate(ctx, s.undo[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(s.undo) > 0 {
		zap.L().Warn("Saga compensated",
			zap.String("saga", s.name),
			zap.Int("steps", len(s.undo)),
			zap.Int("failed", len(errs)))
	}
	s.undo = nil
	return errors.Join(errs...)
}
