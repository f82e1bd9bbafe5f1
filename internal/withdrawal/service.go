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

// Package withdrawal runs withdrawal requests from creation through admin
// review to payout, either as an internal transfer between users or through
// an external payment gateway.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/gateway"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	store     store.WithdrawalStore
	ledger    *ledger.BalanceLedger
	gateway   gateway.PaymentGateway
	assets    models.AssetRegistry
	publisher events.Publisher
	now       func() time.Time
}

// NewService wires the state machine. gw may be nil, in which case only
// internal and manual processing are available.
func NewService(
	s store.WithdrawalStore,
	l *ledger.BalanceLedger,
	gw gateway.PaymentGateway,
	assets models.AssetRegistry,
	publisher events.Publisher,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     s,
		ledger:    l,
		gateway:   gw,
		assets:    assets,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	return s.store.GetWithdrawal(ctx, id)
}

// Create validates the request, locks the amount and stores the pending
// transaction and request. If the records cannot be stored the lock is
// released again.
func (s *Service) Create(ctx context.Context, userId, asset string, amount decimal.Decimal, toAddress string) (*models.WithdrawalRequest, error) {
	cfg, err := s.validate(userId, asset, amount, toAddress)
	if err != nil {
		return nil, err
	}
	toAddress = strings.TrimSpace(toAddress)

	recipient, err := s.detectInternal(ctx, userId, cfg.Symbol, toAddress)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req := &models.WithdrawalRequest{
		Id:                 uuid.New().String(),
		TransactionId:      uuid.New().String(),
		UserId:             userId,
		Asset:              cfg.Symbol,
		Network:            cfg.Network,
		Amount:             amount,
		ToAddress:          toAddress,
		Status:             models.WithdrawalStatusPending,
		IsInternalTransfer: recipient != "",
		RecipientUserId:    recipient,
		Fee:                decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	lockCtx := models.WithLedgerReference(ctx, "withdrawal_lock:"+req.Id)
	if _, err := s.ledger.Lock(lockCtx, userId, cfg.Symbol, amount); err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"withdrawal_id": req.Id,
		"to_address":    toAddress,
		"network":       cfg.Network,
	}
	if recipient != "" {
		metadata["recipient_user_id"] = recipient
	}
	record := &models.Transaction{
		Id:        req.TransactionId,
		UserId:    userId,
		Type:      models.TransactionTypeWithdrawal,
		Asset:     cfg.Symbol,
		Amount:    amount,
		Status:    models.TransactionStatusPending,
		Metadata:  metadata,
		CreatedAt: now,
	}

	if err := s.store.CreateWithdrawal(ctx, record, req); err != nil {
		zap.L().Warn("Withdrawal records failed after lock, releasing",
			zap.String("withdrawal_id", req.Id),
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.Error(err))
		cerr := s.ledger.Compensate(ctx, ledger.Compensation{
			Kind:   models.ActionKindRelease,
			UserId: userId,
			Asset:  cfg.Symbol,
			Amount: amount,
			Reason: "withdrawal_create_failed:" + req.Id,
		})
		if cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	s.observe(req, events.WithdrawalCreated, map[string]string{
		"amount":     amount.String(),
		"asset":      cfg.Symbol,
		"to_address": toAddress,
		"internal":   fmt.Sprintf("%t", req.IsInternalTransfer),
	})
	return req, nil
}

// Approve moves a pending request to admin_approved. Internal transfers are
// always processed internally; an empty processingType picks the gateway
// when one is configured and manual payout otherwise.
func (s *Service) Approve(ctx context.Context, id, reviewerId, processingType string) (*models.WithdrawalRequest, error) {
	if reviewerId == "" {
		return nil, fmt.Errorf("%w: reviewer is required", store.ErrInvalidRequest)
	}
	current, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	processingType, err = s.resolveProcessingType(current, processingType)
	if err != nil {
		return nil, err
	}

	req, err := s.store.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
		Id:             id,
		From:           []string{models.WithdrawalStatusPending},
		To:             models.WithdrawalStatusAdminApproved,
		ProcessingType: processingType,
		ReviewedBy:     reviewerId,
		Now:            s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.observe(req, events.WithdrawalApproved, map[string]string{
		"reviewer_id":     reviewerId,
		"processing_type": processingType,
	})
	return req, nil
}

// Reject closes a request that has not started processing and releases its lock.
func (s *Service) Reject(ctx context.Context, id, reviewerId, reason string) (*models.WithdrawalRequest, error) {
	if reviewerId == "" {
		return nil, fmt.Errorf("%w: reviewer is required", store.ErrInvalidRequest)
	}
	if reason == "" {
		reason = "rejected by reviewer"
	}
	current, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	req, err := s.finish(ctx, current, finishParams{
		from:       []string{models.WithdrawalStatusPending, models.WithdrawalStatusAdminApproved},
		to:         models.WithdrawalStatusRejected,
		kind:       models.ActionKindRelease,
		txStatus:   models.TransactionStatusFailed,
		reviewerId: reviewerId,
		reason:     reason,
	})
	if err != nil {
		return req, err
	}

	s.observe(req, events.WithdrawalRejected, map[string]string{
		"reviewer_id": reviewerId,
		"reason":      reason,
	})
	return req, nil
}

// Execute starts processing an approved request. Internal transfers and
// gateway payouts finish here; manual payouts stay processing until
// CompletePayout or FailPayout.
func (s *Service) Execute(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	req, err := s.store.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
		Id:   id,
		From: []string{models.WithdrawalStatusAdminApproved},
		To:   models.WithdrawalStatusProcessing,
		Now:  s.now(),
	})
	if err != nil {
		return nil, err
	}
	metrics.WithdrawalTransitions.WithLabelValues(req.Status, req.ProcessingType).Inc()

	// Processing has begun; a cancelled request must not strand the lock.
	ctx = context.WithoutCancel(ctx)

	switch req.ProcessingType {
	case models.ProcessingTypeInternal:
		return s.executeInternal(ctx, req)
	case models.ProcessingTypeGateway:
		return s.executeGateway(ctx, req)
	case models.ProcessingTypeManual:
		zap.L().Info("Withdrawal awaiting manual payout",
			zap.String("withdrawal_id", req.Id),
			zap.String("asset", req.Asset),
			zap.String("amount", req.Amount.String()))
		return req, nil
	default:
		return s.fail(ctx, req, "unknown processing type "+req.ProcessingType)
	}
}

// CompletePayout records an off-system payout and settles the lock. For an
// internal transfer left processing it finishes the transfer instead, and
// no tx hash is needed.
func (s *Service) CompletePayout(ctx context.Context, id, reviewerId, txHash string) (*models.WithdrawalRequest, error) {
	current, err := s.requireProcessing(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.ProcessingType == models.ProcessingTypeInternal {
		zap.L().Info("Resuming internal transfer",
			zap.String("withdrawal_id", id),
			zap.String("reviewer_id", reviewerId))
		return s.executeInternal(context.WithoutCancel(ctx), current)
	}
	if txHash == "" {
		return nil, fmt.Errorf("%w: tx hash is required", store.ErrInvalidRequest)
	}
	return s.complete(ctx, current, reviewerId, txHash, nil)
}

// FailPayout closes a processing request whose payout did not happen and
// releases the lock.
func (s *Service) FailPayout(ctx context.Context, id, reviewerId, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: failure reason is required", store.ErrInvalidRequest)
	}
	current, err := s.requireProcessing(ctx, id)
	if err != nil {
		return nil, err
	}
	if reviewerId != "" {
		reason = reason + " (by " + reviewerId + ")"
	}
	return s.fail(ctx, current, reason)
}

// Quote estimates the fee of a withdrawal. Internal transfers are free; the
// configured network fee stands in when the gateway cannot estimate.
func (s *Service) Quote(ctx context.Context, asset, toAddress string, amount decimal.Decimal) (*models.WithdrawalQuote, error) {
	cfg, ok := s.assets.Lookup(asset)
	if !ok {
		return nil, fmt.Errorf("%w: unknown asset %s", store.ErrInvalidRequest, asset)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", store.ErrInvalidAmount, amount.String())
	}
	toAddress = strings.TrimSpace(toAddress)

	quote := &models.WithdrawalQuote{
		Asset:       cfg.Symbol,
		Amount:      amount,
		Fee:         cfg.NetworkFee,
		FeeCurrency: cfg.Symbol,
	}

	if toAddress != "" {
		_, _, err := s.store.FindUserByAddress(ctx, toAddress, cfg.Symbol)
		switch {
		case err == nil:
			quote.IsInternalTransfer = true
			quote.Fee = decimal.Zero
			return quote, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	if s.gateway == nil {
		return quote, nil
	}
	estimate, err := s.gateway.EstimateFee(ctx, cfg.Symbol, toAddress, amount)
	switch {
	case err == nil:
		quote.Fee = estimate.Fee
		if estimate.Currency != "" {
			quote.FeeCurrency = estimate.Currency
		}
		quote.Estimated = true
	case errors.Is(err, gateway.ErrFeeEstimateUnavailable):
	default:
		zap.L().Warn("Fee estimate failed, using configured network fee",
			zap.String("asset", cfg.Symbol),
			zap.Error(err))
	}
	return quote, nil
}

// executeInternal completes the transfer in one commit that also enqueues
// the sender settle, the recipient credit and the recipient's deposit row;
// the two actions are applied afterwards. A crash before the commit leaves
// the request processing with no funds moved, and one after it leaves the
// actions pending for ResumePending.
func (s *Service) executeInternal(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	if req.RecipientUserId == "" {
		return s.fail(ctx, req, "internal transfer without recipient")
	}

	settle := ledger.NewAction(ledger.Compensation{
		Kind:   models.ActionKindSettle,
		UserId: req.UserId,
		Asset:  req.Asset,
		Amount: req.Amount,
		Reason: "withdrawal_completed:" + req.Id,
	})
	credit := ledger.NewAction(ledger.Compensation{
		Kind:   models.ActionKindCredit,
		UserId: req.RecipientUserId,
		Asset:  req.Asset,
		Amount: req.Amount,
		Reason: "internal_transfer:" + req.Id,
	})

	now := s.now()
	deposit := &models.Transaction{
		Id:     uuid.New().String(),
		UserId: req.RecipientUserId,
		Type:   models.TransactionTypeDeposit,
		Asset:  req.Asset,
		Amount: req.Amount,
		Status: models.TransactionStatusCompleted,
		Metadata: map[string]string{
			"withdrawal_id":  req.Id,
			"sender_user_id": req.UserId,
			"internal":       "true",
		},
		CreatedAt:   now,
		CompletedAt: &now,
	}

	noFee := decimal.Zero
	completed, err := s.transition(ctx, req, store.WithdrawalTransitionParams{
		To:                models.WithdrawalStatusCompleted,
		Fee:               &noFee,
		TransactionStatus: models.TransactionStatusCompleted,
		Actions:           []*models.LedgerAction{settle, credit},
		Record:            deposit,
	})
	if err != nil {
		return nil, err
	}

	// The settle goes first so a failure never leaves the recipient credited
	// while the sender still holds the lock.
	ctx = context.WithoutCancel(ctx)
	for _, action := range []*models.LedgerAction{settle, credit} {
		if err := s.ledger.Apply(ctx, action); err != nil {
			zap.L().Error("Internal transfer committed but ledger action failed",
				zap.String("withdrawal_id", req.Id),
				zap.String("action_id", action.Id),
				zap.String("kind", action.Kind),
				zap.Error(err))
			return completed, err
		}
	}

	s.observe(completed, events.WithdrawalCompleted, map[string]string{
		"recipient_user_id": req.RecipientUserId,
		"amount":            req.Amount.String(),
	})
	return completed, nil
}

// executeGateway pays out externally. A definitive rejection releases the
// lock; a transport error leaves the outcome unknown, so the request stays
// processing for CompletePayout or FailPayout.
func (s *Service) executeGateway(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	if s.gateway == nil {
		return s.fail(ctx, req, "payment gateway not configured")
	}

	result, err := s.gateway.Withdraw(ctx, gateway.WithdrawParams{
		RequestId: req.Id,
		Asset:     req.Asset,
		Network:   req.Network,
		Address:   req.ToAddress,
		Amount:    req.Amount,
	})
	if err != nil {
		zap.L().Error("Gateway withdrawal outcome unknown, leaving request processing",
			zap.String("withdrawal_id", req.Id),
			zap.String("asset", req.Asset),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return req, fmt.Errorf("gateway withdrawal %s outcome unknown: %w", req.Id, err)
	}
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "gateway rejected withdrawal"
		}
		return s.fail(ctx, req, reason)
	}

	fee := result.Fee
	return s.complete(ctx, req, "", result.TxHash, &fee)
}

func (s *Service) complete(ctx context.Context, req *models.WithdrawalRequest, reviewerId, txHash string, fee *decimal.Decimal) (*models.WithdrawalRequest, error) {
	completed, err := s.finish(ctx, req, finishParams{
		from:       []string{models.WithdrawalStatusProcessing},
		to:         models.WithdrawalStatusCompleted,
		kind:       models.ActionKindSettle,
		txStatus:   models.TransactionStatusCompleted,
		reviewerId: reviewerId,
		txHash:     txHash,
		fee:        fee,
	})
	if err != nil {
		return completed, err
	}
	s.observe(completed, events.WithdrawalCompleted, map[string]string{
		"tx_hash": txHash,
		"fee":     completed.Fee.String(),
	})
	return completed, nil
}

func (s *Service) fail(ctx context.Context, req *models.WithdrawalRequest, reason string) (*models.WithdrawalRequest, error) {
	failed, err := s.finish(ctx, req, finishParams{
		from:     []string{models.WithdrawalStatusProcessing},
		to:       models.WithdrawalStatusFailed,
		kind:     models.ActionKindRelease,
		txStatus: models.TransactionStatusFailed,
		reason:   reason,
	})
	if err != nil {
		return failed, err
	}
	s.observe(failed, events.WithdrawalFailed, map[string]string{"reason": reason})
	return failed, nil
}

type finishParams struct {
	from       []string
	to         string
	kind       string
	txStatus   string
	reviewerId string
	reason     string
	txHash     string
	fee        *decimal.Decimal
}

// finish commits a terminal transition together with the ledger action that
// settles or releases the lock, then applies the action.
func (s *Service) finish(ctx context.Context, req *models.WithdrawalRequest, p finishParams) (*models.WithdrawalRequest, error) {
	action := ledger.NewAction(ledger.Compensation{
		Kind:   p.kind,
		UserId: req.UserId,
		Asset:  req.Asset,
		Amount: req.Amount,
		Reason: "withdrawal_" + p.to + ":" + req.Id,
	})

	updated, err := s.store.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
		Id:                req.Id,
		From:              p.from,
		To:                p.to,
		ReviewedBy:        p.reviewerId,
		TxHash:            p.txHash,
		Fee:               p.fee,
		FailureReason:     p.reason,
		TransactionStatus: p.txStatus,
		Actions:           []*models.LedgerAction{action},
		Now:               s.now(),
	})
	if err != nil {
		return nil, err
	}

	// The transition is committed and the action is durable; applying it must
	// not depend on the caller still waiting.
	if err := s.ledger.Apply(context.WithoutCancel(ctx), action); err != nil {
		return updated, err
	}
	return updated, nil
}

// transition is a processing → terminal change with no ledger action.
func (s *Service) transition(ctx context.Context, req *models.WithdrawalRequest, p store.WithdrawalTransitionParams) (*models.WithdrawalRequest, error) {
	p.Id = req.Id
	p.From = []string{models.WithdrawalStatusProcessing}
	p.Now = s.now()
	return s.store.TransitionWithdrawal(ctx, p)
}

func (s *Service) requireProcessing(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	req, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.WithdrawalStatusProcessing {
		return nil, fmt.Errorf("%w: withdrawal %s is %s, expected processing", store.ErrInvalidState, id, req.Status)
	}
	return req, nil
}

func (s *Service) resolveProcessingType(req *models.WithdrawalRequest, requested string) (string, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if req.IsInternalTransfer {
		return models.ProcessingTypeInternal, nil
	}

	switch requested {
	case "":
		if s.gateway != nil {
			return models.ProcessingTypeGateway, nil
		}
		return models.ProcessingTypeManual, nil
	case models.ProcessingTypeGateway:
		if s.gateway == nil {
			return "", fmt.Errorf("%w: payment gateway not configured", store.ErrInvalidRequest)
		}
		return requested, nil
	case models.ProcessingTypeManual:
		return requested, nil
	case models.ProcessingTypeInternal:
		return "", fmt.Errorf("%w: %s is not an internal deposit address", store.ErrInvalidRequest, req.ToAddress)
	default:
		return "", fmt.Errorf("%w: unknown processing type %q", store.ErrInvalidRequest, requested)
	}
}

func (s *Service) validate(userId, asset string, amount decimal.Decimal, toAddress string) (models.AssetConfig, error) {
	if userId == "" {
		return models.AssetConfig{}, fmt.Errorf("%w: user is required", store.ErrInvalidRequest)
	}
	cfg, ok := s.assets.Lookup(asset)
	if !ok {
		return models.AssetConfig{}, fmt.Errorf("%w: unknown asset %s", store.ErrInvalidRequest, asset)
	}
	if !cfg.WithdrawalsEnabled {
		return models.AssetConfig{}, fmt.Errorf("%w: withdrawals of %s are disabled", store.ErrInvalidRequest, cfg.Symbol)
	}
	if !amount.IsPositive() {
		return models.AssetConfig{}, fmt.Errorf("%w: amount must be positive, got %s", store.ErrInvalidAmount, amount.String())
	}
	if amount.LessThan(cfg.MinWithdrawal) {
		return models.AssetConfig{}, fmt.Errorf("%w: minimum %s withdrawal is %s",
			store.ErrInvalidAmount, cfg.Symbol, cfg.MinWithdrawal.String())
	}
	if strings.TrimSpace(toAddress) == "" {
		return models.AssetConfig{}, fmt.Errorf("%w: destination address is required", store.ErrInvalidRequest)
	}
	return cfg, nil
}

// detectInternal returns the recipient when toAddress is another user's
// deposit address for asset.
func (s *Service) detectInternal(ctx context.Context, userId, asset, toAddress string) (string, error) {
	owner, _, err := s.store.FindUserByAddress(ctx, toAddress, asset)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("failed to check destination address: %w", err)
	case owner.Id == userId:
		return "", fmt.Errorf("%w: cannot withdraw to your own deposit address", store.ErrInvalidRequest)
	default:
		return owner.Id, nil
	}
}

func (s *Service) observe(req *models.WithdrawalRequest, eventType string, data map[string]string) {
	metrics.WithdrawalTransitions.WithLabelValues(req.Status, req.ProcessingType).Inc()

	zap.L().Info("Withdrawal "+req.Status,
		zap.String("withdrawal_id", req.Id),
		zap.String("user_id", req.UserId),
		zap.String("asset", req.Asset),
		zap.String("amount", req.Amount.String()),
		zap.String("processing_type", req.ProcessingType))

	s.publisher.Publish(context.Background(), events.Event{
		Type:    eventType,
		UserId:  req.UserId,
		Subject: req.Id,
		Data:    data,
	})
}
