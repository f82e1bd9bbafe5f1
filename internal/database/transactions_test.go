package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newWithdrawal(userId string, now time.Time) (*models.Transaction, *models.WithdrawalRequest) {
	amount := decimal.RequireFromString("25")
	tx := &models.Transaction{
		Id:        uuid.New().String(),
		UserId:    userId,
		Type:      models.TransactionTypeWithdrawal,
		Asset:     "USDT",
		Amount:    amount,
		Status:    models.TransactionStatusPending,
		Metadata:  map[string]string{"to_address": "0xdest"},
		CreatedAt: now,
	}
	req := &models.WithdrawalRequest{
		Id:            uuid.New().String(),
		TransactionId: tx.Id,
		UserId:        userId,
		Asset:         "USDT",
		Network:       "ethereum-mainnet",
		Amount:        amount,
		ToAddress:     "0xdest",
		Status:        models.WithdrawalStatusPending,
		Fee:           decimal.RequireFromString("1"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx, req
}

func TestTransactions_InsertUpdateHistory(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		tx := &models.Transaction{
			Id:        uuid.New().String(),
			UserId:    "user1",
			Type:      models.TransactionTypeDeposit,
			Asset:     "BTC",
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Status:    models.TransactionStatusPending,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := service.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("InsertTransaction failed: %v", err)
		}
		if i == 2 {
			if err := service.InsertTransaction(ctx, tx); !errors.Is(err, store.ErrDuplicateTransaction) {
				t.Errorf("Expected duplicate transaction error, got %v", err)
			}

			err := service.UpdateTransactionStatus(ctx, tx.Id, models.TransactionStatusCompleted, map[string]string{"tx_hash": "0xabc"})
			if err != nil {
				t.Fatalf("UpdateTransactionStatus failed: %v", err)
			}
			stored, err := service.GetTransaction(ctx, tx.Id)
			if err != nil {
				t.Fatalf("GetTransaction failed: %v", err)
			}
			if stored.Status != models.TransactionStatusCompleted || stored.CompletedAt == nil {
				t.Errorf("Expected completed transaction with timestamp, got %+v", stored)
			}
			if stored.Metadata["tx_hash"] != "0xabc" {
				t.Errorf("Expected metadata to be stored, got %v", stored.Metadata)
			}
		}
	}

	history, err := service.GetTransactionHistory(ctx, "user1", 2, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(history))
	}
	if !history[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected newest transaction first, got amount %s", history[0].Amount.String())
	}

	if _, err := service.GetTransaction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestWithdrawals_CreateAndTransition(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	tx, req := newWithdrawal("user1", now)

	if err := service.CreateWithdrawal(ctx, tx, req); err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	approved, err := service.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
		Id:             req.Id,
		From:           []string{models.WithdrawalStatusPending},
		To:             models.WithdrawalStatusAdminApproved,
		ProcessingType: models.ProcessingTypeGateway,
		ReviewedBy:     "admin1",
	})
	if err != nil {
		t.Fatalf("Approve transition failed: %v", err)
	}
	if approved.ProcessingType != models.ProcessingTypeGateway || approved.ReviewedBy != "admin1" {
		t.Errorf("Unexpected approved request: %+v", approved)
	}

	// A second reviewer loses the race
	_, err = service.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
		Id:   req.Id,
		From: []string{models.WithdrawalStatusPending},
		To:   models.WithdrawalStatusRejected,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("Expected invalid state, got %v", err)
	}

	settle := &models.LedgerAction{
		Id:     uuid.New().String(),
		Kind:   models.ActionKindRelease,
		UserId: "user1",
		Asset:  "USDT",
		Amount: req.Amount,
		Reason: "withdrawal_failed:" + req.Id,
	}
	failed, err := service.TransitionWithdrawal(ctx, store.WithdrawalTransitionParams{
		Id:                req.Id,
		From:              []string{models.WithdrawalStatusAdminApproved, models.WithdrawalStatusProcessing},
		To:                models.WithdrawalStatusFailed,
		FailureReason:     "gateway timeout",
		TransactionStatus: models.TransactionStatusFailed,
		Actions:           []*models.LedgerAction{settle},
	})
	if err != nil {
		t.Fatalf("Fail transition failed: %v", err)
	}
	if !failed.Terminal() {
		t.Errorf("Expected terminal status, got %s", failed.Status)
	}

	stored, err := service.GetWithdrawal(ctx, req.Id)
	if err != nil {
		t.Fatalf("GetWithdrawal failed: %v", err)
	}
	if stored.FailureReason != "gateway timeout" || stored.ProcessingType != models.ProcessingTypeGateway {
		t.Errorf("Unexpected stored request: %+v", stored)
	}
	if !stored.Fee.Equal(decimal.RequireFromString("1")) {
		t.Errorf("Expected fee 1, got %s", stored.Fee.String())
	}

	storedTx, err := service.GetTransaction(ctx, tx.Id)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if storedTx.Status != models.TransactionStatusFailed {
		t.Errorf("Expected linked transaction failed, got %s", storedTx.Status)
	}
	if storedTx.Metadata["to_address"] != "0xdest" || storedTx.Metadata["failure_reason"] != "gateway timeout" {
		t.Errorf("Expected merged metadata, got %v", storedTx.Metadata)
	}

	if _, err := service.GetLedgerAction(ctx, settle.Id); err != nil {
		t.Errorf("Expected action committed with the transition: %v", err)
	}

	pending, err := service.ListWithdrawalsByStatus(ctx, models.WithdrawalStatusFailed, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListWithdrawalsByStatus failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 failed withdrawal, got %d", len(pending))
	}
}

func TestWithdrawals_CreateIsAtomic(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	tx, req := newWithdrawal("user1", now)
	if err := service.CreateWithdrawal(ctx, tx, req); err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	// Reusing the request id fails after the transaction row was written in
	// the same database transaction; that row must be rolled back.
	tx2, req2 := newWithdrawal("user1", now)
	req2.Id = req.Id
	if err := service.CreateWithdrawal(ctx, tx2, req2); !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected duplicate error, got %v", err)
	}
	if _, err := service.GetTransaction(ctx, tx2.Id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected orphan transaction to be rolled back, got %v", err)
	}
}
