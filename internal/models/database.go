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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Address represents a user's deposit address
type Address struct {
	Id        string    `db:"id"`
	UserId    string    `db:"user_id"`
	Asset     string    `db:"asset"`
	Network   string    `db:"network"`
	Address   string    `db:"address"`
	CreatedAt time.Time `db:"created_at"`
}

// Balance is the per-(user, asset) balance row. Balance includes LockedBalance.
type Balance struct {
	UserId        string          `db:"user_id"`
	Asset         string          `db:"asset"`
	Balance       decimal.Decimal `db:"balance"`
	LockedBalance decimal.Decimal `db:"locked_balance"`
	Version       int64           `db:"version"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Available is the spendable part of the balance.
func (b Balance) Available() decimal.Decimal {
	return b.Balance.Sub(b.LockedBalance)
}

// Valid reports whether 0 <= locked <= balance holds.
func (b Balance) Valid() bool {
	return !b.Balance.IsNegative() && !b.LockedBalance.IsNegative() && b.LockedBalance.LessThanOrEqual(b.Balance)
}

// JournalEntry records one applied ledger primitive.
type JournalEntry struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	Asset         string          `db:"asset"`
	Operation     string          `db:"operation"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	LockedBefore  decimal.Decimal `db:"locked_before"`
	LockedAfter   decimal.Decimal `db:"locked_after"`
	Reference     string          `db:"reference"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Ledger primitive operations as written to the journal.
const (
	OperationCredit        = "credit"
	OperationDebit         = "debit"
	OperationLock          = "lock"
	OperationUnlockRelease = "unlock_release"
	OperationUnlockDeduct  = "unlock_deduct"
)

// Transaction types.
const (
	TransactionTypeDeposit         = "deposit"
	TransactionTypeWithdrawal      = "withdrawal"
	TransactionTypeSwap            = "swap"
	TransactionTypeEarnClaim       = "earn_claim"
	TransactionTypeEarnInvest      = "earn_invest"
	TransactionTypeCopyTradeStart  = "copy_trade_start"
	TransactionTypeCopyTradeStop   = "copy_trade_stop"
	TransactionTypeAdminAdjustment = "admin_adjustment"
)

// Transaction statuses.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// Transaction is the audit record of an economic event. Only Status,
// Metadata and CompletedAt change after insert.
type Transaction struct {
	Id          string            `db:"id"`
	UserId      string            `db:"user_id"`
	Type        string            `db:"type"`
	Asset       string            `db:"asset"`
	Amount      decimal.Decimal   `db:"amount"`
	Status      string            `db:"status"`
	Metadata    map[string]string `db:"metadata"`
	CreatedAt   time.Time         `db:"created_at"`
	CompletedAt *time.Time        `db:"completed_at"`
}

// Withdrawal request statuses.
const (
	WithdrawalStatusPending       = "pending"
	WithdrawalStatusAdminApproved = "admin_approved"
	WithdrawalStatusProcessing    = "processing"
	WithdrawalStatusCompleted     = "completed"
	WithdrawalStatusFailed        = "failed"
	WithdrawalStatusRejected      = "rejected"
)

// Processing types chosen at approval.
const (
	ProcessingTypeInternal = "internal"
	ProcessingTypeGateway  = "gateway"
	ProcessingTypeManual   = "manual"
)

// WithdrawalRequest is one send attempt, linked 1:1 to a Transaction.
type WithdrawalRequest struct {
	Id                 string          `db:"id"`
	TransactionId      string          `db:"transaction_id"`
	UserId             string          `db:"user_id"`
	Asset              string          `db:"asset"`
	Network            string          `db:"network"`
	Amount             decimal.Decimal `db:"amount"`
	ToAddress          string          `db:"to_address"`
	Status             string          `db:"status"`
	IsInternalTransfer bool            `db:"is_internal_transfer"`
	RecipientUserId    string          `db:"recipient_user_id"`
	ProcessingType     string          `db:"processing_type"`
	TxHash             string          `db:"tx_hash"`
	Fee                decimal.Decimal `db:"fee"`
	FailureReason      string          `db:"failure_reason"`
	ReviewedBy         string          `db:"reviewed_by"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// Terminal reports whether no further transition is possible.
func (w WithdrawalRequest) Terminal() bool {
	switch w.Status {
	case WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusRejected:
		return true
	}
	return false
}

// Trader risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Trader is a copy-trading strategy provider.
type Trader struct {
	Id               string          `db:"id"`
	Name             string          `db:"name"`
	MaxCopiers       int             `db:"max_copiers"`
	CurrentCopiers   int             `db:"current_copiers"`
	AumUsdt          decimal.Decimal `db:"aum_usdt"`
	RiskLevel        string          `db:"risk_level"`
	HistoricalRoiMin decimal.Decimal `db:"historical_roi_min"`
	HistoricalRoiMax decimal.Decimal `db:"historical_roi_max"`
	MaxDrawdown      decimal.Decimal `db:"max_drawdown"`
	Version          int64           `db:"version"`
}

// RemainingCapacity is the number of copier slots still open.
func (t Trader) RemainingCapacity() int {
	if t.CurrentCopiers >= t.MaxCopiers {
		return 0
	}
	return t.MaxCopiers - t.CurrentCopiers
}

// Copy position statuses.
const (
	PositionStatusActive  = "active"
	PositionStatusStopped = "stopped"
)

// CopyTradeAsset is the asset every copy allocation is denominated in.
const CopyTradeAsset = "USDT"

// CopyPosition is a user's allocation to a trader.
type CopyPosition struct {
	Id             string           `db:"id"`
	UserId         string           `db:"user_id"`
	TraderId       string           `db:"trader_id"`
	AllocationUsdt decimal.Decimal  `db:"allocation_usdt"`
	CurrentPnl     decimal.Decimal  `db:"current_pnl"`
	Momentum       float64          `db:"momentum"`
	DailyPnlRate   decimal.Decimal  `db:"daily_pnl_rate"`
	Status         string           `db:"status"`
	StartedAt      time.Time        `db:"started_at"`
	StoppedAt      *time.Time       `db:"stopped_at"`
	FinalPnl       *decimal.Decimal `db:"final_pnl"`
	LastTickAt     time.Time        `db:"last_tick_at"`
	Version        int64            `db:"version"`
}

// Payout is what stopping the position returns to the user: allocation plus
// PnL truncated to the asset's settlement precision, floored at zero when the
// loss exceeds the allocation.
func (p CopyPosition) Payout() decimal.Decimal {
	total := p.AllocationUsdt.Add(p.CurrentPnl).Truncate(AssetPrecision(CopyTradeAsset))
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Waitlist entry statuses.
const (
	WaitlistStatusWaiting  = "waiting"
	WaitlistStatusNotified = "notified"
	WaitlistStatusClaimed  = "claimed"
	WaitlistStatusExpired  = "expired"
)

// WaitlistEntry queues a user for a full trader.
type WaitlistEntry struct {
	Id             string     `db:"id"`
	UserId         string     `db:"user_id"`
	TraderId       string     `db:"trader_id"`
	Status         string     `db:"status"`
	ClaimToken     string     `db:"claim_token"`
	ClaimExpiresAt *time.Time `db:"claim_expires_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Ledger action kinds.
const (
	ActionKindCredit  = "credit"
	ActionKindRelease = "release"
	ActionKindSettle  = "settle"
)

// Ledger action statuses.
const (
	ActionStatusPending  = "pending"
	ActionStatusApplied  = "applied"
	ActionStatusFailed   = "failed"
	ActionStatusResolved = "resolved"
)

// LedgerAction is a durable ledger follow-up (compensation or settlement)
// that must be applied exactly once.
type LedgerAction struct {
	Id        string          `db:"id"`
	Kind      string          `db:"kind"`
	UserId    string          `db:"user_id"`
	Asset     string          `db:"asset"`
	Amount    decimal.Decimal `db:"amount"`
	Reason    string          `db:"reason"`
	Status    string          `db:"status"`
	Attempts  int             `db:"attempts"`
	LastError string          `db:"last_error"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Reference is the journal reference that makes applying the action idempotent.
func (a LedgerAction) Reference() string {
	return "ledger-action:" + a.Id
}
