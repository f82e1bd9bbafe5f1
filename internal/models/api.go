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

// BalanceView is the getBalance response.
type BalanceView struct {
	UserId        string          `json:"user_id"`
	Asset         string          `json:"asset"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Available     decimal.Decimal `json:"available_balance"`
}

// NewBalanceView converts a balance row for display.
func NewBalanceView(b Balance) BalanceView {
	return BalanceView{
		UserId:        b.UserId,
		Asset:         b.Asset,
		Balance:       b.Balance,
		LockedBalance: b.LockedBalance,
		Available:     b.Available(),
	}
}

// TransactionView is one audit-trail row.
type TransactionView struct {
	Id          string            `json:"id"`
	Type        string            `json:"type"`
	Asset       string            `json:"asset"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func NewTransactionView(tx Transaction) TransactionView {
	return TransactionView{
		Id:          tx.Id,
		Type:        tx.Type,
		Asset:       tx.Asset,
		Amount:      tx.Amount,
		Status:      tx.Status,
		Metadata:    tx.Metadata,
		CreatedAt:   tx.CreatedAt,
		CompletedAt: tx.CompletedAt,
	}
}

// DepositRequest is the body of POST /admin/deposits. Reference, when
// given, makes the credit idempotent.
type DepositRequest struct {
	UserId     string          `json:"user_id"`
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	ReviewerId string          `json:"reviewer_id"`
	Note       string          `json:"note,omitempty"`
}

// DepositResult is what an admin credit committed.
type DepositResult struct {
	Transaction TransactionView `json:"transaction"`
	Balance     BalanceView     `json:"balance"`
}

// StopCopyResult is the stopCopy response.
type StopCopyResult struct {
	Position PositionView    `json:"position"`
	Payout   decimal.Decimal `json:"payout"`
}

// WaitlistView is the API representation of a WaitlistEntry. The claim
// token reaches the user through the slot-offered event, not this view.
type WaitlistView struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	TraderId  string    `json:"trader_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func NewWaitlistView(e WaitlistEntry) WaitlistView {
	return WaitlistView{
		Id:        e.Id,
		UserId:    e.UserId,
		TraderId:  e.TraderId,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}

// CreateWithdrawalRequest is the body of POST /withdrawals.
type CreateWithdrawalRequest struct {
	UserId    string          `json:"user_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	ToAddress string          `json:"to_address"`
}

// QuoteRequest is the body of POST /withdrawals/quote.
type QuoteRequest struct {
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	ToAddress string          `json:"to_address"`
}

// ReviewRequest is the body of admin approve/reject/complete/fail calls.
type ReviewRequest struct {
	ReviewerId     string `json:"reviewer_id"`
	ProcessingType string `json:"processing_type,omitempty"`
	Reason         string `json:"reason,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
}

// WithdrawalView is the API representation of a WithdrawalRequest.
type WithdrawalView struct {
	Id                 string          `json:"id"`
	TransactionId      string          `json:"transaction_id"`
	UserId             string          `json:"user_id"`
	Asset              string          `json:"asset"`
	Amount             decimal.Decimal `json:"amount"`
	ToAddress          string          `json:"to_address"`
	Status             string          `json:"status"`
	IsInternalTransfer bool            `json:"is_internal_transfer"`
	RecipientUserId    string          `json:"recipient_user_id,omitempty"`
	ProcessingType     string          `json:"processing_type,omitempty"`
	TxHash             string          `json:"tx_hash,omitempty"`
	Fee                decimal.Decimal `json:"fee"`
	FailureReason      string          `json:"failure_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewWithdrawalView converts a request row for display.
func NewWithdrawalView(w WithdrawalRequest) WithdrawalView {
	return WithdrawalView{
		Id:                 w.Id,
		TransactionId:      w.TransactionId,
		UserId:             w.UserId,
		Asset:              w.Asset,
		Amount:             w.Amount,
		ToAddress:          w.ToAddress,
		Status:             w.Status,
		IsInternalTransfer: w.IsInternalTransfer,
		RecipientUserId:    w.RecipientUserId,
		ProcessingType:     w.ProcessingType,
		TxHash:             w.TxHash,
		Fee:                w.Fee,
		FailureReason:      w.FailureReason,
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
	}
}

// WithdrawalQuote is the fee estimate for a prospective withdrawal.
type WithdrawalQuote struct {
	Asset              string          `json:"asset"`
	Amount             decimal.Decimal `json:"amount"`
	Fee                decimal.Decimal `json:"fee"`
	FeeCurrency        string          `json:"fee_currency"`
	IsInternalTransfer bool            `json:"is_internal_transfer"`
	Estimated          bool            `json:"estimated"`
}

// StartCopyRequest is the body of POST /copy-trading/positions.
type StartCopyRequest struct {
	UserId   string          `json:"user_id"`
	TraderId string          `json:"trader_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// StopCopyRequest is the body of POST /copy-trading/positions/{id}/stop.
type StopCopyRequest struct {
	UserId string `json:"user_id"`
}

// JoinWaitlistRequest is the body of POST /copy-trading/waitlist.
type JoinWaitlistRequest struct {
	UserId   string `json:"user_id"`
	TraderId string `json:"trader_id"`
}

// ClaimWaitlistRequest is the body of POST /copy-trading/waitlist/claim.
type ClaimWaitlistRequest struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// PositionView is the API representation of a CopyPosition.
type PositionView struct {
	Id             string           `json:"id"`
	UserId         string           `json:"user_id"`
	TraderId       string           `json:"trader_id"`
	AllocationUsdt decimal.Decimal  `json:"allocation_usdt"`
	CurrentPnl     decimal.Decimal  `json:"current_pnl"`
	DailyPnlRate   decimal.Decimal  `json:"daily_pnl_rate"`
	Status         string           `json:"status"`
	StartedAt      time.Time        `json:"started_at"`
	StoppedAt      *time.Time       `json:"stopped_at,omitempty"`
	FinalPnl       *decimal.Decimal `json:"final_pnl,omitempty"`
}

// NewPositionView converts a position row for display.
func NewPositionView(p CopyPosition) PositionView {
	return PositionView{
		Id:             p.Id,
		UserId:         p.UserId,
		TraderId:       p.TraderId,
		AllocationUsdt: p.AllocationUsdt,
		CurrentPnl:     p.CurrentPnl,
		DailyPnlRate:   p.DailyPnlRate,
		Status:         p.Status,
		StartedAt:      p.StartedAt,
		StoppedAt:      p.StoppedAt,
		FinalPnl:       p.FinalPnl,
	}
}

// TraderView is the API representation of a Trader.
type TraderView struct {
	Id                string          `json:"id"`
	Name              string          `json:"name"`
	RiskLevel         string          `json:"risk_level"`
	MaxCopiers        int             `json:"max_copiers"`
	CurrentCopiers    int             `json:"current_copiers"`
	RemainingCapacity int             `json:"remaining_capacity"`
	AumUsdt           decimal.Decimal `json:"aum_usdt"`
	HistoricalRoiMin  decimal.Decimal `json:"historical_roi_min"`
	HistoricalRoiMax  decimal.Decimal `json:"historical_roi_max"`
}

// NewTraderView converts a trader row for display.
func NewTraderView(t Trader) TraderView {
	return TraderView{
		Id:                t.Id,
		Name:              t.Name,
		RiskLevel:         t.RiskLevel,
		MaxCopiers:        t.MaxCopiers,
		CurrentCopiers:    t.CurrentCopiers,
		RemainingCapacity: t.RemainingCapacity(),
		AumUsdt:           t.AumUsdt,
		HistoricalRoiMin:  t.HistoricalRoiMin,
		HistoricalRoiMax:  t.HistoricalRoiMax,
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error             string           `json:"error"`
	Code              string           `json:"code"`
	Available         *decimal.Decimal `json:"available,omitempty"`
	RemainingCapacity *int             `json:"remaining_capacity,omitempty"`
}
