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

// Package api exposes the wallet services over HTTP. Identity arrives in
// request bodies; authentication sits upstream.
package api

import (
	"context"
	"net/http"

	"wallet-ledger-go/internal/copytrading"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// WithdrawalService is the withdrawal state machine as the API drives it.
type WithdrawalService interface {
	Get(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	Create(ctx context.Context, userId, asset string, amount decimal.Decimal, toAddress string) (*models.WithdrawalRequest, error)
	Approve(ctx context.Context, id, reviewerId, processingType string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, id, reviewerId, reason string) (*models.WithdrawalRequest, error)
	Execute(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	CompletePayout(ctx context.Context, id, reviewerId, txHash string) (*models.WithdrawalRequest, error)
	FailPayout(ctx context.Context, id, reviewerId, reason string) (*models.WithdrawalRequest, error)
	Quote(ctx context.Context, asset, toAddress string, amount decimal.Decimal) (*models.WithdrawalQuote, error)
}

// CopyTradingService is the copy-trading engine as the API drives it.
type CopyTradingService interface {
	ListTraders(ctx context.Context) ([]models.Trader, error)
	StartCopy(ctx context.Context, userId, traderId string, amount decimal.Decimal) (*models.CopyPosition, error)
	StopCopy(ctx context.Context, userId, positionId string) (*copytrading.StopResult, error)
	JoinWaitlist(ctx context.Context, userId, traderId string) (*models.WaitlistEntry, error)
	ClaimWaitlist(ctx context.Context, token string, amount decimal.Decimal) (*models.CopyPosition, error)
}

// BalanceLedger is the slice of the ledger the API reads and credits.
type BalanceLedger interface {
	Credit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error)
	GetBalance(ctx context.Context, userId, asset string) (*models.Balance, error)
}

// HistoryStore serves the read-only account views.
type HistoryStore interface {
	store.TransactionStore
	GetAllUserBalances(ctx context.Context, userId string) ([]models.Balance, error)
	Ping(ctx context.Context) error
}

// Dependencies holds everything the handlers call.
type Dependencies struct {
	Ledger      BalanceLedger
	History     HistoryStore
	Withdrawals WithdrawalService
	CopyTrading CopyTradingService
}

type handler struct {
	deps *Dependencies
}

// NewRouter registers every route. Recovery runs outermost so a panicking
// handler is still logged and counted.
func NewRouter(deps *Dependencies) *mux.Router {
	h := &handler{deps: deps}
	router := mux.NewRouter()
	router.Use(recovery)
	router.Use(instrument)

	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/users/{userId}/balances", h.getBalances).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/balances/{asset}", h.getBalance).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/transactions", h.getTransactions).Methods(http.MethodGet)

	api.HandleFunc("/withdrawals", h.createWithdrawal).Methods(http.MethodPost)
	api.HandleFunc("/withdrawals/quote", h.quoteWithdrawal).Methods(http.MethodPost)
	api.HandleFunc("/withdrawals/{id}", h.getWithdrawal).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/withdrawals/{id}/approve", h.approveWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals/{id}/reject", h.rejectWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals/{id}/execute", h.executeWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals/{id}/complete", h.completeWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/withdrawals/{id}/fail", h.failWithdrawal).Methods(http.MethodPost)
	admin.HandleFunc("/deposits", h.adminDeposit).Methods(http.MethodPost)

	api.HandleFunc("/traders", h.listTraders).Methods(http.MethodGet)
	api.HandleFunc("/copy-trading/positions", h.startCopy).Methods(http.MethodPost)
	api.HandleFunc("/copy-trading/positions/{id}/stop", h.stopCopy).Methods(http.MethodPost)
	api.HandleFunc("/copy-trading/waitlist", h.joinWaitlist).Methods(http.MethodPost)
	api.HandleFunc("/copy-trading/waitlist/claim", h.claimWaitlist).Methods(http.MethodPost)

	return router
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.History.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{
			Error: "database unavailable",
			Code:  "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
