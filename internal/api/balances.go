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
	"fmt"
	"net/http"
	"strconv"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// getBalance returns the balance for a user and asset. A pair that has never
// been credited reads as zero.
func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	balance, err := h.deps.Ledger.GetBalance(r.Context(), vars["userId"], vars["asset"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewBalanceView(*balance))
}

// getBalances returns every balance row the user has.
func (h *handler) getBalances(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	balances, err := h.deps.History.GetAllUserBalances(r.Context(), userId)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := make([]models.BalanceView, len(balances))
	for i, balance := range balances {
		result[i] = models.NewBalanceView(balance)
	}
	writeJSON(w, http.StatusOK, result)
}

// getTransactions returns the user's audit trail, newest first.
func (h *handler) getTransactions(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	transactions, err := h.deps.History.GetTransactionHistory(r.Context(), userId, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := make([]models.TransactionView, len(transactions))
	for i, tx := range transactions {
		result[i] = models.NewTransactionView(tx)
	}
	writeJSON(w, http.StatusOK, result)
}

func pagination(r *http.Request) (int, int, error) {
	limit, offset := defaultHistoryLimit, 0
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: limit must be an integer", store.ErrInvalidRequest)
		}
		limit = n
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: offset must be an integer", store.ErrInvalidRequest)
		}
		offset = n
	}

	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, nil
}
