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
	"net/http"

	"wallet-ledger-go/internal/models"

	"github.com/gorilla/mux"
)

func (h *handler) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var body models.CreateWithdrawalRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.deps.Withdrawals.Create(r.Context(), body.UserId, body.Asset, body.Amount, body.ToAddress)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewWithdrawalView(*req))
}

func (h *handler) getWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, err := h.deps.Withdrawals.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewWithdrawalView(*req))
}

func (h *handler) quoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	var body models.QuoteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	quote, err := h.deps.Withdrawals.Quote(r.Context(), body.Asset, body.ToAddress, body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *handler) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(id string, body models.ReviewRequest) (*models.WithdrawalRequest, error) {
		return h.deps.Withdrawals.Approve(r.Context(), id, body.ReviewerId, body.ProcessingType)
	})
}

func (h *handler) rejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(id string, body models.ReviewRequest) (*models.WithdrawalRequest, error) {
		return h.deps.Withdrawals.Reject(r.Context(), id, body.ReviewerId, body.Reason)
	})
}

// executeWithdrawal takes no body. A gateway error leaves the request in
// processing and surfaces as a 500.
func (h *handler) executeWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, err := h.deps.Withdrawals.Execute(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewWithdrawalView(*req))
}

func (h *handler) completeWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(id string, body models.ReviewRequest) (*models.WithdrawalRequest, error) {
		return h.deps.Withdrawals.CompletePayout(r.Context(), id, body.ReviewerId, body.TxHash)
	})
}

func (h *handler) failWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(id string, body models.ReviewRequest) (*models.WithdrawalRequest, error) {
		return h.deps.Withdrawals.FailPayout(r.Context(), id, body.ReviewerId, body.Reason)
	})
}

func (h *handler) review(w http.ResponseWriter, r *http.Request, apply func(id string, body models.ReviewRequest) (*models.WithdrawalRequest, error)) {
	var body models.ReviewRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := apply(mux.Vars(r)["id"], body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewWithdrawalView(*req))
}
