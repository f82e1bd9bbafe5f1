package api

import (
	"net/http"

	"wallet-ledger-go/internal/models"

	"github.com/gorilla/mux"
)

func (h *handler) listTraders(w http.ResponseWriter, r *http.Request) {
	traders, err := h.deps.CopyTrading.ListTraders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := make([]models.TraderView, len(traders))
	for i, t := range traders {
		result[i] = models.NewTraderView(t)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) startCopy(w http.ResponseWriter, r *http.Request) {
	var body models.StartCopyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	pos, err := h.deps.CopyTrading.StartCopy(r.Context(), body.UserId, body.TraderId, body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewPositionView(*pos))
}

func (h *handler) stopCopy(w http.ResponseWriter, r *http.Request) {
	var body models.StopCopyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.deps.CopyTrading.StopCopy(r.Context(), body.UserId, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StopCopyResult{
		Position: models.NewPositionView(*result.Position),
		Payout:   result.Payout,
	})
}

func (h *handler) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	var body models.JoinWaitlistRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := h.deps.CopyTrading.JoinWaitlist(r.Context(), body.UserId, body.TraderId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewWaitlistView(*entry))
}

func (h *handler) claimWaitlist(w http.ResponseWriter, r *http.Request) {
	var body models.ClaimWaitlistRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	pos, err := h.deps.CopyTrading.ClaimWaitlist(r.Context(), body.Token, body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewPositionView(*pos))
}
