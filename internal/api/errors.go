package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

const genericFailure = "internal error, please try again or contact support"

// maxBodyBytes bounds request bodies; every body here is a small JSON object.
const maxBodyBytes = 1 << 20

// writeError maps the error taxonomy onto status codes. Compensation
// failures are checked first because they may wrap a domain error that
// would otherwise map to a 4xx.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *store.InsufficientBalanceError
	var capacity *store.CapacityFilledError

	switch {
	case errors.Is(err, store.ErrCompensationFailed):
		zap.L().Error("CRITICAL: request left ledger action for reconciliation",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: genericFailure, Code: "internal"})
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:     err.Error(),
			Code:      "insufficient_balance",
			Available: &available,
		})
	case errors.Is(err, store.ErrInsufficientBalance):
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error(), Code: "insufficient_balance"})
	case errors.As(err, &capacity):
		remaining := capacity.Remaining
		writeJSON(w, http.StatusConflict, models.ErrorResponse{
			Error:             err.Error(),
			Code:              "capacity_filled",
			RemainingCapacity: &remaining,
		})
	case errors.Is(err, store.ErrCapacityFilled):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: "capacity_filled"})
	case errors.Is(err, store.ErrClaimExpired):
		writeJSON(w, http.StatusGone, models.ErrorResponse{Error: err.Error(), Code: "claim_expired"})
	case errors.Is(err, store.ErrDuplicatePosition):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: "duplicate_position"})
	case errors.Is(err, store.ErrDuplicateTransaction):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: "duplicate_transaction"})
	case errors.Is(err, store.ErrInvalidState):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: "invalid_state"})
	case errors.Is(err, store.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "invalid_amount"})
	case errors.Is(err, store.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: "invalid_request"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error(), Code: "not_found"})
	default:
		zap.L().Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: genericFailure, Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

// decodeJSON reads a JSON body into out. Malformed bodies, including
// amounts that are not decimal strings or numbers, are invalid requests.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: malformed body: %v", store.ErrInvalidRequest, err)
	}
	return nil
}
