// Package gateway defines the external payout collaborator used by
// withdrawals that leave the platform.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrFeeEstimateUnavailable means the gateway cannot quote a fee; callers
// fall back to the configured network fee.
var ErrFeeEstimateUnavailable = errors.New("fee estimate unavailable")

// WithdrawParams describes one payout. RequestId doubles as the gateway
// idempotency key, so a resubmitted request never pays twice.
type WithdrawParams struct {
	RequestId string
	Asset     string
	Network   string
	Address   string
	Amount    decimal.Decimal
}

// WithdrawResult is the gateway's answer. Success false with a nil error is
// a definitive rejection; a non-nil error means the outcome is unknown.
type WithdrawResult struct {
	Success bool
	TxHash  string
	Fee     decimal.Decimal
	Error   string
}

type FeeEstimate struct {
	Fee      decimal.Decimal
	Currency string
}

type PaymentGateway interface {
	Withdraw(ctx context.Context, params WithdrawParams) (*WithdrawResult, error)
	EstimateFee(ctx context.Context, asset, address string, amount decimal.Decimal) (*FeeEstimate, error)
}
