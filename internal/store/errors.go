package store

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations and the
// domain services built on them.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidState           = errors.New("invalid state")
	ErrCapacityFilled         = errors.New("trader capacity filled")
	ErrClaimExpired           = errors.New("claim expired")
	ErrDuplicatePosition      = errors.New("duplicate position")
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrCompensationFailed     = errors.New("compensation failed")
)

// InsufficientBalanceError carries the amount the user can still spend.
type InsufficientBalanceError struct {
	Asset     string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: requested %s %s, available %s",
		ErrInsufficientBalance, e.Requested.String(), e.Asset, e.Available.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// CapacityFilledError carries the trader's remaining copier slots.
type CapacityFilledError struct {
	TraderId  string
	Remaining int
}

func (e *CapacityFilledError) Error() string {
	return fmt.Sprintf("%s: trader %s has %d slots remaining", ErrCapacityFilled, e.TraderId, e.Remaining)
}

func (e *CapacityFilledError) Unwrap() error { return ErrCapacityFilled }
