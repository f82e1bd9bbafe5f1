package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestInsufficientBalanceErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("debit failed: %w", &InsufficientBalanceError{
		Asset:     "USDT",
		Available: decimal.RequireFromString("12.5"),
		Requested: decimal.NewFromInt(20),
	})

	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Expected errors.Is ErrInsufficientBalance, got %v", err)
	}

	var typed *InsufficientBalanceError
	if !errors.As(err, &typed) {
		t.Fatalf("Expected errors.As to find InsufficientBalanceError")
	}
	if !typed.Available.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Expected available 12.5, got %s", typed.Available.String())
	}
	if !strings.Contains(err.Error(), "available 12.5") {
		t.Errorf("Expected message to carry available amount, got %q", err.Error())
	}
}

func TestCapacityFilledErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("open position: %w", &CapacityFilledError{TraderId: "t1", Remaining: 0})

	if !errors.Is(err, ErrCapacityFilled) {
		t.Fatalf("Expected errors.Is ErrCapacityFilled, got %v", err)
	}
	if errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Capacity error must not match ErrInsufficientBalance")
	}

	var typed *CapacityFilledError
	if !errors.As(err, &typed) || typed.Remaining != 0 {
		t.Errorf("Expected remaining 0, got %+v", typed)
	}
}
