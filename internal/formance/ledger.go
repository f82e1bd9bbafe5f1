package formance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. A user's balance is users:<id>:available plus
// users:<id>:locked; neither account may overdraw, which keeps
// 0 <= locked <= balance. Every template declares the same vars.
// ---------------------------------------------------------------------------

const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $available
  account $locked
  string $operation
}

send [$asset $amount] (
  source = @world
  destination = $available
)

set_tx_meta("operation", $operation)
`

const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $available
  account $locked
  string $operation
}

send [$asset $amount] (
  source = $available
  destination = @platform:outflows
)

set_tx_meta("operation", $operation)
`

const numscriptLock = `vars {
  asset $asset
  number $amount
  account $available
  account $locked
  string $operation
}

send [$asset $amount] (
  source = $available
  destination = $locked
)

set_tx_meta("operation", $operation)
`

const numscriptUnlockRelease = `vars {
  asset $asset
  number $amount
  account $available
  account $locked
  string $operation
}

send [$asset $amount] (
  source = $locked
  destination = $available
)

set_tx_meta("operation", $operation)
`

const numscriptUnlockDeduct = `vars {
  asset $asset
  number $amount
  account $available
  account $locked
  string $operation
}

send [$asset $amount] (
  source = $locked
  destination = @platform:outflows
)

set_tx_meta("operation", $operation)
`

func availableAccount(userId string) string { return "users:" + userId + ":available" }
func lockedAccount(userId string) string    { return "users:" + userId + ":locked" }

// Credit adds amount to the user's available account.
func (s *Service) Credit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	return s.post(ctx, models.OperationCredit, numscriptCredit, userId, asset, amount)
}

// Debit moves amount out of the available account. Formance refuses the
// posting when the account would go negative.
func (s *Service) Debit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	return s.post(ctx, models.OperationDebit, numscriptDebit, userId, asset, amount)
}

// Lock moves amount from available to locked.
func (s *Service) Lock(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	return s.post(ctx, models.OperationLock, numscriptLock, userId, asset, amount)
}

// Unlock moves amount back to available, or out of the user's accounts when
// deduct is set.
func (s *Service) Unlock(ctx context.Context, userId, asset string, amount decimal.Decimal, deduct bool) (*models.Balance, error) {
	if deduct {
		return s.post(ctx, models.OperationUnlockDeduct, numscriptUnlockDeduct, userId, asset, amount)
	}
	return s.post(ctx, models.OperationUnlockRelease, numscriptUnlockRelease, userId, asset, amount)
}

// GetBalance sums the two accounts. A user Formance has never seen reads as zero.
func (s *Service) GetBalance(ctx context.Context, userId, asset string) (*models.Balance, error) {
	asset = models.NormalizeAsset(asset)
	fAsset := formanceAsset(asset)

	available, availableAt, err := s.accountBalance(ctx, availableAccount(userId), fAsset)
	if err != nil {
		return nil, err
	}
	locked, lockedAt, err := s.accountBalance(ctx, lockedAccount(userId), fAsset)
	if err != nil {
		return nil, err
	}

	updatedAt := availableAt
	if lockedAt.After(updatedAt) {
		updatedAt = lockedAt
	}
	return &models.Balance{
		UserId:        userId,
		Asset:         asset,
		Balance:       bigIntToDecimal(available, asset).Add(bigIntToDecimal(locked, asset)),
		LockedBalance: bigIntToDecimal(locked, asset),
		UpdatedAt:     updatedAt,
	}, nil
}

func (s *Service) post(ctx context.Context, op, script, userId, asset string, amount decimal.Decimal) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s amount must be positive, got %s", store.ErrInvalidAmount, op, amount.String())
	}
	asset = models.NormalizeAsset(asset)
	smallAmt, err := toSmallestUnit(amount, asset)
	if err != nil {
		return nil, err
	}

	reference := models.LedgerReference(ctx)
	if reference == "" {
		reference = op + ":" + uuid.New().String()
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(reference),
			Script: &shared.V2PostTransactionScript{
				Plain: script,
				Vars: map[string]string{
					"asset":     formanceAsset(asset),
					"amount":    smallAmt,
					"available": availableAccount(userId),
					"locked":    lockedAccount(userId),
					"operation": op,
				},
			},
			Metadata: map[string]string{
				"user_id":     userId,
				"asset":       asset,
				"amount":      amount.String(),
				"operation":   op,
				"recorded_at": time.Now().UTC().Format(time.RFC3339Nano),
			},
		},
	})
	if err != nil {
		return nil, s.classify(ctx, err, op, userId, asset, amount, reference)
	}

	zap.L().Info("Ledger primitive applied in Formance",
		zap.String("operation", op),
		zap.String("user_id", userId),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("reference", reference))

	return s.GetBalance(ctx, userId, asset)
}

// classify maps Formance error codes onto the shared taxonomy.
func (s *Service) classify(ctx context.Context, err error, op, userId, asset string, amount decimal.Decimal, reference string) error {
	switch {
	case isConflictError(err):
		return fmt.Errorf("%w: reference %s already applied", store.ErrDuplicateTransaction, reference)
	case isInsufficientFundError(err):
		if op == models.OperationUnlockRelease || op == models.OperationUnlockDeduct {
			return fmt.Errorf("%w: unlock of %s %s exceeds locked balance", store.ErrInvalidState, amount.String(), asset)
		}
		insufficient := &store.InsufficientBalanceError{Asset: asset, Requested: amount}
		if bal, berr := s.GetBalance(ctx, userId, asset); berr == nil {
			insufficient.Available = bal.Available()
		}
		return insufficient
	default:
		zap.L().Error("Formance posting failed",
			zap.String("operation", op),
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.Error(err))
		return fmt.Errorf("formance %s failed: %w", op, err)
	}
}

// accountBalance returns the balance of one asset on one account.
func (s *Service) accountBalance(ctx context.Context, address, fAsset string) (*big.Int, time.Time, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("failed to get account %s: %w", address, err)
	}

	acct := resp.V2AccountResponse.Data
	var updatedAt time.Time
	if acct.UpdatedAt != nil {
		updatedAt = *acct.UpdatedAt
	} else if acct.FirstUsage != nil {
		updatedAt = *acct.FirstUsage
	}
	return volumeBalance(acct.Volumes, fAsset), updatedAt, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// toSmallestUnit rejects amounts finer than the asset's precision rather
// than silently truncating them.
func toSmallestUnit(amount decimal.Decimal, symbol string) (string, error) {
	shifted := amount.Shift(int32(precisionFor(symbol)))
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("%w: %s has more than %d decimals for %s",
			store.ErrInvalidAmount, amount.String(), precisionFor(symbol), symbol)
	}
	return shifted.BigInt().String(), nil
}
