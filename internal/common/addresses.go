package common

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

var primeWalletTypes = []string{"TRADING", "VAULT"}

// ProvisionAddresses gives user one Prime deposit address per configured
// asset that has a wallet. Assets the user already has an address for are
// skipped. It returns the number created and the assets that failed.
func (s *Services) ProvisionAddresses(ctx context.Context, user models.User) (int, []string, error) {
	if s.Prime == nil {
		return 0, nil, fmt.Errorf("%w: Prime credentials are not configured", store.ErrInvalidRequest)
	}

	existing, err := s.DbService.GetAllUserAddresses(ctx, user.Id)
	if err != nil {
		return 0, nil, fmt.Errorf("error checking existing addresses: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, addr := range existing {
		have[addr.Asset+"/"+addr.Network] = true
	}

	var created int
	var failed []string
	for _, asset := range s.Assets {
		if asset.PrimeWalletId == "" {
			continue
		}
		if have[asset.Symbol+"/"+asset.Network] {
			zap.L().Info("User already has address for asset",
				zap.String("user_id", user.Id),
				zap.String("asset", asset.Symbol),
				zap.String("network", asset.Network))
			continue
		}

		if err := s.createAndStoreAddress(ctx, user, asset); err != nil {
			zap.L().Error("Failed to provision deposit address",
				zap.String("user_id", user.Id),
				zap.String("asset", asset.Symbol),
				zap.Error(err))
			failed = append(failed, asset.Symbol)
			continue
		}
		created++
	}
	return created, failed, nil
}

func (s *Services) createAndStoreAddress(ctx context.Context, user models.User, asset models.AssetConfig) error {
	depositAddress, err := s.Prime.CreateDepositAddress(ctx, asset.Symbol)
	if err != nil {
		return err
	}

	stored, err := s.DbService.StoreAddress(ctx, store.StoreAddressParams{
		UserId:  user.Id,
		Asset:   asset.Symbol,
		Network: asset.Network,
		Address: depositAddress.Address,
	})
	if err != nil {
		return fmt.Errorf("error storing address to database: %w", err)
	}

	zap.L().Info("Stored deposit address",
		zap.String("id", stored.Id),
		zap.String("user_id", user.Id),
		zap.String("asset", asset.Symbol),
		zap.String("address", stored.Address))
	return nil
}

// VerifyPrimeWallets checks that every configured wallet id exists in the
// portfolio. It returns the symbols whose wallet could not be found.
func (s *Services) VerifyPrimeWallets(ctx context.Context) ([]string, error) {
	if s.Prime == nil {
		return nil, nil
	}

	var symbols []string
	for _, asset := range s.Assets {
		if asset.PrimeWalletId != "" {
			symbols = append(symbols, asset.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	known := map[string]bool{}
	for _, walletType := range primeWalletTypes {
		wallets, err := s.Prime.ListWallets(ctx, walletType, symbols)
		if err != nil {
			return nil, err
		}
		for _, w := range wallets {
			known[w.Id] = true
		}
	}

	var missing []string
	for _, asset := range s.Assets {
		if asset.PrimeWalletId != "" && !known[asset.PrimeWalletId] {
			zap.L().Warn("Configured Prime wallet not found",
				zap.String("asset", asset.Symbol),
				zap.String("wallet_id", asset.PrimeWalletId))
			missing = append(missing, asset.Symbol)
		}
	}
	return missing, nil
}
