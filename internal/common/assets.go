package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type assetEntry struct {
	Symbol             string `yaml:"symbol"`
	Network            string `yaml:"network"`
	WithdrawalsEnabled *bool  `yaml:"withdrawals_enabled"`
	MinWithdrawal      string `yaml:"min_withdrawal"`
	NetworkFee         string `yaml:"network_fee"`
	PrimeWalletId      string `yaml:"prime_wallet_id"`
}

type assetsFile struct {
	Assets []assetEntry `yaml:"assets"`
}

// LoadAssetConfig reads the withdrawable assets. Withdrawals are enabled
// unless an entry says otherwise.
func LoadAssetConfig(path string) ([]models.AssetConfig, error) {
	var config assetsFile
	if err := readYAML(path, &config); err != nil {
		return nil, err
	}

	assets := make([]models.AssetConfig, 0, len(config.Assets))
	for i, entry := range config.Assets {
		if entry.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if entry.Network == "" {
			return nil, fmt.Errorf("asset at index %d missing network", i)
		}

		minWithdrawal, err := parseDecimal(entry.MinWithdrawal)
		if err != nil {
			return nil, fmt.Errorf("asset %s: invalid min_withdrawal: %w", entry.Symbol, err)
		}
		networkFee, err := parseDecimal(entry.NetworkFee)
		if err != nil {
			return nil, fmt.Errorf("asset %s: invalid network_fee: %w", entry.Symbol, err)
		}

		enabled := true
		if entry.WithdrawalsEnabled != nil {
			enabled = *entry.WithdrawalsEnabled
		}
		assets = append(assets, models.AssetConfig{
			Symbol:             strings.ToUpper(entry.Symbol),
			Network:            entry.Network,
			WithdrawalsEnabled: enabled,
			MinWithdrawal:      minWithdrawal,
			NetworkFee:         networkFee,
			PrimeWalletId:      entry.PrimeWalletId,
		})
	}
	return assets, nil
}

// LoadAssetRegistry is LoadAssetConfig indexed by symbol. A missing file
// yields an empty registry, which disables withdrawals.
func LoadAssetRegistry(path string) (models.AssetRegistry, error) {
	assets, err := LoadAssetConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("Assets file not found, withdrawals disabled", zap.String("path", path))
		return models.AssetRegistry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return models.NewAssetRegistry(assets), nil
}

func readYAML(path string, out any) error {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return nil
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative, got %s", value)
	}
	return d, nil
}

// parseSigned is parseDecimal for values that may be negative, such as a
// losing trader's ROI.
func parseSigned(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
