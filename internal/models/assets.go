package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AssetConfig describes a withdrawable asset.
type AssetConfig struct {
	Symbol             string
	Network            string
	WithdrawalsEnabled bool
	MinWithdrawal      decimal.Decimal
	NetworkFee         decimal.Decimal
	PrimeWalletId      string
}

// assetPrecision is the number of decimals each asset settles in.
var assetPrecision = map[string]int32{
	"USD":  2,
	"USDC": 6,
	"USDT": 6,
	"BTC":  8,
	"ETH":  18,
	"SOL":  9,
}

// NormalizeAsset returns the canonical form of an asset symbol.
func NormalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// AssetPrecision returns how many decimals symbol settles in. Unlisted
// assets use 6.
func AssetPrecision(symbol string) int32 {
	if p, ok := assetPrecision[NormalizeAsset(symbol)]; ok {
		return p
	}
	return 6
}

// AssetRegistry indexes asset configs by upper-cased symbol.
type AssetRegistry map[string]AssetConfig

// NewAssetRegistry builds a registry from the listed assets.
func NewAssetRegistry(assets []AssetConfig) AssetRegistry {
	registry := make(AssetRegistry, len(assets))
	for _, a := range assets {
		registry[strings.ToUpper(a.Symbol)] = a
	}
	return registry
}

// Lookup returns the config for symbol.
func (r AssetRegistry) Lookup(symbol string) (AssetConfig, bool) {
	a, ok := r[strings.ToUpper(symbol)]
	return a, ok
}
