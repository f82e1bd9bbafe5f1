// Package prime pays out gateway withdrawals and generates deposit
// addresses through Coinbase Prime.
package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"wallet-ledger-go/internal/gateway"
	"wallet-ledger-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Compile-time check: *Service must satisfy gateway.PaymentGateway.
var _ gateway.PaymentGateway = (*Service)(nil)

// walletsAPI is the subset of the Prime wallets API the service uses.
type walletsAPI interface {
	ListWallets(ctx context.Context, request *wallets.ListWalletsRequest) (*wallets.ListWalletsResponse, error)
	CreateWalletAddress(ctx context.Context, request *wallets.CreateWalletAddressRequest) (*wallets.CreateWalletAddressResponse, error)
}

type withdrawalsAPI interface {
	CreateWalletWithdrawal(ctx context.Context, request *transactions.CreateWalletWithdrawalRequest) (*transactions.CreateWalletWithdrawalResponse, error)
}

type Service struct {
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      walletsAPI
	transactionsSvc withdrawalsAPI
	portfolioId     string
	assets          models.AssetRegistry
}

func NewService(cfg models.PrimeConfig, assets models.AssetRegistry) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	creds := &credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}
	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
		portfolioId:     cfg.PortfolioId,
		assets:          assets,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// PortfolioId returns the configured portfolio, or looks up the default one.
func (s *Service) PortfolioId(ctx context.Context) (string, error) {
	if s.portfolioId != "" {
		return s.portfolioId, nil
	}

	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return "", fmt.Errorf("unable to list portfolios: %w", err)
	}
	for _, p := range response.Portfolios {
		if p.Name == "Default Portfolio" {
			s.portfolioId = p.Id
			return p.Id, nil
		}
	}
	return "", fmt.Errorf("default portfolio not found")
}

func (s *Service) ListWallets(ctx context.Context, walletType string, symbols []string) ([]models.Wallet, error) {
	portfolioId, err := s.PortfolioId(ctx)
	if err != nil {
		return nil, err
	}

	response, err := s.walletsSvc.ListWallets(ctx, &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]models.Wallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = models.Wallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}
	return walletList, nil
}

// CreateDepositAddress generates a fresh deposit address on the asset's
// configured Prime wallet.
func (s *Service) CreateDepositAddress(ctx context.Context, asset string) (*models.DepositAddress, error) {
	cfg, ok := s.assets.Lookup(asset)
	if !ok || cfg.PrimeWalletId == "" {
		return nil, fmt.Errorf("no Prime wallet configured for %s", asset)
	}
	portfolioId, err := s.PortfolioId(ctx)
	if err != nil {
		return nil, err
	}

	response, err := s.walletsSvc.CreateWalletAddress(ctx, &wallets.CreateWalletAddressRequest{
		PortfolioId: portfolioId,
		WalletId:    cfg.PrimeWalletId,
		NetworkId:   cfg.Network,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet address: %w", err)
	}

	return &models.DepositAddress{
		Id:      response.AccountIdentifier,
		Address: response.Address,
		Network: cfg.Network,
		Asset:   cfg.Symbol,
	}, nil
}

// Withdraw submits a blockchain withdrawal. Prime accepts it asynchronously,
// so the returned TxHash is the Prime activity id.
func (s *Service) Withdraw(ctx context.Context, params gateway.WithdrawParams) (*gateway.WithdrawResult, error) {
	cfg, ok := s.assets.Lookup(params.Asset)
	if !ok || cfg.PrimeWalletId == "" {
		return &gateway.WithdrawResult{Success: false, Error: "no Prime wallet configured for " + params.Asset}, nil
	}
	portfolioId, err := s.PortfolioId(ctx)
	if err != nil {
		return nil, err
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       portfolioId,
		SourceWalletId:    cfg.PrimeWalletId,
		Amount:            params.Amount.String(),
		IdempotencyKey:    params.RequestId,
		Symbol:            strings.ToUpper(cfg.Symbol),
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddress(params.Address, networkOr(params.Network, cfg.Network)),
	}

	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("request_id", params.RequestId),
		zap.String("wallet_id", cfg.PrimeWalletId),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount.String()),
		zap.String("destination", params.Address))

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("request_id", params.RequestId),
			zap.String("asset", params.Asset),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("request_id", params.RequestId))

	return &gateway.WithdrawResult{
		Success: true,
		TxHash:  response.ActivityId,
		Fee:     cfg.NetworkFee,
	}, nil
}

// EstimateFee is not offered by the Prime withdrawal API.
func (s *Service) EstimateFee(context.Context, string, string, decimal.Decimal) (*gateway.FeeEstimate, error) {
	return nil, gateway.ErrFeeEstimateUnavailable
}

// blockchainAddress attaches network details when network is given as
// "<id>-<type>", e.g. "ethereum-mainnet".
func blockchainAddress(address, network string) *model.BlockchainAddress {
	addr := &model.BlockchainAddress{Address: address}
	if id, networkType, ok := strings.Cut(network, "-"); ok {
		addr.Network = &model.NetworkDetails{Id: id, Type: networkType}
	}
	return addr
}

func networkOr(network, fallback string) string {
	if network != "" {
		return network
	}
	return fallback
}
