package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"wallet-ledger-go/internal/copytrading"
	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/events"
	"wallet-ledger-go/internal/formance"
	"wallet-ledger-go/internal/gateway"
	"wallet-ledger-go/internal/ledger"
	"wallet-ledger-go/internal/lock"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/prime"
	"wallet-ledger-go/internal/store"
	"wallet-ledger-go/internal/withdrawal"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is everything the server and the CLIs share.
type Services struct {
	DbService   *database.Service
	Primitives  store.Ledger
	Ledger      *ledger.BalanceLedger
	Withdrawals *withdrawal.Service
	CopyTrading *copytrading.Engine
	Publisher   events.Publisher
	Locker      lock.Locker
	Prime       *prime.Service
	Assets      models.AssetRegistry

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the database and wires the domain services.
// NATS, Redis and Prime are optional and only connected when configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Services{DbService: dbService, Primitives: dbService}
	s.closers = append(s.closers, dbService.Close)

	if err := s.connectOptional(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	s.Ledger = ledger.NewBalanceLedger(s.Primitives, dbService, s.Publisher)

	var gw gateway.PaymentGateway
	if s.Prime != nil {
		gw = s.Prime
	}
	s.Withdrawals = withdrawal.NewService(dbService, s.Ledger, gw, s.Assets, s.Publisher)
	s.CopyTrading = copytrading.NewEngine(dbService, s.Ledger, s.Publisher, cfg.CopyTrade)

	zap.L().Info("Services initialized",
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.Bool("events", cfg.Nats.URL != ""),
		zap.Bool("distributed_lock", cfg.Redis.Addr != ""),
		zap.Bool("payment_gateway", gw != nil),
		zap.Int("assets", len(s.Assets)))
	return s, nil
}

func (s *Services) connectOptional(ctx context.Context, cfg *models.Config) error {
	assets, err := LoadAssetRegistry(cfg.AssetsFile)
	if err != nil {
		return err
	}
	s.Assets = assets

	if cfg.Ledger.Backend == "formance" {
		formanceService, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return fmt.Errorf("failed to initialize Formance ledger: %w", err)
		}
		s.Primitives = formanceService
		s.closers = append(s.closers, formanceService.Close)
	}

	s.Publisher = events.NopPublisher{}
	if cfg.Nats.URL != "" {
		publisher, err := events.Connect(ctx, cfg.Nats)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		s.Publisher = publisher
		s.closers = append(s.closers, publisher.Close)
	}

	s.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		locker, err := lock.NewRedisLocker(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.Locker = locker
		s.closers = append(s.closers, locker.Close)
	}

	if cfg.Prime.Enabled() {
		zap.L().Info("Initializing Prime payment gateway", zap.String("portfolio_id", cfg.Prime.PortfolioId))
		primeService, err := prime.NewService(cfg.Prime, assets)
		if err != nil {
			return err
		}
		s.Prime = primeService
	} else {
		zap.L().Info("Prime credentials not set, gateway withdrawals disabled")
	}
	return nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like querying balances.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	dbService.SetMaxRetries(cfg.Ledger.MaxRetries)
	return dbService, nil
}

// Close releases connections in reverse order of opening.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
