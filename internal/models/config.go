package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Ledger     LedgerConfig
	Formance   FormanceConfig
	Server     ServerConfig
	Simulator  SimulatorConfig
	CopyTrade  CopyTradeConfig
	Redis      RedisConfig
	Nats       NatsConfig
	Prime      PrimeConfig
	AssetsFile string
	TraderFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite3 or postgres
	Path            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// LedgerConfig selects the ledger primitives backend
type LedgerConfig struct {
	Backend    string // sql or formance
	MaxRetries int
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// SimulatorConfig holds PnL ticker settings
type SimulatorConfig struct {
	Enabled         bool
	TickInterval    time.Duration
	MaxCatchUpTicks int
	Workers         int
	LockTTL         time.Duration
}

// CopyTradeConfig holds copy-trading settings
type CopyTradeConfig struct {
	ClaimWindow         time.Duration
	ClaimExpiryInterval time.Duration
}

// RedisConfig is optional; an empty Addr disables distributed locking
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NatsConfig is optional; an empty URL disables event publishing
type NatsConfig struct {
	URL    string
	Stream string
}

// PrimeConfig holds Coinbase Prime settings for gateway withdrawals
type PrimeConfig struct {
	AccessKey   string
	Passphrase  string
	SigningKey  string
	PortfolioId string
}

// Enabled reports whether all Prime credentials are present.
func (c PrimeConfig) Enabled() bool {
	return c.AccessKey != "" && c.Passphrase != "" && c.SigningKey != "" && c.PortfolioId != ""
}
