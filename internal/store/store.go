package store

import (
	"context"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Ledger is the set of atomic balance primitives. Each mutating call either
// fully applies or fully fails, and rejects any result that would break
// 0 <= locked_balance <= balance. Backends must provide atomicity at the
// data-store boundary so that multiple server instances can share a ledger.
type Ledger interface {
	Credit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error)
	Debit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error)
	Lock(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.Balance, error)
	Unlock(ctx context.Context, userId, asset string, amount decimal.Decimal, deduct bool) (*models.Balance, error)
	GetBalance(ctx context.Context, userId, asset string) (*models.Balance, error)
}

// StoreAddressParams contains the parameters for storing a deposit address.
type StoreAddressParams struct {
	UserId  string
	Asset   string
	Network string
	Address string
}

// UserStore manages users and their deposit addresses.
type UserStore interface {
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	StoreAddress(ctx context.Context, params StoreAddressParams) (*models.Address, error)
	GetAllUserAddresses(ctx context.Context, userId string) ([]models.Address, error)
	// FindUserByAddress returns ErrNotFound when no user owns address for asset.
	FindUserByAddress(ctx context.Context, address, asset string) (*models.User, *models.Address, error)
}

// TransactionStore manages the audit trail.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id, status string, metadata map[string]string) error
	GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error)
}

// WithdrawalTransitionParams describes a compare-and-set status change.
// Optional fields are written only when non-empty.
type WithdrawalTransitionParams struct {
	Id                string
	From              []string
	To                string
	ProcessingType    string
	ReviewedBy        string
	TxHash            string
	Fee               *decimal.Decimal
	FailureReason     string
	TransactionStatus string
	// Actions are enqueued in the same database transaction as the change,
	// and Record, when set, is inserted there too.
	Actions []*models.LedgerAction
	Record  *models.Transaction
	Now     time.Time
}

// WithdrawalStore persists withdrawal requests.
type WithdrawalStore interface {
	TransactionStore
	FindUserByAddress(ctx context.Context, address, asset string) (*models.User, *models.Address, error)
	// CreateWithdrawal inserts the transaction and the request atomically.
	CreateWithdrawal(ctx context.Context, tx *models.Transaction, req *models.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	// TransitionWithdrawal fails with ErrInvalidState when the current status
	// is not one of params.From.
	TransitionWithdrawal(ctx context.Context, params WithdrawalTransitionParams) (*models.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status string, updatedBefore time.Time) ([]models.WithdrawalRequest, error)
}

// OpenPositionParams describes the atomic position open.
type OpenPositionParams struct {
	Position    *models.CopyPosition
	Transaction *models.Transaction
	// ClaimEntryId, when set, marks that waitlist entry claimed in the same
	// database transaction; the entry must still be notified and unexpired.
	ClaimEntryId string
	Now          time.Time
}

// ClosePositionParams describes the atomic position close.
type ClosePositionParams struct {
	PositionId string
	UserId     string
	Now        time.Time
}

// ClosePositionResult is what ClosePosition committed.
type ClosePositionResult struct {
	Position    *models.CopyPosition
	Transaction *models.Transaction
	// Payout is nil when the loss absorbed the whole allocation.
	Payout *models.LedgerAction
}

// PnlUpdateParams is a version-checked PnL write from the simulator.
type PnlUpdateParams struct {
	PositionId string
	Version    int64
	CurrentPnl decimal.Decimal
	Momentum   float64
	TickAt     time.Time
}

// CopyTradingStore persists traders, positions and the waitlist. Trader
// counters change only inside OpenPosition and ClosePosition.
type CopyTradingStore interface {
	UpsertTrader(ctx context.Context, trader *models.Trader) error
	GetTrader(ctx context.Context, id string) (*models.Trader, error)
	ListTraders(ctx context.Context) ([]models.Trader, error)

	GetPosition(ctx context.Context, id string) (*models.CopyPosition, error)
	GetActivePosition(ctx context.Context, userId, traderId string) (*models.CopyPosition, error)
	ListActivePositions(ctx context.Context) ([]models.CopyPosition, error)
	OpenPosition(ctx context.Context, params OpenPositionParams) error
	ClosePosition(ctx context.Context, params ClosePositionParams) (*ClosePositionResult, error)
	// UpdatePositionPnl returns false when the position changed or stopped
	// since it was read.
	UpdatePositionPnl(ctx context.Context, params PnlUpdateParams) (bool, error)

	AddToWaitlist(ctx context.Context, entry *models.WaitlistEntry) error
	GetWaitlistEntryByToken(ctx context.Context, token string) (*models.WaitlistEntry, error)
	MarkWaitlistExpired(ctx context.Context, id string, now time.Time) error
	// OfferNextWaitlistSlot assigns token to the oldest waiting entry of the
	// trader. It returns ErrNotFound when nobody is waiting.
	OfferNextWaitlistSlot(ctx context.Context, traderId, token string, expiresAt, now time.Time) (*models.WaitlistEntry, error)
	ListExpiredClaims(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error)

	UpdateTransactionStatus(ctx context.Context, id, status string, metadata map[string]string) error
}

// ActionStore is the durable outbox of ledger follow-ups.
type ActionStore interface {
	InsertLedgerAction(ctx context.Context, action *models.LedgerAction) error
	GetLedgerAction(ctx context.Context, id string) (*models.LedgerAction, error)
	// MarkLedgerAction records an attempt outcome and bumps attempts.
	MarkLedgerAction(ctx context.Context, id, status, lastError string) error
	ListLedgerActions(ctx context.Context, statuses ...string) ([]models.LedgerAction, error)
}

// ReconcileStore exposes what reconciliation needs to recompute balances.
type ReconcileStore interface {
	ListBalances(ctx context.Context) ([]models.Balance, error)
	GetAllUserBalances(ctx context.Context, userId string) ([]models.Balance, error)
	GetJournal(ctx context.Context, userId, asset string) ([]models.JournalEntry, error)
}

// WalletStore is everything the SQL backend provides.
type WalletStore interface {
	Ledger
	UserStore
	WithdrawalStore
	CopyTradingStore
	ActionStore
	ReconcileStore

	Ping(ctx context.Context) error
	Close()
}
