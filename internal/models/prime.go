package models

// Wallet represents a Prime wallet
type Wallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// DepositAddress is an address Prime generated for a user deposit.
type DepositAddress struct {
	Id      string
	Address string
	Network string
	Asset   string
}
