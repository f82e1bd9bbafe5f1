/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

// Decimal columns are TEXT on SQLite so values round-trip exactly through
// shopspring/decimal; arithmetic never happens in SQL.
const schemaTemplate = `
	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{TIMESTAMP}} NOT NULL,
		updated_at {{TIMESTAMP}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	-- Deposit addresses, used for internal transfer detection
	CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		asset TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL,
		created_at {{TIMESTAMP}} NOT NULL,
		UNIQUE(address, asset)
	);

	CREATE INDEX IF NOT EXISTS idx_addresses_user ON addresses(user_id);

	-- Balances (owned by the ledger primitives)
	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		balance {{DECIMAL}} NOT NULL,
		locked_balance {{DECIMAL}} NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at {{TIMESTAMP}} NOT NULL,
		PRIMARY KEY (user_id, asset)
	);

	-- One row per applied primitive
	CREATE TABLE IF NOT EXISTS balance_journal (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		operation TEXT NOT NULL,
		amount {{DECIMAL}} NOT NULL,
		balance_before {{DECIMAL}} NOT NULL,
		balance_after {{DECIMAL}} NOT NULL,
		locked_before {{DECIMAL}} NOT NULL,
		locked_after {{DECIMAL}} NOT NULL,
		reference TEXT,
		created_at {{TIMESTAMP}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_journal_user_asset ON balance_journal(user_id, asset);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_balance_journal_reference ON balance_journal(reference);

	-- Transactions (audit trail)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount {{DECIMAL}} NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at {{TIMESTAMP}} NOT NULL,
		completed_at {{TIMESTAMP}}
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);

	-- Withdrawal requests
	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions(id),
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		network TEXT NOT NULL,
		amount {{DECIMAL}} NOT NULL,
		to_address TEXT NOT NULL,
		status TEXT NOT NULL,
		is_internal_transfer BOOLEAN NOT NULL DEFAULT FALSE,
		recipient_user_id TEXT,
		processing_type TEXT,
		tx_hash TEXT,
		fee {{DECIMAL}} NOT NULL,
		failure_reason TEXT,
		reviewed_by TEXT,
		created_at {{TIMESTAMP}} NOT NULL,
		updated_at {{TIMESTAMP}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_user ON withdrawal_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_status ON withdrawal_requests(status, updated_at);

	-- Traders
	CREATE TABLE IF NOT EXISTS traders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		max_copiers INTEGER NOT NULL,
		current_copiers INTEGER NOT NULL DEFAULT 0,
		aum_usdt {{DECIMAL}} NOT NULL,
		risk_level TEXT NOT NULL,
		historical_roi_min {{DECIMAL}} NOT NULL,
		historical_roi_max {{DECIMAL}} NOT NULL,
		max_drawdown {{DECIMAL}} NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	-- Copy positions
	CREATE TABLE IF NOT EXISTS copy_positions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		trader_id TEXT NOT NULL REFERENCES traders(id),
		allocation_usdt {{DECIMAL}} NOT NULL,
		current_pnl {{DECIMAL}} NOT NULL,
		momentum {{REAL}} NOT NULL DEFAULT 0,
		daily_pnl_rate {{DECIMAL}} NOT NULL,
		status TEXT NOT NULL,
		started_at {{TIMESTAMP}} NOT NULL,
		stopped_at {{TIMESTAMP}},
		final_pnl {{DECIMAL}},
		last_tick_at {{TIMESTAMP}} NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_copy_positions_one_active
		ON copy_positions(user_id, trader_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_copy_positions_status ON copy_positions(status);

	-- Waitlist
	CREATE TABLE IF NOT EXISTS copy_waitlist (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		trader_id TEXT NOT NULL REFERENCES traders(id),
		status TEXT NOT NULL,
		claim_token TEXT UNIQUE,
		claim_expires_at {{TIMESTAMP}},
		created_at {{TIMESTAMP}} NOT NULL,
		updated_at {{TIMESTAMP}} NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_copy_waitlist_one_open
		ON copy_waitlist(user_id, trader_id) WHERE status IN ('waiting', 'notified');
	CREATE INDEX IF NOT EXISTS idx_copy_waitlist_trader ON copy_waitlist(trader_id, status, created_at);

	-- Durable ledger follow-ups (compensations and settlements)
	CREATE TABLE IF NOT EXISTS ledger_actions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount {{DECIMAL}} NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at {{TIMESTAMP}} NOT NULL,
		updated_at {{TIMESTAMP}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_actions_status ON ledger_actions(status);
`
