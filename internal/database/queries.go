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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = TRUE
		ORDER BY created_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, active, created_at, updated_at)
		VALUES (?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = TRUE`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = TRUE`

	// Address queries
	queryInsertAddress = `
		INSERT INTO addresses (id, user_id, asset, network, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, user_id, asset, network, address, created_at`

	queryGetAllUserAddresses = `
		SELECT id, user_id, asset, network, address, created_at
		FROM addresses
		WHERE user_id = ?
		ORDER BY asset, created_at DESC`

	queryFindUserByAddress = `
		SELECT u.id, u.name, u.email, u.created_at, u.updated_at,
		       a.id, a.user_id, a.asset, a.network, a.address, a.created_at
		FROM users u
		JOIN addresses a ON u.id = a.user_id
		WHERE LOWER(a.address) = LOWER(?) AND a.asset = ? AND u.active = TRUE`

	// Balance queries
	queryGetBalanceRow = `
		SELECT user_id, asset, balance, locked_balance, version, updated_at
		FROM balances
		WHERE user_id = ? AND asset = ?`

	queryInsertBalanceRow = `
		INSERT INTO balances (user_id, asset, balance, locked_balance, version, updated_at)
		VALUES (?, ?, '0', '0', 1, ?)
		ON CONFLICT (user_id, asset) DO NOTHING`

	queryUpdateBalanceRow = `
		UPDATE balances
		SET balance = ?, locked_balance = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND asset = ? AND version = ?`

	queryListBalances = `
		SELECT user_id, asset, balance, locked_balance, version, updated_at
		FROM balances
		ORDER BY user_id, asset`

	queryGetAllUserBalances = `
		SELECT user_id, asset, balance, locked_balance, version, updated_at
		FROM balances
		WHERE user_id = ?
		ORDER BY asset`

	queryCheckJournalReference = `
		SELECT id FROM balance_journal WHERE reference = ? LIMIT 1`

	queryInsertJournalEntry = `
		INSERT INTO balance_journal (
			id, user_id, asset, operation, amount,
			balance_before, balance_after, locked_before, locked_after, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetJournal = `
		SELECT id, user_id, asset, operation, amount,
		       balance_before, balance_after, locked_before, locked_after, COALESCE(reference, ''), created_at
		FROM balance_journal
		WHERE user_id = ? AND asset = ?
		ORDER BY created_at, id`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (id, user_id, type, asset, amount, status, metadata, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT id, user_id, type, asset, amount, status, metadata, created_at, completed_at
		FROM transactions
		WHERE id = ?`

	queryUpdateTransactionStatus = `
		UPDATE transactions
		SET status = ?, metadata = ?, completed_at = ?
		WHERE id = ?`

	queryGetTransactionHistory = `
		SELECT id, user_id, type, asset, amount, status, metadata, created_at, completed_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	// Withdrawal queries
	withdrawalColumns = `
		id, transaction_id, user_id, asset, network, amount, to_address, status,
		is_internal_transfer, COALESCE(recipient_user_id, ''), COALESCE(processing_type, ''),
		COALESCE(tx_hash, ''), fee, COALESCE(failure_reason, ''), COALESCE(reviewed_by, ''),
		created_at, updated_at`

	queryInsertWithdrawal = `
		INSERT INTO withdrawal_requests (
			id, transaction_id, user_id, asset, network, amount, to_address, status,
			is_internal_transfer, recipient_user_id, processing_type, fee, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWithdrawal = `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE id = ?`

	queryListWithdrawalsByStatus = `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at`

	queryUpdateWithdrawal = `
		UPDATE withdrawal_requests
		SET status = ?, processing_type = ?, reviewed_by = ?, tx_hash = ?, fee = ?,
		    failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	// Trader queries
	traderColumns = `
		id, name, max_copiers, current_copiers, aum_usdt, risk_level,
		historical_roi_min, historical_roi_max, max_drawdown, version`

	queryUpsertTrader = `
		INSERT INTO traders (` + traderColumns + `)
		VALUES (?, ?, ?, 0, '0', ?, ?, ?, ?, 1)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			max_copiers = excluded.max_copiers,
			risk_level = excluded.risk_level,
			historical_roi_min = excluded.historical_roi_min,
			historical_roi_max = excluded.historical_roi_max,
			max_drawdown = excluded.max_drawdown,
			version = traders.version + 1`

	queryGetTrader = `SELECT ` + traderColumns + `
		FROM traders
		WHERE id = ?`

	queryListTraders = `SELECT ` + traderColumns + `
		FROM traders
		ORDER BY name`

	queryUpdateTraderCounters = `
		UPDATE traders
		SET current_copiers = ?, aum_usdt = ?, version = version + 1
		WHERE id = ? AND version = ?`

	// Position queries
	positionColumns = `
		id, user_id, trader_id, allocation_usdt, current_pnl, momentum, daily_pnl_rate,
		status, started_at, stopped_at, final_pnl, last_tick_at, version`

	queryInsertPosition = `
		INSERT INTO copy_positions (
			id, user_id, trader_id, allocation_usdt, current_pnl, momentum, daily_pnl_rate,
			status, started_at, last_tick_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	queryGetPosition = `SELECT ` + positionColumns + `
		FROM copy_positions
		WHERE id = ?`

	queryGetActivePosition = `SELECT ` + positionColumns + `
		FROM copy_positions
		WHERE user_id = ? AND trader_id = ? AND status = 'active'`

	queryListActivePositions = `SELECT ` + positionColumns + `
		FROM copy_positions
		WHERE status = 'active'
		ORDER BY trader_id, started_at`

	queryStopPosition = `
		UPDATE copy_positions
		SET status = 'stopped', stopped_at = ?, final_pnl = ?, version = version + 1
		WHERE id = ? AND status = 'active' AND version = ?`

	queryUpdatePositionPnl = `
		UPDATE copy_positions
		SET current_pnl = ?, momentum = ?, last_tick_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'active'`

	// Waitlist queries
	waitlistColumns = `
		id, user_id, trader_id, status, COALESCE(claim_token, ''), claim_expires_at, created_at, updated_at`

	queryInsertWaitlistEntry = `
		INSERT INTO copy_waitlist (id, user_id, trader_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetWaitlistByToken = `SELECT ` + waitlistColumns + `
		FROM copy_waitlist
		WHERE claim_token = ?`

	queryNextWaitingEntry = `SELECT ` + waitlistColumns + `
		FROM copy_waitlist
		WHERE trader_id = ? AND status = 'waiting'
		ORDER BY created_at, id
		LIMIT 1`

	queryOfferWaitlistSlot = `
		UPDATE copy_waitlist
		SET status = 'notified', claim_token = ?, claim_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = 'waiting'`

	queryClaimWaitlistEntry = `
		UPDATE copy_waitlist
		SET status = 'claimed', updated_at = ?
		WHERE id = ? AND status = 'notified' AND claim_expires_at >= ?`

	queryExpireWaitlistEntry = `
		UPDATE copy_waitlist
		SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'notified'`

	queryListExpiredClaims = `SELECT ` + waitlistColumns + `
		FROM copy_waitlist
		WHERE status = 'notified' AND claim_expires_at < ?
		ORDER BY claim_expires_at`

	// Ledger action queries
	actionColumns = `
		id, kind, user_id, asset, amount, reason, status, attempts, last_error, created_at, updated_at`

	queryInsertLedgerAction = `
		INSERT INTO ledger_actions (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`

	queryGetLedgerAction = `SELECT ` + actionColumns + `
		FROM ledger_actions
		WHERE id = ?`

	queryMarkLedgerAction = `
		UPDATE ledger_actions
		SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`
)
