package database

// Schema is the full ledger DDL. Exported so package tests can build
// in-memory databases against the real table definitions.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	github_login TEXT UNIQUE NOT NULL,
	github_id INTEGER,
	wallet_address TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS repos (
	id TEXT PRIMARY KEY,
	github_repo_id INTEGER UNIQUE NOT NULL,
	full_name TEXT NOT NULL,
	owner_user_id TEXT NOT NULL,
	installation_id INTEGER,
	webhook_secret TEXT NOT NULL,
	auto_pay_enabled INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS access_keys (
	id TEXT PRIMARY KEY,
	funder_user_id TEXT NOT NULL,
	token_address TEXT NOT NULL,
	limit_amount INTEGER NOT NULL,
	spent_amount INTEGER NOT NULL DEFAULT 0,
	single_use INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_keys_funder ON access_keys(funder_user_id, status);

CREATE TABLE IF NOT EXISTS bounties (
	id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	github_repo_id INTEGER NOT NULL,
	issue_number INTEGER NOT NULL,
	github_issue_id INTEGER,
	title TEXT,
	body TEXT,
	labels TEXT,
	total_funded INTEGER NOT NULL,
	token_address TEXT NOT NULL,
	funder_user_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	approved_at INTEGER,
	paid_at INTEGER,
	cancelled_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bounties_repo_issue ON bounties(github_repo_id, issue_number);

CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	bounty_id TEXT NOT NULL,
	contributor_user_id TEXT,
	contributor_login TEXT NOT NULL,
	pr_number INTEGER NOT NULL,
	github_pr_id INTEGER,
	pr_url TEXT,
	pr_title TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	merged_at INTEGER,
	rejected_at INTEGER,
	paid_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(bounty_id, pr_number)
);
CREATE INDEX IF NOT EXISTS idx_submissions_bounty ON submissions(bounty_id, status);

CREATE TABLE IF NOT EXISTS payouts (
	id TEXT PRIMARY KEY,
	bounty_id TEXT,
	submission_id TEXT,
	payer_user_id TEXT NOT NULL,
	recipient_user_id TEXT,
	recipient_login TEXT,
	recipient_address TEXT,
	amount INTEGER NOT NULL,
	token_address TEXT NOT NULL,
	memo_issue_number INTEGER,
	memo_pr_number INTEGER,
	memo_text TEXT,
	tx_hash TEXT,
	block_number INTEGER,
	status TEXT NOT NULL DEFAULT 'created',
	error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payouts_payer_status ON payouts(payer_user_id, status);

CREATE TABLE IF NOT EXISTS pending_payments (
	id TEXT PRIMARY KEY,
	recipient_login TEXT NOT NULL,
	recipient_github_id INTEGER,
	amount INTEGER NOT NULL,
	token_address TEXT NOT NULL,
	bounty_id TEXT,
	submission_id TEXT,
	funder_user_id TEXT NOT NULL,
	access_key_id TEXT NOT NULL,
	claim_token TEXT UNIQUE NOT NULL,
	claimed_payout_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_payments_recipient ON pending_payments(recipient_login, status);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id TEXT PRIMARY KEY,
	delivery_id TEXT,
	event_type TEXT NOT NULL,
	action TEXT,
	github_repo_id INTEGER,
	installation_id INTEGER,
	status TEXT NOT NULL,
	error TEXT,
	summary TEXT,
	created_at INTEGER NOT NULL,
	processed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_delivery ON webhook_deliveries(delivery_id);
`
