package ledger

// Natural-key lookups use a plain index: the "allow" duplicate policy may
// store the same key twice.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		isin       TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		ticker     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS brokers (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio_account_groups (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS log_dividends (
		id                          BIGSERIAL PRIMARY KEY,
		import_batch_id             UUID NOT NULL,
		payment_date                DATE NOT NULL,
		isin                        TEXT NOT NULL,
		ticker                      TEXT NOT NULL DEFAULT '',
		company_name                TEXT NOT NULL,
		broker_id                   BIGINT REFERENCES brokers(id),
		portfolio_account_group_id  BIGINT REFERENCES portfolio_account_groups(id),
		shares_held                 NUMERIC NOT NULL,
		dividend_amount_local       NUMERIC NOT NULL,
		tax_amount_local            NUMERIC NOT NULL,
		currency_local              TEXT NOT NULL DEFAULT '',
		dividend_amount_sek         NUMERIC NOT NULL,
		tax_amount_sek              NUMERIC NOT NULL,
		net_dividend_sek            NUMERIC NOT NULL,
		exchange_rate_used          NUMERIC NOT NULL,
		tax_rate_percent            NUMERIC NOT NULL,
		broker_fee_sek              NUMERIC NOT NULL,
		broker_fee_percent          NUMERIC NOT NULL,
		is_complete                 BOOLEAN NOT NULL,
		created_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS log_dividends_natural_key
		ON log_dividends (isin, payment_date, shares_held, dividend_amount_local)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		id          BIGSERIAL PRIMARY KEY,
		batch_id    UUID NOT NULL,
		file_name   TEXT NOT NULL,
		imported    INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		rejected    INTEGER NOT NULL,
		policy      TEXT NOT NULL,
		ip_address  TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
}

// SQLite keeps decimals as canonical decimal strings and dates as
// YYYY-MM-DD text, so equality on the natural key is string equality.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		isin       TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		ticker     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS brokers (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio_account_groups (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS log_dividends (
		id                          INTEGER PRIMARY KEY AUTOINCREMENT,
		import_batch_id             TEXT NOT NULL,
		payment_date                TEXT NOT NULL,
		isin                        TEXT NOT NULL,
		ticker                      TEXT NOT NULL DEFAULT '',
		company_name                TEXT NOT NULL,
		broker_id                   INTEGER REFERENCES brokers(id),
		portfolio_account_group_id  INTEGER REFERENCES portfolio_account_groups(id),
		shares_held                 TEXT NOT NULL,
		dividend_amount_local       TEXT NOT NULL,
		tax_amount_local            TEXT NOT NULL,
		currency_local              TEXT NOT NULL DEFAULT '',
		dividend_amount_sek         TEXT NOT NULL,
		tax_amount_sek              TEXT NOT NULL,
		net_dividend_sek            TEXT NOT NULL,
		exchange_rate_used          TEXT NOT NULL,
		tax_rate_percent            TEXT NOT NULL,
		broker_fee_sek              TEXT NOT NULL,
		broker_fee_percent          TEXT NOT NULL,
		is_complete                 INTEGER NOT NULL,
		created_at                  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS log_dividends_natural_key
		ON log_dividends (isin, payment_date, shares_held, dividend_amount_local)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id    TEXT NOT NULL,
		file_name   TEXT NOT NULL,
		imported    INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		rejected    INTEGER NOT NULL,
		policy      TEXT NOT NULL,
		ip_address  TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,
}
