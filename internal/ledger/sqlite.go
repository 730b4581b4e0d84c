package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/JonMunkholm/divimport/internal/logging"
	_ "modernc.org/sqlite"
)

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteTimeLayout has fixed-width fractions so timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteQueries struct {
	db sqlExecer
}

// SQLiteStore is the SQLite Store. It holds a single connection: SQLite
// allows one writer, and an in-memory database lives only as long as its
// connection.
type SQLiteStore struct {
	db *sql.DB
	q  sqliteQueries
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the database at path (":memory:" for a private
// in-memory database) with foreign keys enforced.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLiteStore{db: db, q: sqliteQueries{db: db}}, nil
}

// Migrate creates missing tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logging.FromContext(ctx).Info("database schema ensured", "driver", DriverSQLite)
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LookupByISIN(ctx context.Context, isin string) (dividend.Company, bool, error) {
	return s.q.lookupCompany(ctx, isin)
}

func (s *SQLiteStore) LookupBroker(ctx context.Context, name string) (int64, bool, error) {
	return s.q.lookupID(ctx, "SELECT id FROM brokers WHERE name = ?", name)
}

func (s *SQLiteStore) LookupAccountGroup(ctx context.Context, name string) (int64, bool, error) {
	return s.q.lookupID(ctx, "SELECT id FROM portfolio_account_groups WHERE name = ?", name)
}

func (s *SQLiteStore) CreateAccountGroup(ctx context.Context, name, description string) (int64, error) {
	return s.q.createAccountGroup(ctx, name, description)
}

func (s *SQLiteStore) FindByNaturalKey(ctx context.Context, key dividend.NaturalKey) (bool, error) {
	return s.q.findByNaturalKey(ctx, key)
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, isin string, c dividend.Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (isin, name, ticker) VALUES (?, ?, ?)
		ON CONFLICT (isin) DO UPDATE SET name = excluded.name, ticker = excluded.ticker`,
		isin, c.Name, c.Ticker)
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", isin, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertBroker(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO brokers (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert broker %q: %w", name, err)
	}
	return id, nil
}

// RecentImports lists import runs, newest first.
func (s *SQLiteStore) RecentImports(ctx context.Context, limit int) ([]dividend.ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, file_name, imported, skipped, rejected, policy,
		       ip_address, user_agent, created_at
		FROM import_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var runs []dividend.ImportRun
	for rows.Next() {
		var (
			run       dividend.ImportRun
			batchID   string
			createdAt string
		)
		if err := rows.Scan(&batchID, &run.FileName, &run.Imported, &run.Skipped, &run.Rejected,
			&run.Policy, &run.IPAddress, &run.UserAgent, &createdAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		if run.BatchID, err = parseBatchID(batchID); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid import run timestamp %q: %w", createdAt, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Begin starts the import transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (dividend.LedgerTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, q: sqliteQueries{db: tx}}, nil
}

type sqliteTx struct {
	tx *sql.Tx
	q  sqliteQueries
}

func (t *sqliteTx) FindByNaturalKey(ctx context.Context, key dividend.NaturalKey) (bool, error) {
	return t.q.findByNaturalKey(ctx, key)
}

func (t *sqliteTx) LookupAccountGroup(ctx context.Context, name string) (int64, bool, error) {
	return t.q.lookupID(ctx, "SELECT id FROM portfolio_account_groups WHERE name = ?", name)
}

func (t *sqliteTx) CreateAccountGroup(ctx context.Context, name, description string) (int64, error) {
	return t.q.createAccountGroup(ctx, name, description)
}

func (t *sqliteTx) Insert(ctx context.Context, e dividend.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO log_dividends (
			import_batch_id, payment_date, isin, ticker, company_name,
			broker_id, portfolio_account_group_id,
			shares_held, dividend_amount_local, tax_amount_local, currency_local,
			dividend_amount_sek, tax_amount_sek, net_dividend_sek, exchange_rate_used,
			tax_rate_percent, broker_fee_sek, broker_fee_percent, is_complete
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BatchID.String(), e.PaymentDate.Format(dateLayout), e.ISIN, e.Ticker, e.CompanyName,
		e.BrokerID, e.AccountGroupID,
		e.SharesHeld.String(), e.DividendLocal.String(), e.TaxLocal.String(), e.Currency,
		e.DividendSEK.String(), e.TaxSEK.String(), e.NetSEK.String(), e.ExchangeRate.String(),
		e.TaxRatePercent.String(), e.BrokerFeeSEK.String(), e.BrokerFeePercent.String(), e.Complete,
	)
	return err
}

func (t *sqliteTx) RecordImport(ctx context.Context, run dividend.ImportRun) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO import_runs (batch_id, file_name, imported, skipped, rejected, policy, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.BatchID.String(), run.FileName, run.Imported, run.Skipped, run.Rejected,
		run.Policy, run.IPAddress, run.UserAgent, run.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	return err
}

func (t *sqliteTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (q sqliteQueries) lookupCompany(ctx context.Context, isin string) (dividend.Company, bool, error) {
	var c dividend.Company
	err := q.db.QueryRowContext(ctx, "SELECT name, ticker FROM companies WHERE isin = ?", isin).Scan(&c.Name, &c.Ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return dividend.Company{}, false, nil
	}
	if err != nil {
		return dividend.Company{}, false, fmt.Errorf("look up company %s: %w", isin, err)
	}
	return c, true, nil
}

func (q sqliteQueries) lookupID(ctx context.Context, query, name string) (int64, bool, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, query, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (q sqliteQueries) createAccountGroup(ctx context.Context, name, description string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO portfolio_account_groups (name, description) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id`, name, description).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// findByNaturalKey compares canonical decimal strings; decimal.String
// drops trailing zeros, so 23.4 and 23.40 match.
func (q sqliteQueries) findByNaturalKey(ctx context.Context, key dividend.NaturalKey) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM log_dividends
			WHERE isin = ? AND payment_date = ? AND shares_held = ? AND dividend_amount_local = ?
		)`, key.ISIN, key.PaymentDate.Format(dateLayout), key.SharesHeld.String(), key.DividendLocal.String()).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
