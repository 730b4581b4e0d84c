package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/JonMunkholm/divimport/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same queries
// run inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgQueries holds the SQL shared by the pool and transactions.
type pgQueries struct {
	db DBTX
}

// PostgresStore is the PostgreSQL Store.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    pgQueries
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres creates a pool from url and pings it.
func OpenPostgres(ctx context.Context, url string, opts PoolOptions) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pgQueries{db: pool}}
}

// Migrate creates missing tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logging.FromContext(ctx).Info("database schema ensured", "driver", DriverPostgres)
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LookupByISIN(ctx context.Context, isin string) (dividend.Company, bool, error) {
	return s.q.lookupCompany(ctx, isin)
}

func (s *PostgresStore) LookupBroker(ctx context.Context, name string) (int64, bool, error) {
	return s.q.lookupID(ctx, "SELECT id FROM brokers WHERE name = $1", name)
}

func (s *PostgresStore) LookupAccountGroup(ctx context.Context, name string) (int64, bool, error) {
	return s.q.lookupID(ctx, "SELECT id FROM portfolio_account_groups WHERE name = $1", name)
}

func (s *PostgresStore) CreateAccountGroup(ctx context.Context, name, description string) (int64, error) {
	return s.q.createAccountGroup(ctx, name, description)
}

func (s *PostgresStore) FindByNaturalKey(ctx context.Context, key dividend.NaturalKey) (bool, error) {
	return s.q.findByNaturalKey(ctx, key)
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, isin string, c dividend.Company) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (isin, name, ticker) VALUES ($1, $2, $3)
		ON CONFLICT (isin) DO UPDATE SET name = EXCLUDED.name, ticker = EXCLUDED.ticker`,
		isin, c.Name, c.Ticker)
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", isin, err)
	}
	return nil
}

func (s *PostgresStore) UpsertBroker(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO brokers (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert broker %q: %w", name, err)
	}
	return id, nil
}

// RecentImports lists import runs, newest first.
func (s *PostgresStore) RecentImports(ctx context.Context, limit int) ([]dividend.ImportRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id::text, file_name, imported, skipped, rejected, policy,
		       ip_address, user_agent, created_at
		FROM import_runs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var runs []dividend.ImportRun
	for rows.Next() {
		var (
			run     dividend.ImportRun
			batchID string
		)
		if err := rows.Scan(&batchID, &run.FileName, &run.Imported, &run.Skipped, &run.Rejected,
			&run.Policy, &run.IPAddress, &run.UserAgent, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		if run.BatchID, err = parseBatchID(batchID); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Begin starts the import transaction.
func (s *PostgresStore) Begin(ctx context.Context) (dividend.LedgerTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, q: pgQueries{db: tx}}, nil
}

type pgTx struct {
	tx pgx.Tx
	q  pgQueries
}

func (t *pgTx) FindByNaturalKey(ctx context.Context, key dividend.NaturalKey) (bool, error) {
	return t.q.findByNaturalKey(ctx, key)
}

func (t *pgTx) LookupAccountGroup(ctx context.Context, name string) (int64, bool, error) {
	return t.q.lookupID(ctx, "SELECT id FROM portfolio_account_groups WHERE name = $1", name)
}

func (t *pgTx) CreateAccountGroup(ctx context.Context, name, description string) (int64, error) {
	return t.q.createAccountGroup(ctx, name, description)
}

func (t *pgTx) Insert(ctx context.Context, e dividend.Entry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO log_dividends (
			import_batch_id, payment_date, isin, ticker, company_name,
			broker_id, portfolio_account_group_id,
			shares_held, dividend_amount_local, tax_amount_local, currency_local,
			dividend_amount_sek, tax_amount_sek, net_dividend_sek, exchange_rate_used,
			tax_rate_percent, broker_fee_sek, broker_fee_percent, is_complete
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		e.BatchID.String(), e.PaymentDate, e.ISIN, e.Ticker, e.CompanyName,
		e.BrokerID, e.AccountGroupID,
		e.SharesHeld, e.DividendLocal, e.TaxLocal, e.Currency,
		e.DividendSEK, e.TaxSEK, e.NetSEK, e.ExchangeRate,
		e.TaxRatePercent, e.BrokerFeeSEK, e.BrokerFeePercent, e.Complete,
	)
	return err
}

func (t *pgTx) RecordImport(ctx context.Context, run dividend.ImportRun) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO import_runs (batch_id, file_name, imported, skipped, rejected, policy, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.BatchID.String(), run.FileName, run.Imported, run.Skipped, run.Rejected,
		run.Policy, run.IPAddress, run.UserAgent, run.CreatedAt,
	)
	return err
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (q pgQueries) lookupCompany(ctx context.Context, isin string) (dividend.Company, bool, error) {
	var c dividend.Company
	err := q.db.QueryRow(ctx, "SELECT name, ticker FROM companies WHERE isin = $1", isin).Scan(&c.Name, &c.Ticker)
	if errors.Is(err, pgx.ErrNoRows) {
		return dividend.Company{}, false, nil
	}
	if err != nil {
		return dividend.Company{}, false, fmt.Errorf("look up company %s: %w", isin, err)
	}
	return c, true, nil
}

func (q pgQueries) lookupID(ctx context.Context, query, name string) (int64, bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, query, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// createAccountGroup returns the existing id when another import created
// the same name first.
func (q pgQueries) createAccountGroup(ctx context.Context, name, description string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO portfolio_account_groups (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name, description).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (q pgQueries) findByNaturalKey(ctx context.Context, key dividend.NaturalKey) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM log_dividends
			WHERE isin = $1 AND payment_date = $2 AND shares_held = $3 AND dividend_amount_local = $4
		)`, key.ISIN, key.PaymentDate, key.SharesHeld, key.DividendLocal).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
