package ledger

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

// stores returns every backend available to this test run. PostgreSQL is
// included when DIVIMPORT_TEST_DATABASE_URL points at a scratch database.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{DriverSQLite: newSQLiteStore(t)}

	url := os.Getenv("DIVIMPORT_TEST_DATABASE_URL")
	if url == "" {
		return out
	}
	ctx := context.Background()
	pg, err := OpenPostgres(ctx, url, PoolOptions{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	for _, table := range []string{"log_dividends", "import_runs", "portfolio_account_groups", "brokers", "companies"} {
		_, _ = pg.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
	}
	require.NoError(t, pg.Migrate(ctx))
	out[DriverPostgres] = pg
	return out
}

func testEntry(isin, date, shares, amount string) dividend.Entry {
	d, _ := time.Parse(dateLayout, date)
	return dividend.Entry{
		BatchID:          uuid.New(),
		PaymentDate:      d,
		ISIN:             isin,
		CompanyName:      "Example AB",
		SharesHeld:       decimal.RequireFromString(shares),
		DividendLocal:    decimal.RequireFromString(amount),
		TaxLocal:         decimal.Zero,
		Currency:         "SEK",
		DividendSEK:      decimal.RequireFromString(amount),
		TaxSEK:           decimal.Zero,
		NetSEK:           decimal.RequireFromString(amount),
		ExchangeRate:     decimal.NewFromInt(1),
		TaxRatePercent:   decimal.Zero,
		BrokerFeeSEK:     decimal.Zero,
		BrokerFeePercent: decimal.Zero,
		Complete:         true,
	}
}

// ============================================================================
// Directories
// ============================================================================

func TestStore_Directories(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.UpsertCompany(ctx, "SE0021309614", dividend.Company{Name: "Example AB", Ticker: "EXA"}))
			c, found, err := s.LookupByISIN(ctx, "SE0021309614")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, dividend.Company{Name: "Example AB", Ticker: "EXA"}, c)

			require.NoError(t, s.UpsertCompany(ctx, "SE0021309614", dividend.Company{Name: "Example Holding AB", Ticker: "EXA"}))
			c, _, err = s.LookupByISIN(ctx, "SE0021309614")
			require.NoError(t, err)
			assert.Equal(t, "Example Holding AB", c.Name)

			_, found, err = s.LookupByISIN(ctx, "US0000000000")
			require.NoError(t, err)
			assert.False(t, found)

			id, err := s.UpsertBroker(ctx, "Avanza")
			require.NoError(t, err)
			again, err := s.UpsertBroker(ctx, "Avanza")
			require.NoError(t, err)
			assert.Equal(t, id, again)

			got, found, err := s.LookupBroker(ctx, "Avanza")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, id, got)

			_, found, err = s.LookupBroker(ctx, "avanza")
			require.NoError(t, err)
			assert.False(t, found, "names match exactly")

			gid, err := s.CreateAccountGroup(ctx, "ISK", "test")
			require.NoError(t, err)
			gid2, err := s.CreateAccountGroup(ctx, "ISK", "test")
			require.NoError(t, err)
			assert.Equal(t, gid, gid2)

			lookedUp, found, err := s.LookupAccountGroup(ctx, "ISK")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, gid, lookedUp)
		})
	}
}

// ============================================================================
// Transactions
// ============================================================================

func TestStore_CommitAndRollback(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := testEntry("SE0021309614", "2015-12-02", "37", "23.42")

			tx, err := s.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.Insert(ctx, e))
			found, err := tx.FindByNaturalKey(ctx, e.Key())
			require.NoError(t, err)
			assert.True(t, found, "rows are visible inside their own transaction")
			require.NoError(t, tx.Rollback(ctx))

			found, err = s.FindByNaturalKey(ctx, e.Key())
			require.NoError(t, err)
			assert.False(t, found, "rolled back rows are gone")

			tx, err = s.Begin(ctx)
			require.NoError(t, err)
			gid, err := tx.CreateAccountGroup(ctx, "Pension", dividend.AutoCreatedGroupDescription)
			require.NoError(t, err)
			e.AccountGroupID = &gid
			require.NoError(t, tx.Insert(ctx, e))
			require.NoError(t, tx.RecordImport(ctx, dividend.ImportRun{
				BatchID:   e.BatchID,
				FileName:  "a.csv",
				Imported:  1,
				Policy:    "strict",
				CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			}))
			require.NoError(t, tx.Commit(ctx))
			require.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

			key := e.Key()
			key.DividendLocal = decimal.RequireFromString("23.420")
			found, err = s.FindByNaturalKey(ctx, key)
			require.NoError(t, err)
			assert.True(t, found, "numerically equal amounts match")

			key.SharesHeld = decimal.NewFromInt(38)
			found, err = s.FindByNaturalKey(ctx, key)
			require.NoError(t, err)
			assert.False(t, found)

			_, found, err = s.LookupAccountGroup(ctx, "Pension")
			require.NoError(t, err)
			assert.True(t, found)

			runs, err := s.RecentImports(ctx, 10)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, e.BatchID, runs[0].BatchID)
			assert.Equal(t, "a.csv", runs[0].FileName)
			assert.True(t, runs[0].CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
		})
	}
}

func TestStore_RecentImportsOrder(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			for i, file := range []string{"old.csv", "mid.csv", "new.csv"} {
				tx, err := s.Begin(ctx)
				require.NoError(t, err)
				require.NoError(t, tx.RecordImport(ctx, dividend.ImportRun{
					BatchID:   uuid.New(),
					FileName:  file,
					Policy:    "strict",
					CreatedAt: base.Add(time.Duration(i) * time.Hour),
				}))
				require.NoError(t, tx.Commit(ctx))
			}

			runs, err := s.RecentImports(ctx, 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "new.csv", runs[0].FileName)
			assert.Equal(t, "mid.csv", runs[1].FileName)
		})
	}
}

func TestSQLite_ForeignKeys(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	e := testEntry("SE0021309614", "2015-12-02", "37", "23.42")
	missing := int64(404)
	e.BrokerID = &missing

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = tx.Insert(ctx, e)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "foreign key")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", PoolOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}

// ============================================================================
// End to end through the pipeline
// ============================================================================

const sampleFile = "payment_date;isin;broker;shares_held;dividend_amount_local;tax_amount_local;currency_local;dividend_amount_sek;portfolio_account_group\n" +
	"2015-12-02;SE0021309614;Avanza;37;23,42;0;SEK;156,18;Pension\n" +
	"2016-06-01;SE0021309614;Avanza;37;25,00;0;SEK;170,00;Pension\n" +
	"2016-06-01;SE0021309614;Avanza;0;25,00;0;SEK;170,00;Pension\n"

func TestPipeline_SQLite(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCompany(ctx, "SE0021309614", dividend.Company{Name: "Example AB", Ticker: "EXA"}))
	brokerID, err := s.UpsertBroker(ctx, "Avanza")
	require.NoError(t, err)

	p, err := dividend.New(s, s, s, dividend.Options{})
	require.NoError(t, err)

	b, err := p.Preview(ctx, "sample.csv", strings.NewReader(sampleFile), dividend.Defaults{})
	require.NoError(t, err)
	assert.Equal(t, dividend.Counts{Total: 2, Complete: 2, Rejected: 1}, b.Counts)
	require.NotNil(t, b.Candidates[0].BrokerID)
	assert.Equal(t, brokerID, *b.Candidates[0].BrokerID)

	res, err := p.Confirm(ctx, b, dividend.PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	gid, found, err := s.LookupAccountGroup(ctx, "Pension")
	require.NoError(t, err)
	require.True(t, found, "unknown group is created on import")

	var (
		count      int
		groupCount int
	)
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_dividends").Scan(&count))
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM log_dividends WHERE portfolio_account_group_id = ?", gid).Scan(&groupCount))
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, groupCount)

	var taxSEK string
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT tax_amount_sek FROM log_dividends WHERE payment_date = '2015-12-02'").Scan(&taxSEK))
	assert.Equal(t, "0", taxSEK)

	b, err = p.Preview(ctx, "sample.csv", strings.NewReader(sampleFile), dividend.Defaults{})
	require.NoError(t, err)
	dups, err := p.Duplicates(ctx, b)
	require.NoError(t, err)
	assert.Len(t, dups, 2)

	res, err = p.Confirm(ctx, b, dividend.PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 2, res.Skipped)

	runs, err := p.RecentImports(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Rejected)
}

// failingTx wraps a real transaction and fails the n-th insert.
type failingTx struct {
	dividend.LedgerTx
	n, calls int
}

func (f *failingTx) Insert(ctx context.Context, e dividend.Entry) error {
	f.calls++
	if f.calls == f.n {
		return errors.New("disk full")
	}
	return f.LedgerTx.Insert(ctx, e)
}

type failingLedger struct {
	*SQLiteStore
	n int
}

func (f *failingLedger) Begin(ctx context.Context) (dividend.LedgerTx, error) {
	tx, err := f.SQLiteStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{LedgerTx: tx, n: f.n}, nil
}

func TestPipeline_SQLiteRollback(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertCompany(ctx, "SE0021309614", dividend.Company{Name: "Example AB"}))

	p, err := dividend.New(s, s, &failingLedger{SQLiteStore: s, n: 2}, dividend.Options{})
	require.NoError(t, err)

	b, err := p.Preview(ctx, "sample.csv", strings.NewReader(sampleFile), dividend.Defaults{})
	require.NoError(t, err)

	_, err = p.Confirm(ctx, b, dividend.PolicyStrict)
	var ce *dividend.CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.Line)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_dividends").Scan(&count))
	assert.Zero(t, count)
	_, found, err := s.LookupAccountGroup(ctx, "Pension")
	require.NoError(t, err)
	assert.False(t, found, "group created in the failed transaction is rolled back")
	runs, err := s.RecentImports(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
