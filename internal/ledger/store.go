// Package ledger stores dividends and the reference data the import
// pipeline resolves against.
//
// Two backends implement the same Store: PostgreSQL through a pgx pool for
// deployments, and SQLite (pure Go, no cgo) for tests and single-user
// installs. Both write a confirmed batch inside one transaction.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/google/uuid"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is everything the service needs from persistence.
type Store interface {
	dividend.CompanyDirectory
	dividend.BrokerDirectory
	dividend.Ledger

	// UpsertCompany adds or renames a company keyed by ISIN.
	UpsertCompany(ctx context.Context, isin string, c dividend.Company) error
	// UpsertBroker returns the id of the named broker, adding it if needed.
	UpsertBroker(ctx context.Context, name string) (int64, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// PoolOptions size the connection pool. Zero values keep driver defaults.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the store named by driver and verifies the connection.
func Open(ctx context.Context, driver, url string, opts PoolOptions) (Store, error) {
	switch driver {
	case DriverPostgres, "":
		return OpenPostgres(ctx, url, opts)
	case DriverSQLite:
		return OpenSQLite(ctx, url)
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

// dateLayout is how payment dates are written where the column is text.
const dateLayout = "2006-01-02"

func parseBatchID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid batch id %q: %w", s, err)
	}
	return id, nil
}
