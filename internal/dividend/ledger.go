package dividend

import "context"

// Ledger is the persistent store of accepted dividends.
type Ledger interface {
	// FindByNaturalKey reports whether an entry with key already exists.
	FindByNaturalKey(ctx context.Context, key NaturalKey) (bool, error)
	// Begin opens the transaction a whole batch is committed in.
	Begin(ctx context.Context) (LedgerTx, error)
	// RecentImports lists committed import runs, newest first.
	RecentImports(ctx context.Context, limit int) ([]ImportRun, error)
}

// LedgerTx is one all-or-nothing ledger transaction. Lookups inside it see
// rows inserted earlier in the same transaction.
type LedgerTx interface {
	FindByNaturalKey(ctx context.Context, key NaturalKey) (bool, error)
	LookupAccountGroup(ctx context.Context, name string) (int64, bool, error)
	CreateAccountGroup(ctx context.Context, name, description string) (int64, error)
	Insert(ctx context.Context, e Entry) error
	RecordImport(ctx context.Context, run ImportRun) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
