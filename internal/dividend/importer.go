package dividend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/divimport/internal/logging"
)

// AutoCreatedGroupDescription is stored on account groups the importer
// creates for names it could not resolve.
const AutoCreatedGroupDescription = "Auto-created during dividend import"

// Importer commits a confirmed batch inside one ledger transaction.
type Importer struct {
	ledger Ledger
	now    func() time.Time
}

// NewImporter creates an importer over ledger.
func NewImporter(ledger Ledger) *Importer {
	return &Importer{ledger: ledger, now: time.Now}
}

// Import writes every non-rejected, non-duplicate row of b. Any failure rolls
// the whole transaction back and is returned as a *CommitError; no partial
// import is ever visible.
func (im *Importer) Import(ctx context.Context, b *Batch, policy DuplicatePolicy) (ImportResult, error) {
	rows := b.Importable()
	if len(rows) == 0 {
		return ImportResult{}, ErrNoImportableRows
	}

	logger := logging.WithFields(ctx, "batch_id", b.ID.String(), "file", b.FileName, "policy", string(policy))

	tx, err := im.ledger.Begin(ctx)
	if err != nil {
		return ImportResult{}, &CommitError{BatchID: b.ID.String(), Err: fmt.Errorf("begin transaction: %w", err)}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error("rollback failed", "error", rbErr)
		}
	}()

	fail := func(c Candidate, err error) error {
		logger.Error("import failed, rolling back", "line", c.Line, "isin", c.ISIN, "error", err)
		return &CommitError{BatchID: b.ID.String(), Line: c.Line, ISIN: c.ISIN, Err: err}
	}

	result := ImportResult{BatchID: b.ID}
	groups := make(map[string]int64)

	for _, c := range rows {
		if policy != PolicyAllow {
			found, err := tx.FindByNaturalKey(ctx, c.Key())
			if err != nil {
				return ImportResult{}, fail(c, fmt.Errorf("check duplicate: %w", err))
			}
			if found {
				result.Skipped++
				if policy == PolicyStrict {
					result.Duplicates = append(result.Duplicates, Duplicate{Line: c.Line, Key: c.Key()})
				}
				continue
			}
		}

		groupID, err := im.accountGroup(ctx, tx, c, groups, logger)
		if err != nil {
			return ImportResult{}, fail(c, err)
		}

		if err := tx.Insert(ctx, entryFor(b, c, groupID)); err != nil {
			return ImportResult{}, fail(c, fmt.Errorf("insert dividend: %w", err))
		}
		result.Imported++
	}

	ip, ua := ClientFromContext(ctx)
	run := ImportRun{
		BatchID:   b.ID,
		FileName:  b.FileName,
		Imported:  result.Imported,
		Skipped:   result.Skipped,
		Rejected:  b.Counts.Rejected,
		Policy:    string(policy),
		IPAddress: ip,
		UserAgent: ua,
		CreatedAt: im.now().UTC(),
	}
	if err := tx.RecordImport(ctx, run); err != nil {
		return ImportResult{}, &CommitError{BatchID: b.ID.String(), Err: fmt.Errorf("record import: %w", err)}
	}

	if err := tx.Commit(ctx); err != nil {
		return ImportResult{}, &CommitError{BatchID: b.ID.String(), Err: fmt.Errorf("commit: %w", err)}
	}
	committed = true

	result.TotalProcessed = result.Imported + result.Skipped
	logger.Info("import committed",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"rejected", b.Counts.Rejected,
	)
	return result, nil
}

// accountGroup resolves the row's account group inside the transaction,
// creating it when the name is unknown. Names are matched exactly.
func (im *Importer) accountGroup(ctx context.Context, tx LedgerTx, c Candidate, cache map[string]int64, logger *slog.Logger) (*int64, error) {
	if c.AccountGroupID != nil {
		id := *c.AccountGroupID
		return &id, nil
	}
	if c.AccountGroupName == "" {
		return nil, nil
	}
	if id, ok := cache[c.AccountGroupName]; ok {
		return &id, nil
	}

	id, found, err := tx.LookupAccountGroup(ctx, c.AccountGroupName)
	if err != nil {
		return nil, fmt.Errorf("look up account group %q: %w", c.AccountGroupName, err)
	}
	if !found {
		id, err = tx.CreateAccountGroup(ctx, c.AccountGroupName, AutoCreatedGroupDescription)
		if err != nil {
			return nil, fmt.Errorf("create account group %q: %w", c.AccountGroupName, err)
		}
		logger.Info("account group created", "account_group", c.AccountGroupName, "id", id, "line", c.Line)
	}
	cache[c.AccountGroupName] = id
	return &id, nil
}

func entryFor(b *Batch, c Candidate, groupID *int64) Entry {
	return Entry{
		BatchID:          b.ID,
		PaymentDate:      c.PaymentDate,
		ISIN:             c.ISIN,
		Ticker:           c.Ticker,
		CompanyName:      c.CompanyName,
		BrokerID:         c.BrokerID,
		AccountGroupID:   groupID,
		SharesHeld:       c.SharesHeld,
		DividendLocal:    c.DividendLocal,
		TaxLocal:         c.TaxLocal,
		Currency:         c.Currency,
		DividendSEK:      c.DividendSEK,
		TaxSEK:           c.TaxSEK,
		NetSEK:           c.NetSEK,
		ExchangeRate:     c.ExchangeRate,
		TaxRatePercent:   c.TaxRatePercent,
		BrokerFeeSEK:     c.BrokerFeeSEK,
		BrokerFeePercent: brokerFeePercent(c.BrokerFeeSEK, c.DividendSEK),
		Complete:         c.State == StateComplete,
	}
}
