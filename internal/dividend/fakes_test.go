package dividend

import (
	"context"
	"errors"
	"sync"
)

// ============================================================================
// In-memory collaborators
// ============================================================================

type fakeCompanies struct {
	byISIN map[string]Company
	err    error
	calls  int
}

func (f *fakeCompanies) LookupByISIN(_ context.Context, isin string) (Company, bool, error) {
	f.calls++
	if f.err != nil {
		return Company{}, false, f.err
	}
	c, ok := f.byISIN[isin]
	return c, ok, nil
}

type fakeBrokers struct {
	brokers map[string]int64
	groups  map[string]int64
	err     error
	created []string
}

func (f *fakeBrokers) LookupBroker(_ context.Context, name string) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.brokers[name]
	return id, ok, nil
}

func (f *fakeBrokers) LookupAccountGroup(_ context.Context, name string) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.groups[name]
	return id, ok, nil
}

func (f *fakeBrokers) CreateAccountGroup(_ context.Context, name, _ string) (int64, error) {
	if f.groups == nil {
		f.groups = make(map[string]int64)
	}
	id := int64(len(f.groups) + 100)
	f.groups[name] = id
	f.created = append(f.created, name)
	return id, nil
}

var errInjected = errors.New("injected insert failure")

// memLedger stages writes per transaction and applies them on commit.
type memLedger struct {
	mu      sync.Mutex
	entries []Entry
	groups  map[string]int64
	runs    []ImportRun

	// failOnInsert makes the n-th insert of a transaction fail (1-based).
	failOnInsert int
	begins       int
	rollbacks    int
}

func newMemLedger() *memLedger {
	return &memLedger{groups: make(map[string]int64)}
}

func (l *memLedger) FindByNaturalKey(_ context.Context, key NaturalKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return containsKey(l.entries, key), nil
}

func (l *memLedger) Begin(context.Context) (LedgerTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.begins++
	groups := make(map[string]int64, len(l.groups))
	for k, v := range l.groups {
		groups[k] = v
	}
	return &memTx{ledger: l, groups: groups}, nil
}

func (l *memLedger) RecentImports(_ context.Context, limit int) ([]ImportRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ImportRun, 0, len(l.runs))
	for i := len(l.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.runs[i])
	}
	return out, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type memTx struct {
	ledger  *memLedger
	pending []Entry
	groups  map[string]int64
	runs    []ImportRun
	inserts int
	done    bool
}

func (t *memTx) FindByNaturalKey(_ context.Context, key NaturalKey) (bool, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	return containsKey(t.ledger.entries, key) || containsKey(t.pending, key), nil
}

func (t *memTx) LookupAccountGroup(_ context.Context, name string) (int64, bool, error) {
	id, ok := t.groups[name]
	return id, ok, nil
}

func (t *memTx) CreateAccountGroup(_ context.Context, name, _ string) (int64, error) {
	id := int64(len(t.groups) + 1)
	t.groups[name] = id
	return id, nil
}

func (t *memTx) Insert(_ context.Context, e Entry) error {
	t.inserts++
	if t.ledger.failOnInsert > 0 && t.inserts == t.ledger.failOnInsert {
		return errInjected
	}
	t.pending = append(t.pending, e)
	return nil
}

func (t *memTx) RecordImport(_ context.Context, run ImportRun) error {
	t.runs = append(t.runs, run)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return errors.New("transaction closed")
	}
	t.done = true
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	t.ledger.entries = append(t.ledger.entries, t.pending...)
	t.ledger.groups = t.groups
	t.ledger.runs = append(t.ledger.runs, t.runs...)
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.ledger.mu.Lock()
	t.ledger.rollbacks++
	t.ledger.mu.Unlock()
	return nil
}

func containsKey(entries []Entry, key NaturalKey) bool {
	for _, e := range entries {
		k := e.Key()
		if k.ISIN == key.ISIN &&
			k.PaymentDate.Equal(key.PaymentDate) &&
			k.SharesHeld.Equal(key.SharesHeld) &&
			k.DividendLocal.Equal(key.DividendLocal) {
			return true
		}
	}
	return false
}

func newTestPipeline(t interface{ Fatalf(string, ...any) }, companies *fakeCompanies, brokers *fakeBrokers, ledger *memLedger) *Pipeline {
	p, err := New(companies, brokers, ledger, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func knownCompanies() *fakeCompanies {
	return &fakeCompanies{byISIN: map[string]Company{
		"SE0021309614": {Name: "Example AB", Ticker: "EXA"},
		"US0378331005": {Name: "Apple Inc.", Ticker: "AAPL"},
	}}
}
