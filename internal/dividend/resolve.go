package dividend

import (
	"context"

	"github.com/JonMunkholm/divimport/internal/logging"
	"github.com/Rhymond/go-money"
)

// Company is the canonical identity of an instrument issuer.
type Company struct {
	Name   string
	Ticker string
}

// CompanyDirectory resolves ISINs to companies. A miss returns found=false
// with a nil error.
type CompanyDirectory interface {
	LookupByISIN(ctx context.Context, isin string) (Company, bool, error)
}

// BrokerDirectory resolves broker and account-group names to identifiers.
type BrokerDirectory interface {
	LookupBroker(ctx context.Context, name string) (int64, bool, error)
	LookupAccountGroup(ctx context.Context, name string) (int64, bool, error)
	CreateAccountGroup(ctx context.Context, name, description string) (int64, error)
}

// Defaults are caller-supplied identifiers applied to rows that do not name
// a broker or an account group.
type Defaults struct {
	BrokerID       *int64
	AccountGroupID *int64
}

// Resolver enriches candidates with reference data. Misses and lookup
// failures become warnings; they never reject a row.
type Resolver struct {
	companies CompanyDirectory
	brokers   BrokerDirectory
}

// NewResolver creates a resolver over the two directories.
func NewResolver(companies CompanyDirectory, brokers BrokerDirectory) *Resolver {
	return &Resolver{companies: companies, brokers: brokers}
}

type idResult struct {
	id    int64
	found bool
	err   error
}

type companyResult struct {
	company Company
	found   bool
	err     error
}

// lookupMemo caches directory answers for one batch. Every row still gets
// its own warnings; only the round trips are shared.
type lookupMemo struct {
	companies map[string]companyResult
	brokers   map[string]idResult
	groups    map[string]idResult
}

func newLookupMemo() *lookupMemo {
	return &lookupMemo{
		companies: make(map[string]companyResult),
		brokers:   make(map[string]idResult),
		groups:    make(map[string]idResult),
	}
}

// Resolve fills company, broker and account-group identity on c.
func (r *Resolver) Resolve(ctx context.Context, c *Candidate, defaults Defaults, memo *lookupMemo) {
	if memo == nil {
		memo = newLookupMemo()
	}
	logger := logging.FromContext(ctx)

	r.resolveCompany(ctx, c, memo)

	switch {
	case c.BrokerName != "":
		res, ok := memo.brokers[c.BrokerName]
		if !ok {
			res.id, res.found, res.err = r.brokers.LookupBroker(ctx, c.BrokerName)
			memo.brokers[c.BrokerName] = res
			if res.err != nil {
				logger.Warn("broker lookup failed", "broker", c.BrokerName, "error", res.err)
			}
		}
		if res.err != nil {
			c.addWarning(FieldBroker, CodeLookupFailed, "broker lookup failed for %q", c.BrokerName)
		}
		if res.found {
			id := res.id
			c.BrokerID = &id
		} else {
			c.addWarning(FieldBroker, CodeBrokerNotFound, "broker %q not found", c.BrokerName)
		}
	case defaults.BrokerID != nil:
		id := *defaults.BrokerID
		c.BrokerID = &id
	}

	switch {
	case c.AccountGroupName != "":
		res, ok := memo.groups[c.AccountGroupName]
		if !ok {
			res.id, res.found, res.err = r.brokers.LookupAccountGroup(ctx, c.AccountGroupName)
			memo.groups[c.AccountGroupName] = res
			if res.err != nil {
				logger.Warn("account group lookup failed", "account_group", c.AccountGroupName, "error", res.err)
			}
		}
		if res.err != nil {
			c.addWarning(FieldAccountGroup, CodeLookupFailed, "account group lookup failed for %q", c.AccountGroupName)
		}
		if res.found {
			id := res.id
			c.AccountGroupID = &id
		} else {
			c.addWarning(FieldAccountGroup, CodeAccountGroupNotFound,
				"account group %q not found; it will be created on import", c.AccountGroupName)
		}
	case defaults.AccountGroupID != nil:
		id := *defaults.AccountGroupID
		c.AccountGroupID = &id
	}

	if c.Currency != "" && money.GetCurrency(c.Currency) == nil {
		c.addWarning(FieldCurrency, CodeUnknownCurrency, "unknown currency code %q", c.Currency)
	}
}

func (r *Resolver) resolveCompany(ctx context.Context, c *Candidate, memo *lookupMemo) {
	c.CompanyName = UnknownCompany
	c.Ticker = ""
	if c.ISIN == "" {
		return
	}

	res, ok := memo.companies[c.ISIN]
	if !ok {
		res.company, res.found, res.err = r.companies.LookupByISIN(ctx, c.ISIN)
		memo.companies[c.ISIN] = res
		if res.err != nil {
			logging.FromContext(ctx).Warn("company lookup failed", "isin", c.ISIN, "error", res.err)
		}
	}

	if res.err != nil {
		c.addWarning(FieldISIN, CodeLookupFailed, "company lookup failed for ISIN %s", c.ISIN)
	}
	if !res.found {
		c.addWarning(FieldISIN, CodeCompanyNotFound, "company not found for ISIN %s", c.ISIN)
		return
	}
	c.CompanyName = res.company.Name
	c.Ticker = res.company.Ticker
}
