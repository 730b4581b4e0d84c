package dividend

import (
	"time"

	"github.com/google/uuid"
)

// RowPreview is the display form of one candidate.
type RowPreview struct {
	Line           int     `json:"line"`
	State          State   `json:"state"`
	PaymentDate    string  `json:"payment_date"`
	ISIN           string  `json:"isin"`
	Ticker         string  `json:"ticker"`
	CompanyName    string  `json:"company_name"`
	Broker         string  `json:"broker,omitempty"`
	BrokerID       *int64  `json:"broker_id,omitempty"`
	SharesHeld     string  `json:"shares_held"`
	DividendLocal  string  `json:"dividend_amount_local"`
	TaxLocal       string  `json:"tax_amount_local"`
	Currency       string  `json:"currency_local"`
	DividendSEK    string  `json:"dividend_amount_sek"`
	TaxSEK         string  `json:"tax_amount_sek"`
	NetSEK         string  `json:"net_dividend_sek"`
	ExchangeRate   string  `json:"exchange_rate_used"`
	TaxRatePercent string  `json:"tax_rate_percent"`
	BrokerFeeSEK   string  `json:"broker_fee_sek"`
	AccountGroup   string  `json:"portfolio_account_group,omitempty"`
	AccountGroupID *int64  `json:"portfolio_account_group_id,omitempty"`
	Issues         []Issue `json:"issues,omitempty"`
}

// NewRowPreview renders c for display.
func NewRowPreview(c Candidate) RowPreview {
	rp := RowPreview{
		Line:           c.Line,
		State:          c.State,
		ISIN:           c.ISIN,
		Ticker:         c.Ticker,
		CompanyName:    c.CompanyName,
		Broker:         c.BrokerName,
		BrokerID:       c.BrokerID,
		SharesHeld:     c.SharesHeld.String(),
		DividendLocal:  c.DividendLocal.String(),
		TaxLocal:       c.TaxLocal.String(),
		Currency:       c.Currency,
		DividendSEK:    c.DividendSEK.String(),
		TaxSEK:         c.TaxSEK.String(),
		NetSEK:         c.NetSEK.String(),
		ExchangeRate:   c.ExchangeRate.String(),
		TaxRatePercent: c.TaxRatePercent.String(),
		BrokerFeeSEK:   c.BrokerFeeSEK.String(),
		AccountGroup:   c.AccountGroupName,
		AccountGroupID: c.AccountGroupID,
		Issues:         c.Issues,
	}
	if !c.PaymentDate.IsZero() {
		rp.PaymentDate = c.PaymentDate.Format(dateLayout)
	}
	return rp
}

// PreviewPage is one page of a batch plus its summary.
type PreviewPage struct {
	BatchID    uuid.UUID    `json:"batch_id"`
	FileName   string       `json:"file_name"`
	CreatedAt  time.Time    `json:"created_at"`
	Counts     Counts       `json:"counts"`
	TotalRows  int          `json:"total_rows"`
	Errors     []Issue      `json:"errors"`
	Warnings   []Issue      `json:"warnings"`
	Rows       []RowPreview `json:"rows"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
	Trace      Trace        `json:"debug"`
}

// DefaultPageSize is used when a page request has no limit.
const DefaultPageSize = 50

// MaxPageSize caps the rows returned by one page.
const MaxPageSize = 1000

// Page returns the 1-based page of candidates. Pages count every candidate,
// rejected ones included, so rejected rows stay visible with their errors.
func (b *Batch) Page(page, limit int) PreviewPage {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	n := len(b.Candidates)
	totalPages := (n + limit - 1) / limit
	// Pages past the end are empty; page is bounded before multiplying.
	start, end := n, n
	if page <= totalPages {
		start = (page - 1) * limit
		end = min(start+limit, n)
	}

	rows := make([]RowPreview, 0, end-start)
	for _, c := range b.Candidates[start:end] {
		rows = append(rows, NewRowPreview(c))
	}

	errs := b.Errors
	if errs == nil {
		errs = []Issue{}
	}
	warns := b.Warnings
	if warns == nil {
		warns = []Issue{}
	}

	return PreviewPage{
		BatchID:    b.ID,
		FileName:   b.FileName,
		CreatedAt:  b.CreatedAt,
		Counts:     b.Counts,
		TotalRows:  b.Counts.Total,
		Errors:     errs,
		Warnings:   warns,
		Rows:       rows,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		Trace:      b.Trace,
	}
}
