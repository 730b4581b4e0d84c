package dividend

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field is a canonical column name understood by the pipeline.
type Field string

const (
	FieldPaymentDate   Field = "payment_date"
	FieldISIN          Field = "isin"
	FieldBroker        Field = "broker"
	FieldSharesHeld    Field = "shares_held"
	FieldDividendLocal Field = "dividend_amount_local"
	FieldTaxLocal      Field = "tax_amount_local"
	FieldCurrency      Field = "currency_local"
	FieldDividendSEK   Field = "dividend_amount_sek"
	FieldNetSEK        Field = "net_dividend_sek"
	FieldExchangeRate  Field = "exchange_rate_used"
	FieldAccountGroup  Field = "portfolio_account_group"
	FieldBrokerFeeSEK  Field = "broker_fee_sek"
)

// ColumnMap maps canonical fields to zero-based column indexes. It is built
// once per file and never modified afterwards.
type ColumnMap struct {
	idx map[Field]int
}

func newColumnMap(idx map[Field]int) ColumnMap {
	return ColumnMap{idx: idx}
}

// Index returns the column index for f.
func (m ColumnMap) Index(f Field) (int, bool) {
	i, ok := m.idx[f]
	return i, ok
}

// Len returns the number of mapped fields.
func (m ColumnMap) Len() int {
	return len(m.idx)
}

// Fields returns the mapped fields ordered by column index.
func (m ColumnMap) Fields() []Field {
	fields := make([]Field, 0, len(m.idx))
	for f := range m.idx {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		return m.idx[fields[i]] < m.idx[fields[j]]
	})
	return fields
}

// MarshalJSON renders the map as {"field": index}.
func (m ColumnMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(m.idx))
	for f, i := range m.idx {
		out[string(f)] = i
	}
	return json.Marshal(out)
}

// State is the completeness classification of a candidate.
type State string

const (
	StateComplete   State = "complete"
	StateIncomplete State = "incomplete"
	StateRejected   State = "rejected"
)

// Severity separates row errors from row warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a structured row-level error or warning.
type Issue struct {
	Line     int      `json:"line"`
	Field    Field    `json:"field,omitempty"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

// Row issue codes.
const (
	CodeInsufficientColumns = "ROW001"
	CodeMissingPaymentDate  = "ROW002"
	CodeMissingISIN         = "ROW003"
	CodeSharesNotPositive   = "ROW004"

	CodeISINLength           = "WRN001"
	CodeISINFormat           = "WRN002"
	CodeCompanyNotFound      = "WRN003"
	CodeBrokerNotFound       = "WRN004"
	CodeAccountGroupNotFound = "WRN005"
	CodeLookupFailed         = "WRN006"
	CodeIncomplete           = "WRN007"
	CodeUnknownCurrency      = "WRN008"
	CodeRepeatedInFile       = "WRN009"
)

// UnknownCompany is the company name used when the ISIN is not in the
// company directory.
const UnknownCompany = "Unknown Company"

// Candidate is one parsed, normalized and resolved dividend row.
type Candidate struct {
	Line             int
	PaymentDate      time.Time
	ISIN             string
	Ticker           string
	CompanyName      string
	BrokerName       string
	BrokerID         *int64
	SharesHeld       decimal.Decimal
	DividendLocal    decimal.Decimal
	TaxLocal         decimal.Decimal
	Currency         string
	DividendSEK      decimal.Decimal
	TaxSEK           decimal.Decimal
	NetSEK           decimal.Decimal
	ExchangeRate     decimal.Decimal
	TaxRatePercent   decimal.Decimal
	BrokerFeeSEK     decimal.Decimal
	AccountGroupName string
	AccountGroupID   *int64
	State            State
	Issues           []Issue
}

func (c *Candidate) addError(field Field, code, format string, args ...any) {
	c.Issues = append(c.Issues, Issue{
		Line:     c.Line,
		Field:    field,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	})
}

func (c *Candidate) addWarning(field Field, code, format string, args ...any) {
	c.Issues = append(c.Issues, Issue{
		Line:     c.Line,
		Field:    field,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	})
}

// Importable reports whether the candidate may reach the ledger.
func (c *Candidate) Importable() bool {
	return c.State == StateComplete || c.State == StateIncomplete
}

// Key returns the natural key used for duplicate detection.
func (c *Candidate) Key() NaturalKey {
	return NaturalKey{
		ISIN:          c.ISIN,
		PaymentDate:   c.PaymentDate,
		SharesHeld:    c.SharesHeld,
		DividendLocal: c.DividendLocal,
	}
}

// NaturalKey identifies a ledger entry.
type NaturalKey struct {
	ISIN          string
	PaymentDate   time.Time
	SharesHeld    decimal.Decimal
	DividendLocal decimal.Decimal
}

// String renders the key in a stable form; numerically equal decimals
// produce the same string.
func (k NaturalKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		k.ISIN,
		k.PaymentDate.Format(dateLayout),
		k.SharesHeld.String(),
		k.DividendLocal.String(),
	)
}

// MarshalJSON renders the key as an object with ISO dates and decimal strings.
func (k NaturalKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ISIN          string `json:"isin"`
		PaymentDate   string `json:"payment_date"`
		SharesHeld    string `json:"shares_held"`
		DividendLocal string `json:"dividend_amount_local"`
	}{k.ISIN, k.PaymentDate.Format(dateLayout), k.SharesHeld.String(), k.DividendLocal.String()})
}

// Counts are the row counters of a batch. Total counts non-rejected rows.
type Counts struct {
	Total      int `json:"total_rows"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
	Rejected   int `json:"rejected"`
}

// Trace records what the pipeline detected about the file's structure. It is
// diagnostic only.
type Trace struct {
	Source       string    `json:"source"`
	Delimiter    string    `json:"delimiter"`
	Headerless   bool      `json:"headerless"`
	Header       []string  `json:"header,omitempty"`
	Columns      ColumnMap `json:"columns"`
	Lines        int       `json:"lines"`
	SkippedLines int       `json:"skipped_lines"`
}

// Batch is the parsed, not yet committed result of one upload. The caller
// owns it between preview and confirm.
type Batch struct {
	ID         uuid.UUID
	FileName   string
	CreatedAt  time.Time
	Candidates []Candidate
	Errors     []Issue
	Warnings   []Issue
	Counts     Counts
	Trace      Trace
}

// Importable returns the non-rejected candidates in file order.
func (b *Batch) Importable() []Candidate {
	out := make([]Candidate, 0, b.Counts.Total)
	for _, c := range b.Candidates {
		if c.Importable() {
			out = append(out, c)
		}
	}
	return out
}

// add appends a finalized candidate and folds its issues into the batch.
func (b *Batch) add(c Candidate) {
	switch c.State {
	case StateComplete:
		b.Counts.Complete++
		b.Counts.Total++
	case StateIncomplete:
		b.Counts.Incomplete++
		b.Counts.Total++
	case StateRejected:
		b.Counts.Rejected++
	}
	for _, is := range c.Issues {
		if is.Severity == SeverityError {
			b.Errors = append(b.Errors, is)
		} else {
			b.Warnings = append(b.Warnings, is)
		}
	}
	b.Candidates = append(b.Candidates, c)
}

// DuplicatePolicy controls how the importer treats rows already in the ledger.
type DuplicatePolicy string

const (
	// PolicyStrict skips duplicates and reports each skipped key.
	PolicyStrict DuplicatePolicy = "strict"
	// PolicyIgnore skips duplicates and reports only the count.
	PolicyIgnore DuplicatePolicy = "ignore"
	// PolicyAllow inserts duplicates.
	PolicyAllow DuplicatePolicy = "allow"
)

// ParsePolicy parses a policy name. An empty name means strict.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "":
		return PolicyStrict, nil
	case PolicyStrict, PolicyIgnore, PolicyAllow:
		return DuplicatePolicy(s), nil
	}
	return "", fmt.Errorf("invalid duplicate policy %q", s)
}

// Duplicate is a batch row whose natural key already exists in the ledger.
type Duplicate struct {
	Line int        `json:"line"`
	Key  NaturalKey `json:"key"`
}

// ImportResult is the outcome of a successful confirm.
type ImportResult struct {
	BatchID        uuid.UUID   `json:"batch_id"`
	Imported       int         `json:"imported"`
	Skipped        int         `json:"skipped"`
	TotalProcessed int         `json:"total_processed"`
	Duplicates     []Duplicate `json:"duplicates,omitempty"`
}

// Entry is the persisted form of an accepted candidate.
type Entry struct {
	BatchID          uuid.UUID
	PaymentDate      time.Time
	ISIN             string
	Ticker           string
	CompanyName      string
	BrokerID         *int64
	AccountGroupID   *int64
	SharesHeld       decimal.Decimal
	DividendLocal    decimal.Decimal
	TaxLocal         decimal.Decimal
	Currency         string
	DividendSEK      decimal.Decimal
	TaxSEK           decimal.Decimal
	NetSEK           decimal.Decimal
	ExchangeRate     decimal.Decimal
	TaxRatePercent   decimal.Decimal
	BrokerFeeSEK     decimal.Decimal
	BrokerFeePercent decimal.Decimal
	Complete         bool
}

// Key returns the entry's natural key.
func (e Entry) Key() NaturalKey {
	return NaturalKey{
		ISIN:          e.ISIN,
		PaymentDate:   e.PaymentDate,
		SharesHeld:    e.SharesHeld,
		DividendLocal: e.DividendLocal,
	}
}

// ImportRun is the audit record written with every committed import.
type ImportRun struct {
	BatchID   uuid.UUID `json:"batch_id"`
	FileName  string    `json:"file_name"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Rejected  int       `json:"rejected"`
	Policy    string    `json:"policy"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
