package dividend

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMinColumns is the fewest cells a data row may have.
const DefaultMinColumns = 6

// rowOutcome says what the parser did with a line.
type rowOutcome int

const (
	rowParsed rowOutcome = iota
	rowSkipped
	rowRejected
)

// Parser turns raw rows into candidates using a column map.
type Parser struct {
	layout     *Layout
	minColumns int
}

// NewParser creates a parser. minColumns <= 0 selects DefaultMinColumns.
func NewParser(layout *Layout, minColumns int) *Parser {
	if minColumns <= 0 {
		minColumns = DefaultMinColumns
	}
	return &Parser{layout: layout, minColumns: minColumns}
}

// ParseRow builds a candidate from one line's cells. Blank lines and header
// or comment lines are skipped. Rows with too few cells come back rejected
// and must not be processed further.
func (p *Parser) ParseRow(line int, cells []string, cm ColumnMap) (Candidate, rowOutcome) {
	if isBlankRow(cells) || p.layout.IsHeaderLine(cells) {
		return Candidate{}, rowSkipped
	}

	c := Candidate{
		Line:         line,
		ExchangeRate: decimal.NewFromInt(1),
	}

	if len(cells) < p.minColumns {
		c.State = StateRejected
		c.addError("", CodeInsufficientColumns,
			"insufficient columns: got %d, need at least %d", len(cells), p.minColumns)
		return c, rowRejected
	}

	cell := func(f Field) string {
		i, ok := cm.Index(f)
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}
	number := func(f Field) decimal.Decimal {
		return NormalizeNumber(cell(f))
	}

	if d, ok := ParseDate(cell(FieldPaymentDate)); ok {
		c.PaymentDate = d
	}
	c.ISIN = strings.ToUpper(cell(FieldISIN))
	c.BrokerName = cell(FieldBroker)
	c.AccountGroupName = cell(FieldAccountGroup)
	c.Currency = strings.ToUpper(cell(FieldCurrency))

	c.SharesHeld = number(FieldSharesHeld)
	c.DividendLocal = number(FieldDividendLocal)
	c.TaxLocal = number(FieldTaxLocal)
	c.DividendSEK = number(FieldDividendSEK)
	c.NetSEK = number(FieldNetSEK)
	c.BrokerFeeSEK = number(FieldBrokerFeeSEK)
	if rate := number(FieldExchangeRate); !rate.IsZero() {
		c.ExchangeRate = rate
	}

	return c, rowParsed
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
