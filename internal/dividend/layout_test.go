package dividend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := DefaultLayout()
	require.NoError(t, err)
	return l
}

// ============================================================================
// Layout loading
// ============================================================================

func TestDefaultLayout_Fields(t *testing.T) {
	l := testLayout(t)

	fields := l.Fields()
	require.NotEmpty(t, fields)
	assert.Equal(t, FieldPaymentDate, fields[0])
	assert.Contains(t, fields, FieldBrokerFeeSEK)
	assert.Contains(t, fields, FieldAccountGroup)
}

func TestNewLayout_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"not yaml", "fields: [", "parse layout"},
		{"no fields", "header_keywords: []", "no fields"},
		{"missing name", "fields:\n  - synonyms: [a]", "name is required"},
		{"duplicate field", "fields:\n  - name: isin\n    synonyms: [isin]\n  - name: isin\n    synonyms: [code]", "defined twice"},
		{"empty synonym", "fields:\n  - name: isin\n    synonyms: ['  ']", "empty synonym"},
		{"unknown keyword", "fields:\n  - name: isin\n    synonyms: [isin]\nheader_keywords: [date]", "header keyword"},
		{"unknown headerless column", "fields:\n  - name: isin\n    synonyms: [isin]\nheaderless: [date]", "headerless column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ============================================================================
// Header mapping
// ============================================================================

func TestMapHeaders(t *testing.T) {
	l := testLayout(t)

	tests := []struct {
		name   string
		header []string
		want   map[Field]int
		absent []Field
	}{
		{
			name:   "canonical names",
			header: []string{"payment_date", "isin", "shares_held", "dividend_amount_local", "tax_amount_local", "currency_local"},
			want: map[Field]int{
				FieldPaymentDate:   0,
				FieldISIN:          1,
				FieldSharesHeld:    2,
				FieldDividendLocal: 3,
				FieldTaxLocal:      4,
				FieldCurrency:      5,
			},
			absent: []Field{FieldDividendSEK, FieldBroker},
		},
		{
			name:   "synonyms with case and spacing",
			header: []string{"Payment  Date", "ISIN Code", "Quantity", "Gross Amount", "Withholding Tax", "CURR", "FX Rate"},
			want: map[Field]int{
				FieldPaymentDate:   0,
				FieldISIN:          1,
				FieldSharesHeld:    2,
				FieldDividendLocal: 3,
				FieldTaxLocal:      4,
				FieldCurrency:      5,
				FieldExchangeRate:  6,
			},
		},
		{
			name:   "accents are ignored",
			header: []string{"dáte", "ísin", "currèncy"},
			want: map[Field]int{
				FieldPaymentDate: 0,
				FieldISIN:        1,
				FieldCurrency:    2,
			},
		},
		{
			name:   "first column naming a field wins",
			header: []string{"date", "payment_date", "isin"},
			want: map[Field]int{
				FieldPaymentDate: 0,
				FieldISIN:        2,
			},
		},
		{
			name:   "unknown columns are ignored",
			header: []string{"notes", "isin", "whatever"},
			want:   map[Field]int{FieldISIN: 1},
			absent: []Field{FieldPaymentDate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := l.MapHeaders(tt.header)
			assert.Equal(t, len(tt.want), cm.Len())
			for f, want := range tt.want {
				got, ok := cm.Index(f)
				require.True(t, ok, "field %s not mapped", f)
				assert.Equal(t, want, got, "field %s", f)
			}
			for _, f := range tt.absent {
				_, ok := cm.Index(f)
				assert.False(t, ok, "field %s should be absent", f)
			}
		})
	}
}

func TestPositional(t *testing.T) {
	cm := testLayout(t).Positional()

	want := []Field{
		FieldPaymentDate, FieldISIN, FieldSharesHeld, FieldDividendLocal, FieldTaxLocal,
		FieldCurrency, FieldDividendSEK, FieldNetSEK, FieldExchangeRate,
	}
	assert.Equal(t, want, cm.Fields())
}

func TestColumnMap_MarshalJSON(t *testing.T) {
	cm := testLayout(t).MapHeaders([]string{"isin", "date"})
	data, err := cm.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"isin":0,"payment_date":1}`, string(data))
}

func TestIsHeaderLine(t *testing.T) {
	l := testLayout(t)

	tests := []struct {
		name  string
		cells []string
		want  bool
	}{
		{"canonical header", []string{"payment_date", "isin", "shares_held"}, true},
		{"synonym header", []string{"Date", "Ticker", "Amount"}, true},
		{"isin only", []string{"x", "ISIN"}, true},
		{"comment", []string{"# exported 2024-01-01"}, true},
		{"data row", []string{"2015-12-02", "SE0021309614", "37"}, false},
		{"header words outside keywords", []string{"shares", "currency"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.IsHeaderLine(tt.cells))
		})
	}
}

func TestLocateHeader(t *testing.T) {
	l := testLayout(t)
	header := []string{"payment_date", "isin", "shares_held", "dividend_amount_local", "tax_amount_local", "currency_local"}
	data := []string{"2024-01-10", "SE0021309614", "10", "5", "0", "SEK"}

	tests := []struct {
		name      string
		rows      [][]string
		wantAt    int
		wantFound bool
	}{
		{"header first", [][]string{header, data}, 0, true},
		{"after comment", [][]string{{"# exported"}, header, data}, 1, true},
		{"after title and blank", [][]string{{"Dividends 2024"}, {""}, header, data}, 2, true},
		{"data before header", [][]string{data, header}, -1, false},
		{"headerless", [][]string{data, data}, -1, false},
		{"only comments", [][]string{{"# a"}, {"# b"}}, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, found := l.LocateHeader(tt.rows, 6)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantAt, at)
		})
	}
}
