package dividend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// DetectDelimiter
// ============================================================================

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantDelim  rune
		wantFields int
	}{
		{"semicolon", "2015-12-02;SE0021309614;37;23,42;0;SEK", ';', 6},
		{"comma", "2024-03-15,US0378331005,10,2.40,0.36,USD", ',', 6},
		{"tab", "2024-03-15\tUS0378331005\t10\t2.40\t0.36", '\t', 5},
		{"tie goes to semicolon", "a;b;c;d;e;f,g,h,i,j,k", ';', 6},
		{"too few fields forces semicolon", "a,b,c", ';', 1},
		{"short semicolon line stays semicolon", "a;b;c", ';', 3},
		{"quoted comma inside semicolon file", `"1,5";b;c;d;e`, ';', 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delim, fields := DetectDelimiter(tt.line)
			assert.Equal(t, string(tt.wantDelim), string(delim))
			assert.Len(t, fields, tt.wantFields)
		})
	}
}

func TestDetectDelimiter_QuotedCell(t *testing.T) {
	_, fields := DetectDelimiter(`"1,5";b;c;d;e`)
	require.NotEmpty(t, fields)
	assert.Equal(t, "1,5", fields[0])
}

// ============================================================================
// NormalizeNumber
// ============================================================================

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"european decimal comma", "23,42", "23.42"},
		{"thousands comma with dot", "1,234.56", "1234.56"},
		{"plain dot", "1234.56", "1234.56"},
		{"integer", "37", "37"},
		{"surrounding spaces", " 156,18 ", "156.18"},
		{"negative comma", "-12,5", "-12.5"},
		{"currency prefix", "SEK 100", "100"},
		{"space grouping", "1 000,50", "1000.5"},
		{"dot thousands with comma decimal is read literally", "1.234,56", "1.23456"},
		{"empty", "", "0"},
		{"garbage", "abc", "0"},
		{"lone dot", ".", "0"},
		{"lone minus", "-", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeNumber(tt.raw)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got), "NormalizeNumber(%q) = %s, want %s", tt.raw, got, want)
		})
	}
}

func TestClassifyComma(t *testing.T) {
	assert.Equal(t, commaDecimal, classifyComma("23,42"))
	assert.Equal(t, commaThousands, classifyComma("1,234.56"))
	assert.Equal(t, commaNone, classifyComma("1234.56"))
	assert.Equal(t, commaNone, classifyComma(""))
}

// ============================================================================
// ParseDate
// ============================================================================

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"iso", "2015-12-02", "2015-12-02", true},
		{"day first wins when ambiguous", "03/04/2024", "2024-04-03", true},
		{"month first when day first is impossible", "12/25/2024", "2024-12-25", true},
		{"dashed day first", "25-12-2024", "2024-12-25", true},
		{"slashed iso", "2024/12/25", "2024-12-25", true},
		{"dotted", "25.12.2024", "2024-12-25", true},
		{"single digit day and month", "3/4/2024", "2024-04-03", true},
		{"timestamp", "2024-12-25 10:30:00", "2024-12-25", true},
		{"rfc3339", "2024-12-25T23:30:00+02:00", "2024-12-25", true},
		{"compact", "20241225", "2024-12-25", true},
		{"surrounding spaces", "  2024-01-31 ", "2024-01-31", true},
		{"empty", "", "", false},
		{"garbage", "not a date", "", false},
		{"invalid month", "2024-13-01", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.True(t, got.IsZero())
				return
			}
			assert.Equal(t, tt.want, got.Format(dateLayout))
			assert.Equal(t, time.UTC, got.Location())
			assert.Zero(t, got.Hour())
		})
	}
}
