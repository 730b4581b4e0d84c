package dividend

import (
	"strings"

	"github.com/shopspring/decimal"
)

// commaRole is what a comma means inside a numeric cell.
type commaRole int

const (
	commaNone commaRole = iota
	commaThousands
	commaDecimal
)

// classifyComma decides the comma's role from symbol presence alone: with a
// dot present the comma separates thousands, without one it is the decimal
// point. "1.234,56" is therefore read as 1.23456. Files mixing conventions
// across rows are not handled.
func classifyComma(s string) commaRole {
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		return commaThousands
	case hasComma:
		return commaDecimal
	}
	return commaNone
}

// NormalizeNumber converts a locale-ambiguous numeric cell into an exact
// decimal. Empty or unparseable input yields zero.
func NormalizeNumber(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	switch classifyComma(s) {
	case commaThousands:
		s = strings.ReplaceAll(s, ",", "")
	case commaDecimal:
		s = strings.ReplaceAll(s, ",", ".")
	}

	s = keepNumeric(s)
	if s == "" || s == "-" || s == "." || s == "-." {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// keepNumeric drops everything except digits, dots and a leading minus.
func keepNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
