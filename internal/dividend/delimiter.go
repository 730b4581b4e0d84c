package dividend

import (
	"encoding/csv"
	"strings"
)

// delimiterPriority lists candidate separators; earlier entries win ties.
var delimiterPriority = []rune{';', ',', '\t'}

// MinViableColumns is the field count below which detection falls back to
// a semicolon.
const MinViableColumns = 5

// DetectDelimiter picks the separator that splits line into the most fields.
// Ties go to the earlier candidate in delimiterPriority. When no candidate
// yields MinViableColumns fields, semicolon is forced. It never fails.
func DetectDelimiter(line string) (rune, []string) {
	best := delimiterPriority[0]
	var bestFields []string

	for _, d := range delimiterPriority {
		fields := splitLine(line, d)
		if len(fields) > len(bestFields) {
			best = d
			bestFields = fields
		}
	}

	if len(bestFields) < MinViableColumns {
		return ';', splitLine(line, ';')
	}
	return best, bestFields
}

// splitLine splits one physical line. Quoted cells are honored; a line the
// CSV reader cannot parse is split on the raw delimiter instead.
func splitLine(line string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = delim != '\t'

	record, err := r.Read()
	if err != nil {
		return strings.Split(line, string(delim))
	}
	return record
}

func delimiterName(d rune) string {
	switch d {
	case ';':
		return "semicolon"
	case ',':
		return "comma"
	case '\t':
		return "tab"
	}
	return string(d)
}
