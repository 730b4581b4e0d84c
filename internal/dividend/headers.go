package dividend

// MapHeaders matches header cells to canonical fields. Each cell maps to at
// most one field and each field takes the first column that names it.
// Cells that match nothing are ignored; fields nothing matched are absent.
func (l *Layout) MapHeaders(header []string) ColumnMap {
	idx := make(map[Field]int, len(l.fields))
	for col, cell := range header {
		f, ok := l.fieldFor(cell)
		if !ok {
			continue
		}
		if _, taken := idx[f]; taken {
			continue
		}
		idx[f] = col
	}
	return newColumnMap(idx)
}

// Positional returns the column map for files without a header line.
func (l *Layout) Positional() ColumnMap {
	idx := make(map[Field]int, len(l.positional))
	for col, f := range l.positional {
		idx[f] = col
	}
	return newColumnMap(idx)
}

// LocateHeader finds the header row among rows. Blank and comment rows are
// passed over, as are preamble rows too short to hold data, so a title line
// above the header does not hide it. The search stops at the first row with
// at least minColumns cells that names no field; such a file is headerless.
func (l *Layout) LocateHeader(rows [][]string, minColumns int) (int, bool) {
	for i, cells := range rows {
		switch {
		case isBlankRow(cells), isCommentRow(cells):
			continue
		case l.IsHeaderLine(cells):
			return i, true
		case len(cells) >= minColumns:
			return -1, false
		}
	}
	return -1, false
}
