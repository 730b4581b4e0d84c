package dividend

// input.go turns an upload into physical rows of cells.
//
// Text files are decoded as UTF-8: a leading byte-order mark is dropped and
// invalid byte sequences become U+FFFD. The delimiter is detected from the
// first non-blank line and applied to every line. Workbooks are read from
// their first sheet only.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	sourceText        = "text"
	sourceSpreadsheet = "spreadsheet"
)

type rawRow struct {
	line  int
	cells []string
}

type sheet struct {
	source    string
	delimiter rune
	rows      []rawRow
}

// firstRow returns the first row with a non-blank cell.
func (s *sheet) firstRow() (rawRow, bool) {
	for _, r := range s.rows {
		if !isBlankRow(r.cells) {
			return r, true
		}
	}
	return rawRow{}, false
}

// readUpload reads at most maxSize bytes from r and splits them into rows.
func readUpload(name string, r io.Reader, maxSize int64) (*sheet, error) {
	data, err := readLimited(r, maxSize)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	if isSpreadsheet(name, data) {
		return readSpreadsheet(data)
	}
	return readText(data)
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}
	return data, nil
}

func isSpreadsheet(name string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return true
	}
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func readText(data []byte) (*sheet, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	text, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, fmt.Errorf("decode upload: %w", err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("split lines: %w", err)
	}

	s := &sheet{source: sourceText, delimiter: ';'}
	first := delimiterLine(lines)
	if first < 0 {
		return nil, ErrEmptyFile
	}

	s.delimiter, _ = DetectDelimiter(lines[first])
	s.rows = make([]rawRow, 0, len(lines))
	for i, l := range lines {
		s.rows = append(s.rows, rawRow{line: i + 1, cells: splitLine(l, s.delimiter)})
	}
	return s, nil
}

// delimiterLine returns the index of the line to detect the separator from:
// the first non-comment line that splits into MinViableColumns fields, else
// the first non-blank non-comment line, else the first non-blank line.
// Returns -1 when every line is blank.
func delimiterLine(lines []string) int {
	firstText, firstPlain := -1, -1
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		if firstText < 0 {
			firstText = i
		}
		if strings.HasPrefix(t, "#") {
			continue
		}
		if firstPlain < 0 {
			firstPlain = i
		}
		if _, fields := DetectDelimiter(l); len(fields) >= MinViableColumns {
			return i
		}
	}
	if firstPlain >= 0 {
		return firstPlain
	}
	return firstText
}

func readSpreadsheet(data []byte) (*sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet sheet %q: %w", sheets[0], err)
	}

	s := &sheet{source: sourceSpreadsheet}
	for i, cells := range rows {
		s.rows = append(s.rows, rawRow{line: i + 1, cells: cells})
	}
	if _, ok := s.firstRow(); !ok {
		return nil, ErrEmptyFile
	}
	return s, nil
}
