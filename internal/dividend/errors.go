package dividend

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile is returned when an upload has no non-blank lines.
	ErrEmptyFile = errors.New("empty file")
	// ErrNoDataRows is returned when a file has a header but no data rows.
	ErrNoDataRows = errors.New("no data rows")
	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrNoImportableRows is returned by Confirm when every row was rejected.
	ErrNoImportableRows = errors.New("no importable rows")
)

// StructuralError aborts a preview before any row is processed.
type StructuralError struct {
	File string
	Err  error
}

func (e *StructuralError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("invalid upload: %v", e.Err)
	}
	return fmt.Sprintf("invalid upload %s: %v", e.File, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// CommitError is the single aggregate error of a failed import. The ledger
// transaction has been rolled back when it is returned.
type CommitError struct {
	BatchID string
	Line    int
	ISIN    string
	Err     error
}

func (e *CommitError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("import failed at line %d (isin %s), nothing was saved: %v", e.Line, e.ISIN, e.Err)
	}
	return fmt.Sprintf("import failed, nothing was saved: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
