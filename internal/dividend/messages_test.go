package dividend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"empty file", &StructuralError{File: "a.csv", Err: ErrEmptyFile}, "IMP001"},
		{"header without rows", &StructuralError{File: "a.csv", Err: ErrNoDataRows}, "IMP002"},
		{"file too large", fmt.Errorf("%w: limit is 10 bytes", ErrFileTooLarge), "IMP003"},
		{"unreadable workbook", errors.New("open spreadsheet: zip: not a valid zip file"), "IMP004"},
		{"all rows rejected", ErrNoImportableRows, "IMP005"},
		{"commit failure", &CommitError{BatchID: "b", Line: 6, Err: errors.New("boom")}, "IMP006"},
		{"wrapped commit failure", fmt.Errorf("confirm: %w", &CommitError{Err: errors.New("duplicate key value")}), "IMP006"},
		{"bad policy", errors.New(`invalid duplicate policy "merge"`), "IMP007"},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"foreign key", errors.New("violates foreign key constraint"), "DB003"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"busy limiter", ErrTooManyImports, "UPL001"},
		{"expired session", errors.New("no import batch awaiting confirmation"), "UPL002"},
		{"canceled", context.Canceled, "UPL003"},
		{"deadline", context.DeadlineExceeded, "UPL004"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"bad form", errors.New("invalid upload form: request Content-Type isn't multipart/form-data"), "UPL006"},
		{"bad policy wins over request", errors.New(`invalid confirm request: invalid duplicate policy "x"`), "IMP007"},
		{"bad confirm body", errors.New("invalid confirm request: unexpected EOF"), "UPL006"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			if tt.err != nil {
				assert.NotEmpty(t, got.Message)
				assert.NotEmpty(t, got.Action)
			}
		})
	}
}

func TestMapError_CommitLine(t *testing.T) {
	msg := MapError(&CommitError{Line: 12, Err: errors.New("boom")})
	assert.Contains(t, msg.Message, "Line 12")
	assert.Contains(t, msg.Message, "nothing was saved")
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t, "", FormatUserError(nil))
	assert.Equal(t,
		"No rows can be imported (Code: IMP005). Fix the rejected rows listed in the preview and upload again",
		FormatUserError(ErrNoImportableRows))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.False(t, IsUserFacing(errors.New("something odd")))
	assert.True(t, IsUserFacing(ErrEmptyFile))
	assert.True(t, IsUserFacing(&CommitError{Err: errors.New("x")}))
}
