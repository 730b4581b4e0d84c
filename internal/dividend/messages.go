package dividend

// messages.go maps technical errors to user-facing messages with support
// codes.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Empty file: the upload has no rows
//	IMP002 - No data rows: only a header line was found
//	IMP003 - File too large: the upload exceeds the configured limit
//	IMP004 - Unreadable spreadsheet: the workbook could not be opened
//	IMP005 - Nothing to import: every row was rejected
//	IMP006 - Import rolled back: a row failed during commit
//	IMP007 - Invalid duplicate policy
//
// # Ledger Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB002 - Unique constraint
//	DB003 - Foreign key
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock
//
// # Session Errors (UPL001-UPL099)
//
//	UPL001 - System busy: too many imports in progress
//	UPL002 - Session expired: no batch awaiting confirmation
//	UPL003 - Request cancelled
//	UPL004 - Request timeout
//	UPL005 - No file provided
//	UPL006 - Malformed upload or confirm request
//
// # Rate Limiting
//
//	RATE001 - Too many requests
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Upload structure
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with at least one dividend row", "IMP001"}},
	{"no data rows", UserMessage{"The file contains a header but no dividend rows", "Check that the export includes data", "IMP002"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller exports", "IMP003"}},
	{"spreadsheet", UserMessage{"The spreadsheet could not be read", "Save the first sheet as .xlsx or export it as CSV", "IMP004"}},
	{"no importable rows", UserMessage{"No rows can be imported", "Fix the rejected rows listed in the preview and upload again", "IMP005"}},
	{"invalid duplicate policy", UserMessage{"Unknown duplicate policy", "Use strict, ignore or allow", "IMP007"}},

	// Ledger constraints
	{"duplicate key", UserMessage{"A dividend with the same key already exists", "Confirm again with the strict or ignore policy", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate rows in the file", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check for duplicate rows in the file", "DB002"}},
	{"foreign key", UserMessage{"Referenced broker or account group does not exist", "Check the broker and account group settings", "DB003"}},

	// Ledger connectivity
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Session and concurrency
	{"too many concurrent imports", UserMessage{"Too many imports in progress", "Please wait a moment and try again", "UPL001"}},
	{"no import batch", UserMessage{"No import is waiting for confirmation", "The preview may have expired. Upload the file again", "UPL002"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL003"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "UPL004"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"no file provided", UserMessage{"No file was selected", "Select a CSV or XLSX file to upload", "UPL005"}},
	{"invalid upload form", UserMessage{"The upload request could not be read", "Send the file as multipart form field \"file\"", "UPL006"}},
	{"invalid confirm request", UserMessage{"The confirm request could not be read", "Send the policy as a form field or JSON", "UPL006"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

var commitMessage = UserMessage{
	Message: "The import was rolled back and nothing was saved",
	Action:  "Review the failing row and confirm again",
	Code:    "IMP006",
}

// MapError converts a technical error to a user-friendly message. A nil
// error yields the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ce *CommitError
	if errors.As(err, &ce) {
		msg := commitMessage
		if ce.Line > 0 {
			msg.Message = fmt.Sprintf("Line %d could not be saved; the import was rolled back and nothing was saved", ce.Line)
		}
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
