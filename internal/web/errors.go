package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request id; the client receives the
// mapped user message and its support code. The status code follows from
// the error's type, so handlers only pass the error along.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/JonMunkholm/divimport/internal/logging"
	"github.com/JonMunkholm/divimport/internal/session"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

var (
	errNoFile      = errors.New("no file provided")
	errInvalidForm = errors.New("invalid upload form")
)

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := dividend.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var ce *dividend.CommitError
	if errors.As(err, &ce) {
		resp.Line = ce.Line
	}
	writeJSON(w, status, resp)
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var (
		se       *dividend.StructuralError
		ce       *dividend.CommitError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, dividend.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &se), errors.Is(err, dividend.ErrNoImportableRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoBatch):
		return http.StatusNotFound
	case errors.Is(err, dividend.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ce):
		return http.StatusInternalServerError
	case errors.Is(err, errNoFile), errors.Is(err, errInvalidForm), errors.Is(err, errInvalidPolicy):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
