package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/JonMunkholm/divimport/internal/logging"
	"github.com/google/uuid"
)

// multipartOverhead is the form framing allowed on top of the file itself.
const multipartOverhead = 1 << 20

const maxHistoryLimit = 200

var errInvalidPolicy = errors.New("invalid confirm request")

// sessionOwner returns the caller's session id from the cookie.
func (s *Server) sessionOwner(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.cfg.Session.CookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// ensureSession returns the caller's session id, issuing a new cookie when
// the request carries none.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if owner, ok := s.sessionOwner(r); ok {
		return owner
	}
	owner := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    owner,
		Path:     "/api/imports",
		MaxAge:   int(s.cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Session.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	return owner
}

// currentBatch returns the batch previewed under the caller's session.
func (s *Server) currentBatch(r *http.Request) (*dividend.Batch, error) {
	owner, _ := s.sessionOwner(r)
	return s.sessions.Get(owner)
}

// handlePreview parses an uploaded file and keeps the batch for confirmation.
// A new upload replaces the caller's pending batch.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: %v", dividend.ErrFileTooLarge, err))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	var defaults dividend.Defaults
	if defaults.BrokerID, err = optionalID(r.FormValue("broker_id")); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: broker_id: %v", errInvalidForm, err))
		return
	}
	if defaults.AccountGroupID, err = optionalID(r.FormValue("account_group_id")); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: account_group_id: %v", errInvalidForm, err))
		return
	}

	owner := s.ensureSession(w, r)
	b, err := s.pipeline.Preview(withClient(r), header.Filename, file, defaults)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.sessions.Put(owner, b)

	writeJSON(w, http.StatusOK, b.Page(1, s.cfg.Import.PageSize))
}

// handleCurrent returns a page of the pending batch.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	b, err := s.currentBatch(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page := parseIntParam(r, "page", 1, math.MaxInt)
	limit := parseIntParam(r, "limit", s.cfg.Import.PageSize, dividend.MaxPageSize)
	writeJSON(w, http.StatusOK, b.Page(page, limit))
}

// duplicatesResponse lists pending rows already present in the ledger.
type duplicatesResponse struct {
	BatchID    uuid.UUID            `json:"batch_id"`
	Count      int                  `json:"count"`
	Duplicates []dividend.Duplicate `json:"duplicates"`
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	b, err := s.currentBatch(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dups, err := s.pipeline.Duplicates(r.Context(), b)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if dups == nil {
		dups = []dividend.Duplicate{}
	}
	writeJSON(w, http.StatusOK, duplicatesResponse{BatchID: b.ID, Count: len(dups), Duplicates: dups})
}

// confirmRequest is the JSON form of a confirm.
type confirmRequest struct {
	Policy string `json:"policy"`
}

// handleConfirm commits the pending batch. The batch leaves the session for
// the duration of the commit, so a second confirm cannot import it twice;
// it is put back when the commit fails.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	policy, err := s.readPolicy(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	owner, _ := s.sessionOwner(r)
	b, err := s.sessions.Take(owner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.pipeline.Confirm(withClient(r), b, policy)
	if err != nil {
		s.sessions.Restore(owner, b)
		logging.WithFields(r.Context(), "batch_id", b.ID.String()).Info("batch kept for resubmission", "error", err)
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) readPolicy(r *http.Request) (dividend.DuplicatePolicy, error) {
	var raw string
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req confirmRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errInvalidPolicy, err)
		}
		raw = req.Policy
	} else {
		raw = r.FormValue("policy")
	}

	policy, err := dividend.ParsePolicy(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidPolicy, err)
	}
	return policy, nil
}

// handleDiscard drops the pending batch.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.sessionOwner(r)
	if ok {
		s.sessions.Delete(owner)
	}
	w.WriteHeader(http.StatusNoContent)
}

// historyResponse lists recent committed imports.
type historyResponse struct {
	Imports []dividend.ImportRun `json:"imports"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.pipeline.RecentImports(r.Context(), parseIntParam(r, "limit", 20, maxHistoryLimit))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []dividend.ImportRun{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Imports: runs})
}

// handleTemplate serves a CSV containing only the canonical header row.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	fields := s.pipeline.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = string(f)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="dividend_import_template.csv"`)

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.Write(header)
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("write template", "error", err)
	}
}

// parseIntParam parses a positive integer query parameter with a default.
// Values above maxVal are clamped.
func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	if i > maxVal {
		return maxVal
	}
	return i
}

// optionalID parses an optional positive id form value.
func optionalID(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%q is not a valid id", s)
	}
	return &id, nil
}
