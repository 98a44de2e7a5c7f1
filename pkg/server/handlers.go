package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/compliance"
)

// errorResponse is the body of every non-2xx API answer.
type errorResponse struct {
	Error string `json:"error"`
	Param string `json:"param,omitempty"`
}

func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := params{values: q}

	f := compliance.AuditFilter{
		CaseID:        q.Get("caseId"),
		SigningFileID: q.Get("signingFileId"),
		ActorType:     q.Get("actorType"),
		EventType:     q.Get("eventType"),
		From:          p.time("from"),
		To:            p.time("to"),
		Search:        q.Get("search"),
		Success:       p.bool("success"),
	}
	pageSize := p.int("pageSize")
	if p.err != nil {
		s.fail(w, r, p.err)
		return
	}

	page, err := s.opts.Reader.ListAuditEvents(r.Context(), f, q.Get("cursor"), pageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) listEvidence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := params{values: q}

	f := compliance.EvidenceFilter{
		TenantID:    q.Get("tenantId"),
		CaseID:      q.Get("caseId"),
		OwnerUserID: q.Get("ownerUserId"),
		From:        p.time("from"),
		To:          p.time("to"),
		Search:      q.Get("search"),
		LegalHold:   p.bool("legalHold"),
	}
	pageSize := p.int("pageSize")
	if p.err != nil {
		s.fail(w, r, p.err)
		return
	}

	page, err := s.opts.Reader.ListEvidence(r.Context(), f, q.Get("cursor"), pageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) verifyChain(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	res, err := audit.VerifyDocument(r.Context(), s.opts.Querier, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Total == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no audit events for signing file %q", id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail maps parameter errors to 400 and everything else to 500. Internal
// error text is logged, not returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var pe *compliance.ParamError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: pe.Error(), Param: pe.Param})
		return
	}
	s.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// params parses optional query values, keeping the first failure.
type params struct {
	values url.Values
	err    error
}

func (p *params) time(name string) *time.Time {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.fail(name, fmt.Errorf("expected an RFC 3339 timestamp, got %q", raw))
		return nil
	}
	t = t.UTC()
	return &t
}

func (p *params) bool(name string) *bool {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(name, fmt.Errorf("expected true or false, got %q", raw))
		return nil
	}
	return &b
}

func (p *params) int(name string) int {
	raw := p.values.Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(name, fmt.Errorf("expected an integer, got %q", raw))
		return 0
	}
	return n
}

func (p *params) fail(name string, err error) {
	if p.err == nil {
		p.err = &compliance.ParamError{Param: name, Err: err}
	}
}
