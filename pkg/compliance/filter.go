package compliance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lexsign/custodian/pkg/store"
)

// ParamError is an invalid request parameter: a bad cursor, an unknown
// enum value or an empty time range.
type ParamError struct {
	Param string
	Err   error
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %v", e.Param, e.Err)
}

// Unwrap returns the underlying cause error.
func (e *ParamError) Unwrap() error {
	return e.Err
}

// IsParamError reports whether err is or wraps a *ParamError.
func IsParamError(err error) bool {
	var pe *ParamError
	return errors.As(err, &pe)
}

// AuditFilter selects audit events. Zero fields do not filter.
type AuditFilter struct {
	CaseID        string
	SigningFileID string
	ActorType     string
	EventType     string

	// From is inclusive, To exclusive.
	From *time.Time
	To   *time.Time

	// Search matches event type, actor, document id and metadata text,
	// case-insensitively.
	Search  string
	Success *bool
}

// EvidenceFilter selects documents with a signed artifact.
type EvidenceFilter struct {
	TenantID    string
	CaseID      string
	OwnerUserID string

	// From is inclusive, To exclusive, both on the signing time.
	From *time.Time
	To   *time.Time

	// Search matches document and case ids.
	Search    string
	LegalHold *bool
}

var actorTypes = map[string]bool{"user": true, "signer": true, "system": true}

// Validate checks the filter before any query runs.
func (f *AuditFilter) Validate() error {
	if f.ActorType != "" && !actorTypes[f.ActorType] {
		return &ParamError{Param: "actorType", Err: fmt.Errorf("unknown actor type %q", f.ActorType)}
	}
	return validateRange(f.From, f.To)
}

// Validate checks the filter before any query runs.
func (f *EvidenceFilter) Validate() error {
	return validateRange(f.From, f.To)
}

func validateRange(from, to *time.Time) error {
	if from != nil && to != nil && !from.Before(*to) {
		return &ParamError{Param: "from", Err: errors.New("from must be before to")}
	}
	return nil
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conditions []string
	args       []any
}

func (w *where) add(cond string, args ...any) {
	w.conditions = append(w.conditions, cond)
	w.args = append(w.args, args...)
}

func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) timeRange(column string, from, to *time.Time) {
	if from != nil {
		w.add(column+" >= ?", store.FormatTime(*from))
	}
	if to != nil {
		w.add(column+" < ?", store.FormatTime(*to))
	}
}

// search ORs a case-insensitive substring match over columns.
func (w *where) search(term string, columns ...string) {
	if term == "" {
		return
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		parts[i] = "LOWER(COALESCE(" + c + ", '')) LIKE ? ESCAPE '\\'"
		args[i] = pattern
	}
	w.add("("+strings.Join(parts, " OR ")+")", args...)
}

func (w *where) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
