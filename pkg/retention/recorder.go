package retention

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// RunHandle identifies an open retention run.
type RunHandle struct {
	RunID     string
	StartedAt time.Time
}

// Recorder persists one immutable retention_runs row per invocation.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(st *store.Store) *Recorder {
	return &Recorder{
		store:  st,
		logger: slog.Default().With("component", "retention.recorder"),
	}
}

// Open starts a run. Nothing is written until Close.
func (r *Recorder) Open(now time.Time) RunHandle {
	return RunHandle{RunID: uuid.New().String(), StartedAt: now.UTC()}
}

// Close writes the run record. Dry runs always store zero deleted counts.
// The error is for callers that want it; a failed write is logged here and
// must not fail the run.
func (r *Recorder) Close(ctx context.Context, run *records.RetentionRun) error {
	if run.DryRun {
		run.DeletedCounts = records.DeletedCounts{}
	}
	if run.Errors == nil {
		run.Errors = []records.RunError{}
	}
	if run.Summary.Scopes == nil {
		run.Summary.Scopes = []records.ScopeSummary{}
	}

	err := r.insert(ctx, run)
	if err != nil {
		r.logger.Error("failed to record retention run", "run_id", run.RunID, "error", err)
		return err
	}
	r.logger.Info("retention run recorded", "run_id", run.RunID, "dry_run", run.DryRun)
	return nil
}

func (r *Recorder) insert(ctx context.Context, run *records.RetentionRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	counts, err := json.Marshal(run.DeletedCounts)
	if err != nil {
		return fmt.Errorf("failed to encode deleted counts: %w", err)
	}
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	var scopeKind, scopeID any
	if run.Scope != nil {
		scopeKind, scopeID = string(run.Scope.Kind), run.Scope.ID
	}
	if _, err := r.store.ExecContext(ctx, `INSERT INTO retention_runs
		(run_id, scope_kind, scope_id, plan_key, dry_run, started_at, finished_at, summary, deleted_counts, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, scopeKind, scopeID, store.NullString(run.PlanKey), run.DryRun,
		store.FormatTime(run.StartedAt), store.FormatTime(run.FinishedAt),
		string(summary), string(counts), string(errs),
	); err != nil {
		return records.NewStorageError(r.store.Driver(), "record_run", err)
	}
	return nil
}

const runColumns = `run_id, scope_kind, scope_id, plan_key, dry_run, started_at, finished_at, summary, deleted_counts, errors`

// GetRun loads one run record.
func GetRun(ctx context.Context, q store.Querier, runID string) (*records.RetentionRun, error) {
	run, err := scanRun(q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM retention_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(ctx context.Context, q store.Querier, limit int) ([]*records.RetentionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.QueryContext(ctx, `SELECT `+runColumns+` FROM retention_runs
		ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retention runs: %w", err)
	}
	defer rows.Close()

	var runs []*records.RetentionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row store.RowScanner) (*records.RetentionRun, error) {
	var (
		run                      records.RetentionRun
		scopeKind, scopeID, plan sql.NullString
		startedAt, finishedAt    string
		summary, counts, errs    string
	)
	if err := row.Scan(&run.RunID, &scopeKind, &scopeID, &plan, &run.DryRun,
		&startedAt, &finishedAt, &summary, &counts, &errs); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = store.ParseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = store.ParseTime(finishedAt); err != nil {
		return nil, err
	}
	if scopeKind.Valid {
		run.Scope = &records.Scope{Kind: records.ScopeKind(scopeKind.String), ID: scopeID.String}
	}
	run.PlanKey = plan.String
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("run %s summary: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(counts), &run.DeletedCounts); err != nil {
		return nil, fmt.Errorf("run %s deleted counts: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("run %s errors: %w", run.RunID, err)
	}
	return &run, nil
}
