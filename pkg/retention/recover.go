package retention

import (
	"context"
	"fmt"
	"time"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/telemetry/logging"
	"lexsign/custodian/pkg/telemetry/tracing"
)

// DefaultRecoveryThreshold is how long a claim must be stuck before a
// recovery pass picks it up.
const DefaultRecoveryThreshold = 24 * time.Hour

// RecoverOptions controls a recovery pass over stuck claims.
type RecoverOptions struct {
	DryRun    bool
	Now       time.Time
	OlderThan time.Duration
	MaxDocs   int
}

// ListStaleClaims returns documents claimed by a retention run before
// `before` that are still present and not on legal hold, oldest claim first.
func ListStaleClaims(ctx context.Context, q store.Querier, before time.Time, limit int) ([]*records.SigningFile, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+store.SigningFileColumns+` FROM signing_files
		WHERE pending_delete_reason = ? AND pending_delete_at_utc < ?
		  AND status = ? AND legal_hold = ?
		ORDER BY pending_delete_at_utc ASC, id ASC
		LIMIT ?`,
		ReasonRetentionPolicy, store.FormatTime(before), string(records.StatusSigned), false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale claims: %w", err)
	}
	defer rows.Close()

	var files []*records.SigningFile
	for rows.Next() {
		f, err := store.ScanSigningFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list stale claims: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Resume finishes the deletion of a document a previous run claimed but
// could not delete. The claim is kept: storage may already be partly gone,
// so the only way forward is to complete the deletion. Like Delete, it runs
// to completion once started even if ctx is cancelled.
func (d *Deleter) Resume(ctx context.Context, file *records.SigningFile) (out Outcome) {
	ctx, span := tracing.Start(context.WithoutCancel(ctx), "retention.resume", tracing.SigningFileID(file.ID))
	defer func() { tracing.EndStage(span, out.Stage, out.Err) }()

	out = Outcome{DocumentID: file.ID, Claimed: true}
	if err := CheckGuardrail(file); err != nil {
		out.Stage, out.Err = records.StageGuardrail, err
		d.appendDocumentEvent(ctx, records.EventRetentionDeleteBlocked, file.ID, out)
		return out
	}
	return d.purge(ctx, file, out)
}

// Recover retries documents whose claim is older than opts.OlderThan. It
// writes a run record like Run does.
func (r *Runner) Recover(ctx context.Context, opts RecoverOptions) (*records.RetentionRun, error) {
	if opts.Now.IsZero() {
		opts.Now = r.clock()
	}
	opts.Now = opts.Now.UTC()
	if opts.OlderThan <= 0 {
		opts.OlderThan = DefaultRecoveryThreshold
	}
	if opts.MaxDocs <= 0 {
		opts.MaxDocs = DefaultMaxDocs
	}

	handle := r.recorder.Open(r.clock())
	ctx = logging.WithRunID(ctx, handle.RunID)
	ctx, span := tracing.Start(ctx, "retention.recover", tracing.RunID(handle.RunID), tracing.DryRun(opts.DryRun))
	defer span.End()
	run := &records.RetentionRun{
		RunID:     handle.RunID,
		DryRun:    opts.DryRun,
		StartedAt: handle.StartedAt,
		Summary: records.RunSummary{
			Now:               opts.Now,
			MaxDocs:           opts.MaxDocs,
			RecoveryThreshold: opts.OlderThan.String(),
		},
	}
	summary := records.ScopeSummary{Scope: "recovery"}

	files, err := ListStaleClaims(ctx, r.store, opts.Now.Add(-opts.OlderThan), opts.MaxDocs)
	if err != nil {
		return nil, err
	}
	summary.Candidates = len(files)
	run.Summary.TotalCandidates = len(files)

	for _, f := range files {
		if ctx.Err() != nil {
			run.Summary.Interrupted = true
			break
		}
		run.Summary.DocumentsScanned++
		scope := records.TenantScope(f.TenantID)

		if opts.DryRun {
			r.observe(scope, ResultCandidate)
			continue
		}

		out := r.deleter.Resume(ctx, f)
		if out.Deleted {
			summary.Deleted++
			run.DeletedCounts.Add(out.Counts)
		} else {
			run.DeletedCounts.StorageObjects += out.Counts.StorageObjects
		}
		if out.Err != nil {
			if out.Stage == records.StageGuardrail {
				summary.GuardrailBlocked++
			}
			summary.Errors++
			run.Errors = append(run.Errors, records.RunError{
				Scope:      scope.String(),
				DocumentID: f.ID,
				Stage:      out.Stage,
				Kind:       records.KindOf(out.Err),
				Message:    out.Err.Error(),
			})
		}
		r.observe(scope, resultOf(out))
	}
	if ctx.Err() != nil {
		run.Summary.Interrupted = true
	}

	run.Summary.ScopesProcessed = 1
	run.Summary.Scopes = []records.ScopeSummary{summary}
	run.FinishedAt = r.clock().UTC()
	_ = r.recorder.Close(context.WithoutCancel(ctx), run)
	if r.observer != nil {
		r.observer.RunFinished(run, run.FinishedAt.Sub(run.StartedAt))
	}

	r.logger.Info("recovery pass finished",
		"run_id", run.RunID,
		"stale_claims", len(files),
		"deleted", run.DeletedCounts.SigningFiles,
		"errors", len(run.Errors),
	)
	return run, nil
}
