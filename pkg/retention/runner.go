package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/telemetry/logging"
	"lexsign/custodian/pkg/telemetry/tracing"
)

// DefaultMaxDocs bounds the documents one run processes.
const DefaultMaxDocs = 500

// Document results reported to an Observer.
const (
	ResultCandidate         = "candidate"
	ResultDeleted           = "deleted"
	ResultGuardrailBlocked  = "guardrail_blocked"
	ResultClaimConflict     = "claim_conflict"
	ResultStorageFailed     = "storage_failed"
	ResultTransactionFailed = "transaction_failed"
	ResultAuditFailed       = "audit_failed"
	ResultError             = "error"
)

// PlanSource resolves the effective plan of a scope. *plans.Resolver
// satisfies it.
type PlanSource interface {
	Resolve(ctx context.Context, scope records.Scope, caps store.SchemaCapabilities) (*records.ResolvedPlan, error)
}

// Observer receives per-document and per-run results, typically to update
// metrics.
type Observer interface {
	DocumentProcessed(scope records.Scope, result string)
	RunFinished(run *records.RetentionRun, elapsed time.Duration)
}

// Options controls one batch run.
type Options struct {
	// Scope limits the run to one tenant or firm. Nil processes every scope
	// that has a subscription row.
	Scope *records.Scope

	// DryRun reports candidates without writing anything.
	DryRun bool

	// Now is the logical time cutoffs are computed from.
	Now time.Time

	// MaxDocs bounds the documents processed across all scopes.
	MaxDocs int

	// SoftBufferDays is the minimum document age regardless of plan.
	SoftBufferDays int
}

// DefaultOptions returns a dry run with the default limits.
func DefaultOptions() Options {
	return Options{
		DryRun:         true,
		MaxDocs:        DefaultMaxDocs,
		SoftBufferDays: DefaultSoftBufferDays,
	}
}

// Validate checks the options before any work starts.
func (o *Options) Validate() error {
	if o.MaxDocs <= 0 {
		return fmt.Errorf("max docs must be positive, got %d", o.MaxDocs)
	}
	if o.SoftBufferDays < 0 {
		return fmt.Errorf("soft buffer days cannot be negative, got %d", o.SoftBufferDays)
	}
	if o.Scope != nil && o.Scope.ID == "" {
		return fmt.Errorf("scope id cannot be empty")
	}
	return nil
}

// Runner processes scopes one at a time and documents one at a time.
type Runner struct {
	store    *store.Store
	plans    PlanSource
	scanner  *Scanner
	deleter  *Deleter
	recorder *Recorder
	observer Observer
	clock    func() time.Time
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(st *store.Store, planSource PlanSource, deleter *Deleter) *Runner {
	return &Runner{
		store:    st,
		plans:    planSource,
		scanner:  NewScanner(st),
		deleter:  deleter,
		recorder: NewRecorder(st),
		clock:    time.Now,
		logger:   slog.Default().With("component", "retention.runner"),
	}
}

// SetObserver registers an observer for document and run results.
func (r *Runner) SetObserver(o Observer) {
	r.observer = o
}

// Run executes one batch. It returns an error only for invalid options or
// when the schema cannot be inspected; every document and scope failure is
// recorded in the returned run instead. Cancelling ctx stops the run
// between documents, and the run record is still written.
func (r *Runner) Run(ctx context.Context, opts Options) (*records.RetentionRun, error) {
	if opts.Now.IsZero() {
		opts.Now = r.clock()
	}
	opts.Now = opts.Now.UTC()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	caps, err := r.store.DetectCapabilities(ctx)
	if err != nil {
		return nil, err
	}

	handle := r.recorder.Open(r.clock())
	ctx = logging.WithRunID(ctx, handle.RunID)
	ctx, span := tracing.Start(ctx, "retention.run", tracing.RunID(handle.RunID), tracing.DryRun(opts.DryRun))
	defer span.End()
	run := &records.RetentionRun{
		RunID:     handle.RunID,
		Scope:     opts.Scope,
		DryRun:    opts.DryRun,
		StartedAt: handle.StartedAt,
		Summary: records.RunSummary{
			Now:            opts.Now,
			MaxDocs:        opts.MaxDocs,
			SoftBufferDays: opts.SoftBufferDays,
		},
	}

	r.logger.InfoContext(ctx, "retention run started",
		"dry_run", opts.DryRun,
		"now", opts.Now,
		"max_docs", opts.MaxDocs,
		"firm_tables", caps.HasFirmTables(),
	)

	scopes := []records.Scope{}
	if opts.Scope != nil {
		scopes = append(scopes, *opts.Scope)
	} else if scopes, err = DiscoverScopes(ctx, r.store, caps); err != nil {
		run.Errors = append(run.Errors, records.RunError{
			Stage:   records.StageScope,
			Kind:    records.KindOf(err),
			Message: err.Error(),
		})
	}

	for _, scope := range scopes {
		if ctx.Err() != nil {
			run.Summary.Interrupted = true
			break
		}
		summary := r.runScope(ctx, run, scope, caps, opts)
		if summary.SkippedReason != "" {
			run.Summary.ScopesSkipped++
		} else {
			run.Summary.ScopesProcessed++
		}
		if opts.Scope != nil {
			run.PlanKey = summary.PlanKey
		}
		run.Summary.Scopes = append(run.Summary.Scopes, summary)
	}

	run.FinishedAt = r.clock().UTC()
	if run.DryRun {
		run.DeletedCounts = records.DeletedCounts{}
	}
	_ = r.recorder.Close(context.WithoutCancel(ctx), run)

	if r.observer != nil {
		r.observer.RunFinished(run, run.FinishedAt.Sub(run.StartedAt))
	}

	r.logger.InfoContext(ctx, "retention run finished",
		"scanned", run.Summary.DocumentsScanned,
		"claimed", run.Summary.DocumentsClaimed,
		"deleted", run.DeletedCounts.SigningFiles,
		"errors", len(run.Errors),
		"interrupted", run.Summary.Interrupted,
	)
	return run, nil
}

func (r *Runner) runScope(ctx context.Context, run *records.RetentionRun, scope records.Scope, caps store.SchemaCapabilities, opts Options) records.ScopeSummary {
	ctx, span := tracing.Start(ctx, "retention.scope", tracing.Scope(scope))
	defer span.End()

	summary := records.ScopeSummary{Scope: scope.String()}
	fail := func(stage records.Stage, documentID string, err error) {
		span.RecordError(err)
		summary.Errors++
		run.Errors = append(run.Errors, records.RunError{
			Scope:      scope.String(),
			DocumentID: documentID,
			Stage:      stage,
			Kind:       records.KindOf(err),
			Message:    err.Error(),
		})
	}

	plan, err := r.plans.Resolve(ctx, scope, caps)
	switch {
	case err != nil:
		err = &records.ScopeResolutionFailure{Scope: scope, Cause: err}
	case plan == nil && scope.Kind == records.ScopeFirm && !caps.HasFirmTables():
		err = &records.SchemaNotReady{Capability: store.CapabilityFirmTables}
	case plan == nil:
		err = &records.ScopeResolutionFailure{Scope: scope, Cause: errors.New("no plan resolved")}
	}
	if err != nil {
		r.logger.Warn("skipping scope", "scope", scope.String(), "error", err)
		summary.SkippedReason = err.Error()
		fail(records.StageScope, "", err)
		return summary
	}

	summary.PlanKey = plan.PlanKey
	summary.RetentionDaysPii = plan.EffectiveRetentionDaysPii
	span.SetAttributes(tracing.PlanKey(plan.PlanKey))

	req := ScanRequest{
		Scope:            scope,
		RetentionDaysPii: plan.EffectiveRetentionDaysPii,
		Now:              opts.Now,
		SoftBufferDays:   opts.SoftBufferDays,
		Capabilities:     caps,
	}
	summary.Cutoff, summary.SoftBufferCutoff = req.Cutoffs()
	summary.TenantOnly = req.TenantOnly()

	total, err := r.scanner.Count(ctx, req)
	if err != nil {
		summary.SkippedReason = "scan failed"
		fail(records.StageScan, "", err)
		return summary
	}
	summary.Candidates = total
	run.Summary.TotalCandidates += total
	span.SetAttributes(tracing.Candidates(total))

	remaining := opts.MaxDocs - run.Summary.DocumentsScanned
	if remaining <= 0 {
		summary.SkippedReason = "max docs reached"
		return summary
	}
	req.Limit = remaining

	files, err := r.scanner.Scan(ctx, req)
	if err != nil {
		summary.SkippedReason = "scan failed"
		fail(records.StageScan, "", err)
		return summary
	}

	for _, f := range files {
		if ctx.Err() != nil {
			run.Summary.Interrupted = true
			break
		}
		run.Summary.DocumentsScanned++

		if opts.DryRun {
			result := ResultCandidate
			if err := CheckGuardrail(f); err != nil {
				summary.GuardrailBlocked++
				result = ResultGuardrailBlocked
				fail(records.StageGuardrail, f.ID, err)
			}
			r.observe(scope, result)
			continue
		}

		out := r.deleter.Delete(ctx, f, opts.Now)
		if out.Claimed {
			summary.Claimed++
			run.Summary.DocumentsClaimed++
		}
		if out.Deleted {
			summary.Deleted++
			run.DeletedCounts.Add(out.Counts)
		} else {
			// objects removed before a storage failure are gone for good
			run.DeletedCounts.StorageObjects += out.Counts.StorageObjects
		}
		if out.Err != nil {
			if out.Stage == records.StageGuardrail {
				summary.GuardrailBlocked++
			}
			fail(out.Stage, f.ID, out.Err)
		}
		r.observe(scope, resultOf(out))
	}
	if ctx.Err() != nil {
		run.Summary.Interrupted = true
	}
	return summary
}

func (r *Runner) observe(scope records.Scope, result string) {
	if r.observer != nil {
		r.observer.DocumentProcessed(scope, result)
	}
}

func resultOf(out Outcome) string {
	if out.Err == nil {
		return ResultDeleted
	}
	switch out.Stage {
	case records.StageGuardrail:
		return ResultGuardrailBlocked
	case records.StageClaim:
		return ResultClaimConflict
	case records.StageStorage:
		return ResultStorageFailed
	case records.StageDatabase:
		return ResultTransactionFailed
	case records.StageAudit:
		return ResultAuditFailed
	}
	return ResultError
}

// DocumentErrors counts the run errors tied to a specific document.
func DocumentErrors(run *records.RetentionRun) int {
	n := 0
	for _, e := range run.Errors {
		if e.DocumentID != "" {
			n++
		}
	}
	return n
}

// DiscoverScopes lists every tenant, and every firm when the firm tables
// exist, that has at least one subscription row. Tenants come first; each
// group is ordered by id.
func DiscoverScopes(ctx context.Context, q store.Querier, caps store.SchemaCapabilities) ([]records.Scope, error) {
	scopes, err := distinctScopes(ctx, q, `SELECT DISTINCT tenant_id FROM tenant_subscriptions ORDER BY tenant_id`, records.TenantScope)
	if err != nil {
		return nil, err
	}
	if !caps.HasFirmTables() {
		return scopes, nil
	}
	firms, err := distinctScopes(ctx, q, `SELECT DISTINCT firm_id FROM firm_subscriptions ORDER BY firm_id`, records.FirmScope)
	if err != nil {
		return nil, err
	}
	return append(scopes, firms...), nil
}

func distinctScopes(ctx context.Context, q store.Querier, query string, mk func(string) records.Scope) ([]records.Scope, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to discover scopes: %w", err)
	}
	defer rows.Close()

	var scopes []records.Scope
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to discover scopes: %w", err)
		}
		scopes = append(scopes, mk(id))
	}
	return scopes, rows.Err()
}
