package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lexsign/custodian/pkg/records"
)

// Span attribute keys.
const (
	AttrRunID         = "custodian.run_id"
	AttrDryRun        = "custodian.dry_run"
	AttrScope         = "custodian.scope"
	AttrPlanKey       = "custodian.plan_key"
	AttrSigningFileID = "custodian.signing_file_id"
	AttrStage         = "custodian.stage"
	AttrCandidates    = "custodian.candidates"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"
)

func RunID(id string) attribute.KeyValue { return attribute.String(AttrRunID, id) }

func DryRun(v bool) attribute.KeyValue { return attribute.Bool(AttrDryRun, v) }

func Scope(s records.Scope) attribute.KeyValue { return attribute.String(AttrScope, s.String()) }

func PlanKey(key string) attribute.KeyValue { return attribute.String(AttrPlanKey, key) }

func SigningFileID(id string) attribute.KeyValue { return attribute.String(AttrSigningFileID, id) }

func Stage(s records.Stage) attribute.KeyValue { return attribute.String(AttrStage, string(s)) }

func Candidates(n int) attribute.KeyValue { return attribute.Int(AttrCandidates, n) }

// EndStage ends a per-document span, tagging a failure with its stage.
func EndStage(span trace.Span, stage records.Stage, err error) {
	if err != nil {
		span.SetAttributes(Stage(stage))
	}
	End(span, err)
}
