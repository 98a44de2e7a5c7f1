package records

import "time"

// Stage names the step of a retention run an error happened in.
type Stage string

const (
	StageScope     Stage = "scope"
	StageScan      Stage = "scan"
	StageGuardrail Stage = "guardrail"
	StageClaim     Stage = "claim"
	StageStorage   Stage = "storage"
	StageDatabase  Stage = "database"
	StageAudit     Stage = "audit"
)

// RunError is one structured entry of a run's error list. It carries enough
// context to drive remediation without repeating discovery queries.
type RunError struct {
	Scope      string `json:"scope,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Stage      Stage  `json:"stage"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// DeletedCounts totals what a run removed.
type DeletedCounts struct {
	SigningFiles   int64 `json:"signingFiles"`
	SignatureSpots int64 `json:"signatureSpots"`
	AuditEvents    int64 `json:"auditEvents"`
	Consents       int64 `json:"consents"`
	OTPChallenges  int64 `json:"otpChallenges"`
	StorageObjects int64 `json:"storageObjects"`
}

// Add accumulates other into c.
func (c *DeletedCounts) Add(other DeletedCounts) {
	c.SigningFiles += other.SigningFiles
	c.SignatureSpots += other.SignatureSpots
	c.AuditEvents += other.AuditEvents
	c.Consents += other.Consents
	c.OTPChallenges += other.OTPChallenges
	c.StorageObjects += other.StorageObjects
}

// IsZero reports whether nothing was deleted.
func (c DeletedCounts) IsZero() bool {
	return c == DeletedCounts{}
}

// ScopeSummary reports what a run found and did for one scope.
type ScopeSummary struct {
	Scope             string    `json:"scope"`
	PlanKey           string    `json:"planKey,omitempty"`
	RetentionDaysPii  int       `json:"retentionDaysPii,omitempty"`
	Cutoff            time.Time `json:"cutoff,omitempty"`
	SoftBufferCutoff  time.Time `json:"softBufferCutoff,omitempty"`
	Candidates        int       `json:"candidates"`
	GuardrailBlocked  int       `json:"guardrailBlocked"`
	Claimed           int       `json:"claimed"`
	Deleted           int       `json:"deleted"`
	Errors            int       `json:"errors"`
	SkippedReason     string    `json:"skippedReason,omitempty"`
	TenantOnly        bool      `json:"tenantOnly,omitempty"`
}

// RunSummary is the summary column of a retention run.
type RunSummary struct {
	Now               time.Time      `json:"now"`
	MaxDocs           int            `json:"maxDocs"`
	SoftBufferDays    int            `json:"softBufferDays"`
	DocumentsScanned  int            `json:"documentsScanned"`
	DocumentsClaimed  int            `json:"documentsClaimed"`
	TotalCandidates   int            `json:"totalCandidates"`
	ScopesProcessed   int            `json:"scopesProcessed"`
	ScopesSkipped     int            `json:"scopesSkipped"`
	Interrupted       bool           `json:"interrupted,omitempty"`
	Scopes            []ScopeSummary `json:"scopes"`
	RecoveryThreshold string         `json:"recoveryThreshold,omitempty"`
}

// RetentionRun is the immutable record of one batch invocation.
type RetentionRun struct {
	RunID         string        `json:"runId"`
	Scope         *Scope        `json:"scope,omitempty"`
	PlanKey       string        `json:"planKey,omitempty"`
	DryRun        bool          `json:"dryRun"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
	Summary       RunSummary    `json:"summary"`
	DeletedCounts DeletedCounts `json:"deletedCounts"`
	Errors        []RunError    `json:"errors"`
}

// Usage metrics recorded by the usage tracker.
const (
	MetricDocuments           = "documents"
	MetricStorageBytes        = "storage_bytes"
	MetricOTPSMS              = "otp_sms"
	MetricEvidenceGenerations = "evidence_generations"
	MetricEvidenceCPUSeconds  = "evidence_cpu_seconds"
)

// UsageEvent is one metered usage record.
type UsageEvent struct {
	ID         string    `json:"id"`
	Scope      Scope     `json:"scope"`
	Metric     string    `json:"metric"`
	Quantity   int64     `json:"quantity"`
	OccurredAt time.Time `json:"occurredAt"`
}
