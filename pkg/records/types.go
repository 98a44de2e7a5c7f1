package records

import (
	"fmt"
	"time"
)

// FileStatus is the lifecycle status of a signing file.
type FileStatus string

const (
	StatusDraft    FileStatus = "draft"
	StatusPending  FileStatus = "pending"
	StatusSigned   FileStatus = "signed"
	StatusRejected FileStatus = "rejected"
)

// ScopeKind identifies the billing/ownership scope a retention policy applies to.
type ScopeKind string

const (
	// ScopeTenant scopes a run or plan lookup to a single tenant.
	ScopeTenant ScopeKind = "tenant"

	// ScopeFirm scopes a run or plan lookup to a single firm.
	ScopeFirm ScopeKind = "firm"
)

// Scope is a tenant or firm that owns documents and a subscription.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// TenantScope returns a tenant scope.
func TenantScope(id string) Scope { return Scope{Kind: ScopeTenant, ID: id} }

// FirmScope returns a firm scope.
func FirmScope(id string) Scope { return Scope{Kind: ScopeFirm, ID: id} }

// String renders the scope as "kind:id".
func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// ObjectRef locates one object in object storage.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the reference as "bucket/key".
func (o ObjectRef) String() string {
	return o.Bucket + "/" + o.Key
}

// SigningFile is a legal document instance and its evidentiary artifacts.
// Empty optional strings are stored as NULL.
type SigningFile struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	OwnerUserID string     `json:"ownerUserId,omitempty"`
	CaseID      string     `json:"caseId,omitempty"`
	Status      FileStatus `json:"status"`

	CreatedAt time.Time  `json:"createdAt"`
	SignedAt  *time.Time `json:"signedAt,omitempty"`

	LegalHold           bool       `json:"legalHold"`
	PendingDeleteAtUTC  *time.Time `json:"pendingDeleteAtUtc,omitempty"`
	PendingDeleteReason string     `json:"pendingDeleteReason,omitempty"`

	// Storage locators. The Legacy* keys predate per-object buckets and
	// resolve against the default bucket.
	OriginalBucket    string `json:"originalBucket,omitempty"`
	OriginalKey       string `json:"originalKey,omitempty"`
	SignedBucket      string `json:"signedBucket,omitempty"`
	SignedKey         string `json:"signedKey,omitempty"`
	LegacyOriginalKey string `json:"legacyOriginalKey,omitempty"`
	LegacySignedKey   string `json:"legacySignedKey,omitempty"`

	PresentedPDFSHA256 string `json:"presentedPdfSha256,omitempty"`
	SignedPDFSHA256    string `json:"signedPdfSha256,omitempty"`
}

// RetentionAnchor is the instant the retention window counts from:
// the signing time, or the creation time for files never stamped as signed.
func (f *SigningFile) RetentionAnchor() time.Time {
	if f.SignedAt != nil {
		return *f.SignedAt
	}
	return f.CreatedAt
}

// HasSignedKey reports whether either the current or the legacy signed
// artifact locator is set.
func (f *SigningFile) HasSignedKey() bool {
	return f.SignedKey != "" || f.LegacySignedKey != ""
}

// SignedObject resolves the signed artifact location.
func (f *SigningFile) SignedObject(defaultBucket string) (ObjectRef, bool) {
	return resolveObject(f.SignedBucket, f.SignedKey, f.LegacySignedKey, defaultBucket)
}

// OriginalObject resolves the original (unsigned) artifact location.
func (f *SigningFile) OriginalObject(defaultBucket string) (ObjectRef, bool) {
	return resolveObject(f.OriginalBucket, f.OriginalKey, f.LegacyOriginalKey, defaultBucket)
}

func resolveObject(bucket, key, legacyKey, defaultBucket string) (ObjectRef, bool) {
	if key != "" {
		if bucket == "" {
			bucket = defaultBucket
		}
		return ObjectRef{Bucket: bucket, Key: key}, true
	}
	if legacyKey != "" {
		return ObjectRef{Bucket: defaultBucket, Key: legacyKey}, true
	}
	return ObjectRef{}, false
}

// SignatureSpot is a per-signer evidentiary artifact of a signing file.
type SignatureSpot struct {
	ID            string `json:"id"`
	SigningFileID string `json:"signingFileId"`
	SignerName    string `json:"signerName,omitempty"`
	ImageBucket   string `json:"imageBucket,omitempty"`
	ImageKey      string `json:"imageKey,omitempty"`
}

// ImageObject resolves the raw signature image location.
func (s *SignatureSpot) ImageObject(defaultBucket string) (ObjectRef, bool) {
	if s.ImageKey == "" {
		return ObjectRef{}, false
	}
	bucket := s.ImageBucket
	if bucket == "" {
		bucket = defaultBucket
	}
	return ObjectRef{Bucket: bucket, Key: s.ImageKey}, true
}

// Audit event types written by this service.
const (
	EventRetentionDeleteBlocked   = "retention.delete_blocked"
	EventRetentionDeleteFailed    = "retention.delete_failed"
	EventRetentionDocumentDeleted = "retention.document_deleted"
)

// Actor types.
const (
	ActorUser   = "user"
	ActorSigner = "signer"
	ActorSystem = "system"
)

// AuditEvent is one append-only, per-document hash-chained log entry.
// Empty optional strings are stored and hashed as null.
type AuditEvent struct {
	EventID       string         `json:"eventId"`
	OccurredAtUTC time.Time      `json:"occurredAtUtc"`
	EventType     string         `json:"eventType"`
	SigningFileID string         `json:"signingFileId,omitempty"`
	ActorUserID   string         `json:"actorUserId,omitempty"`
	ActorType     string         `json:"actorType,omitempty"`
	IP            string         `json:"ip,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	Success       bool           `json:"success"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	PrevEventHash string         `json:"prevEventHash,omitempty"`
	EventHash     string         `json:"eventHash"`
}

// Quotas are the numeric limits of a plan. A nil field means no limit.
type Quotas struct {
	DocumentsPerMonth           *int64 `json:"documentsPerMonth" yaml:"documents_per_month"`
	StorageGB                   *int64 `json:"storageGb" yaml:"storage_gb"`
	OTPSMSPerMonth              *int64 `json:"otpSmsPerMonth" yaml:"otp_sms_per_month"`
	EvidenceGenerationsPerMonth *int64 `json:"evidenceGenerationsPerMonth" yaml:"evidence_generations_per_month"`
	EvidenceCPUSecondsPerMonth  *int64 `json:"evidenceCpuSecondsPerMonth" yaml:"evidence_cpu_seconds_per_month"`
	Cases                       *int64 `json:"cases" yaml:"cases"`
	Clients                     *int64 `json:"clients" yaml:"clients"`
	Users                       *int64 `json:"users" yaml:"users"`
}

// Pricing is the list price of a plan.
type Pricing struct {
	PriceCents int64  `json:"priceCents" yaml:"price_cents"`
	Currency   string `json:"currency" yaml:"currency"`
}

// SubscriptionPlan is a named tier maintained by platform operators.
type SubscriptionPlan struct {
	PlanKey string `json:"planKey" yaml:"plan_key"`
	Name    string `json:"name" yaml:"name"`

	// Retention windows in days. Nil means not configured.
	RetentionDaysCore *int `json:"retentionDaysCore" yaml:"retention_days_core"`
	RetentionDaysPii  *int `json:"retentionDaysPii" yaml:"retention_days_pii"`

	Quotas       Quotas         `json:"quotas" yaml:"quotas"`
	FeatureFlags map[string]any `json:"featureFlags" yaml:"feature_flags"`
	Pricing      Pricing        `json:"pricing" yaml:"pricing"`
}

// Subscription statuses.
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// Subscription binds a tenant or firm to a plan.
type Subscription struct {
	Scope    Scope      `json:"scope"`
	PlanKey  string     `json:"planKey"`
	Status   string     `json:"status"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

// Firm is a law firm inside a tenant.
type Firm struct {
	ID       string `json:"id"`
	FirmKey  string `json:"firmKey"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}

// ResolvedPlan is the effective plan for a scope after defaults, the
// retention floor, and any unlimited override have been applied.
type ResolvedPlan struct {
	PlanKey                    string         `json:"planKey"`
	Name                       string         `json:"name"`
	EffectiveRetentionDaysCore int            `json:"effectiveRetentionDaysCore"`
	EffectiveRetentionDaysPii  int            `json:"effectiveRetentionDaysPii"`
	Quotas                     Quotas         `json:"quotas"`
	FeatureFlags               map[string]any `json:"featureFlags"`
	Pricing                    Pricing        `json:"pricing"`

	// Synthetic is set when neither the subscribed nor the default plan row exists.
	Synthetic bool `json:"synthetic,omitempty"`
}
