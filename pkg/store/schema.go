package store

import "strings"

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Timestamps are stored as fixed-width UTC text (see FormatTime) so that
// lexical and chronological order agree on every backend.
const coreSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS signing_files (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    owner_user_id TEXT,
    case_id TEXT,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    signed_at TEXT,
    legal_hold {{bool}} NOT NULL DEFAULT {{false}},
    pending_delete_at_utc TEXT,
    pending_delete_reason TEXT,
    original_bucket TEXT,
    original_key TEXT,
    signed_bucket TEXT,
    signed_key TEXT,
    original_file_key TEXT,
    signed_file_key TEXT,
    presented_pdf_sha256 TEXT,
    signed_pdf_sha256 TEXT
);

CREATE INDEX IF NOT EXISTS idx_signing_files_tenant_status ON signing_files(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_signing_files_owner ON signing_files(owner_user_id);
CREATE INDEX IF NOT EXISTS idx_signing_files_pending ON signing_files(pending_delete_at_utc);

CREATE TABLE IF NOT EXISTS signature_spots (
    id TEXT PRIMARY KEY,
    signing_file_id TEXT NOT NULL,
    signer_name TEXT,
    image_bucket TEXT,
    image_key TEXT
);

CREATE INDEX IF NOT EXISTS idx_signature_spots_file ON signature_spots(signing_file_id);

CREATE TABLE IF NOT EXISTS otp_challenges (
    id TEXT PRIMARY KEY,
    signing_file_id TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_otp_challenges_file ON otp_challenges(signing_file_id);

CREATE TABLE IF NOT EXISTS consents (
    id TEXT PRIMARY KEY,
    signing_file_id TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consents_file ON consents(signing_file_id);

CREATE TABLE IF NOT EXISTS audit_events (
    seq {{seq}},
    event_id TEXT NOT NULL UNIQUE,
    occurred_at_utc TEXT NOT NULL,
    event_type TEXT NOT NULL,
    signing_file_id TEXT,
    actor_user_id TEXT,
    actor_type TEXT,
    ip TEXT,
    user_agent TEXT,
    success {{bool}} NOT NULL,
    metadata TEXT,
    prev_event_hash TEXT,
    event_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_chain ON audit_events(signing_file_id, occurred_at_utc, seq);
CREATE INDEX IF NOT EXISTS idx_audit_events_listing ON audit_events(occurred_at_utc, event_id);

CREATE TABLE IF NOT EXISTS audit_delete_grants (
    signing_file_id TEXT PRIMARY KEY,
    granted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subscription_plans (
    plan_key TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    retention_days_core INTEGER,
    retention_days_pii INTEGER,
    quota_documents_per_month BIGINT,
    quota_storage_gb BIGINT,
    quota_otp_sms_per_month BIGINT,
    quota_evidence_generations_per_month BIGINT,
    quota_evidence_cpu_seconds_per_month BIGINT,
    quota_cases BIGINT,
    quota_clients BIGINT,
    quota_users BIGINT,
    feature_flags TEXT,
    price_cents BIGINT NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'USD'
);

CREATE TABLE IF NOT EXISTS tenant_subscriptions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    plan_key TEXT NOT NULL,
    status TEXT NOT NULL,
    starts_at TEXT,
    ends_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tenant_subscriptions_active
    ON tenant_subscriptions(tenant_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS usage_events (
    id TEXT PRIMARY KEY,
    scope_kind TEXT NOT NULL,
    scope_id TEXT NOT NULL,
    metric TEXT NOT NULL,
    quantity BIGINT NOT NULL,
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_events_scope ON usage_events(scope_kind, scope_id, metric, occurred_at);

CREATE TABLE IF NOT EXISTS retention_runs (
    run_id TEXT PRIMARY KEY,
    scope_kind TEXT,
    scope_id TEXT,
    plan_key TEXT,
    dry_run {{bool}} NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    summary TEXT NOT NULL,
    deleted_counts TEXT NOT NULL,
    errors TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retention_runs_started ON retention_runs(started_at);
`

// firmSchema holds the optional multi-firm tables.
const firmSchema = `
CREATE TABLE IF NOT EXISTS firms (
    id TEXT PRIMARY KEY,
    firm_key TEXT NOT NULL UNIQUE,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS firm_memberships (
    firm_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (firm_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_firm_memberships_user ON firm_memberships(user_id);

CREATE TABLE IF NOT EXISTS firm_subscriptions (
    id TEXT PRIMARY KEY,
    firm_id TEXT NOT NULL,
    plan_key TEXT NOT NULL,
    status TEXT NOT NULL,
    starts_at TEXT,
    ends_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_firm_subscriptions_active
    ON firm_subscriptions(firm_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS firm_plan_overrides (
    firm_id TEXT PRIMARY KEY,
    unlimited_until TEXT
);
`

// sqliteAuditGuards make audit_events append-only. Deletes pass only while a
// grant row exists for the event's document.
const sqliteAuditGuards = `
CREATE TRIGGER IF NOT EXISTS audit_events_no_update
BEFORE UPDATE ON audit_events
BEGIN
    SELECT RAISE(ABORT, 'audit_events is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_events_guarded_delete
BEFORE DELETE ON audit_events
WHEN NOT EXISTS (SELECT 1 FROM audit_delete_grants g WHERE g.signing_file_id = OLD.signing_file_id)
BEGIN
    SELECT RAISE(ABORT, 'audit event deletion requires an explicit grant');
END;
`

const postgresAuditGuards = `
CREATE OR REPLACE FUNCTION audit_events_guard() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'UPDATE' THEN
        RAISE EXCEPTION 'audit_events is append-only';
    END IF;
    IF NOT EXISTS (SELECT 1 FROM audit_delete_grants g WHERE g.signing_file_id = OLD.signing_file_id) THEN
        RAISE EXCEPTION 'audit event deletion requires an explicit grant';
    END IF;
    RETURN OLD;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_events_guard ON audit_events;

CREATE TRIGGER audit_events_guard
BEFORE UPDATE OR DELETE ON audit_events
FOR EACH ROW EXECUTE FUNCTION audit_events_guard();
`

const insertSchemaVersion = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`

const getSchemaVersion = `SELECT MAX(version) FROM schema_version`

func renderSchema(d Dialect, schema string) string {
	var r *strings.Replacer
	if d == DialectPostgres {
		r = strings.NewReplacer("{{bool}}", "BOOLEAN", "{{false}}", "FALSE", "{{seq}}", "BIGSERIAL PRIMARY KEY")
	} else {
		r = strings.NewReplacer("{{bool}}", "INTEGER", "{{false}}", "0", "{{seq}}", "INTEGER PRIMARY KEY AUTOINCREMENT")
	}
	return r.Replace(schema)
}

func auditGuards(d Dialect) string {
	if d == DialectPostgres {
		return postgresAuditGuards
	}
	return sqliteAuditGuards
}
