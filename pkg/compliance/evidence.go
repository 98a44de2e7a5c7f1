package compliance

import (
	"context"
	"fmt"
	"time"

	"lexsign/custodian/pkg/cursor"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// EvidenceDocument is one entry of the evidence listing: a document with a
// signed artifact and the hashes that prove what was signed.
type EvidenceDocument struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenantId"`
	OwnerUserID        string             `json:"ownerUserId,omitempty"`
	CaseID             string             `json:"caseId,omitempty"`
	Status             records.FileStatus `json:"status"`
	SignedAt           time.Time          `json:"signedAt"`
	Signed             records.ObjectRef  `json:"signed"`
	PresentedPDFSHA256 string             `json:"presentedPdfSha256,omitempty"`
	SignedPDFSHA256    string             `json:"signedPdfSha256,omitempty"`
	LegalHold          bool               `json:"legalHold"`
	PendingDelete      bool               `json:"pendingDelete"`
}

const hasSignedArtifact = `signed_at IS NOT NULL AND (
	(signed_key IS NOT NULL AND signed_key <> '') OR
	(signed_file_key IS NOT NULL AND signed_file_key <> ''))`

// ListEvidence returns one page of documents with a signed artifact,
// most recently signed first.
func (r *Reader) ListEvidence(ctx context.Context, f EvidenceFilter, token string, pageSize int) (cursor.Page[EvidenceDocument], error) {
	var page cursor.Page[EvidenceDocument]
	if err := f.Validate(); err != nil {
		return page, err
	}
	after, err := cursor.DecodeOptional(token)
	if err != nil {
		return page, &ParamError{Param: "cursor", Err: err}
	}
	limit := cursor.ClampPageSize(pageSize)

	var w where
	w.add(hasSignedArtifact)
	w.eq("tenant_id", f.TenantID)
	w.eq("case_id", f.CaseID)
	w.eq("owner_user_id", f.OwnerUserID)
	if f.LegalHold != nil {
		w.add("legal_hold = ?", *f.LegalHold)
	}
	w.timeRange("signed_at", f.From, f.To)
	w.search(f.Search, "id", "case_id")
	if after != nil {
		w.add("(signed_at, id) < (?, ?)", store.FormatTime(after.Time), after.ID)
	}

	query := `SELECT ` + store.SigningFileColumns + ` FROM signing_files` + w.String() +
		` ORDER BY signed_at DESC, id DESC LIMIT ?`
	rows, err := r.q.QueryContext(ctx, query, append(w.args, limit+1)...)
	if err != nil {
		return page, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var docs []EvidenceDocument
	for rows.Next() {
		file, err := store.ScanSigningFile(rows)
		if err != nil {
			return page, err
		}
		docs = append(docs, r.evidenceOf(file))
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("failed to list evidence: %w", err)
	}

	return cursor.Trim(docs, limit, func(d EvidenceDocument) cursor.Key {
		return cursor.Key{Time: d.SignedAt, ID: d.ID}
	}), nil
}

func (r *Reader) evidenceOf(f *records.SigningFile) EvidenceDocument {
	signed, _ := f.SignedObject(r.defaultBucket)
	doc := EvidenceDocument{
		ID:                 f.ID,
		TenantID:           f.TenantID,
		OwnerUserID:        f.OwnerUserID,
		CaseID:             f.CaseID,
		Status:             f.Status,
		Signed:             signed,
		PresentedPDFSHA256: f.PresentedPDFSHA256,
		SignedPDFSHA256:    f.SignedPDFSHA256,
		LegalHold:          f.LegalHold,
		PendingDelete:      f.PendingDeleteAtUTC != nil,
	}
	if f.SignedAt != nil {
		doc.SignedAt = *f.SignedAt
	}
	return doc
}
