package retention

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/blobstore"
	"lexsign/custodian/pkg/plans"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/store/storetest"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const defaultBucket = "evidence"

func intp(v int) *int { return &v }

func daysAgo(n int) time.Time { return testNow.AddDate(0, 0, -n) }

type testEnv struct {
	st       *store.Store
	blobs    *blobstore.Store
	objects  *flakyObjects
	chain    *audit.Chain
	resolver *plans.Resolver
	deleter  *Deleter
	runner   *Runner
}

// newTestEnv builds a store with a BASIC plan (PII retention 60 days), a
// 60 day floor and an in-memory object store.
func newTestEnv(t *testing.T, firmTables bool) *testEnv {
	t.Helper()
	st := storetest.Open(t, firmTables)

	blobs, err := blobstore.New(blobstore.Config{Provider: blobstore.ProviderMem, DefaultBucket: defaultBucket})
	if err != nil {
		t.Fatalf("blobstore.New() failed: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	if err := plans.Seed(context.Background(), st, []records.SubscriptionPlan{
		{PlanKey: "BASIC", Name: "Basic", RetentionDaysPii: intp(60), RetentionDaysCore: intp(365)},
		{PlanKey: "LONG", Name: "Long", RetentionDaysPii: intp(3650)},
	}); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}

	objects := &flakyObjects{ObjectStore: blobs}
	chain := audit.NewChain(st, nil)
	resolver := plans.NewResolver(st, nil, plans.Options{
		RetentionFloorDays: 60,
		Clock:              func() time.Time { return testNow },
	})
	deleter := NewDeleter(st, objects, chain)

	return &testEnv{
		st:       st,
		blobs:    blobs,
		objects:  objects,
		chain:    chain,
		resolver: resolver,
		deleter:  deleter,
		runner:   NewRunner(st, resolver, deleter),
	}
}

// flakyObjects fails deletes of keys containing failOn and calls onDelete
// before every delete.
type flakyObjects struct {
	blobstore.ObjectStore

	mu       sync.Mutex
	failOn   string
	onDelete func(records.ObjectRef)
	deletes  []records.ObjectRef
}

func (f *flakyObjects) Delete(ctx context.Context, ref records.ObjectRef) error {
	f.mu.Lock()
	failOn, hook := f.failOn, f.onDelete
	f.deletes = append(f.deletes, ref)
	f.mu.Unlock()

	if hook != nil {
		hook(ref)
	}
	if failOn != "" && strings.Contains(ref.Key, failOn) {
		return errors.New("access denied")
	}
	return f.ObjectStore.Delete(ctx, ref)
}

// setOnDelete installs a hook that runs once, on the next delete.
func (f *flakyObjects) setOnDelete(hook func(records.ObjectRef)) {
	var once sync.Once
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDelete = func(ref records.ObjectRef) { once.Do(func() { hook(ref) }) }
}

func (f *flakyObjects) setFailOn(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = s
}

type docOption func(*records.SigningFile)

func withOwner(user string) docOption {
	return func(f *records.SigningFile) { f.OwnerUserID = user }
}

func withoutSignedHash() docOption {
	return func(f *records.SigningFile) { f.SignedPDFSHA256 = "" }
}

func withStatus(s records.FileStatus) docOption {
	return func(f *records.SigningFile) { f.Status = s }
}

func withLegalHold() docOption {
	return func(f *records.SigningFile) { f.LegalHold = true }
}

func neverSigned(created time.Time) docOption {
	return func(f *records.SigningFile) {
		f.SignedAt = nil
		f.CreatedAt = created
	}
}

// seededDoc is a document with all of its dependent rows and objects.
type seededDoc struct {
	file    *records.SigningFile
	objects []records.ObjectRef
	spotIDs []string
}

// addDocument inserts a complete signed document: signed and original
// artifacts, two signature spots with images, an OTP challenge, a consent
// and two audit events.
func addDocument(t *testing.T, env *testEnv, id, tenant string, signedAt time.Time, opts ...docOption) seededDoc {
	t.Helper()
	ctx := context.Background()

	f := &records.SigningFile{
		ID:                 id,
		TenantID:           tenant,
		Status:             records.StatusSigned,
		CreatedAt:          signedAt.Add(-2 * time.Hour),
		SignedAt:           &signedAt,
		SignedKey:          "signed/" + id + ".pdf",
		OriginalBucket:     "originals",
		OriginalKey:        "original/" + id + ".pdf",
		PresentedPDFSHA256: "presented-" + id,
		SignedPDFSHA256:    "signed-" + id,
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := env.st.InsertSigningFile(ctx, f); err != nil {
		t.Fatalf("InsertSigningFile() failed: %v", err)
	}

	objects := []records.ObjectRef{
		{Bucket: defaultBucket, Key: f.SignedKey},
		{Bucket: "originals", Key: f.OriginalKey},
	}
	spots := []records.SignatureSpot{
		{ID: id + "-spot-1", SigningFileID: id, SignerName: "Ada", ImageKey: "sig/" + id + "-1.png"},
		{ID: id + "-spot-2", SigningFileID: id, SignerName: "Grace", ImageBucket: "signatures", ImageKey: "sig/" + id + "-2.png"},
	}
	objects = append(objects,
		records.ObjectRef{Bucket: defaultBucket, Key: spots[0].ImageKey},
		records.ObjectRef{Bucket: "signatures", Key: spots[1].ImageKey},
	)
	for i := range spots {
		if err := env.st.InsertSignatureSpot(ctx, &spots[i]); err != nil {
			t.Fatalf("InsertSignatureSpot() failed: %v", err)
		}
	}
	for _, ref := range objects {
		if err := env.blobs.Put(ctx, ref, []byte("data:"+ref.Key)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}

	if _, err := env.st.InsertOTPChallenge(ctx, id, signedAt.Add(-time.Hour)); err != nil {
		t.Fatalf("InsertOTPChallenge() failed: %v", err)
	}
	if _, err := env.st.InsertConsent(ctx, id, signedAt.Add(-time.Hour)); err != nil {
		t.Fatalf("InsertConsent() failed: %v", err)
	}
	for _, typ := range []string{"document.created", "document.signed"} {
		if _, err := env.chain.Append(ctx, records.AuditEvent{
			EventType:     typ,
			SigningFileID: id,
			ActorUserID:   "user-1",
			ActorType:     records.ActorUser,
			Success:       true,
		}); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	return seededDoc{file: f, objects: objects, spotIDs: []string{spots[0].ID, spots[1].ID}}
}

var dependentTables = []string{"signing_files", "signature_spots", "audit_events", "consents", "otp_challenges"}

// rowCounts returns the per-table row counts of one document.
func rowCounts(t *testing.T, st *store.Store, id string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64, len(dependentTables))
	for _, table := range dependentTables {
		n, err := st.CountRows(context.Background(), table, id)
		if err != nil {
			t.Fatalf("CountRows(%s) failed: %v", table, err)
		}
		out[table] = n
	}
	return out
}

func assertGone(t *testing.T, env *testEnv, doc seededDoc) {
	t.Helper()
	for table, n := range rowCounts(t, env.st, doc.file.ID) {
		if n != 0 {
			t.Errorf("%s still has %d rows for %s", table, n, doc.file.ID)
		}
	}
	for _, ref := range doc.objects {
		if ok, _ := env.blobs.Exists(context.Background(), ref); ok {
			t.Errorf("object %s still exists", ref)
		}
	}
}

func assertIntact(t *testing.T, env *testEnv, doc seededDoc, wantClaimed bool) {
	t.Helper()
	f, err := env.st.GetSigningFile(context.Background(), doc.file.ID)
	if err != nil {
		t.Fatalf("GetSigningFile(%s) failed: %v", doc.file.ID, err)
	}
	if claimed := f.PendingDeleteAtUTC != nil; claimed != wantClaimed {
		t.Errorf("%s claimed = %v, want %v", doc.file.ID, claimed, wantClaimed)
	}
	counts := rowCounts(t, env.st, doc.file.ID)
	for _, table := range []string{"signing_files", "consents", "otp_challenges"} {
		if counts[table] != 1 {
			t.Errorf("%s rows for %s = %d, want 1", table, doc.file.ID, counts[table])
		}
	}
	if counts["signature_spots"] != 2 {
		t.Errorf("signature_spots rows for %s = %d, want 2", doc.file.ID, counts["signature_spots"])
	}
	if counts["audit_events"] < 2 {
		t.Errorf("audit_events rows for %s = %d, want at least 2", doc.file.ID, counts["audit_events"])
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	results  []string
	runs     int
	onResult func()
}

func (o *recordingObserver) DocumentProcessed(_ records.Scope, result string) {
	o.mu.Lock()
	o.results = append(o.results, result)
	cb := o.onResult
	o.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (o *recordingObserver) RunFinished(*records.RetentionRun, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func tenantRun(tenant string, dryRun bool) Options {
	scope := records.TenantScope(tenant)
	opts := DefaultOptions()
	opts.Scope = &scope
	opts.DryRun = dryRun
	opts.Now = testNow
	return opts
}

func errorKinds(run *records.RetentionRun) []string {
	var kinds []string
	for _, e := range run.Errors {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
