package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencertify/diploma-engine/internal/domain"
	"github.com/opencertify/diploma-engine/internal/marker"
	"github.com/opencertify/diploma-engine/internal/session"
)

type fakeArchiver struct {
	unpackFiles []string
	unpackErr   error
	packErr     error
	packedPath  string
	packedFiles []string
}

func (f *fakeArchiver) Unpack(archivePath, destDir string) ([]string, error) {
	if f.unpackErr != nil {
		return nil, f.unpackErr
	}
	return f.unpackFiles, nil
}

func (f *fakeArchiver) Pack(archivePath string, files []string) error {
	f.packedPath = archivePath
	f.packedFiles = files
	return f.packErr
}

type fakeReader struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeReader) ExtractText(path string) (string, error) {
	base := filepath.Base(path)
	if err := f.errs[base]; err != nil {
		return "", err
	}
	return f.texts[base], nil
}

type fakeMarkers struct {
	err    error
	calls  int
	sizePx int
}

func (f *fakeMarkers) Generate(payload marker.Payload, dir string, sizePx int) (string, error) {
	f.calls++
	f.sizePx = sizePx
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(dir, "qr_"+payload.StudentID+".png"), nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(sourcePath, markerPath string, placement domain.Placement, outputDir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	base := filepath.Base(sourcePath)
	stem := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(outputDir, stem+"_com_qr.pdf"), nil
}

type fakeRegistry struct {
	records    map[string]*domain.StudentRecord
	errs       map[string]error
	verified   *domain.StudentRecord
	verifyErr  error
	lookups    []string
	verifiedID string
}

func (f *fakeRegistry) FindStudent(ctx context.Context, name string) (*domain.StudentRecord, error) {
	f.lookups = append(f.lookups, name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if record, ok := f.records[name]; ok {
		return record, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRegistry) VerifyStudent(ctx context.Context, studentID string) (*domain.StudentRecord, error) {
	f.verifiedID = studentID
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verified, nil
}

type fakeLimiter struct {
	waitErr error
	waits   int
}

func (f *fakeLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	return f.waitErr == nil, f.waitErr
}

func (f *fakeLimiter) Wait(ctx context.Context, scope string) error {
	f.waits++
	return f.waitErr
}

type fakeIssuanceRepo struct {
	created   []domain.Issuance
	createErr error
	stored    *domain.Issuance
	getErr    error
}

func (f *fakeIssuanceRepo) Create(ctx context.Context, issuance *domain.Issuance) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *issuance)
	return nil
}

func (f *fakeIssuanceRepo) GetByRef(ctx context.Context, ref string) (*domain.Issuance, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.stored, nil
}

func validPlacement() domain.Placement {
	return domain.Placement{X: 100, Y: 50, Size: 120}
}

type batchFixture struct {
	service  *BatchService
	store    *session.Store
	archiver *fakeArchiver
	reader   *fakeReader
	markers  *fakeMarkers
	embedder *fakeEmbedder
	registry *fakeRegistry
	limiter  *fakeLimiter
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()

	store, err := session.NewStore(t.TempDir(), time.Hour, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	f := &batchFixture{
		store:    store,
		archiver: &fakeArchiver{},
		reader:   &fakeReader{texts: map[string]string{}, errs: map[string]error{}},
		markers:  &fakeMarkers{},
		embedder: &fakeEmbedder{},
		registry: &fakeRegistry{records: map[string]*domain.StudentRecord{}, errs: map[string]error{}},
		limiter:  &fakeLimiter{},
	}

	svc, err := NewBatchService(
		store, f.archiver, f.reader, f.markers, f.embedder, f.registry, f.limiter,
		"https://verify.example.edu", nil,
	)
	if err != nil {
		t.Fatalf("NewBatchService() error = %v", err)
	}
	f.service = svc
	return f
}

// seedSession stores a session whose payload lists the given files, the
// way an ingest would have left it.
func (f *batchFixture) seedSession(t *testing.T, files []string) string {
	t.Helper()

	id := f.store.Create()
	err := f.store.Merge(id, domain.Payload{
		domain.PayloadKeyExtractedFiles: files,
		domain.PayloadKeyTotalCount:     len(files),
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	return id
}

func TestNewBatchServiceValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewBatchService(nil, &fakeArchiver{}, &fakeReader{}, &fakeMarkers{}, &fakeEmbedder{}, &fakeRegistry{}, nil, "", nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestBatchServiceIngestArchive(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	f.archiver.unpackFiles = []string{"alpha.pdf", "beta.pdf"}

	id, files, err := f.service.IngestArchive(context.Background(), bytes.NewReader([]byte("zip-bytes")))
	if err != nil {
		t.Fatalf("IngestArchive() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2 entries", files)
	}

	payload, err := f.store.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := payload[domain.PayloadKeyTotalCount]; got != 2 {
		t.Fatalf("totalCount = %v, want 2", got)
	}

	staged, err := os.ReadFile(f.store.UploadPath(id))
	if err != nil {
		t.Fatalf("staged upload missing: %v", err)
	}
	if string(staged) != "zip-bytes" {
		t.Fatalf("staged upload = %q, want %q", staged, "zip-bytes")
	}
}

func TestBatchServiceIngestArchiveUnpackErrorRemovesSession(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	f.archiver.unpackErr = fmt.Errorf("%w: archive contains no PDF documents", domain.ErrValidation)

	_, _, err := f.service.IngestArchive(context.Background(), bytes.NewReader([]byte("zip")))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("IngestArchive() error = %v, want ErrValidation", err)
	}
	if got := f.store.Len(); got != 0 {
		t.Fatalf("store.Len() = %d, want 0", got)
	}
}

func TestBatchServiceRunBatchMixedOutcome(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	id := f.seedSession(t, []string{"ana.pdf", "blank.pdf", "bruno.pdf"})

	f.reader.texts["ana.pdf"] = "Nome: Ana Silva"
	f.reader.texts["blank.pdf"] = "12345 67890"
	f.reader.texts["bruno.pdf"] = "Nome: Bruno Costa"

	f.registry.records["Ana Silva"] = &domain.StudentRecord{ID: "12", FullName: "Ana Silva", Email: "ana@example.edu", CourseID: "44"}
	f.registry.errs["Bruno Costa"] = domain.ErrNotFound

	repo := &fakeIssuanceRepo{}
	f.service.SetIssuanceRepo(repo)

	outcome, err := f.service.RunBatch(context.Background(), id, validPlacement())
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}

	if len(outcome.Processed) != 1 {
		t.Fatalf("Processed = %v, want 1 entry", outcome.Processed)
	}
	wantOutput := filepath.Join(f.store.OutputDir(id), "ana_com_qr.pdf")
	if outcome.Processed[0] != wantOutput {
		t.Fatalf("Processed[0] = %q, want %q", outcome.Processed[0], wantOutput)
	}

	if len(outcome.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 entries", outcome.Errors)
	}
	if outcome.Errors[0].Item != "blank.pdf" || outcome.Errors[0].Reason != "name not found" {
		t.Fatalf("Errors[0] = %+v, want blank.pdf / name not found", outcome.Errors[0])
	}
	if outcome.Errors[1].Item != "bruno.pdf" || outcome.Errors[1].Reason != "record not found for Bruno Costa" {
		t.Fatalf("Errors[1] = %+v, want bruno.pdf / record not found for Bruno Costa", outcome.Errors[1])
	}

	if f.markers.sizePx != 120 {
		t.Fatalf("marker sizePx = %d, want 120", f.markers.sizePx)
	}
	if f.limiter.waits != 2 {
		t.Fatalf("limiter waits = %d, want 2", f.limiter.waits)
	}

	if len(repo.created) != 1 {
		t.Fatalf("issuances recorded = %d, want 1", len(repo.created))
	}
	if want := id + ".12"; repo.created[0].Ref != want {
		t.Fatalf("issuance ref = %q, want %q", repo.created[0].Ref, want)
	}
}

func TestBatchServiceRunBatchAllFailed(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	id := f.seedSession(t, []string{"one.pdf", "two.pdf"})

	f.reader.errs["one.pdf"] = errors.New("failed to open document: malformed xref")
	f.reader.texts["two.pdf"] = "no names here"

	outcome, err := f.service.RunBatch(context.Background(), id, validPlacement())
	if !errors.Is(err, domain.ErrBatchFailed) {
		t.Fatalf("RunBatch() error = %v, want ErrBatchFailed", err)
	}
	if len(outcome.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 entries", outcome.Errors)
	}
	if outcome.Errors[0].Reason != "failed to open document: malformed xref" {
		t.Fatalf("Errors[0].Reason = %q, want underlying error text", outcome.Errors[0].Reason)
	}

	// The session survives an all-failed batch; discard is the caller's call.
	if _, err := f.store.Get(id); err != nil {
		t.Fatalf("Get() after failed batch error = %v", err)
	}
}

func TestBatchServiceRunBatchIssuanceFailureDoesNotFailItem(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	id := f.seedSession(t, []string{"ana.pdf"})

	f.reader.texts["ana.pdf"] = "Nome: Ana Silva"
	f.registry.records["Ana Silva"] = &domain.StudentRecord{ID: "12", FullName: "Ana Silva"}

	f.service.SetIssuanceRepo(&fakeIssuanceRepo{createErr: errors.New("connection refused")})

	outcome, err := f.service.RunBatch(context.Background(), id, validPlacement())
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if len(outcome.Processed) != 1 {
		t.Fatalf("Processed = %v, want 1 entry", outcome.Processed)
	}
}

func TestBatchServiceRunBatchUnknownSession(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)

	_, err := f.service.RunBatch(context.Background(), "missing", validPlacement())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RunBatch() error = %v, want ErrNotFound", err)
	}
}

func TestBatchServiceRunBatchInvalidPlacement(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	id := f.seedSession(t, []string{"a.pdf"})

	_, err := f.service.RunBatch(context.Background(), id, domain.Placement{X: -1, Y: 0, Size: 100})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("RunBatch() error = %v, want ErrValidation", err)
	}
}

func TestBatchServicePackOutputs(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	id := f.store.Create()

	outputs := []string{"/work/outputs/a_com_qr.pdf"}
	path, err := f.service.PackOutputs(id, outputs)
	if err != nil {
		t.Fatalf("PackOutputs() error = %v", err)
	}
	if path != f.store.ResultArchivePath(id) {
		t.Fatalf("path = %q, want %q", path, f.store.ResultArchivePath(id))
	}
	if f.archiver.packedPath != path {
		t.Fatalf("packed path = %q, want %q", f.archiver.packedPath, path)
	}
	if len(f.archiver.packedFiles) != 1 {
		t.Fatalf("packed files = %v, want 1 entry", f.archiver.packedFiles)
	}
}

func TestBatchServiceVerify(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	stored := &domain.Issuance{Ref: "sess.12", StudentID: "12", StudentName: "Ana Silva"}
	f.service.SetIssuanceRepo(&fakeIssuanceRepo{stored: stored})
	f.registry.verified = &domain.StudentRecord{ID: "12", FullName: "Ana Silva"}

	issuance, record, err := f.service.Verify(context.Background(), "sess.12")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if issuance.Ref != "sess.12" {
		t.Fatalf("issuance.Ref = %q, want sess.12", issuance.Ref)
	}
	if record == nil || record.ID != "12" {
		t.Fatalf("record = %+v, want live record with ID 12", record)
	}
	if f.registry.verifiedID != "12" {
		t.Fatalf("verified id = %q, want 12", f.registry.verifiedID)
	}
}

func TestBatchServiceVerifyRegistryDownFallsBackToAudit(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)
	f.service.SetIssuanceRepo(&fakeIssuanceRepo{stored: &domain.Issuance{Ref: "sess.12", StudentID: "12"}})
	f.registry.verifyErr = errors.New("connection refused")

	issuance, record, err := f.service.Verify(context.Background(), "sess.12")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if issuance == nil {
		t.Fatal("issuance = nil, want audit record")
	}
	if record != nil {
		t.Fatalf("record = %+v, want nil when registry is down", record)
	}
}

func TestBatchServiceVerifyWithoutAudit(t *testing.T) {
	t.Parallel()

	f := newBatchFixture(t)

	_, _, err := f.service.Verify(context.Background(), "sess.12")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Verify() error = %v, want ErrNotFound", err)
	}
}
