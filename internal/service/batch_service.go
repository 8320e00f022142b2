package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opencertify/diploma-engine/internal/domain"
	"github.com/opencertify/diploma-engine/internal/extract"
	"github.com/opencertify/diploma-engine/internal/marker"
	"github.com/opencertify/diploma-engine/internal/observability"
	"github.com/opencertify/diploma-engine/internal/ratelimit"
	"github.com/opencertify/diploma-engine/internal/repository"
	"github.com/opencertify/diploma-engine/internal/session"
)

const (
	registryScope = "registry"

	failureNameNotFound = "name not found"

	reasonNameNotFound   = "name_not_found"
	reasonRecordNotFound = "record_not_found"
	reasonTextExtraction = "text_extraction"
	reasonMarker         = "marker"
	reasonEmbed          = "embed"
	reasonRegistry       = "registry"
)

// Archiver unpacks uploaded bundles and packs results.
type Archiver interface {
	Unpack(archivePath, destDir string) ([]string, error)
	Pack(archivePath string, files []string) error
}

// TextReader extracts plain text from a diploma document.
type TextReader interface {
	ExtractText(path string) (string, error)
}

// MarkerGenerator renders a verification marker image.
type MarkerGenerator interface {
	Generate(payload marker.Payload, dir string, sizePx int) (string, error)
}

// Embedder stamps a marker image onto a diploma document.
type Embedder interface {
	Embed(sourcePath, markerPath string, placement domain.Placement, outputDir string) (string, error)
}

// Registry resolves extracted student names against the academic registry.
type Registry interface {
	FindStudent(ctx context.Context, name string) (*domain.StudentRecord, error)
	VerifyStudent(ctx context.Context, studentID string) (*domain.StudentRecord, error)
}

// BatchService drives uploaded diploma bundles through name extraction,
// registry lookup, marker generation and embedding.
type BatchService struct {
	store           *session.Store
	archiver        Archiver
	reader          TextReader
	markers         MarkerGenerator
	embedder        Embedder
	registry        Registry
	limiter         ratelimit.RateLimiter
	issuances       repository.IssuanceRepository
	verificationURL string
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
}

func NewBatchService(
	store *session.Store,
	archiver Archiver,
	reader TextReader,
	markers MarkerGenerator,
	embedder Embedder,
	registry Registry,
	limiter ratelimit.RateLimiter,
	verificationURL string,
	logger *zap.Logger,
) (*BatchService, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if archiver == nil {
		return nil, fmt.Errorf("archiver is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("text reader is required")
	}
	if markers == nil {
		return nil, fmt.Errorf("marker generator is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if limiter == nil {
		limiter = ratelimit.NopLimiter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		store:           store,
		archiver:        archiver,
		reader:          reader,
		markers:         markers,
		embedder:        embedder,
		registry:        registry,
		limiter:         limiter,
		verificationURL: strings.TrimRight(verificationURL, "/"),
		logger:          logger,
		now:             time.Now,
	}, nil
}

// SetIssuanceRepo enables the best-effort issuance audit trail.
func (s *BatchService) SetIssuanceRepo(repo repository.IssuanceRepository) {
	if s == nil {
		return
	}
	s.issuances = repo
}

func (s *BatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// IngestArchive creates a session from an uploaded zip stream. The raw
// archive and its extracted documents live under the session's work
// namespaces until the session is removed. The returned file list is
// the lexicographic processing order.
func (s *BatchService) IngestArchive(ctx context.Context, upload io.Reader) (string, []string, error) {
	if upload == nil {
		return "", nil, fmt.Errorf("%w: upload body is required", domain.ErrValidation)
	}

	id := s.store.Create()

	if err := s.store.EnsureDirs(id); err != nil {
		s.store.Remove(id)
		return "", nil, err
	}

	uploadPath := s.store.UploadPath(id)
	if err := stageUpload(upload, uploadPath); err != nil {
		s.store.Remove(id)
		return "", nil, err
	}

	files, err := s.archiver.Unpack(uploadPath, s.store.ExtractDir(id))
	if err != nil {
		s.store.Remove(id)
		return "", nil, err
	}

	if err := s.store.Merge(id, domain.Payload{
		domain.PayloadKeyExtractedFiles: files,
		domain.PayloadKeyTotalCount:     len(files),
	}); err != nil {
		s.store.Remove(id)
		return "", nil, err
	}

	s.logger.Info("session created from upload",
		zap.String("sessionId", id),
		zap.Int("documentCount", len(files)),
	)

	return id, files, nil
}

// Payload returns the stored session payload.
func (s *BatchService) Payload(sessionID string) (domain.Payload, error) {
	return s.store.Get(sessionID)
}

// Discard removes a session and its artifacts. Idempotent.
func (s *BatchService) Discard(sessionID string) {
	s.store.Remove(sessionID)
}

// RunBatch processes every extracted document of the session in stored
// order, collecting per-item failures without aborting. The returned
// outcome lists stamped output paths and itemized errors. A batch where
// every item failed yields ErrBatchFailed alongside the outcome; the
// session itself is left for the caller to remove.
func (s *BatchService) RunBatch(ctx context.Context, sessionID string, placement domain.Placement) (domain.BatchOutcome, error) {
	var outcome domain.BatchOutcome

	if err := placement.Validate(); err != nil {
		return outcome, err
	}

	payload, err := s.store.Get(sessionID)
	if err != nil {
		return outcome, err
	}

	files, err := domain.ExtractedFiles(payload)
	if err != nil {
		return outcome, err
	}

	ctx = observability.WithSessionID(ctx, sessionID)
	logger := observability.WithContextLogger(s.logger, ctx)
	start := s.now()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		item, kind := s.processItem(ctx, sessionID, file, placement)
		if item.Failed() {
			logger.Warn("diploma item failed",
				zap.String("file", file),
				zap.String("reason", item.FailureReason),
			)
			outcome.Errors = append(outcome.Errors, domain.ItemError{Item: file, Reason: item.FailureReason})
			s.metrics.IncDiplomaFailed(kind)
			continue
		}

		outcome.Processed = append(outcome.Processed, item.OutputPath)
		s.metrics.IncDiplomaProcessed()
	}

	s.metrics.ObserveBatchDuration(s.now().Sub(start))

	logger.Info("batch finished",
		zap.Int("processed", len(outcome.Processed)),
		zap.Int("failed", len(outcome.Errors)),
	)

	if outcome.AllFailed() {
		return outcome, fmt.Errorf("%w: no diploma could be processed", domain.ErrBatchFailed)
	}
	return outcome, nil
}

// processItem runs one document through the pipeline. The returned item
// ends with exactly one of OutputPath or FailureReason set; the second
// value is the metric label for a failed item.
func (s *BatchService) processItem(ctx context.Context, sessionID, file string, placement domain.Placement) (domain.BatchItem, string) {
	item := domain.BatchItem{
		SourcePath: filepath.Join(s.store.ExtractDir(sessionID), file),
	}

	text, err := s.reader.ExtractText(item.SourcePath)
	if err != nil {
		item.FailureReason = err.Error()
		return item, reasonTextExtraction
	}

	item.ExtractedName = extract.StudentName(text)
	if item.ExtractedName == "" {
		item.FailureReason = failureNameNotFound
		return item, reasonNameNotFound
	}

	if err := s.limiter.Wait(ctx, registryScope); err != nil {
		item.FailureReason = err.Error()
		return item, reasonRegistry
	}

	lookupStart := s.now()
	record, err := s.registry.FindStudent(ctx, item.ExtractedName)
	s.metrics.ObserveLookupDuration(s.now().Sub(lookupStart))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			item.FailureReason = fmt.Sprintf("record not found for %s", item.ExtractedName)
			return item, reasonRecordNotFound
		}
		item.FailureReason = err.Error()
		return item, reasonRegistry
	}
	item.Record = record

	issuedAt := s.now().UTC()
	ref := sessionID + "." + record.ID

	markerPayload := marker.Payload{
		StudentID:       record.ID,
		StudentName:     record.FullName,
		StudentEmail:    record.Email,
		CourseID:        record.CourseID,
		IssuedAt:        issuedAt,
		VerificationRef: ref,
		VerificationURL: s.verificationURL + "/v1/verifications/" + ref,
	}

	markerPath, err := s.markers.Generate(markerPayload, s.store.MarkerDir(sessionID), int(placement.Size))
	if err != nil {
		item.FailureReason = err.Error()
		return item, reasonMarker
	}

	item.OutputPath, err = s.embedder.Embed(item.SourcePath, markerPath, placement, s.store.OutputDir(sessionID))
	if err != nil {
		item.FailureReason = err.Error()
		return item, reasonEmbed
	}

	s.recordIssuance(ctx, &domain.Issuance{
		Ref:         ref,
		SessionID:   sessionID,
		StudentID:   record.ID,
		StudentName: record.FullName,
		CourseID:    record.CourseID,
		SourceFile:  file,
		IssuedAt:    issuedAt,
	})

	return item, ""
}

// recordIssuance is best-effort: the audit trail never fails an item.
func (s *BatchService) recordIssuance(ctx context.Context, issuance *domain.Issuance) {
	if s.issuances == nil {
		return
	}

	if err := s.issuances.Create(ctx, issuance); err != nil {
		s.logger.Warn("failed to record issuance",
			zap.String("ref", issuance.Ref),
			zap.Error(err),
		)
	}
}

// PackOutputs zips the stamped documents into the session's result
// archive and returns its path.
func (s *BatchService) PackOutputs(sessionID string, outputs []string) (string, error) {
	archivePath := s.store.ResultArchivePath(sessionID)
	if err := s.archiver.Pack(archivePath, outputs); err != nil {
		return "", err
	}

	// Recorded for payload introspection; the session usually goes away
	// right after the archive is served.
	if err := s.store.Merge(sessionID, domain.Payload{
		domain.PayloadKeyArchiveName: filepath.Base(archivePath),
	}); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("failed to record archive name", zap.Error(err))
	}

	return archivePath, nil
}

// Verify resolves an issuance reference from the audit trail and, when
// the registry is reachable, attaches the live student record.
func (s *BatchService) Verify(ctx context.Context, ref string) (*domain.Issuance, *domain.StudentRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil, fmt.Errorf("%w: verification ref is required", domain.ErrValidation)
	}
	if s.issuances == nil {
		return nil, nil, fmt.Errorf("%w: verification audit is not enabled", domain.ErrNotFound)
	}

	issuance, err := s.issuances.GetByRef(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.registry.VerifyStudent(ctx, issuance.StudentID)
	if err != nil {
		// Verification still answers from the audit trail when the
		// registry is down.
		s.logger.Debug("live registry verification unavailable",
			zap.String("ref", ref),
			zap.Error(err),
		)
		return issuance, nil, nil
	}

	return issuance, record, nil
}

func stageUpload(upload io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, upload); err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}

	return nil
}
