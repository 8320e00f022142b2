package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencertify/diploma-engine/internal/domain"
	"github.com/opencertify/diploma-engine/internal/observability"
	"go.uber.org/zap"
)

const defaultTimeout = time.Hour

// Store holds per-submission state in memory with TTL expiry. Records are
// metadata-sized, so a single store-wide mutex is enough; document bytes
// live on disk under the session's artifact directories and are never held
// inside the critical section.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.Session

	timeout time.Duration
	workDir string
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewStore(workDir string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "diploma-engine")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session work dir: %w", err)
	}

	return &Store{
		records: make(map[string]*domain.Session),
		timeout: timeout,
		workDir: workDir,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *Store) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Create allocates a fresh active session with an empty payload.
func (s *Store) Create() string {
	id := uuid.NewString()
	now := s.now().UTC()

	s.mu.Lock()
	s.records[id] = &domain.Session{
		ID:           id,
		CreatedAt:    now,
		LastAccessed: now,
		Status:       domain.SessionActive,
		Payload:      domain.Payload{},
	}
	count := len(s.records)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetActiveSessions(count)
	}
	s.logger.Info("session created", zap.String("sessionId", id))
	return id
}

// Get returns a copy of the session payload, refreshing the access time.
// A missing or expired session yields domain.ErrNotFound; expiry observed
// here removes the record and its artifacts as a side effect.
func (s *Store) Get(id string) (domain.Payload, error) {
	s.mu.Lock()
	record, err := s.activeRecordLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	record.LastAccessed = s.now().UTC()
	payload := record.Payload.Clone()
	s.mu.Unlock()

	return payload, nil
}

// Merge shallow-merges partial into the stored payload under the same
// expiry rules as Get.
func (s *Store) Merge(id string, partial domain.Payload) error {
	s.mu.Lock()
	record, err := s.activeRecordLocked(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for k, v := range partial {
		record.Payload[k] = v
	}
	record.LastAccessed = s.now().UTC()
	s.mu.Unlock()

	return nil
}

// Remove deletes the record and every artifact directory belonging to the
// session. Idempotent: an unknown id and already-deleted artifacts are both
// fine, a concurrent sweep may have won the race.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	record, ok := s.records[id]
	if ok {
		record.Status = domain.SessionRemoved
		delete(s.records, id)
	}
	count := len(s.records)
	s.mu.Unlock()

	s.removeArtifacts(id)
	if s.metrics != nil {
		s.metrics.SetActiveSessions(count)
	}
	if ok {
		s.logger.Info("session removed", zap.String("sessionId", id))
	}
}

// Sweep removes every record whose last access is older than the timeout
// and returns how many were reclaimed.
func (s *Store) Sweep() int {
	now := s.now().UTC()

	s.mu.Lock()
	expired := make([]string, 0)
	for id, record := range s.records {
		if now.Sub(record.LastAccessed) > s.timeout {
			record.Status = domain.SessionExpired
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.records, id)
	}
	count := len(s.records)
	s.mu.Unlock()

	for _, id := range expired {
		s.removeArtifacts(id)
	}

	if len(expired) > 0 {
		s.logger.Info("expired sessions reclaimed", zap.Int("count", len(expired)))
	}
	if s.metrics != nil {
		s.metrics.SetActiveSessions(count)
		s.metrics.AddSessionsSwept(len(expired))
	}
	return len(expired)
}

// RemoveAll tears down every session and artifact. Used at shutdown; the
// store is ephemeral so there is nothing to flush.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.records = make(map[string]*domain.Session)
	s.mu.Unlock()

	for _, id := range ids {
		s.removeArtifacts(id)
	}
	if s.metrics != nil {
		s.metrics.SetActiveSessions(0)
	}
	s.logger.Info("all sessions removed", zap.Int("count", len(ids)))
}

// Len reports the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ExtractDir is where the session's unpacked source documents live.
func (s *Store) ExtractDir(id string) string {
	return filepath.Join(s.workDir, "extracted", id)
}

// MarkerDir is where generated marker images for the session live.
func (s *Store) MarkerDir(id string) string {
	return filepath.Join(s.workDir, "markers", id)
}

// OutputDir is where embedded output documents for the session live.
func (s *Store) OutputDir(id string) string {
	return filepath.Join(s.workDir, "outputs", id)
}

// ResultArchivePath is where the repackaged archive for the session lands.
func (s *Store) ResultArchivePath(id string) string {
	return filepath.Join(s.workDir, fmt.Sprintf("diplomas_processados_%s.zip", id))
}

// EnsureDirs creates the session's three artifact namespaces.
func (s *Store) EnsureDirs(id string) error {
	for _, dir := range []string{s.ExtractDir(id), s.MarkerDir(id), s.OutputDir(id)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create session dir %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) activeRecordLocked(id string) (*domain.Session, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}

	if s.now().UTC().Sub(record.LastAccessed) > s.timeout {
		record.Status = domain.SessionExpired
		delete(s.records, id)
		// Cleanup happens outside the caller's primary flow; missing
		// artifact paths are not an error.
		go s.removeArtifacts(id)
		s.logger.Warn("session expired on access", zap.String("sessionId", id))
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}

	return record, nil
}

// removeArtifacts is best-effort: disk failures are logged and swallowed so
// cleanup never aborts the caller.
func (s *Store) removeArtifacts(id string) {
	paths := []string{
		s.ExtractDir(id),
		s.MarkerDir(id),
		s.OutputDir(id),
		s.ResultArchivePath(id),
		s.UploadPath(id),
	}
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove session artifact",
				zap.String("sessionId", id),
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

// UploadPath is where the raw submitted archive is kept until removal.
func (s *Store) UploadPath(id string) string {
	return filepath.Join(s.workDir, "uploads", id+".zip")
}
