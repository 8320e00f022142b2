package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "ACTIVE"
	SessionExpired SessionStatus = "EXPIRED"
	SessionRemoved SessionStatus = "REMOVED"
)

func (s SessionStatus) String() string { return string(s) }

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionExpired, SessionRemoved:
		return true
	}
	return false
}

// Payload is the open key/value bag attached to a session. It only exists
// at the session boundary; the orchestrator works against typed models.
type Payload map[string]any

// Clone returns a shallow copy so callers cannot mutate stored state
// without going through Merge.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Well-known payload keys written by archive ingestion.
const (
	PayloadKeyExtractedFiles = "extractedFiles"
	PayloadKeyTotalCount     = "totalCount"
	PayloadKeyArchiveName    = "archiveName"
)

// Session is the unit of batch state: one submitted archive, one session.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastAccessed time.Time
	Status       SessionStatus
	Payload      Payload
}

// ExtractedFiles reads the ordered source document list out of a payload.
func ExtractedFiles(p Payload) ([]string, error) {
	raw, ok := p[PayloadKeyExtractedFiles]
	if !ok {
		return nil, fmt.Errorf("%w: session has no extracted documents", ErrValidation)
	}
	files, ok := raw.([]string)
	if !ok || len(files) == 0 {
		return nil, fmt.Errorf("%w: session has no extracted documents", ErrValidation)
	}
	return files, nil
}

// ValidSessionID reports whether an id looks like one of ours: URL- and
// filename-safe, 10..50 chars of letters, digits and hyphens.
func ValidSessionID(id string) bool {
	if len(id) < 10 || len(id) > 50 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return strings.TrimSpace(id) == id
}
