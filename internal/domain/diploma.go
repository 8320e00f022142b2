package domain

import "time"

// StudentRecord is the enrichment record returned by the registry lookup.
type StudentRecord struct {
	ID       string
	FullName string
	Email    string
	CourseID string
}

// BatchItem tracks one document as it moves through the pipeline. An item
// ends with exactly one of OutputPath or FailureReason set.
type BatchItem struct {
	SourcePath    string
	ExtractedName string
	Record        *StudentRecord
	OutputPath    string
	FailureReason string
}

func (i BatchItem) Failed() bool { return i.FailureReason != "" }

// ItemError pairs a failed item with its human-readable cause.
type ItemError struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// BatchOutcome is the aggregate result of one orchestration run. Processed
// preserves the relative input order of the items that succeeded.
type BatchOutcome struct {
	Processed []string
	Errors    []ItemError
}

func (o BatchOutcome) AllFailed() bool { return len(o.Processed) == 0 }

// Issuance is the audit record written after a marker is embedded. It backs
// the verification endpoint; it is not session state and losing it never
// fails a batch.
type Issuance struct {
	Ref         string
	SessionID   string
	StudentID   string
	StudentName string
	CourseID    string
	SourceFile  string
	IssuedAt    time.Time
	CreatedAt   time.Time
}
