package relay

import (
	"context"
	"encoding/json"

	"github.com/bizwatch/bizrelay/internal/models"
)

// RecordResolver links an inbound subject reference to a locally-owned
// monitored record. A (nil, nil) return means the provider referenced data
// this system does not own; that is a warning, not an error.
type RecordResolver interface {
	FindRecordByExternalRef(ctx context.Context, ref string) (*models.MonitoredRecord, error)
}

// CheckResult is the outcome of a synchronous subject check against the
// upstream provider.
type CheckResult struct {
	Matched bool            `json:"matched"`
	Score   float64         `json:"score"`
	Details json.RawMessage `json:"details,omitempty"`
}

// SubjectMonitor is the synchronous provider API surface the relay
// collaborates with for record lifecycle operations.
type SubjectMonitor interface {
	CheckSubject(ctx context.Context, payload json.RawMessage) (*CheckResult, error)
	StartMonitoring(ctx context.Context, subjectRef string) error
	StopMonitoring(ctx context.Context, subjectRef string) error
}
