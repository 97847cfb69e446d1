package models

import "time"

type AttemptStatus string

const (
	AttemptPending  AttemptStatus = "pending"
	AttemptSuccess  AttemptStatus = "success"
	AttemptRetrying AttemptStatus = "retrying"
	AttemptFailed   AttemptStatus = "failed"
)

// DeliveryAttempt is one concrete try to deliver one event to one endpoint.
// Retries are new rows with an incremented AttemptNumber; the logical
// delivery is the (EndpointID, Category, SubjectRecordID) triple. A row is
// created pending before the network call and closed exactly once with the
// outcome. NextRetryAt nil on a failed row means the failure is terminal.
type DeliveryAttempt struct {
	ID              string        `json:"id"`
	EventID         string        `json:"event_id"`
	EndpointID      string        `json:"endpoint_id"`
	Category        Category      `json:"category"`
	SubjectRecordID string        `json:"subject_record_id"`
	AttemptNumber   int           `json:"attempt_number"`
	Status          AttemptStatus `json:"status"`
	RequestBody     []byte        `json:"request_body,omitempty"`
	ResponseStatus  int           `json:"response_status,omitempty"`
	ResponseSnippet string        `json:"response_snippet,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	SentAt          time.Time     `json:"sent_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	DurationMs      int64         `json:"duration_ms"`
	NextRetryAt     *time.Time    `json:"next_retry_at,omitempty"`
}
