package models

import (
	"encoding/json"
	"time"
)

// InboundEvent is one webhook call received from an upstream provider.
// Every call is stored, even duplicates and events that fail signature
// verification; unverified events are kept for audit and replay but never
// fan out to endpoints.
type InboundEvent struct {
	ID                string          `json:"id"`
	Provider          string          `json:"provider"`
	RawPayload        json.RawMessage `json:"raw_payload"`
	SignatureHeader   string          `json:"signature_header,omitempty"`
	Verified          bool            `json:"verified"`
	Category          Category        `json:"category,omitempty"`
	SubjectRecordID   string          `json:"subject_record_id,omitempty"`
	ProviderEventType string          `json:"provider_event_type,omitempty"`
	Processed         bool            `json:"processed"`
	ProcessingError   string          `json:"processing_error,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
}
