package models

import "time"

// MonitoredRecord is a tenant-owned subject registered with the upstream
// provider. ExternalRef is the identifier the provider uses to refer back to
// it in webhook payloads.
type MonitoredRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ExternalRef string    `json:"external_ref"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Monitored   bool      `json:"monitored"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	RecordStatusActive   = "active"
	RecordStatusFlagged  = "flagged"
	RecordStatusArchived = "archived"
)
