package storage

import (
	"context"
	"time"

	"github.com/bizwatch/bizrelay/internal/models"
)

type Storage interface {
	// Tenants
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	UpdateTenantAPIKey(ctx context.Context, id, newKey string) error

	// Monitored records
	CreateRecord(ctx context.Context, rec *models.MonitoredRecord) error
	GetRecord(ctx context.Context, id string) (*models.MonitoredRecord, error)
	FindRecordByExternalRef(ctx context.Context, ref string) (*models.MonitoredRecord, error)
	ListRecords(ctx context.Context, tenantID string) ([]models.MonitoredRecord, error)
	UpdateRecord(ctx context.Context, rec *models.MonitoredRecord) error
	DeleteRecord(ctx context.Context, id string) error

	// Endpoints
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	SetEndpointEnabled(ctx context.Context, id string, enabled bool) error
	ListSubscribedEndpoints(ctx context.Context, tenantID string, category models.Category) ([]models.Endpoint, error)
	RecordEndpointOutcome(ctx context.Context, endpointID string, success bool) (EndpointHealth, error)

	// Inbound events
	CreateInboundEvent(ctx context.Context, evt *models.InboundEvent) error
	GetInboundEvent(ctx context.Context, id string) (*models.InboundEvent, error)
	ListInboundEvents(ctx context.Context, providerName string, limit, offset int) ([]models.InboundEvent, error)
	MarkInboundEventProcessed(ctx context.Context, id string, upd ProcessedUpdate) error

	// Delivery attempts
	CreateAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	CompleteAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	GetAttempt(ctx context.Context, id string) (*models.DeliveryAttempt, error)
	ListAttemptsByEndpoint(ctx context.Context, endpointID string, limit, offset int) ([]models.DeliveryAttempt, error)
	ListAttemptsByEvent(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error)
	DueRetries(ctx context.Context, now time.Time, limit int) ([]models.DeliveryAttempt, error)
	ClaimRetry(ctx context.Context, id string) error
	MarkAttemptAbandoned(ctx context.Context, id, reason string) error

	// Stats
	GetStats(ctx context.Context, tenantID string) (*Stats, error)

	// Retention
	PurgeExpired(ctx context.Context, eventTTL, attemptTTL time.Duration) (PurgeResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// EndpointHealth is the counter state after one recorded delivery outcome.
// The update itself is a single atomic statement in the store; callers only
// inspect the result, they never read-modify-write counters.
type EndpointHealth struct {
	ConsecutiveFailures int
	Enabled             bool
}

// ProcessedUpdate closes out an inbound event's one-time processing mutation.
type ProcessedUpdate struct {
	Category          models.Category
	SubjectRecordID   string
	ProviderEventType string
	Error             string
}

type Stats struct {
	TotalEvents      int64   `json:"total_events"`
	TotalAttempts    int64   `json:"total_attempts"`
	SuccessCount     int64   `json:"success_count"`
	FailedCount      int64   `json:"failed_count"`
	RetryingCount    int64   `json:"retrying_count"`
	SuccessRate      float64 `json:"success_rate"`
	TotalEndpoints   int64   `json:"total_endpoints"`
	EnabledEndpoints int64   `json:"enabled_endpoints"`
	TotalRecords     int64   `json:"total_records"`
}

type PurgeResult struct {
	Events   int64 `json:"events"`
	Attempts int64 `json:"attempts"`
}
