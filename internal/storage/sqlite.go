package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bizwatch/bizrelay/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			external_ref TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			monitored INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			secret TEXT NOT NULL,
			categories TEXT NOT NULL DEFAULT '[]',
			enabled INTEGER NOT NULL DEFAULT 1,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			total_attempts INTEGER NOT NULL DEFAULT 0,
			total_successes INTEGER NOT NULL DEFAULT 0,
			last_delivery_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS inbound_events (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			raw_payload TEXT NOT NULL,
			signature_header TEXT NOT NULL DEFAULT '',
			verified INTEGER NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT '',
			subject_record_id TEXT NOT NULL DEFAULT '',
			provider_event_type TEXT NOT NULL DEFAULT '',
			processed INTEGER NOT NULL DEFAULT 0,
			processing_error TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS delivery_attempts (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL DEFAULT '',
			endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			subject_record_id TEXT NOT NULL DEFAULT '',
			attempt_number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			request_body TEXT NOT NULL DEFAULT '',
			response_status INTEGER NOT NULL DEFAULT 0,
			response_snippet TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			next_retry_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_api_key ON tenants(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_records_tenant ON records(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant ON endpoints(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_provider ON inbound_events(provider, received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_endpoint ON delivery_attempts(endpoint_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_event ON delivery_attempts(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_due ON delivery_attempts(status, next_retry_at) WHERE status = 'retrying'`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Tenants ---

func (s *SQLiteStorage) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, api_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.APIKey, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

func (s *SQLiteStorage) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants WHERE api_key = ?`, apiKey,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

func (s *SQLiteStorage) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, api_key, created_at, updated_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *SQLiteStorage) DeleteTenant(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) UpdateTenantAPIKey(ctx context.Context, id, newKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET api_key = ?, updated_at = ? WHERE id = ?`,
		newKey, time.Now().UTC(), id,
	)
	return err
}

// --- Monitored records ---

func (s *SQLiteStorage) CreateRecord(ctx context.Context, rec *models.MonitoredRecord) error {
	monitored := 0
	if rec.Monitored {
		monitored = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, tenant_id, external_ref, name, status, monitored, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.ExternalRef, rec.Name, rec.Status, monitored, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanRecord(row interface{ Scan(...interface{}) error }) (*models.MonitoredRecord, error) {
	var rec models.MonitoredRecord
	var monitored int
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.ExternalRef, &rec.Name, &rec.Status, &monitored, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Monitored = monitored == 1
	return &rec, nil
}

func (s *SQLiteStorage) GetRecord(ctx context.Context, id string) (*models.MonitoredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, external_ref, name, status, monitored, created_at, updated_at FROM records WHERE id = ?`, id)
	rec, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStorage) FindRecordByExternalRef(ctx context.Context, ref string) (*models.MonitoredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, external_ref, name, status, monitored, created_at, updated_at FROM records WHERE external_ref = ?`, ref)
	rec, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStorage) ListRecords(ctx context.Context, tenantID string) ([]models.MonitoredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, external_ref, name, status, monitored, created_at, updated_at FROM records WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.MonitoredRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStorage) UpdateRecord(ctx context.Context, rec *models.MonitoredRecord) error {
	monitored := 0
	if rec.Monitored {
		monitored = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET name = ?, status = ?, monitored = ?, updated_at = ? WHERE id = ?`,
		rec.Name, rec.Status, monitored, time.Now().UTC(), rec.ID,
	)
	return err
}

func (s *SQLiteStorage) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	return err
}

// --- Endpoints ---

func (s *SQLiteStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	categories, _ := json.Marshal(ep.Categories)
	enabled := 0
	if ep.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, tenant_id, url, description, secret, categories, enabled,
		   consecutive_failures, total_attempts, total_successes, last_delivery_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.TenantID, ep.URL, ep.Description, ep.Secret, string(categories), enabled,
		ep.ConsecutiveFailures, ep.TotalAttempts, ep.TotalSuccesses, ep.LastDeliveryAt, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanEndpoint(row interface{ Scan(...interface{}) error }) (*models.Endpoint, error) {
	var ep models.Endpoint
	var categories string
	var enabled int
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.URL, &ep.Description, &ep.Secret, &categories, &enabled,
		&ep.ConsecutiveFailures, &ep.TotalAttempts, &ep.TotalSuccesses, &ep.LastDeliveryAt, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(categories), &ep.Categories)
	ep.Enabled = enabled == 1
	return &ep, nil
}

const endpointColumns = `id, tenant_id, url, description, secret, categories, enabled,
	consecutive_failures, total_attempts, total_successes, last_delivery_at, created_at, updated_at`

func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStorage) ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

func (s *SQLiteStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	categories, _ := json.Marshal(ep.Categories)
	enabled := 0
	if ep.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET url = ?, description = ?, categories = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		ep.URL, ep.Description, string(categories), enabled, time.Now().UTC(), ep.ID,
	)
	return err
}

func (s *SQLiteStorage) DeleteEndpoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	return err
}

// SetEndpointEnabled also clears the failure streak on re-enable so a
// manually revived endpoint starts from a clean slate.
func (s *SQLiteStorage) SetEndpointEnabled(ctx context.Context, id string, enabled bool) error {
	e := 0
	if enabled {
		e = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET enabled = ?, consecutive_failures = CASE WHEN ? THEN 0 ELSE consecutive_failures END, updated_at = ? WHERE id = ?`,
		e, e, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStorage) ListSubscribedEndpoints(ctx context.Context, tenantID string, category models.Category) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? AND enabled = 1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		if ep.SubscribesTo(category) {
			endpoints = append(endpoints, *ep)
		}
	}
	return endpoints, rows.Err()
}

// RecordEndpointOutcome applies one delivery outcome as a single atomic
// UPDATE. Concurrent attempts (initial fan-out overlapping a retry sweep)
// therefore cannot lose counter increments. The auto-disable check runs in
// the same statement: the failure that reaches the threshold flips enabled
// off.
func (s *SQLiteStorage) RecordEndpointOutcome(ctx context.Context, endpointID string, success bool) (EndpointHealth, error) {
	now := time.Now().UTC()
	var err error
	if success {
		_, err = s.db.ExecContext(ctx,
			`UPDATE endpoints SET
				consecutive_failures = 0,
				total_attempts = total_attempts + 1,
				total_successes = total_successes + 1,
				last_delivery_at = ?,
				updated_at = ?
			 WHERE id = ?`, now, now, endpointID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE endpoints SET
				consecutive_failures = consecutive_failures + 1,
				total_attempts = total_attempts + 1,
				enabled = CASE WHEN consecutive_failures + 1 >= ? THEN 0 ELSE enabled END,
				updated_at = ?
			 WHERE id = ?`, models.DisableThreshold, now, endpointID)
	}
	if err != nil {
		return EndpointHealth{}, err
	}

	var h EndpointHealth
	var enabled int
	err = s.db.QueryRowContext(ctx,
		`SELECT consecutive_failures, enabled FROM endpoints WHERE id = ?`, endpointID,
	).Scan(&h.ConsecutiveFailures, &enabled)
	if err != nil {
		return EndpointHealth{}, err
	}
	h.Enabled = enabled == 1
	return h, nil
}

// --- Inbound events ---

func (s *SQLiteStorage) CreateInboundEvent(ctx context.Context, evt *models.InboundEvent) error {
	verified := 0
	if evt.Verified {
		verified = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_events (id, provider, raw_payload, signature_header, verified, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.Provider, string(evt.RawPayload), evt.SignatureHeader, verified, evt.ReceivedAt,
	)
	return err
}

func (s *SQLiteStorage) scanInboundEvent(row interface{ Scan(...interface{}) error }) (*models.InboundEvent, error) {
	var evt models.InboundEvent
	var payload string
	var verified, processed int
	err := row.Scan(&evt.ID, &evt.Provider, &payload, &evt.SignatureHeader, &verified, &evt.Category,
		&evt.SubjectRecordID, &evt.ProviderEventType, &processed, &evt.ProcessingError, &evt.ReceivedAt, &evt.ProcessedAt)
	if err != nil {
		return nil, err
	}
	evt.RawPayload = []byte(payload)
	evt.Verified = verified == 1
	evt.Processed = processed == 1
	return &evt, nil
}

const eventColumns = `id, provider, raw_payload, signature_header, verified, category,
	subject_record_id, provider_event_type, processed, processing_error, received_at, processed_at`

func (s *SQLiteStorage) GetInboundEvent(ctx context.Context, id string) (*models.InboundEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM inbound_events WHERE id = ?`, id)
	evt, err := s.scanInboundEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return evt, err
}

func (s *SQLiteStorage) ListInboundEvents(ctx context.Context, providerName string, limit, offset int) ([]models.InboundEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + eventColumns + ` FROM inbound_events`
	args := []interface{}{}
	if providerName != "" {
		query += ` WHERE provider = ?`
		args = append(args, providerName)
	}
	query += ` ORDER BY received_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.InboundEvent
	for rows.Next() {
		evt, err := s.scanInboundEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *evt)
	}
	return events, rows.Err()
}

func (s *SQLiteStorage) MarkInboundEventProcessed(ctx context.Context, id string, upd ProcessedUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_events SET processed = 1, category = ?, subject_record_id = ?,
		   provider_event_type = ?, processing_error = ?, processed_at = ?
		 WHERE id = ?`,
		string(upd.Category), upd.SubjectRecordID, upd.ProviderEventType, upd.Error, time.Now().UTC(), id,
	)
	return err
}

// --- Delivery attempts ---

func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (id, event_id, endpoint_id, category, subject_record_id,
		   attempt_number, status, request_body, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EventID, a.EndpointID, string(a.Category), a.SubjectRecordID,
		a.AttemptNumber, string(a.Status), string(a.RequestBody), a.SentAt,
	)
	return err
}

// CompleteAttempt closes a pending row with its outcome. Called exactly once
// per attempt, including on network failure, so no row is left open.
func (s *SQLiteStorage) CompleteAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_attempts SET status = ?, response_status = ?, response_snippet = ?,
		   error_message = ?, completed_at = ?, duration_ms = ?, next_retry_at = ?
		 WHERE id = ?`,
		string(a.Status), a.ResponseStatus, a.ResponseSnippet,
		a.ErrorMessage, a.CompletedAt, a.DurationMs, a.NextRetryAt, a.ID,
	)
	return err
}

func (s *SQLiteStorage) scanAttempt(row interface{ Scan(...interface{}) error }) (*models.DeliveryAttempt, error) {
	var a models.DeliveryAttempt
	var body string
	err := row.Scan(&a.ID, &a.EventID, &a.EndpointID, &a.Category, &a.SubjectRecordID,
		&a.AttemptNumber, &a.Status, &body, &a.ResponseStatus, &a.ResponseSnippet,
		&a.ErrorMessage, &a.SentAt, &a.CompletedAt, &a.DurationMs, &a.NextRetryAt)
	if err != nil {
		return nil, err
	}
	a.RequestBody = []byte(body)
	return &a, nil
}

const attemptColumns = `id, event_id, endpoint_id, category, subject_record_id,
	attempt_number, status, request_body, response_status, response_snippet,
	error_message, sent_at, completed_at, duration_ms, next_retry_at`

func (s *SQLiteStorage) GetAttempt(ctx context.Context, id string) (*models.DeliveryAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts WHERE id = ?`, id)
	a, err := s.scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStorage) ListAttemptsByEndpoint(ctx context.Context, endpointID string, limit, offset int) ([]models.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE endpoint_id = ? ORDER BY sent_at DESC LIMIT ? OFFSET ?`,
		endpointID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows, s)
}

func (s *SQLiteStorage) ListAttemptsByEvent(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE event_id = ? ORDER BY endpoint_id, attempt_number`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows, s)
}

func (s *SQLiteStorage) DueRetries(ctx context.Context, now time.Time, limit int) ([]models.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts
		 WHERE status = 'retrying' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY next_retry_at ASC LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows, s)
}

func collectAttempts(rows *sql.Rows, s *SQLiteStorage) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	for rows.Next() {
		a, err := s.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ClaimRetry clears next_retry_at so a due row is picked up by exactly one
// sweep; the follow-up attempt is a fresh row.
func (s *SQLiteStorage) ClaimRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_attempts SET next_retry_at = NULL WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) MarkAttemptAbandoned(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_attempts SET status = 'failed', error_message = ?, next_retry_at = NULL, completed_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), id)
	return err
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbound_events e JOIN records r ON e.subject_record_id = r.id WHERE r.tenant_id = ?`, tenantID).Scan(&stats.TotalEvents)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN endpoints ep ON a.endpoint_id = ep.id WHERE ep.tenant_id = ?`, tenantID).Scan(&stats.TotalAttempts)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN endpoints ep ON a.endpoint_id = ep.id WHERE ep.tenant_id = ? AND a.status = 'success'`, tenantID).Scan(&stats.SuccessCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN endpoints ep ON a.endpoint_id = ep.id WHERE ep.tenant_id = ? AND a.status = 'failed'`, tenantID).Scan(&stats.FailedCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN endpoints ep ON a.endpoint_id = ep.id WHERE ep.tenant_id = ? AND a.status = 'retrying'`, tenantID).Scan(&stats.RetryingCount)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints WHERE tenant_id = ?`, tenantID).Scan(&stats.TotalEndpoints)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints WHERE tenant_id = ? AND enabled = 1`, tenantID).Scan(&stats.EnabledEndpoints)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE tenant_id = ?`, tenantID).Scan(&stats.TotalRecords)

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts) * 100
	}

	return stats, nil
}

// --- Retention ---

func (s *SQLiteStorage) PurgeExpired(ctx context.Context, eventTTL, attemptTTL time.Duration) (PurgeResult, error) {
	now := time.Now().UTC()
	var result PurgeResult

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM inbound_events WHERE received_at < ?`, now.Add(-eventTTL))
	if err != nil {
		return result, err
	}
	result.Events, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM delivery_attempts WHERE sent_at < ? AND status IN ('success', 'failed')`, now.Add(-attemptTTL))
	if err != nil {
		return result, err
	}
	result.Attempts, _ = res.RowsAffected()

	return result, nil
}
