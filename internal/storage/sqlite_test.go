package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bizwatch/bizrelay/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func seedTenant(t *testing.T, store *SQLiteStorage) *models.Tenant {
	t.Helper()
	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:        models.NewID("tn"),
		Name:      "acme",
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func seedEndpoint(t *testing.T, store *SQLiteStorage, tenantID string, categories []string) *models.Endpoint {
	t.Helper()
	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:         models.NewID("ep"),
		TenantID:   tenantID,
		URL:        "https://hooks.example.com/in",
		Secret:     models.NewSecret(),
		Categories: categories,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	return ep
}

func TestGetTenantMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	tenant, err := store.GetTenant(context.Background(), "tn_missing")
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if tenant != nil {
		t.Fatalf("want nil for missing tenant, got %+v", tenant)
	}
}

func TestTenantAPIKeyLookupAndRotate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)

	got, err := store.GetTenantByAPIKey(ctx, tenant.APIKey)
	if err != nil || got == nil || got.ID != tenant.ID {
		t.Fatalf("lookup by key: got %+v, err %v", got, err)
	}

	newKey := models.NewAPIKey()
	if err := store.UpdateTenantAPIKey(ctx, tenant.ID, newKey); err != nil {
		t.Fatalf("rotate key: %v", err)
	}
	if got, _ := store.GetTenantByAPIKey(ctx, tenant.APIKey); got != nil {
		t.Error("old key still resolves after rotation")
	}
	if got, _ := store.GetTenantByAPIKey(ctx, newKey); got == nil || got.ID != tenant.ID {
		t.Error("new key does not resolve")
	}
}

func TestFindRecordByExternalRef(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)

	now := time.Now().UTC()
	rec := &models.MonitoredRecord{
		ID:          models.NewID("rec"),
		TenantID:    tenant.ID,
		ExternalRef: "biz-42",
		Name:        "Corner Deli",
		Status:      models.RecordStatusActive,
		Monitored:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}

	got, err := store.FindRecordByExternalRef(ctx, "biz-42")
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if got == nil || got.ID != rec.ID || !got.Monitored {
		t.Fatalf("find record: got %+v", got)
	}

	got, err = store.FindRecordByExternalRef(ctx, "biz-nope")
	if err != nil {
		t.Fatalf("find missing record: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for unknown ref, got %+v", got)
	}
}

func TestDuplicateInboundPayloadsAreSeparateEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"subject_urn":"urn:bizradar:biz-1"}`)
	for i := 0; i < 2; i++ {
		evt := &models.InboundEvent{
			ID:         models.NewID("evt"),
			Provider:   "bizradar",
			RawPayload: payload,
			Verified:   true,
			ReceivedAt: time.Now().UTC(),
		}
		if err := store.CreateInboundEvent(ctx, evt); err != nil {
			t.Fatalf("create event %d: %v", i, err)
		}
	}

	events, err := store.ListInboundEvents(ctx, "bizradar", 10, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2 stored events for duplicate payloads, got %d", len(events))
	}
}

func TestMarkInboundEventProcessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	evt := &models.InboundEvent{
		ID:         models.NewID("evt"),
		Provider:   "bizradar",
		RawPayload: []byte(`{}`),
		ReceivedAt: time.Now().UTC(),
	}
	if err := store.CreateInboundEvent(ctx, evt); err != nil {
		t.Fatalf("create event: %v", err)
	}

	upd := ProcessedUpdate{
		Category:          models.CategorySentiment,
		SubjectRecordID:   "rec_1",
		ProviderEventType: "sentiment-drop",
	}
	if err := store.MarkInboundEventProcessed(ctx, evt.ID, upd); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	got, err := store.GetInboundEvent(ctx, evt.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if !got.Processed || got.Category != models.CategorySentiment || got.SubjectRecordID != "rec_1" {
		t.Errorf("processed event state: %+v", got)
	}
	if got.ProcessedAt == nil {
		t.Error("processed_at not stamped")
	}
}

func TestListSubscribedEndpointsFiltersByCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)

	sentimentEP := seedEndpoint(t, store, tenant.ID, []string{"sentiment"})
	allEP := seedEndpoint(t, store, tenant.ID, nil)
	websiteEP := seedEndpoint(t, store, tenant.ID, []string{"website"})
	disabledEP := seedEndpoint(t, store, tenant.ID, []string{"sentiment"})
	if err := store.SetEndpointEnabled(ctx, disabledEP.ID, false); err != nil {
		t.Fatalf("disable endpoint: %v", err)
	}

	subs, err := store.ListSubscribedEndpoints(ctx, tenant.ID, models.CategorySentiment)
	if err != nil {
		t.Fatalf("list subscribed: %v", err)
	}

	got := map[string]bool{}
	for _, ep := range subs {
		got[ep.ID] = true
	}
	if !got[sentimentEP.ID] || !got[allEP.ID] {
		t.Errorf("sentiment and catch-all endpoints should match, got %v", got)
	}
	if got[websiteEP.ID] {
		t.Error("website-only endpoint should not match sentiment")
	}
	if got[disabledEP.ID] {
		t.Error("disabled endpoint should never match")
	}
}

func TestRecordEndpointOutcomeDisablesAtThreshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	for i := 1; i < models.DisableThreshold; i++ {
		h, err := store.RecordEndpointOutcome(ctx, ep.ID, false)
		if err != nil {
			t.Fatalf("outcome %d: %v", i, err)
		}
		if h.ConsecutiveFailures != i {
			t.Fatalf("after failure %d: streak = %d", i, h.ConsecutiveFailures)
		}
		if !h.Enabled {
			t.Fatalf("disabled after %d failures, threshold is %d", i, models.DisableThreshold)
		}
	}

	h, err := store.RecordEndpointOutcome(ctx, ep.ID, false)
	if err != nil {
		t.Fatalf("threshold failure: %v", err)
	}
	if h.Enabled {
		t.Errorf("still enabled after %d consecutive failures", models.DisableThreshold)
	}
	if h.ConsecutiveFailures != models.DisableThreshold {
		t.Errorf("streak = %d, want %d", h.ConsecutiveFailures, models.DisableThreshold)
	}
}

func TestRecordEndpointOutcomeSuccessResetsStreak(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	for i := 0; i < 5; i++ {
		if _, err := store.RecordEndpointOutcome(ctx, ep.ID, false); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	h, err := store.RecordEndpointOutcome(ctx, ep.ID, true)
	if err != nil {
		t.Fatalf("success outcome: %v", err)
	}
	if h.ConsecutiveFailures != 0 || !h.Enabled {
		t.Errorf("after success: %+v", h)
	}

	got, err := store.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}
	if got.TotalAttempts != 6 || got.TotalSuccesses != 1 {
		t.Errorf("counters: attempts=%d successes=%d", got.TotalAttempts, got.TotalSuccesses)
	}
	if got.LastDeliveryAt == nil {
		t.Error("last_delivery_at not stamped on success")
	}
}

func TestReenableClearsFailureStreak(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	for i := 0; i < models.DisableThreshold; i++ {
		if _, err := store.RecordEndpointOutcome(ctx, ep.ID, false); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	if err := store.SetEndpointEnabled(ctx, ep.ID, true); err != nil {
		t.Fatalf("re-enable: %v", err)
	}

	got, err := store.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}
	if !got.Enabled || got.ConsecutiveFailures != 0 {
		t.Errorf("after re-enable: enabled=%v streak=%d", got.Enabled, got.ConsecutiveFailures)
	}
}

func TestDueRetriesAndClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	now := time.Now().UTC()
	due := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	mkAttempt := func(status models.AttemptStatus, nextRetry *time.Time) *models.DeliveryAttempt {
		a := &models.DeliveryAttempt{
			ID:            models.NewID("att"),
			EventID:       "evt_1",
			EndpointID:    ep.ID,
			Category:      models.CategorySentiment,
			AttemptNumber: 1,
			Status:        models.AttemptPending,
			RequestBody:   []byte(`{"event":"sentiment"}`),
			SentAt:        now.Add(-2 * time.Minute),
		}
		if err := store.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
		a.Status = status
		a.NextRetryAt = nextRetry
		completed := now.Add(-2 * time.Minute)
		a.CompletedAt = &completed
		if err := store.CompleteAttempt(ctx, a); err != nil {
			t.Fatalf("complete attempt: %v", err)
		}
		return a
	}

	dueAttempt := mkAttempt(models.AttemptRetrying, &due)
	mkAttempt(models.AttemptRetrying, &future)
	mkAttempt(models.AttemptFailed, nil)
	mkAttempt(models.AttemptSuccess, nil)

	got, err := store.DueRetries(ctx, now, 10)
	if err != nil {
		t.Fatalf("due retries: %v", err)
	}
	if len(got) != 1 || got[0].ID != dueAttempt.ID {
		t.Fatalf("due retries = %v, want exactly the overdue retrying row", got)
	}
	if string(got[0].RequestBody) != `{"event":"sentiment"}` {
		t.Errorf("request body not preserved: %q", got[0].RequestBody)
	}

	if err := store.ClaimRetry(ctx, dueAttempt.ID); err != nil {
		t.Fatalf("claim retry: %v", err)
	}
	got, err = store.DueRetries(ctx, now, 10)
	if err != nil {
		t.Fatalf("due retries after claim: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("claimed row picked up again: %v", got)
	}

	claimed, err := store.GetAttempt(ctx, dueAttempt.ID)
	if err != nil {
		t.Fatalf("get claimed attempt: %v", err)
	}
	if claimed.Status != models.AttemptRetrying || claimed.NextRetryAt != nil {
		t.Errorf("claimed row state: status=%s nextRetry=%v", claimed.Status, claimed.NextRetryAt)
	}
}

func TestMarkAttemptAbandoned(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	a := &models.DeliveryAttempt{
		ID:            models.NewID("att"),
		EventID:       "evt_1",
		EndpointID:    ep.ID,
		Category:      models.CategoryWebsite,
		AttemptNumber: 2,
		Status:        models.AttemptPending,
		SentAt:        time.Now().UTC(),
	}
	if err := store.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if err := store.MarkAttemptAbandoned(ctx, a.ID, "endpoint disabled"); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	got, err := store.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.Status != models.AttemptFailed || got.ErrorMessage != "endpoint disabled" {
		t.Errorf("abandoned row: %+v", got)
	}
	if got.NextRetryAt != nil {
		t.Error("abandoned row still scheduled for retry")
	}
}

func TestPurgeExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	for _, ts := range []time.Time{old, fresh} {
		evt := &models.InboundEvent{
			ID:         models.NewID("evt"),
			Provider:   "bizradar",
			RawPayload: []byte(`{}`),
			ReceivedAt: ts,
		}
		if err := store.CreateInboundEvent(ctx, evt); err != nil {
			t.Fatalf("create event: %v", err)
		}
	}

	oldAttempt := &models.DeliveryAttempt{
		ID:            models.NewID("att"),
		EndpointID:    ep.ID,
		Category:      models.CategorySentiment,
		AttemptNumber: 1,
		Status:        models.AttemptPending,
		SentAt:        old,
	}
	if err := store.CreateAttempt(ctx, oldAttempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	oldAttempt.Status = models.AttemptSuccess
	if err := store.CompleteAttempt(ctx, oldAttempt); err != nil {
		t.Fatalf("complete attempt: %v", err)
	}

	res, err := store.PurgeExpired(ctx, 24*time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if res.Events != 1 || res.Attempts != 1 {
		t.Errorf("purge result = %+v, want 1 event and 1 attempt", res)
	}

	events, err := store.ListInboundEvents(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("events remaining = %d, want 1", len(events))
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID, nil)

	for _, status := range []models.AttemptStatus{models.AttemptSuccess, models.AttemptSuccess, models.AttemptFailed, models.AttemptRetrying} {
		a := &models.DeliveryAttempt{
			ID:            models.NewID("att"),
			EndpointID:    ep.ID,
			Category:      models.CategorySentiment,
			AttemptNumber: 1,
			Status:        models.AttemptPending,
			SentAt:        time.Now().UTC(),
		}
		if err := store.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
		a.Status = status
		if err := store.CompleteAttempt(ctx, a); err != nil {
			t.Fatalf("complete attempt: %v", err)
		}
	}

	stats, err := store.GetStats(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAttempts != 4 || stats.SuccessCount != 2 || stats.FailedCount != 1 || stats.RetryingCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("success rate = %v, want 50", stats.SuccessRate)
	}
	if stats.TotalEndpoints != 1 || stats.EnabledEndpoints != 1 {
		t.Errorf("endpoint counts: %+v", stats)
	}
}
