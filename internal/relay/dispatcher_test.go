package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/config"
	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/signing"
	"github.com/bizwatch/bizrelay/internal/storage"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func seedTenantAndEndpoint(t *testing.T, store storage.Storage, url string, categories []string) *models.Endpoint {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:        models.NewID("tn"),
		Name:      "acme",
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	ep := &models.Endpoint{
		ID:         models.NewID("ep"),
		TenantID:   tenant.ID,
		URL:        url,
		Secret:     models.NewSecret(),
		Categories: categories,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	return ep
}

func testDispatcher(store storage.Storage) *Dispatcher {
	return NewDispatcher(store, config.DeliveryConfig{
		Timeout:       2 * time.Second,
		MaxRetries:    3,
		RetrySchedule: DefaultRetrySchedule,
	}, zerolog.Nop())
}

func TestDeliverSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newTestStore(t)
	ep := seedTenantAndEndpoint(t, store, srv.URL, nil)
	d := testDispatcher(store)

	payload := []byte(`{"event":"sentiment","data":{}}`)
	res, err := d.Deliver(context.Background(), ep, "evt_1", models.CategorySentiment, "rec_1", payload, 1)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !res.Success || res.HTTPStatus != http.StatusOK {
		t.Fatalf("result = %+v", res)
	}

	sig := gotHeaders.Get("X-Bizrelay-Signature")
	if !signing.Verify(ep.Secret, gotBody, sig) {
		t.Errorf("outbound signature does not verify against sent body")
	}
	if gotHeaders.Get("X-Bizrelay-Event") != "sentiment" {
		t.Errorf("event header = %q", gotHeaders.Get("X-Bizrelay-Event"))
	}
	if gotHeaders.Get("X-Bizrelay-Attempt-Id") != res.AttemptID {
		t.Errorf("attempt id header = %q, want %q", gotHeaders.Get("X-Bizrelay-Attempt-Id"), res.AttemptID)
	}

	a, err := store.GetAttempt(context.Background(), res.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if a.Status != models.AttemptSuccess || a.ResponseStatus != http.StatusOK {
		t.Errorf("attempt row: %+v", a)
	}
	if a.NextRetryAt != nil {
		t.Error("successful attempt scheduled for retry")
	}

	got, _ := store.GetEndpoint(context.Background(), ep.ID)
	if got.TotalAttempts != 1 || got.TotalSuccesses != 1 || got.ConsecutiveFailures != 0 {
		t.Errorf("endpoint counters: %+v", got)
	}
}

func TestDeliverServerErrorSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newTestStore(t)
	ep := seedTenantAndEndpoint(t, store, srv.URL, nil)
	d := testDispatcher(store)

	before := time.Now()
	res, err := d.Deliver(context.Background(), ep, "evt_1", models.CategoryWebsite, "rec_1", []byte(`{}`), 1)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if res.Success {
		t.Fatal("5xx response reported as success")
	}

	a, err := store.GetAttempt(context.Background(), res.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if a.Status != models.AttemptRetrying {
		t.Fatalf("status = %s, want retrying", a.Status)
	}
	if a.NextRetryAt == nil {
		t.Fatal("retrying attempt has no next_retry_at")
	}
	delay := a.NextRetryAt.Sub(before)
	if delay < 50*time.Second || delay > 70*time.Second {
		t.Errorf("first retry delay = %v, want about 1m", delay)
	}
	if a.ResponseSnippet == "" {
		t.Error("response snippet not captured")
	}

	got, _ := store.GetEndpoint(context.Background(), ep.ID)
	if got.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", got.ConsecutiveFailures)
	}
}

func TestDeliverNetworkErrorRecorded(t *testing.T) {
	store := newTestStore(t)
	// Closed port: connection refused without waiting on a timeout.
	ep := seedTenantAndEndpoint(t, store, "http://127.0.0.1:1", nil)
	d := testDispatcher(store)

	res, err := d.Deliver(context.Background(), ep, "evt_1", models.CategorySentiment, "rec_1", []byte(`{}`), 1)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if res.Success {
		t.Fatal("network error reported as success")
	}

	a, err := store.GetAttempt(context.Background(), res.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if a.Status != models.AttemptRetrying {
		t.Errorf("status = %s, want retrying", a.Status)
	}
	if a.ErrorMessage == "" {
		t.Error("network error message not recorded")
	}
	if a.ResponseStatus != 0 {
		t.Errorf("response status = %d, want 0", a.ResponseStatus)
	}
}

func TestDeliverFinalAttemptIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newTestStore(t)
	ep := seedTenantAndEndpoint(t, store, srv.URL, nil)
	d := testDispatcher(store)

	// Attempt 4 exhausts the three-step schedule.
	res, err := d.Deliver(context.Background(), ep, "evt_1", models.CategorySentiment, "rec_1", []byte(`{}`), 4)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	a, err := store.GetAttempt(context.Background(), res.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if a.Status != models.AttemptFailed {
		t.Errorf("status = %s, want failed", a.Status)
	}
	if a.NextRetryAt != nil {
		t.Error("terminal failure still scheduled for retry")
	}
}

func TestDeliverAutoDisableAtThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newTestStore(t)
	ep := seedTenantAndEndpoint(t, store, srv.URL, nil)
	d := testDispatcher(store)

	for i := 0; i < models.DisableThreshold; i++ {
		if _, err := d.Deliver(context.Background(), ep, "evt_1", models.CategorySentiment, "rec_1", []byte(`{}`), 1); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}

	got, err := store.GetEndpoint(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}
	if got.Enabled {
		t.Errorf("endpoint still enabled after %d consecutive failures", models.DisableThreshold)
	}
}
