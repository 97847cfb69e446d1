package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/config"
	"github.com/bizwatch/bizrelay/internal/metrics"
	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/signing"
	"github.com/bizwatch/bizrelay/internal/storage"
)

const (
	headerSignature = "X-Bizrelay-Signature"
	headerEvent     = "X-Bizrelay-Event"
	headerAttemptID = "X-Bizrelay-Attempt-Id"
	headerTimestamp = "X-Bizrelay-Timestamp"

	maxSnippetBytes = 1024
)

// Dispatcher signs, sends, times out, and records one delivery attempt to
// one subscriber endpoint. Every attempt row it opens gets closed with an
// outcome, network failures included.
type Dispatcher struct {
	store      storage.Storage
	client     *http.Client
	schedule   []time.Duration
	maxRetries int
	log        zerolog.Logger
}

type DeliverResult struct {
	Success    bool
	AttemptID  string
	HTTPStatus int
}

func NewDispatcher(store storage.Storage, cfg config.DeliveryConfig, log zerolog.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	schedule := cfg.RetrySchedule
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		store:      store,
		client:     &http.Client{Timeout: timeout},
		schedule:   schedule,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Deliver runs one attempt. Domain failures (non-2xx, network error) are
// recorded on the attempt row and returned as a non-success result; only
// storage errors come back as err.
func (d *Dispatcher) Deliver(ctx context.Context, ep *models.Endpoint, eventID string, category models.Category, subjectRecordID string, payload []byte, attemptNumber int) (DeliverResult, error) {
	attempt := &models.DeliveryAttempt{
		ID:              models.NewID("att"),
		EventID:         eventID,
		EndpointID:      ep.ID,
		Category:        category,
		SubjectRecordID: subjectRecordID,
		AttemptNumber:   attemptNumber,
		Status:          models.AttemptPending,
		RequestBody:     payload,
		SentAt:          time.Now().UTC(),
	}
	if err := d.store.CreateAttempt(ctx, attempt); err != nil {
		return DeliverResult{}, fmt.Errorf("create attempt: %w", err)
	}

	start := time.Now()
	status, snippet, sendErr := d.send(ctx, ep, attempt.ID, category, payload)
	attempt.DurationMs = time.Since(start).Milliseconds()

	now := time.Now().UTC()
	attempt.CompletedAt = &now
	attempt.ResponseStatus = status
	attempt.ResponseSnippet = snippet
	if sendErr != nil {
		attempt.ErrorMessage = sendErr.Error()
	}

	success := sendErr == nil && IsSuccess(status)
	if success {
		attempt.Status = models.AttemptSuccess
	} else if next := NextRetryTime(attemptNumber, d.schedule); next != nil && attemptNumber <= d.maxRetries {
		attempt.Status = models.AttemptRetrying
		attempt.NextRetryAt = next
	} else {
		attempt.Status = models.AttemptFailed
	}

	if err := d.store.CompleteAttempt(ctx, attempt); err != nil {
		return DeliverResult{}, fmt.Errorf("complete attempt: %w", err)
	}

	metrics.Deliveries.WithLabelValues(string(category), string(attempt.Status)).Inc()
	metrics.DeliveryLatency.WithLabelValues(string(category), string(attempt.Status)).Observe(float64(attempt.DurationMs))

	if err := d.recordHealth(ctx, ep, success); err != nil {
		return DeliverResult{}, err
	}

	evt := d.log.Info()
	if !success {
		evt = d.log.Warn().Str("error", attempt.ErrorMessage)
	}
	evt.Str("attempt_id", attempt.ID).
		Str("endpoint_id", ep.ID).
		Str("category", string(category)).
		Int("attempt", attemptNumber).
		Int("status_code", status).
		Int64("duration_ms", attempt.DurationMs).
		Str("outcome", string(attempt.Status)).
		Msg("delivery attempt")

	return DeliverResult{Success: success, AttemptID: attempt.ID, HTTPStatus: status}, nil
}

func (d *Dispatcher) send(ctx context.Context, ep *models.Endpoint, attemptID string, category models.Category, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "bizrelay/1.0")
	req.Header.Set(headerSignature, signing.Sign(ep.Secret, payload))
	req.Header.Set(headerEvent, string(category))
	req.Header.Set(headerAttemptID, attemptID)
	req.Header.Set(headerTimestamp, fmt.Sprintf("%d", time.Now().Unix()))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippetBytes))
	return resp.StatusCode, string(snippet), nil
}

func (d *Dispatcher) recordHealth(ctx context.Context, ep *models.Endpoint, success bool) error {
	health, err := d.store.RecordEndpointOutcome(ctx, ep.ID, success)
	if err != nil {
		return fmt.Errorf("record endpoint outcome: %w", err)
	}
	if !success && !health.Enabled && health.ConsecutiveFailures == models.DisableThreshold {
		metrics.EndpointsAutoDisabled.WithLabelValues(ep.TenantID).Inc()
		d.log.Warn().
			Str("endpoint_id", ep.ID).
			Str("tenant_id", ep.TenantID).
			Str("url", ep.URL).
			Int("consecutive_failures", health.ConsecutiveFailures).
			Msg("endpoint auto-disabled after consecutive failures")
	}
	return nil
}
