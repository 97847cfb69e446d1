// Package relay implements the webhook relay pipeline: inbound
// authentication and normalization, idempotent event storage, outbound
// fan-out with per-endpoint signing, bounded retries, and endpoint health.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/metrics"
	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/provider"
	"github.com/bizwatch/bizrelay/internal/storage"
)

// SecretSource resolves the inbound shared secret for a provider. Empty
// means no secret is configured: ingestion continues but the event stays
// unverified and never fans out.
type SecretSource func(providerName string) string

type Service struct {
	registry   *provider.Registry
	store      storage.Storage
	records    RecordResolver
	dispatcher *Dispatcher
	secrets    SecretSource
	pool       *Pool
	log        zerolog.Logger
}

// NewService wires the ingest pipeline. pool may be nil, in which case
// fan-out runs inline on the caller's goroutine.
func NewService(registry *provider.Registry, store storage.Storage, records RecordResolver, dispatcher *Dispatcher, secrets SecretSource, pool *Pool, log zerolog.Logger) *Service {
	return &Service{
		registry:   registry,
		store:      store,
		records:    records,
		dispatcher: dispatcher,
		secrets:    secrets,
		pool:       pool,
		log:        log,
	}
}

type IngestResult struct {
	EventID   string
	Processed bool
}

// Ingest handles one inbound webhook call: authenticate, store, normalize,
// resolve the subject, then hand the event to the fan-out pool. It returns
// before any delivery happens so the upstream provider gets its ack promptly.
// Domain outcomes (not mappable, unknown subject, failed detail fetch) are
// recorded on the stored event, not returned as errors; only
// ErrUnknownProvider, ErrInvalidSignature, and storage failures surface.
func (s *Service) Ingest(ctx context.Context, providerName string, headers http.Header, rawBody []byte) (IngestResult, error) {
	p, ok := s.registry.Get(providerName)
	if !ok {
		return IngestResult{}, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, providerName)
	}

	verified := false
	var verifyErr error
	secret := s.secrets(providerName)
	if secret == "" {
		s.log.Warn().Str("provider", providerName).Msg("no webhook secret configured, accepting unverified event")
	} else if err := p.VerifySignature(headers, rawBody, secret); err != nil {
		verifyErr = err
	} else {
		verified = true
	}

	evt := &models.InboundEvent{
		ID:              models.NewID("evt"),
		Provider:        providerName,
		RawPayload:      rawBody,
		SignatureHeader: p.SignatureValue(headers),
		Verified:        verified,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateInboundEvent(ctx, evt); err != nil {
		return IngestResult{}, fmt.Errorf("store inbound event: %w", err)
	}

	if verifyErr != nil {
		// Stored for audit, left unprocessed for replay after the secret
		// mismatch is resolved.
		metrics.InboundEvents.WithLabelValues(providerName, "invalid_signature").Inc()
		s.log.Warn().Err(verifyErr).Str("event_id", evt.ID).Msg("inbound signature verification failed")
		return IngestResult{EventID: evt.ID}, verifyErr
	}

	norm, err := p.Normalize(ctx, rawBody)
	if err != nil {
		return s.finishUnactionable(ctx, evt, err)
	}

	record, err := s.records.FindRecordByExternalRef(ctx, norm.SubjectRef)
	if err != nil {
		return IngestResult{EventID: evt.ID}, fmt.Errorf("resolve subject %q: %w", norm.SubjectRef, err)
	}
	if record == nil {
		// The provider may reference subjects this system does not own.
		metrics.InboundEvents.WithLabelValues(providerName, "subject_not_found").Inc()
		s.log.Warn().Str("event_id", evt.ID).Str("subject_ref", norm.SubjectRef).Msg("subject not found for inbound event")
		return s.markProcessed(ctx, evt, storage.ProcessedUpdate{
			Category:          norm.Category,
			ProviderEventType: norm.ProviderEventType,
			Error:             fmt.Sprintf("subject not found: %s", norm.SubjectRef),
		})
	}

	res, err := s.markProcessed(ctx, evt, storage.ProcessedUpdate{
		Category:          norm.Category,
		SubjectRecordID:   record.ID,
		ProviderEventType: norm.ProviderEventType,
	})
	if err != nil {
		return res, err
	}

	if !verified {
		// Fail-open for ingestion, fail-closed for trust.
		metrics.InboundEvents.WithLabelValues(providerName, "unverified").Inc()
		return res, nil
	}
	metrics.InboundEvents.WithLabelValues(providerName, "processed").Inc()

	evt.Category = norm.Category
	evt.SubjectRecordID = record.ID
	evt.ProviderEventType = norm.ProviderEventType
	job := FanoutJob{Event: *evt, Record: *record}
	if s.pool != nil {
		if !s.pool.Submit(job) {
			s.log.Error().Str("event_id", evt.ID).Msg("fan-out queue full, event stored but not delivered")
		}
	} else {
		s.FanOut(ctx, job)
	}

	return res, nil
}

func (s *Service) finishUnactionable(ctx context.Context, evt *models.InboundEvent, cause error) (IngestResult, error) {
	outcome := "not_mappable"
	if errors.Is(cause, provider.ErrUpstreamFetch) {
		outcome = "upstream_fetch_failed"
	}
	metrics.InboundEvents.WithLabelValues(evt.Provider, outcome).Inc()
	s.log.Info().Err(cause).Str("event_id", evt.ID).Msg("inbound event stored but not actionable")
	return s.markProcessed(ctx, evt, storage.ProcessedUpdate{Error: cause.Error()})
}

func (s *Service) markProcessed(ctx context.Context, evt *models.InboundEvent, upd storage.ProcessedUpdate) (IngestResult, error) {
	if err := s.store.MarkInboundEventProcessed(ctx, evt.ID, upd); err != nil {
		return IngestResult{EventID: evt.ID}, fmt.Errorf("mark event processed: %w", err)
	}
	return IngestResult{EventID: evt.ID, Processed: true}, nil
}

// FanOut delivers one normalized event to every enabled endpoint of the
// subject's tenant whose subscription includes the category. Endpoints are
// visited sequentially to bound egress bursts; each failure is recorded and
// scheduled by the dispatcher, never returned.
func (s *Service) FanOut(ctx context.Context, job FanoutJob) {
	endpoints, err := s.store.ListSubscribedEndpoints(ctx, job.Record.TenantID, job.Event.Category)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", job.Event.ID).Msg("failed to list subscribed endpoints")
		return
	}
	if len(endpoints) == 0 {
		return
	}

	payload, err := json.Marshal(OutboundEvent{
		Event:     job.Event.Category,
		Timestamp: time.Now().UTC(),
		Data: OutboundData{
			SubjectRecordID:   job.Record.ID,
			SubjectName:       job.Record.Name,
			Status:            job.Record.Status,
			Provider:          job.Event.Provider,
			ProviderEventType: job.Event.ProviderEventType,
			ProviderPayload:   job.Event.RawPayload,
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("event_id", job.Event.ID).Msg("failed to build outbound payload")
		return
	}

	for i := range endpoints {
		ep := &endpoints[i]
		if _, err := s.dispatcher.Deliver(ctx, ep, job.Event.ID, job.Event.Category, job.Record.ID, payload, 1); err != nil {
			s.log.Error().Err(err).Str("event_id", job.Event.ID).Str("endpoint_id", ep.ID).Msg("delivery attempt not recorded")
		}
	}
}

// OutboundEvent is the body POSTed to subscriber endpoints. The signature
// header covers these exact serialized bytes.
type OutboundEvent struct {
	Event     models.Category `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      OutboundData    `json:"data"`
}

type OutboundData struct {
	SubjectRecordID   string          `json:"subject_record_id"`
	SubjectName       string          `json:"subject_name"`
	Status            string          `json:"status"`
	Provider          string          `json:"provider"`
	ProviderEventType string          `json:"provider_event_type"`
	ProviderPayload   json.RawMessage `json:"provider_payload"`
}
