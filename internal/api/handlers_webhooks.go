package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizwatch/bizrelay/internal/provider"
	"github.com/bizwatch/bizrelay/internal/relay"
)

const maxWebhookBody = 1 * 1024 * 1024 // 1MB

type WebhookHandler struct {
	service *relay.Service
}

func NewWebhookHandler(service *relay.Service) *WebhookHandler {
	return &WebhookHandler{service: service}
}

type webhookResponse struct {
	Success        bool   `json:"success"`
	WebhookEventID string `json:"webhook_event_id,omitempty"`
	Processed      bool   `json:"processed"`
}

// Receive handles POST /webhooks/{provider}. The body is read raw and passed
// through unmodified; signature verification depends on the exact bytes on
// the wire. A 200 means the event was at least stored, including "stored but
// not actionable" outcomes.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := h.service.Ingest(r.Context(), providerName, r.Header, rawBody)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, webhookResponse{
			Success:        true,
			WebhookEventID: result.EventID,
			Processed:      result.Processed,
		})
	case errors.Is(err, provider.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unknown provider: "+providerName)
	case errors.Is(err, provider.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, webhookResponse{
			Success:        false,
			WebhookEventID: result.EventID,
			Processed:      false,
		})
	default:
		writeError(w, http.StatusInternalServerError, "failed to process webhook")
	}
}
