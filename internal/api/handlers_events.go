package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/storage"
)

type EventHandler struct {
	store storage.Storage
}

func NewEventHandler(store storage.Storage) *EventHandler {
	return &EventHandler{store: store}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	providerName := r.URL.Query().Get("provider")

	events, err := h.store.ListInboundEvents(r.Context(), providerName, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []models.InboundEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	evt, err := h.store.GetInboundEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if evt == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	attempts, err := h.store.ListAttemptsByEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get attempts")
		return
	}
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":    evt,
		"attempts": attempts,
	})
}
