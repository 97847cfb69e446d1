package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/relay"
	"github.com/bizwatch/bizrelay/internal/storage"
)

// RecordHandler manages the monitored records that inbound subject
// references resolve to. monitor is the upstream provider's synchronous API;
// nil when no provider API is configured, in which case records are managed
// locally without provider-side monitoring.
type RecordHandler struct {
	store   storage.Storage
	monitor relay.SubjectMonitor
	log     zerolog.Logger
}

func NewRecordHandler(store storage.Storage, monitor relay.SubjectMonitor, log zerolog.Logger) *RecordHandler {
	return &RecordHandler{store: store, monitor: monitor, log: log}
}

type createRecordRequest struct {
	ExternalRef string `json:"external_ref"`
	Name        string `json:"name"`
	Monitor     bool   `json:"monitor"`
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExternalRef == "" {
		writeError(w, http.StatusBadRequest, "external_ref is required")
		return
	}

	now := time.Now().UTC()
	rec := &models.MonitoredRecord{
		ID:          models.NewID("rec"),
		TenantID:    tenant.ID,
		ExternalRef: req.ExternalRef,
		Name:        req.Name,
		Status:      models.RecordStatusActive,
		Monitored:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Monitor && h.monitor != nil {
		if err := h.monitor.StartMonitoring(r.Context(), rec.ExternalRef); err != nil {
			h.log.Warn().Err(err).Str("external_ref", rec.ExternalRef).Msg("failed to start provider monitoring")
		} else {
			rec.Monitored = true
		}
	}

	if err := h.store.CreateRecord(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec := h.ownedRecord(w, r)
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	recs, err := h.store.ListRecords(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if recs == nil {
		recs = []models.MonitoredRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type updateRecordRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	rec := h.ownedRecord(w, r)
	if rec == nil {
		return
	}

	var req updateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		rec.Name = req.Name
	}
	if req.Status != "" {
		rec.Status = req.Status
	}

	if err := h.store.UpdateRecord(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec := h.ownedRecord(w, r)
	if rec == nil {
		return
	}

	if rec.Monitored && h.monitor != nil {
		if err := h.monitor.StopMonitoring(r.Context(), rec.ExternalRef); err != nil {
			h.log.Warn().Err(err).Str("external_ref", rec.ExternalRef).Msg("failed to stop provider monitoring")
		}
	}

	if err := h.store.DeleteRecord(r.Context(), rec.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Check runs a synchronous subject check against the upstream provider.
func (h *RecordHandler) Check(w http.ResponseWriter, r *http.Request) {
	rec := h.ownedRecord(w, r)
	if rec == nil {
		return
	}
	if h.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "provider api not configured")
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"external_ref": rec.ExternalRef,
		"name":         rec.Name,
	})
	result, err := h.monitor.CheckSubject(r.Context(), payload)
	if err != nil {
		h.log.Warn().Err(err).Str("record_id", rec.ID).Msg("subject check failed")
		writeError(w, http.StatusBadGateway, "subject check failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RecordHandler) ownedRecord(w http.ResponseWriter, r *http.Request) *models.MonitoredRecord {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id := chi.URLParam(r, "id")
	rec, err := h.store.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get record")
		return nil
	}
	if rec == nil || rec.TenantID != tenant.ID {
		writeError(w, http.StatusNotFound, "record not found")
		return nil
	}
	return rec
}
