package api

import (
	"net/http"

	"github.com/bizwatch/bizrelay/internal/storage"
)

type StatsHandler struct {
	store storage.Storage
}

func NewStatsHandler(store storage.Storage) *StatsHandler {
	return &StatsHandler{store: store}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "bizrelay",
	})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.store.GetStats(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
