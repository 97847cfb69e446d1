package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/storage"
)

type TenantHandler struct {
	store storage.Storage
}

func NewTenantHandler(store storage.Storage) *TenantHandler {
	return &TenantHandler{store: store}
}

type createTenantRequest struct {
	Name string `json:"name"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:        models.NewID("tn"),
		Name:      req.Name,
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateTenant(r.Context(), tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	tenant.APIKey = "" // don't expose
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	for i := range tenants {
		tenants[i].APIKey = "" // don't expose
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	if err := h.store.DeleteTenant(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete tenant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TenantHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	newKey := models.NewAPIKey()
	if err := h.store.UpdateTenantAPIKey(r.Context(), id, newKey); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"api_key": newKey})
}
