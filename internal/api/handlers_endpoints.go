package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/storage"
)

type EndpointHandler struct {
	store storage.Storage
}

func NewEndpointHandler(store storage.Storage) *EndpointHandler {
	return &EndpointHandler{store: store}
}

type createEndpointRequest struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

func validCategories(categories []string) bool {
	for _, c := range categories {
		if c == models.CategoryAll {
			continue
		}
		if !models.Category(c).Valid() {
			return false
		}
	}
	return true
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be a valid HTTP or HTTPS URL")
		return
	}
	if !validCategories(req.Categories) {
		writeError(w, http.StatusBadRequest, "categories must be known categories or \"all\"")
		return
	}

	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:          models.NewID("ep"),
		TenantID:    tenant.ID,
		URL:         req.URL,
		Description: req.Description,
		Secret:      models.NewSecret(),
		Categories:  req.Categories,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ep.Categories == nil {
		ep.Categories = []string{}
	}

	if err := h.store.CreateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	ep := h.ownedEndpoint(w, r)
	if ep == nil {
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eps, err := h.store.ListEndpoints(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}
	if eps == nil {
		eps = []models.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

type updateEndpointRequest struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	ep := h.ownedEndpoint(w, r)
	if ep == nil {
		return
	}

	var req updateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != "" {
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			writeError(w, http.StatusBadRequest, "url must be a valid HTTP or HTTPS URL")
			return
		}
		ep.URL = req.URL
	}
	ep.Description = req.Description
	if req.Categories != nil {
		if !validCategories(req.Categories) {
			writeError(w, http.StatusBadRequest, "categories must be known categories or \"all\"")
			return
		}
		ep.Categories = req.Categories
	}

	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ep := h.ownedEndpoint(w, r)
	if ep == nil {
		return
	}

	if err := h.store.DeleteEndpoint(r.Context(), ep.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Toggle flips enabled on or off. Re-enabling an auto-disabled endpoint is a
// deliberate management action; it clears the failure streak. The change
// takes effect on the next scheduled attempt, not retroactively.
func (h *EndpointHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ep := h.ownedEndpoint(w, r)
	if ep == nil {
		return
	}

	newEnabled := !ep.Enabled
	if err := h.store.SetEndpointEnabled(r.Context(), ep.ID, newEnabled); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle endpoint")
		return
	}

	ep.Enabled = newEnabled
	if newEnabled {
		ep.ConsecutiveFailures = 0
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	ep := h.ownedEndpoint(w, r)
	if ep == nil {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	attempts, err := h.store.ListAttemptsByEndpoint(r.Context(), ep.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *EndpointHandler) ownedEndpoint(w http.ResponseWriter, r *http.Request) *models.Endpoint {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id := chi.URLParam(r, "id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return nil
	}
	if ep == nil || ep.TenantID != tenant.ID {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return nil
	}
	return ep
}
