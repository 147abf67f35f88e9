package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/auth"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/services"
)

// CreateOrganisationRequest for POST /api/admin/organisations
type CreateOrganisationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// OrganisationListResponse for GET /api/admin/organisations
type OrganisationListResponse struct {
	Organisations []*models.Organisation `json:"organisations"`
	Total         int                    `json:"total"`
}

// SlugAvailabilityResponse for GET /api/validation/org-slug
type SlugAvailabilityResponse struct {
	Available bool `json:"available"`
}

// OrganisationHandler handles tenant management HTTP requests.
type OrganisationHandler struct {
	orgService services.OrganisationService
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewOrganisationHandler creates a new organisation handler.
func NewOrganisationHandler(orgService services.OrganisationService, m *metrics.Metrics, logger *zap.Logger) *OrganisationHandler {
	return &OrganisationHandler{orgService: orgService, metrics: m, logger: logger}
}

// RegisterRoutes registers the organisation handler's routes on the given
// mux. Admin routes run under the platform-admin auth gate and the
// non-tenant database scope; the slug check is unauthenticated because the
// signup form calls it before any session exists.
func (h *OrganisationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, adminScope TenantMiddleware) {
	mux.HandleFunc("POST /api/admin/organisations",
		h.metrics.InstrumentHandler("/api/admin/organisations",
			authMiddleware.RequirePlatformAdmin(adminScope(h.Create))))
	mux.HandleFunc("GET /api/admin/organisations",
		h.metrics.InstrumentHandler("/api/admin/organisations",
			authMiddleware.RequirePlatformAdmin(adminScope(h.List))))
	mux.HandleFunc("GET /api/validation/org-slug",
		h.metrics.InstrumentHandler("/api/validation/org-slug",
			adminScope(h.SlugAvailable)))
}

// Create handles POST /api/admin/organisations
func (h *OrganisationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganisationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	org, err := h.orgService.Create(r.Context(), req.Name, req.Slug)
	if err != nil {
		h.logger.Error("Failed to create organisation",
			zap.String("name", req.Name),
			zap.Error(err))
		ServiceError(w, h.logger, "create_organisation_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: org}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/admin/organisations
func (h *OrganisationHandler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list organisations", zap.Error(err))
		ServiceError(w, h.logger, "list_organisations_failed", err)
		return
	}

	response := OrganisationListResponse{Organisations: orgs, Total: len(orgs)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SlugAvailable handles GET /api/validation/org-slug?value=acme
func (h *OrganisationHandler) SlugAvailable(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")
	if value == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_value", "Query parameter 'value' is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	available, err := h.orgService.SlugAvailable(r.Context(), value)
	if err != nil {
		h.logger.Error("Failed to check slug availability", zap.Error(err))
		ServiceError(w, h.logger, "slug_check_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, SlugAvailabilityResponse{Available: available}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
