package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/auth"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/services"
)

// InvitationListResponse for GET /api/orgs/{oid}/invitations
type InvitationListResponse struct {
	Invitations []*models.Invitation `json:"invitations"`
	Total       int                  `json:"total"`
}

// InvitationHandler handles invitation management HTTP requests.
// Invitations are created only by the user import; this handler covers the
// org-admin list and revoke screens.
type InvitationHandler struct {
	invitationService services.InvitationService
	metrics           *metrics.Metrics
	logger            *zap.Logger
}

// NewInvitationHandler creates a new invitation handler.
func NewInvitationHandler(invitationService services.InvitationService, m *metrics.Metrics, logger *zap.Logger) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService, metrics: m, logger: logger}
}

// RegisterRoutes registers the invitation handler's routes on the given mux.
func (h *InvitationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantScope TenantMiddleware) {
	orgAdmin := authMiddleware.RequireAuthWithOrgPathValidation("oid")
	role := authMiddleware.RequireRole(models.RoleOrgAdmin, models.RolePlatformAdmin)

	mux.HandleFunc("GET /api/orgs/{oid}/invitations",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/invitations",
			orgAdmin(role(tenantScope(h.List)))))
	mux.HandleFunc("POST /api/orgs/{oid}/invitations/{id}/revoke",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/invitations/{id}/revoke",
			orgAdmin(role(tenantScope(h.Revoke)))))
}

// List handles GET /api/orgs/{oid}/invitations. "?status=pending" narrows
// the result to actionable invitations and sweeps past-due ones to expired.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}

	list := h.invitationService.ListByOrg
	if r.URL.Query().Get("status") == models.InvitationPending {
		list = h.invitationService.ListPendingByOrg
	}

	invitations, err := list(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to list invitations",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "list_invitations_failed", err)
		return
	}

	response := InvitationListResponse{Invitations: invitations, Total: len(invitations)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Revoke handles POST /api/orgs/{oid}/invitations/{id}/revoke
func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	invitationID, ok := ParseInvitationID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.invitationService.Revoke(r.Context(), orgID, invitationID); err != nil {
		h.logger.Error("Failed to revoke invitation",
			zap.String("org_id", orgID.String()),
			zap.String("invitation_id", invitationID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "revoke_invitation_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": "revoked"}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
