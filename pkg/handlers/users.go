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

// UserListResponse for GET /api/orgs/{oid}/users
type UserListResponse struct {
	Users []*models.PortalUser `json:"users"`
	Total int                  `json:"total"`
}

// UpdateRoleRequest for PUT /api/orgs/{oid}/users/{uid}/role
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// ReconcileResponse for POST /api/admin/reconcile/roles
type ReconcileResponse struct {
	Mismatches []services.RoleMismatch `json:"mismatches"`
	Total      int                     `json:"total"`
}

// UserHandler handles user management HTTP requests.
type UserHandler struct {
	userService services.UserService
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(userService services.UserService, m *metrics.Metrics, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, metrics: m, logger: logger}
}

// RegisterRoutes registers the user handler's routes on the given mux.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, adminScope, tenantScope TenantMiddleware) {
	orgAdmin := authMiddleware.RequireAuthWithOrgPathValidation("oid")
	role := authMiddleware.RequireRole(models.RoleOrgAdmin, models.RolePlatformAdmin)

	mux.HandleFunc("GET /api/orgs/{oid}/users",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/users",
			orgAdmin(role(tenantScope(h.List)))))
	mux.HandleFunc("PUT /api/orgs/{oid}/users/{uid}/role",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/users/{uid}/role",
			orgAdmin(role(tenantScope(h.UpdateRole)))))
	mux.HandleFunc("DELETE /api/orgs/{oid}/users/{uid}",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/users/{uid}",
			orgAdmin(role(tenantScope(h.Remove)))))

	mux.HandleFunc("POST /api/admin/reconcile/roles",
		h.metrics.InstrumentHandler("/api/admin/reconcile/roles",
			authMiddleware.RequirePlatformAdmin(adminScope(h.ReconcileRoles))))
}

// List handles GET /api/orgs/{oid}/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}

	users, err := h.userService.ListByOrg(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to list users",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "list_users_failed", err)
		return
	}

	response := UserListResponse{Users: users, Total: len(users)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateRole handles PUT /api/orgs/{oid}/users/{uid}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.userService.UpdateRole(r.Context(), orgID, userID, req.Role); err != nil {
		h.logger.Error("Failed to update user role",
			zap.String("org_id", orgID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "update_role_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": "updated"}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Remove handles DELETE /api/orgs/{oid}/users/{uid}
func (h *UserHandler) Remove(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.userService.Remove(r.Context(), orgID, userID); err != nil {
		h.logger.Error("Failed to remove user",
			zap.String("org_id", orgID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "remove_user_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": "removed"}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ReconcileRoles handles POST /api/admin/reconcile/roles.
// Reports local/provider role drift; never mutates either side.
func (h *UserHandler) ReconcileRoles(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.userService.ReconcileRoles(r.Context())
	if err != nil {
		h.logger.Error("Role reconciliation failed", zap.Error(err))
		ServiceError(w, h.logger, "reconcile_failed", err)
		return
	}

	response := ReconcileResponse{Mismatches: mismatches, Total: len(mismatches)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
