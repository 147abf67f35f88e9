package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/auth"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
	"github.com/mentora-hq/portal-engine/pkg/services"
)

// UpdateProgressRequest for PUT /api/orgs/{oid}/courses/{cid}/progress
type UpdateProgressRequest struct {
	LessonsCompleted int `json:"lessons_completed"`
}

// ProgressResponse wraps stored progress with the derived percentage.
type ProgressResponse struct {
	*models.CourseProgress
	Percent float64 `json:"percent"`
}

// ProgressHandler handles course progress for the signed-in member.
type ProgressHandler struct {
	progressService services.ProgressService
	userRepo        repositories.UserRepository
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(
	progressService services.ProgressService,
	userRepo repositories.UserRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		userRepo:        userRepo,
		metrics:         m,
		logger:          logger,
	}
}

// RegisterRoutes registers the progress handler's routes on the given mux.
// Any member of the organisation may read and write their own progress.
func (h *ProgressHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantScope TenantMiddleware) {
	orgMember := authMiddleware.RequireAuthWithOrgPathValidation("oid")

	mux.HandleFunc("GET /api/orgs/{oid}/courses/{cid}/progress",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/courses/{cid}/progress",
			orgMember(tenantScope(h.Get))))
	mux.HandleFunc("PUT /api/orgs/{oid}/courses/{cid}/progress",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/courses/{cid}/progress",
			orgMember(tenantScope(h.Update))))
}

// currentUserID resolves the caller's local user row from the token's
// subject (the provider-side user ID).
func (h *ProgressHandler) currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok || claims.Subject == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}

	user, err := h.userRepo.GetByExternalID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Token is valid but the webhook mirror has not landed yet.
			if err := ErrorResponse(w, http.StatusNotFound, "user_not_mirrored", "User record not yet available"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return uuid.Nil, false
		}
		h.logger.Error("Failed to resolve current user", zap.Error(err))
		ServiceError(w, h.logger, "resolve_user_failed", err)
		return uuid.Nil, false
	}

	return user.ID, true
}

// Get handles GET /api/orgs/{oid}/courses/{cid}/progress
func (h *ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	courseID, ok := ParseCourseID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	progress, err := h.progressService.Get(r.Context(), orgID, userID, courseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// No progress yet is not an error for the viewer.
			empty := &models.CourseProgress{OrgID: orgID, UserID: userID, CourseID: courseID}
			if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: ProgressResponse{CourseProgress: empty}}); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get progress",
			zap.String("course_id", courseID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "get_progress_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: ProgressResponse{CourseProgress: progress, Percent: progress.Percent()}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/orgs/{oid}/courses/{cid}/progress
func (h *ProgressHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	courseID, ok := ParseCourseID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	var req UpdateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	progress, err := h.progressService.Update(r.Context(), orgID, userID, courseID, req.LessonsCompleted)
	if err != nil {
		h.logger.Error("Failed to update progress",
			zap.String("course_id", courseID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "update_progress_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: ProgressResponse{CourseProgress: progress, Percent: progress.Percent()}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
