package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/auth"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
	"github.com/mentora-hq/portal-engine/pkg/services"
)

// ImportLogListResponse for GET /api/orgs/{oid}/import-logs
type ImportLogListResponse struct {
	Logs  []*models.ImportLog `json:"logs"`
	Total int                 `json:"total"`
}

// ImportsHandler exposes the preview-then-commit pipeline over HTTP. All
// import endpoints take multipart/form-data with a single "file" part
// (.csv or .xlsx); preview and commit both carry the file because previews
// are never persisted.
type ImportsHandler struct {
	workflowImport     services.WorkflowImportService
	bookWorkflowImport services.BookWorkflowImportService
	userImport         services.UserImportService
	importLogRepo      repositories.ImportLogRepository
	metrics            *metrics.Metrics
	logger             *zap.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(
	workflowImport services.WorkflowImportService,
	bookWorkflowImport services.BookWorkflowImportService,
	userImport services.UserImportService,
	importLogRepo repositories.ImportLogRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ImportsHandler {
	return &ImportsHandler{
		workflowImport:     workflowImport,
		bookWorkflowImport: bookWorkflowImport,
		userImport:         userImport,
		importLogRepo:      importLogRepo,
		metrics:            m,
		logger:             logger,
	}
}

// RegisterRoutes registers the import routes. Platform imports (workflows,
// book workflows, cross-org user imports) require platform_admin and the
// admin database scope; the org-scoped user import runs under the caller's
// tenant scope with the org pinned from the path.
func (h *ImportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, adminScope, tenantScope TenantMiddleware) {
	admin := func(route string, fn http.HandlerFunc) {
		mux.HandleFunc("POST "+route,
			h.metrics.InstrumentHandler(route,
				authMiddleware.RequirePlatformAdmin(adminScope(fn))))
	}
	admin("/api/admin/imports/workflows/preview", h.PreviewWorkflows)
	admin("/api/admin/imports/workflows/commit", h.CommitWorkflows)
	admin("/api/admin/imports/book-workflows/preview", h.PreviewBookWorkflows)
	admin("/api/admin/imports/book-workflows/commit", h.CommitBookWorkflows)
	admin("/api/admin/imports/users/preview", h.PreviewUsersAdmin)
	admin("/api/admin/imports/users/commit", h.CommitUsersAdmin)

	mux.HandleFunc("GET /api/admin/import-logs",
		h.metrics.InstrumentHandler("/api/admin/import-logs",
			authMiddleware.RequirePlatformAdmin(adminScope(h.ListPlatformImportLogs))))

	orgAdmin := authMiddleware.RequireAuthWithOrgPathValidation("oid")
	role := authMiddleware.RequireRole(models.RoleOrgAdmin, models.RolePlatformAdmin)

	mux.HandleFunc("POST /api/orgs/{oid}/imports/users/preview",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/imports/users/preview",
			orgAdmin(role(tenantScope(h.PreviewUsersOrg)))))
	mux.HandleFunc("POST /api/orgs/{oid}/imports/users/commit",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/imports/users/commit",
			orgAdmin(role(tenantScope(h.CommitUsersOrg)))))
	mux.HandleFunc("GET /api/orgs/{oid}/import-logs",
		h.metrics.InstrumentHandler("/api/orgs/{oid}/import-logs",
			orgAdmin(role(tenantScope(h.ListImportLogs)))))
}

// maxUploadMemory bounds how much of a multipart body stays in memory;
// larger parts spill to temp files.
const maxUploadMemory = 8 << 20

// readUpload extracts the "file" part of a multipart upload.
func (h *ImportsHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_upload", "Expected multipart/form-data with a file part"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_file", "Missing 'file' part in upload"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "unreadable_file", "Failed to read uploaded file"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", nil, false
	}

	return header.Filename, data, true
}

// importedBy identifies the acting admin for the audit log.
func importedBy(r *http.Request) string {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.Subject
}

// PreviewWorkflows handles POST /api/admin/imports/workflows/preview
func (h *ImportsHandler) PreviewWorkflows(w http.ResponseWriter, r *http.Request) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	preview, err := h.workflowImport.Preview(r.Context(), fileName, data)
	if err != nil {
		h.logger.Error("Workflow import preview failed",
			zap.String("file", fileName),
			zap.Error(err))
		ServiceError(w, h.logger, "preview_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: preview}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CommitWorkflows handles POST /api/admin/imports/workflows/commit
func (h *ImportsHandler) CommitWorkflows(w http.ResponseWriter, r *http.Request) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.workflowImport.Commit(r.Context(), fileName, data, importedBy(r))
	if err != nil {
		h.logger.Error("Workflow import commit failed",
			zap.String("file", fileName),
			zap.Error(err))
		ServiceError(w, h.logger, "commit_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PreviewBookWorkflows handles POST /api/admin/imports/book-workflows/preview
func (h *ImportsHandler) PreviewBookWorkflows(w http.ResponseWriter, r *http.Request) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	preview, err := h.bookWorkflowImport.Preview(r.Context(), fileName, data)
	if err != nil {
		h.logger.Error("Book-workflow import preview failed",
			zap.String("file", fileName),
			zap.Error(err))
		ServiceError(w, h.logger, "preview_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: preview}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CommitBookWorkflows handles POST /api/admin/imports/book-workflows/commit
func (h *ImportsHandler) CommitBookWorkflows(w http.ResponseWriter, r *http.Request) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.bookWorkflowImport.Commit(r.Context(), fileName, data, importedBy(r))
	if err != nil {
		h.logger.Error("Book-workflow import commit failed",
			zap.String("file", fileName),
			zap.Error(err))
		ServiceError(w, h.logger, "commit_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PreviewUsersAdmin handles POST /api/admin/imports/users/preview.
// Unknown organisations are reported as to-create, not as errors.
func (h *ImportsHandler) PreviewUsersAdmin(w http.ResponseWriter, r *http.Request) {
	h.previewUsers(w, r, services.UserImportInput{AllowOrgCreate: true})
}

// CommitUsersAdmin handles POST /api/admin/imports/users/commit
func (h *ImportsHandler) CommitUsersAdmin(w http.ResponseWriter, r *http.Request) {
	h.commitUsers(w, r, services.UserImportInput{AllowOrgCreate: true})
}

// PreviewUsersOrg handles POST /api/orgs/{oid}/imports/users/preview.
// Rows must reference the caller's own organisation.
func (h *ImportsHandler) PreviewUsersOrg(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	h.previewUsers(w, r, services.UserImportInput{OrgID: &orgID})
}

// CommitUsersOrg handles POST /api/orgs/{oid}/imports/users/commit
func (h *ImportsHandler) CommitUsersOrg(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}
	h.commitUsers(w, r, services.UserImportInput{OrgID: &orgID})
}

func (h *ImportsHandler) previewUsers(w http.ResponseWriter, r *http.Request, in services.UserImportInput) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	in.FileName = fileName
	in.Data = data

	preview, err := h.userImport.Preview(r.Context(), in)
	if err != nil {
		h.logger.Error("User import preview failed",
			zap.String("file", fileName),
			zap.Error(err))
		ServiceError(w, h.logger, "preview_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: preview}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ImportsHandler) commitUsers(w http.ResponseWriter, r *http.Request, in services.UserImportInput) {
	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	in.FileName = fileName
	in.Data = data
	in.ImportedBy = importedBy(r)

	result, err := h.userImport.Commit(r.Context(), in)
	if err != nil {
		h.logger.Error("User import commit failed",
			zap.String("file", fileName),
			zap.Error(err))
		ServiceError(w, h.logger, "commit_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListImportLogs handles GET /api/orgs/{oid}/import-logs
func (h *ImportsHandler) ListImportLogs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := ParseOrgID(w, r, h.logger)
	if !ok {
		return
	}

	logs, err := h.importLogRepo.ListByOrg(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to list import logs",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		ServiceError(w, h.logger, "list_import_logs_failed", err)
		return
	}

	response := ImportLogListResponse{Logs: logs, Total: len(logs)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListPlatformImportLogs handles GET /api/admin/import-logs. Only logs with
// no organisation (workflow, book-workflow and cross-org user imports) are
// returned.
func (h *ImportsHandler) ListPlatformImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.importLogRepo.ListPlatform(r.Context())
	if err != nil {
		h.logger.Error("Failed to list platform import logs", zap.Error(err))
		ServiceError(w, h.logger, "list_import_logs_failed", err)
		return
	}

	response := ImportLogListResponse{Logs: logs, Total: len(logs)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
