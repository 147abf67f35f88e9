package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, ErrorResponse(rec, http.StatusForbidden, "forbidden", "Not allowed"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, "Not allowed", body["message"])
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteJSON(rec, http.StatusCreated, ApiResponse{Success: true, Message: "created"}))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "created", resp.Message)
}

func TestServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperrors.ErrNotFound, http.StatusNotFound},
		{apperrors.ErrConflict, http.StatusConflict},
		{apperrors.ErrLastAdmin, http.StatusConflict},
		{apperrors.ErrForbidden, http.StatusForbidden},
		{apperrors.ErrInvalidRole, http.StatusBadRequest},
		{apperrors.ErrImportInvalid, http.StatusBadRequest},
		{apperrors.ErrUnsupportedFile, http.StatusBadRequest},
		{apperrors.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{apperrors.ErrProviderUnavailable, http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			ServiceError(rec, zap.NewNop(), "test_error", tc.err)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestServiceError_WrappedErrorsKeepMapping(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := fmt.Errorf("%w: 3 rows failed validation", apperrors.ErrImportInvalid)

	ServiceError(rec, zap.NewNop(), "import_invalid", wrapped)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "import_invalid", body["error"])
	assert.Contains(t, body["message"], "3 rows failed validation")
}
