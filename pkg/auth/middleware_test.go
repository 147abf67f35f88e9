package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/models"
)

func newTestMiddleware(tokens map[string]*Claims) *Middleware {
	return NewMiddleware(newStubAuthService(tokens), zap.NewNop())
}

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestRequireAuth(t *testing.T) {
	m := newTestMiddleware(map[string]*Claims{
		"member-token": {OrgID: "org-1", Role: models.RoleOrgMember},
	})

	var called bool
	var gotClaims *Claims
	handler := m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotClaims, _ = GetClaims(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer member-token")
	handler(httptest.NewRecorder(), req)

	require.True(t, called)
	require.NotNil(t, gotClaims)
	assert.Equal(t, "org-1", gotClaims.OrgID)
}

func TestRequireAuth_Unauthenticated(t *testing.T) {
	m := newTestMiddleware(nil)

	var called bool
	rec := httptest.NewRecorder()
	m.RequireAuth(okHandler(&called))(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_MissingOrgID(t *testing.T) {
	m := newTestMiddleware(map[string]*Claims{
		"no-org-token": {Role: models.RoleOrgMember},
	})

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer no-org-token")
	m.RequireAuth(okHandler(&called))(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireAuthWithOrgPathValidation(t *testing.T) {
	m := newTestMiddleware(map[string]*Claims{
		"member-token": {OrgID: "org-1", Role: models.RoleOrgMember},
		"admin-token":  {OrgID: "org-9", Role: models.RolePlatformAdmin},
	})
	wrap := m.RequireAuthWithOrgPathValidation("oid")

	cases := []struct {
		name    string
		token   string
		pathOrg string
		status  int
	}{
		{"own org", "member-token", "org-1", http.StatusOK},
		{"foreign org", "member-token", "org-2", http.StatusForbidden},
		{"platform admin crosses orgs", "admin-token", "org-2", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var called bool
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			req.SetPathValue("oid", tc.pathOrg)

			wrap(okHandler(&called))(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.status == http.StatusOK, called)
		})
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	m := newTestMiddleware(map[string]*Claims{
		"member-token": {OrgID: "org-1", Role: models.RoleOrgMember},
	})

	var called bool
	handler := m.RequireAuth(m.RequireRole(models.RoleOrgAdmin, models.RolePlatformAdmin)(okHandler(&called)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer member-token")
	handler(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePlatformAdmin(t *testing.T) {
	m := newTestMiddleware(map[string]*Claims{
		"admin-token":  {Role: models.RolePlatformAdmin},
		"member-token": {OrgID: "org-1", Role: models.RoleOrgMember},
	})

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	m.RequirePlatformAdmin(okHandler(&called))(rec, req)

	// Platform-admin tokens need no organisation claim
	assert.True(t, called)

	called = false
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer member-token")
	m.RequirePlatformAdmin(okHandler(&called))(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
