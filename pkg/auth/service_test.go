package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/models"
)

// stubJWKSClient returns canned claims per token string.
type stubJWKSClient struct {
	tokens map[string]*Claims
}

func (s *stubJWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	claims, ok := s.tokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("token validation failed")
	}
	return claims, nil
}

func (s *stubJWKSClient) Close() {}

func newStubAuthService(tokens map[string]*Claims) AuthService {
	return NewAuthService(&stubJWKSClient{tokens: tokens}, zap.NewNop())
}

func TestValidateRequest_BearerHeader(t *testing.T) {
	svc := newStubAuthService(map[string]*Claims{
		"good-token": {OrgID: "org-1", Role: models.RoleOrgMember},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	claims, token, err := svc.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, "good-token", token)
}

func TestValidateRequest_CookiePreferred(t *testing.T) {
	svc := newStubAuthService(map[string]*Claims{
		"cookie-token": {OrgID: "org-1"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_jwt", Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer other-token")

	_, token, err := svc.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", token)
}

func TestValidateRequest_MissingAuthorization(t *testing.T) {
	svc := newStubAuthService(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, err := svc.ValidateRequest(req)
	assert.ErrorIs(t, err, ErrMissingAuthorization)
}

func TestValidateRequest_BadHeaderFormat(t *testing.T) {
	svc := newStubAuthService(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	_, _, err := svc.ValidateRequest(req)
	assert.ErrorIs(t, err, ErrInvalidAuthFormat)
}

func TestRequireOrgID(t *testing.T) {
	svc := newStubAuthService(nil)

	assert.NoError(t, svc.RequireOrgID(&Claims{OrgID: "org-1"}))
	assert.ErrorIs(t, svc.RequireOrgID(&Claims{}), ErrMissingOrgID)
}

func TestValidateOrgIDMatch(t *testing.T) {
	svc := newStubAuthService(nil)

	member := &Claims{OrgID: "org-1", Role: models.RoleOrgMember}
	assert.NoError(t, svc.ValidateOrgIDMatch(member, "org-1"))
	assert.ErrorIs(t, svc.ValidateOrgIDMatch(member, "org-2"), ErrOrgIDMismatch)

	// Empty URL org skips the check
	assert.NoError(t, svc.ValidateOrgIDMatch(member, ""))

	// Platform admins may act on any organisation
	admin := &Claims{OrgID: "org-1", Role: models.RolePlatformAdmin}
	assert.NoError(t, svc.ValidateOrgIDMatch(admin, "org-2"))
}

func TestRequireRole(t *testing.T) {
	svc := newStubAuthService(nil)
	claims := &Claims{Role: models.RoleOrgAdmin}

	assert.NoError(t, svc.RequireRole(claims, models.RoleOrgAdmin))
	assert.NoError(t, svc.RequireRole(claims, models.RolePlatformAdmin, models.RoleOrgAdmin))
	assert.ErrorIs(t, svc.RequireRole(claims, models.RolePlatformAdmin), ErrInsufficientRole)
}
