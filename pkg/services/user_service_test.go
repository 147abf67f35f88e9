package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

type userServiceFixture struct {
	svc      UserService
	userRepo *mockUserRepository
	orgRepo  *mockOrganisationRepository
	provider *mockIdentityClient
}

func newUserServiceFixture() *userServiceFixture {
	f := &userServiceFixture{
		userRepo: &mockUserRepository{},
		orgRepo:  &mockOrganisationRepository{},
		provider: &mockIdentityClient{},
	}
	f.svc = NewUserService(f.userRepo, f.orgRepo, f.provider, metrics.New(), zap.NewNop())
	return f
}

func (f *userServiceFixture) addUser(orgID uuid.UUID, email, role string) *models.PortalUser {
	user := &models.PortalUser{
		ID:         uuid.New(),
		ExternalID: "ext_" + email,
		OrgID:      orgID,
		Email:      email,
		Role:       role,
	}
	f.userRepo.users = append(f.userRepo.users, user)
	return user
}

func TestUpdateRole_DualWrite(t *testing.T) {
	f := newUserServiceFixture()
	orgID := uuid.New()
	user := f.addUser(orgID, "alice@example.com", models.RoleOrgMember)

	err := f.svc.UpdateRole(context.Background(), orgID, user.ID, models.RoleOrgAdmin)
	require.NoError(t, err)

	assert.Equal(t, models.RoleOrgAdmin, user.Role)
	assert.Equal(t, models.RoleOrgAdmin, f.provider.updatedRoles[user.ExternalID])
}

func TestUpdateRole_InvalidRole(t *testing.T) {
	f := newUserServiceFixture()

	err := f.svc.UpdateRole(context.Background(), uuid.New(), uuid.New(), "superuser")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRole)

	// platform_admin cannot be assigned through this path either
	err = f.svc.UpdateRole(context.Background(), uuid.New(), uuid.New(), models.RolePlatformAdmin)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRole)
}

func TestUpdateRole_LastAdminGuard(t *testing.T) {
	f := newUserServiceFixture()
	orgID := uuid.New()
	user := f.addUser(orgID, "alice@example.com", models.RoleOrgAdmin)
	f.userRepo.updateErr = apperrors.ErrLastAdmin

	err := f.svc.UpdateRole(context.Background(), orgID, user.ID, models.RoleOrgMember)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLastAdmin)

	// Provider never touched when the local write is refused
	assert.Empty(t, f.provider.updatedRoles)
}

func TestUpdateRole_ProviderFailureKeepsLocalWrite(t *testing.T) {
	f := newUserServiceFixture()
	orgID := uuid.New()
	user := f.addUser(orgID, "alice@example.com", models.RoleOrgMember)
	f.provider.updateRoleErr = assert.AnError

	err := f.svc.UpdateRole(context.Background(), orgID, user.ID, models.RoleOrgAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)

	// The database write stands; reconciliation reports the drift
	assert.Equal(t, models.RoleOrgAdmin, user.Role)
}

func TestUpdateRole_UnknownUser(t *testing.T) {
	f := newUserServiceFixture()

	err := f.svc.UpdateRole(context.Background(), uuid.New(), uuid.New(), models.RoleOrgMember)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReconcileRoles(t *testing.T) {
	f := newUserServiceFixture()
	org := &models.Organisation{ID: uuid.New(), Name: "Acme", Slug: "acme"}
	f.orgRepo.orgs = []*models.Organisation{org}

	inSync := f.addUser(org.ID, "alice@example.com", models.RoleOrgAdmin)
	drifted := f.addUser(org.ID, "bob@example.com", models.RoleOrgMember)
	unreachable := f.addUser(org.ID, "carol@example.com", models.RoleOrgMember)

	f.provider.roles = map[string]string{
		inSync.ExternalID:  models.RoleOrgAdmin,
		drifted.ExternalID: models.RoleOrgAdmin,
	}
	f.provider.roleErrFor = unreachable.ExternalID

	mismatches, err := f.svc.ReconcileRoles(context.Background())
	require.NoError(t, err)

	// The unreachable user is skipped, not reported and not fatal
	require.Len(t, mismatches, 1)
	assert.Equal(t, drifted.ID, mismatches[0].UserID)
	assert.Equal(t, "bob@example.com", mismatches[0].Email)
	assert.Equal(t, models.RoleOrgMember, mismatches[0].LocalRole)
	assert.Equal(t, models.RoleOrgAdmin, mismatches[0].ProviderRole)
}

func TestReconcileRoles_NoDriftReturnsEmptySlice(t *testing.T) {
	f := newUserServiceFixture()

	mismatches, err := f.svc.ReconcileRoles(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, mismatches)
	assert.Empty(t, mismatches)
}

func TestRemove(t *testing.T) {
	f := newUserServiceFixture()
	orgID := uuid.New()
	user := f.addUser(orgID, "alice@example.com", models.RoleOrgMember)

	require.NoError(t, f.svc.Remove(context.Background(), orgID, user.ID))
	assert.Equal(t, []uuid.UUID{user.ID}, f.userRepo.removed)
}

func TestRemove_UnknownUser(t *testing.T) {
	f := newUserServiceFixture()

	err := f.svc.Remove(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPlatformAdminsNotManageableViaOrg(t *testing.T) {
	f := newUserServiceFixture()
	orgID := uuid.New()
	admin := f.addUser(orgID, "root@example.com", models.RolePlatformAdmin)

	err := f.svc.UpdateRole(context.Background(), orgID, admin.ID, models.RoleOrgMember)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	err = f.svc.Remove(context.Background(), orgID, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Empty(t, f.userRepo.removed)
}
