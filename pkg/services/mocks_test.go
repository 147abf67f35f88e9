package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// mockTaxonomyRepository is an in-memory TaxonomyRepository. Setting one of
// the fail* fields makes the matching create call return that error.
type mockTaxonomyRepository struct {
	categories     []*models.Category
	departments    []*models.Department
	bookCategories []*models.BookCategory
	books          []*models.Book

	deleted []uuid.UUID

	failCreateCategory     error
	failCreateDepartment   error
	failCreateBookCategory error
	failCreateBook         error
}

func (m *mockTaxonomyRepository) ListCategories(ctx context.Context) ([]*models.Category, error) {
	return m.categories, nil
}

func (m *mockTaxonomyRepository) CreateCategory(ctx context.Context, c *models.Category) error {
	if m.failCreateCategory != nil {
		return m.failCreateCategory
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.categories = append(m.categories, c)
	return nil
}

func (m *mockTaxonomyRepository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTaxonomyRepository) ListDepartments(ctx context.Context) ([]*models.Department, error) {
	return m.departments, nil
}

func (m *mockTaxonomyRepository) CreateDepartment(ctx context.Context, d *models.Department) error {
	if m.failCreateDepartment != nil {
		return m.failCreateDepartment
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.departments = append(m.departments, d)
	return nil
}

func (m *mockTaxonomyRepository) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTaxonomyRepository) ListBookCategories(ctx context.Context) ([]*models.BookCategory, error) {
	return m.bookCategories, nil
}

func (m *mockTaxonomyRepository) CreateBookCategory(ctx context.Context, c *models.BookCategory) error {
	if m.failCreateBookCategory != nil {
		return m.failCreateBookCategory
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.bookCategories = append(m.bookCategories, c)
	return nil
}

func (m *mockTaxonomyRepository) DeleteBookCategory(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTaxonomyRepository) ListBooks(ctx context.Context) ([]*models.Book, error) {
	return m.books, nil
}

func (m *mockTaxonomyRepository) CreateBook(ctx context.Context, b *models.Book) error {
	if m.failCreateBook != nil {
		return m.failCreateBook
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.books = append(m.books, b)
	return nil
}

func (m *mockTaxonomyRepository) DeleteBook(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// mockWorkflowRepository records created workflows. failOnName makes the
// create fail when the workflow has that name, to exercise compensation.
type mockWorkflowRepository struct {
	workflows     []*models.Workflow
	bookWorkflows []*models.BookWorkflow
	deleted       []uuid.UUID
	failOnName    string
}

func (m *mockWorkflowRepository) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	if m.failOnName != "" && w.Name == m.failOnName {
		return fmt.Errorf("insert failed")
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	m.workflows = append(m.workflows, w)
	return nil
}

func (m *mockWorkflowRepository) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockWorkflowRepository) CreateBookWorkflow(ctx context.Context, w *models.BookWorkflow) error {
	if m.failOnName != "" && w.Name == m.failOnName {
		return fmt.Errorf("insert failed")
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	m.bookWorkflows = append(m.bookWorkflows, w)
	return nil
}

func (m *mockWorkflowRepository) DeleteBookWorkflow(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// mockImportLogRepository captures import logs.
type mockImportLogRepository struct {
	logs []*models.ImportLog
}

func (m *mockImportLogRepository) Create(ctx context.Context, log *models.ImportLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockImportLogRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.ImportLog, error) {
	var result []*models.ImportLog
	for _, l := range m.logs {
		if l.OrgID != nil && *l.OrgID == orgID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *mockImportLogRepository) ListPlatform(ctx context.Context) ([]*models.ImportLog, error) {
	var result []*models.ImportLog
	for _, l := range m.logs {
		if l.OrgID == nil {
			result = append(result, l)
		}
	}
	return result, nil
}

// mockOrganisationRepository is an in-memory OrganisationRepository.
type mockOrganisationRepository struct {
	orgs       []*models.Organisation
	deleted    []uuid.UUID
	failCreate error
}

func (m *mockOrganisationRepository) Create(ctx context.Context, org *models.Organisation) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	m.orgs = append(m.orgs, org)
	return nil
}

func (m *mockOrganisationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organisation, error) {
	for _, o := range m.orgs {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockOrganisationRepository) List(ctx context.Context) ([]*models.Organisation, error) {
	return m.orgs, nil
}

func (m *mockOrganisationRepository) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	for _, o := range m.orgs {
		if o.Slug == slug {
			return false, nil
		}
	}
	return true, nil
}

func (m *mockOrganisationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// mockCourseRepository serves a fixed set of courses.
type mockCourseRepository struct {
	courses []*models.Course
}

func (m *mockCourseRepository) GetByID(ctx context.Context, orgID, courseID uuid.UUID) (*models.Course, error) {
	for _, c := range m.courses {
		if c.OrgID == orgID && c.ID == courseID {
			return c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCourseRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Course, error) {
	var result []*models.Course
	for _, c := range m.courses {
		if c.OrgID == orgID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockCourseRepository) ListPublishedByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Course, error) {
	var result []*models.Course
	for _, c := range m.courses {
		if c.OrgID == orgID && c.Published {
			result = append(result, c)
		}
	}
	return result, nil
}

// mockInvitationRepository is safe for the import fan-out's concurrent use.
// failCreateFor makes Create fail for one email, simulating a local write
// failure after the provider call succeeded.
type mockInvitationRepository struct {
	mu            sync.Mutex
	invitations   []*models.Invitation
	deleted       []uuid.UUID
	failCreateFor string
}

func (m *mockInvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateFor != "" && strings.EqualFold(inv.Email, m.failCreateFor) {
		return fmt.Errorf("insert failed")
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = models.InvitationPending
	}
	m.invitations = append(m.invitations, inv)
	return nil
}

func (m *mockInvitationRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.OrgID == orgID && inv.ID == id {
			return inv, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockInvitationRepository) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.OrgID == orgID && strings.EqualFold(inv.Email, email) {
			return inv, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockInvitationRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Invitation
	for _, inv := range m.invitations {
		if inv.OrgID == orgID {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (m *mockInvitationRepository) ListPendingByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Invitation
	for _, inv := range m.invitations {
		if inv.OrgID != orgID || inv.Status != models.InvitationPending {
			continue
		}
		if !inv.ExpiresAt.IsZero() && inv.ExpiresAt.Before(time.Now()) {
			inv.Status = models.InvitationExpired
			continue
		}
		result = append(result, inv)
	}
	return result, nil
}

func (m *mockInvitationRepository) UpdateStatusByExternalID(ctx context.Context, externalID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.ExternalID == externalID {
			inv.Status = status
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockInvitationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	for i, inv := range m.invitations {
		if inv.ID == id {
			m.invitations = append(m.invitations[:i], m.invitations[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockInvitationRepository) DeleteByEmailOrg(ctx context.Context, orgID uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, inv := range m.invitations {
		if inv.OrgID == orgID && strings.EqualFold(inv.Email, email) {
			m.invitations = append(m.invitations[:i], m.invitations[i+1:]...)
			return nil
		}
	}
	return nil
}

// mockUserRepository is an in-memory UserRepository.
type mockUserRepository struct {
	users      []*models.PortalUser
	removed    []uuid.UUID
	updateErr  error
	lastUpdate string
}

func (m *mockUserRepository) Upsert(ctx context.Context, user *models.PortalUser) error {
	for _, u := range m.users {
		if u.ExternalID == user.ExternalID {
			u.OrgID = user.OrgID
			u.Email = user.Email
			u.Name = user.Name
			u.Role = user.Role
			return nil
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.users = append(m.users, user)
	return nil
}

func (m *mockUserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.PortalUser, error) {
	for _, u := range m.users {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockUserRepository) GetByID(ctx context.Context, orgID, userID uuid.UUID) (*models.PortalUser, error) {
	for _, u := range m.users {
		if u.OrgID == orgID && u.ID == userID {
			return u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockUserRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.PortalUser, error) {
	var result []*models.PortalUser
	for _, u := range m.users {
		if u.OrgID == orgID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserRepository) UpdateRoleWithAdminCheck(ctx context.Context, orgID, userID uuid.UUID, newRole string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, u := range m.users {
		if u.OrgID == orgID && u.ID == userID {
			u.Role = newRole
			m.lastUpdate = newRole
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockUserRepository) DeleteByExternalID(ctx context.Context, externalID string) error {
	for i, u := range m.users {
		if u.ExternalID == externalID {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockUserRepository) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	m.removed = append(m.removed, userID)
	return nil
}

// mockIdentityClient records provider calls; safe for concurrent use.
// Failure injection is keyed by email or invitation ID.
type mockIdentityClient struct {
	mu sync.Mutex

	created []*identity.CreateInvitationRequest
	revoked []string
	pending map[string][]*identity.Invitation // email -> pending invitations

	roles         map[string]string // externalUserID -> role
	roleErrFor    string
	updateRoleErr error
	updatedRoles  map[string]string

	createErrFor map[string]error // email -> error
	revokeErrFor map[string]error // invitation ID -> error
}

func (m *mockIdentityClient) CreateInvitation(ctx context.Context, req *identity.CreateInvitationRequest) (*identity.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.createErrFor[req.Email]; ok {
		return nil, err
	}
	m.created = append(m.created, req)
	return &identity.Invitation{
		ID:     "inv_" + req.Email,
		Email:  req.Email,
		Status: "pending",
	}, nil
}

func (m *mockIdentityClient) RevokeInvitation(ctx context.Context, invitationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.revokeErrFor[invitationID]; ok {
		return err
	}
	m.revoked = append(m.revoked, invitationID)
	return nil
}

func (m *mockIdentityClient) ListPendingInvitations(ctx context.Context, email string) ([]*identity.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[email], nil
}

func (m *mockIdentityClient) GetUserRole(ctx context.Context, externalUserID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roleErrFor == externalUserID {
		return "", fmt.Errorf("provider unreachable")
	}
	return m.roles[externalUserID], nil
}

func (m *mockIdentityClient) UpdateUserRole(ctx context.Context, externalUserID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateRoleErr != nil {
		return m.updateRoleErr
	}
	if m.updatedRoles == nil {
		m.updatedRoles = make(map[string]string)
	}
	m.updatedRoles[externalUserID] = role
	return nil
}
