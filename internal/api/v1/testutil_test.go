package v1_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the caller into context for DoCtx
// ---------------------------------------------------------------------------

func principalCtx(p auth.Principal) context.Context {
	return middleware.WithPrincipal(context.Background(), p)
}

func memberCtx(tenantID uuid.UUID) context.Context {
	return principalCtx(auth.Principal{TenantID: tenantID, UserID: uuid.New(), Role: domain.RoleMember})
}

func adminCtx(tenantID uuid.UUID) context.Context {
	return principalCtx(auth.Principal{TenantID: tenantID, UserID: uuid.New(), Role: domain.RoleAdmin})
}

func viewerCtx(tenantID uuid.UUID) context.Context {
	return principalCtx(auth.Principal{TenantID: tenantID, UserID: uuid.New(), Role: domain.RoleViewer})
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	tenants  domain.TenantRepository
	users    domain.UserRepository
	projects domain.ProjectRepository
	tasks    domain.TaskRepository
	comments domain.CommentRepository
	audit    *mockAuditRepo
}

func (m *mockDataStore) Tenants() domain.TenantRepository   { return m.tenants }
func (m *mockDataStore) Users() domain.UserRepository       { return m.users }
func (m *mockDataStore) Projects() domain.ProjectRepository { return m.projects }
func (m *mockDataStore) Tasks() domain.TaskRepository       { return m.tasks }
func (m *mockDataStore) Comments() domain.CommentRepository { return m.comments }

// Audit returns a recording repo, created on first use so tests that do not
// care about activity need no setup.
func (m *mockDataStore) Audit() domain.AuditRepository {
	if m.audit == nil {
		m.audit = &mockAuditRepo{}
	}
	return m.audit
}

// ---------------------------------------------------------------------------
// Mock AuditRepository
// ---------------------------------------------------------------------------

type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditEntry
	recordErr error
	listErr   error
}

func (m *mockAuditRepo) Record(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByTask(_ context.Context, tenantID, taskID uuid.UUID, limit int) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []*domain.AuditEntry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if e.TenantID == tenantID && e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAuditRepo) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

// ---------------------------------------------------------------------------
// Mock TenantRepository
// ---------------------------------------------------------------------------

type mockTenantRepo struct {
	createFunc    func(ctx context.Context, t *domain.Tenant) error
	getByIDFunc   func(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	getBySlugFunc func(ctx context.Context, slug string) (*domain.Tenant, error)
	listFunc      func(ctx context.Context) ([]*domain.Tenant, error)
}

func (m *mockTenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	return m.createFunc(ctx, t)
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return m.getBySlugFunc(ctx, slug)
}

func (m *mockTenantRepo) List(ctx context.Context) ([]*domain.Tenant, error) {
	return m.listFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock UserRepository
// ---------------------------------------------------------------------------

type mockUserRepo struct {
	createFunc     func(ctx context.Context, u *domain.User) error
	getByIDFunc    func(ctx context.Context, tenantID, id uuid.UUID) (*domain.User, error)
	getByEmailFunc func(ctx context.Context, tenantID uuid.UUID, email string) (*domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	return m.createFunc(ctx, u)
}

func (m *mockUserRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.User, error) {
	return m.getByIDFunc(ctx, tenantID, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.User, error) {
	return m.getByEmailFunc(ctx, tenantID, email)
}

// ---------------------------------------------------------------------------
// Mock ProjectRepository
// ---------------------------------------------------------------------------

type mockProjectRepo struct {
	createFunc    func(ctx context.Context, p *domain.Project) error
	getByIDFunc   func(ctx context.Context, tenantID, id uuid.UUID) (*domain.Project, error)
	listFunc      func(ctx context.Context, tenantID uuid.UUID) ([]*domain.Project, error)
	deleteFunc    func(ctx context.Context, tenantID, id uuid.UUID) error
	addMemberFunc func(ctx context.Context, tenantID uuid.UUID, m *domain.ProjectMember) error
	isMemberFunc  func(ctx context.Context, tenantID, projectID, userID uuid.UUID) (bool, error)
}

func (m *mockProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	return m.createFunc(ctx, p)
}

func (m *mockProjectRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Project, error) {
	return m.getByIDFunc(ctx, tenantID, id)
}

func (m *mockProjectRepo) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Project, error) {
	return m.listFunc(ctx, tenantID)
}

func (m *mockProjectRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.deleteFunc(ctx, tenantID, id)
}

func (m *mockProjectRepo) AddMember(ctx context.Context, tenantID uuid.UUID, pm *domain.ProjectMember) error {
	return m.addMemberFunc(ctx, tenantID, pm)
}

func (m *mockProjectRepo) IsMember(ctx context.Context, tenantID, projectID, userID uuid.UUID) (bool, error) {
	return m.isMemberFunc(ctx, tenantID, projectID, userID)
}

// ---------------------------------------------------------------------------
// Mock TaskRepository
// ---------------------------------------------------------------------------

type mockTaskRepo struct {
	createFunc        func(ctx context.Context, t *domain.Task) error
	getByIDFunc       func(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error)
	listByProjectFunc func(ctx context.Context, tenantID, projectID uuid.UUID) ([]*domain.Task, error)
	listByStatusFunc  func(ctx context.Context, tenantID, projectID uuid.UUID, status domain.TaskStatus) ([]*domain.Task, error)
	updateStatusFunc  func(ctx context.Context, tenantID, id uuid.UUID, status domain.TaskStatus) error
	updateFunc        func(ctx context.Context, t *domain.Task) error
	deleteFunc        func(ctx context.Context, tenantID, id uuid.UUID) error
}

func (m *mockTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	return m.createFunc(ctx, t)
}

func (m *mockTaskRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	return m.getByIDFunc(ctx, tenantID, id)
}

func (m *mockTaskRepo) ListByProject(ctx context.Context, tenantID, projectID uuid.UUID) ([]*domain.Task, error) {
	return m.listByProjectFunc(ctx, tenantID, projectID)
}

func (m *mockTaskRepo) ListByStatus(ctx context.Context, tenantID, projectID uuid.UUID, status domain.TaskStatus) ([]*domain.Task, error) {
	return m.listByStatusFunc(ctx, tenantID, projectID, status)
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.TaskStatus) error {
	return m.updateStatusFunc(ctx, tenantID, id, status)
}

func (m *mockTaskRepo) Update(ctx context.Context, t *domain.Task) error {
	return m.updateFunc(ctx, t)
}

func (m *mockTaskRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.deleteFunc(ctx, tenantID, id)
}

// ---------------------------------------------------------------------------
// Mock CommentRepository
// ---------------------------------------------------------------------------

type mockCommentRepo struct {
	createFunc     func(ctx context.Context, c *domain.Comment) error
	listByTaskFunc func(ctx context.Context, tenantID, taskID uuid.UUID) ([]*domain.Comment, error)
}

func (m *mockCommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	return m.createFunc(ctx, c)
}

func (m *mockCommentRepo) ListByTask(ctx context.Context, tenantID, taskID uuid.UUID) ([]*domain.Comment, error) {
	return m.listByTaskFunc(ctx, tenantID, taskID)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, tenantID uuid.UUID, email, password, name, role string) (*domain.User, error)
	loginFunc        func(ctx context.Context, tenantID uuid.UUID, email, password string) (string, string, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
}

func (m *mockAuthService) RegisterWithRole(ctx context.Context, tenantID uuid.UUID, email, password, name, role string) (*domain.User, error) {
	return m.registerFunc(ctx, tenantID, email, password, name, role)
}

func (m *mockAuthService) Login(ctx context.Context, tenantID uuid.UUID, email, password string) (accessToken, refreshToken string, err error) {
	return m.loginFunc(ctx, tenantID, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

// ---------------------------------------------------------------------------
// Mock Authorizer
// ---------------------------------------------------------------------------

// mockAuthorizer allows everything unless a func is set.
type mockAuthorizer struct {
	projectFunc func(ctx context.Context, p auth.Principal, projectID uuid.UUID, access auth.Access) error
	taskFunc    func(ctx context.Context, p auth.Principal, taskID uuid.UUID, access auth.Access) (*domain.Task, error)
}

func (m *mockAuthorizer) AuthorizeProject(ctx context.Context, p auth.Principal, projectID uuid.UUID, access auth.Access) error {
	if m.projectFunc == nil {
		return nil
	}
	return m.projectFunc(ctx, p, projectID, access)
}

func (m *mockAuthorizer) AuthorizeTask(ctx context.Context, p auth.Principal, taskID uuid.UUID, access auth.Access) (*domain.Task, error) {
	return m.taskFunc(ctx, p, taskID, access)
}

func denyAll() *mockAuthorizer {
	return &mockAuthorizer{
		projectFunc: func(context.Context, auth.Principal, uuid.UUID, auth.Access) error {
			return auth.ErrForbidden
		},
		taskFunc: func(context.Context, auth.Principal, uuid.UUID, auth.Access) (*domain.Task, error) {
			return nil, auth.ErrForbidden
		},
	}
}

// allowTask resolves every task ID to a copy of task.
func allowTask(task *domain.Task) *mockAuthorizer {
	return &mockAuthorizer{
		taskFunc: func(context.Context, auth.Principal, uuid.UUID, auth.Access) (*domain.Task, error) {
			cp := *task
			return &cp, nil
		},
	}
}

// ---------------------------------------------------------------------------
// Mock Publisher
// ---------------------------------------------------------------------------

type publishedBoard struct {
	typ       realtime.MessageType
	projectID uuid.UUID
	tasks     []realtime.TaskSummary
}

type mockPublisher struct {
	mu       sync.Mutex
	boards   []publishedBoard
	comments []*domain.Comment
	err      error
}

func (m *mockPublisher) PublishBoard(_ context.Context, typ realtime.MessageType, projectID uuid.UUID, tasks []realtime.TaskSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards = append(m.boards, publishedBoard{typ: typ, projectID: projectID, tasks: tasks})
	return m.err
}

func (m *mockPublisher) PublishComment(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, c)
	return m.err
}

func (m *mockPublisher) published() []publishedBoard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedBoard(nil), m.boards...)
}

// ---------------------------------------------------------------------------
// Mock BoardCache
// ---------------------------------------------------------------------------

type mockCache struct {
	mu          sync.Mutex
	boards      map[uuid.UUID][]realtime.TaskSummary
	getErr      error
	invalidated []uuid.UUID
}

func newMockCache() *mockCache {
	return &mockCache{boards: make(map[uuid.UUID][]realtime.TaskSummary)}
}

func (m *mockCache) GetBoard(_ context.Context, _, projectID uuid.UUID) ([]realtime.TaskSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	tasks, ok := m.boards[projectID]
	return tasks, ok, nil
}

func (m *mockCache) SetBoard(_ context.Context, _, projectID uuid.UUID, tasks []realtime.TaskSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[projectID] = tasks
	return nil
}

func (m *mockCache) InvalidateBoard(_ context.Context, _, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boards, projectID)
	m.invalidated = append(m.invalidated, projectID)
	return nil
}

func (m *mockCache) cached(projectID uuid.UUID) ([]realtime.TaskSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks, ok := m.boards[projectID]
	return tasks, ok
}

func (m *mockCache) invalidatedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.invalidated...)
}
