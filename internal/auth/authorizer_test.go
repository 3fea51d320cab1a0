package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
)

type stubProjectRepo struct {
	domain.ProjectRepository

	project  *domain.Project
	getErr   error
	members  map[uuid.UUID]bool
	memberFn func() (bool, error)
}

func (s *stubProjectRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Project, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.project == nil || s.project.ID != id || s.project.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return s.project, nil
}

func (s *stubProjectRepo) IsMember(_ context.Context, _, _, userID uuid.UUID) (bool, error) {
	if s.memberFn != nil {
		return s.memberFn()
	}
	return s.members[userID], nil
}

type stubTaskRepo struct {
	domain.TaskRepository

	task *domain.Task
}

func (s *stubTaskRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	if s.task == nil || s.task.ID != id || s.task.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return s.task, nil
}

func TestAuthorizer_AuthorizeProject(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	projectID := uuid.New()
	member := uuid.New()
	stranger := uuid.New()

	newRepo := func() *stubProjectRepo {
		return &stubProjectRepo{
			project: &domain.Project{ID: projectID, TenantID: tenantID},
			members: map[uuid.UUID]bool{member: true},
		}
	}

	tests := []struct {
		name    string
		p       auth.Principal
		project uuid.UUID
		access  auth.Access
		wantErr bool
	}{
		{"member reads", auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleMember}, projectID, auth.AccessRead, false},
		{"member writes", auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleMember}, projectID, auth.AccessWrite, false},
		{"stranger denied", auth.Principal{TenantID: tenantID, UserID: stranger, Role: domain.RoleMember}, projectID, auth.AccessRead, true},
		{"admin without membership", auth.Principal{TenantID: tenantID, UserID: stranger, Role: domain.RoleAdmin}, projectID, auth.AccessWrite, false},
		{"viewer member reads", auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleViewer}, projectID, auth.AccessRead, false},
		{"viewer member cannot write", auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleViewer}, projectID, auth.AccessWrite, true},
		{"other tenant", auth.Principal{TenantID: uuid.New(), UserID: member, Role: domain.RoleAdmin}, projectID, auth.AccessRead, true},
		{"unknown project", auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleMember}, uuid.New(), auth.AccessRead, true},
		{"anonymous", auth.Principal{}, projectID, auth.AccessRead, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := auth.NewAuthorizer(newRepo(), &stubTaskRepo{})
			err := a.AuthorizeProject(t.Context(), tt.p, tt.project, tt.access)
			if tt.wantErr {
				require.ErrorIs(t, err, auth.ErrForbidden)
				require.ErrorIs(t, err, domain.ErrForbidden)
				return
			}
			require.NoError(t, err)
		})
	}

	t.Run("repository failure is not forbidden", func(t *testing.T) {
		t.Parallel()

		dbErr := errors.New("connection reset")
		repo := newRepo()
		repo.memberFn = func() (bool, error) { return false, dbErr }

		a := auth.NewAuthorizer(repo, &stubTaskRepo{})
		err := a.AuthorizeProject(t.Context(), auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleMember}, projectID, auth.AccessRead)
		require.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, auth.ErrForbidden)
	})
}

func TestAuthorizer_AuthorizeTask(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	projectID := uuid.New()
	member := uuid.New()
	task := &domain.Task{ID: uuid.New(), TenantID: tenantID, ProjectID: projectID}

	a := auth.NewAuthorizer(
		&stubProjectRepo{project: &domain.Project{ID: projectID, TenantID: tenantID}, members: map[uuid.UUID]bool{member: true}},
		&stubTaskRepo{task: task},
	)

	got, err := a.AuthorizeTask(t.Context(), auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleMember}, task.ID, auth.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = a.AuthorizeTask(t.Context(), auth.Principal{TenantID: tenantID, UserID: uuid.New(), Role: domain.RoleMember}, task.ID, auth.AccessRead)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = a.AuthorizeTask(t.Context(), auth.Principal{TenantID: tenantID, UserID: member, Role: domain.RoleMember}, uuid.New(), auth.AccessRead)
	require.ErrorIs(t, err, auth.ErrForbidden)
}
