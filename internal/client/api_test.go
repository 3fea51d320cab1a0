package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/client"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

func TestAPIClient_MoveTask(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	want := []realtime.TaskSummary{{ID: taskID, Title: "ship", Status: domain.TaskStatusDone, Priority: domain.TaskPriorityHigh, Tags: []string{}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/tasks/"+taskID.String()+"/status", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "DONE", body["status"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"task": map[string]any{"id": taskID}, "tasks": want})
	}))
	t.Cleanup(srv.Close)

	api := client.NewAPIClient(srv.URL+"/", client.StaticToken("tok"), nil)
	got, err := api.MoveTask(context.Background(), taskID, domain.TaskStatusDone)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAPIClient_MoveTaskCommittedWithoutList(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":{"id":"` + taskID.String() + `","status":"DONE"},"tasks":null}`))
	}))
	t.Cleanup(srv.Close)

	api := client.NewAPIClient(srv.URL, client.StaticToken("tok"), srv.Client())
	got, err := api.MoveTask(context.Background(), taskID, domain.TaskStatusDone)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAPIClient_ListTasks(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	task := &domain.Task{
		ID:        uuid.New(),
		ProjectID: projectID,
		Title:     "design",
		Status:    domain.TaskStatusTodo,
		Priority:  domain.TaskPriorityMedium,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, projectID.String(), r.URL.Query().Get("project_id"))
		_ = json.NewEncoder(w).Encode([]*domain.Task{task})
	}))
	t.Cleanup(srv.Close)

	api := client.NewAPIClient(srv.URL, client.StaticToken("tok"), srv.Client())
	got, err := api.ListTasks(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, realtime.Summarize([]*domain.Task{task}), got)
}

func TestAPIClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
		detail string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"title":"Unauthorized","status":401,"detail":"invalid token"}`, want: client.ErrUnauthorized, detail: "invalid token"},
		{name: "forbidden", status: http.StatusForbidden, body: `{"title":"Forbidden","status":403,"detail":"not a member"}`, want: client.ErrForbidden, detail: "not a member"},
		{name: "not found", status: http.StatusNotFound, body: `{"title":"Not Found","status":404,"detail":"task not found"}`, want: client.ErrNotFound, detail: "task not found"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down\n", detail: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			api := client.NewAPIClient(srv.URL, client.StaticToken("tok"), nil)
			_, err := api.MoveTask(context.Background(), uuid.New(), domain.TaskStatusDone)
			require.Error(t, err)

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.detail, apiErr.Detail)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestAPIClient_Login(t *testing.T) {
	t.Parallel()

	companyID, boardID := uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme", body["tenant_slug"])
		assert.Equal(t, "dev@acme.test", body["email"])

		_, _ = w.Write([]byte(`{
			"access_token": "jwt", "refresh_token": "r", "token_type": "Bearer",
			"company": {"id": "` + companyID.String() + `", "name": "Acme", "slug": "acme"},
			"user": {"name": "Dev", "role": "member"},
			"boards": [{"id": "` + boardID.String() + `", "name": "Roadmap", "topic": "project:` + boardID.String() + `"}]
		}`))
	}))
	t.Cleanup(srv.Close)

	api := client.NewAPIClient(srv.URL, nil, nil)
	session, err := api.Login(context.Background(), "acme", "dev@acme.test", "hunter22hunter")
	require.NoError(t, err)
	assert.Equal(t, "jwt", session.AccessToken)
	assert.Equal(t, "Bearer", session.TokenType)
	require.NotNil(t, session.Company)
	assert.Equal(t, companyID, session.Company.ID)
	assert.Equal(t, []client.Board{{ID: boardID, Name: "Roadmap", Topic: realtime.ProjectTopic(boardID)}}, session.Boards)

	_, err = api.ListTasks(context.Background(), uuid.New())
	require.ErrorIs(t, err, client.ErrUnauthorized, "no credential source")
}

func TestAPIClient_LoginWithoutToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := client.NewAPIClient(srv.URL, nil, nil).Login(context.Background(), "acme", "dev@acme.test", "pw")
	require.ErrorIs(t, err, client.ErrUnauthorized)
}
