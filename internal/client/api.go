package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

var (
	ErrForbidden = errors.New("client: forbidden")
	ErrNotFound  = errors.New("client: not found")
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, msg)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// APIClient talks to the /api/v1 REST surface.
type APIClient struct {
	baseURL string
	creds   CredentialFunc
	client  *http.Client
}

// NewAPIClient creates a client for baseURL (scheme and host, no path).
// httpClient may be nil.
func NewAPIClient(baseURL string, creds CredentialFunc, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  httpClient,
	}
}

type loginRequest struct {
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
	Password   string `json:"password"` //nolint:gosec // G117: login credential DTO
}

// Board is a project the signed-in user can watch.
type Board struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name"`
	Topic realtime.Topic `json:"topic"`
}

// Session is what a login returns. Boards is empty when the user belongs to
// no project yet or the server could not list them.
type Session struct {
	AccessToken string         `json:"access_token"` //nolint:gosec // G117: auth response DTO
	TokenType   string         `json:"token_type"`
	Company     *domain.Tenant `json:"company"`
	User        *domain.User   `json:"user"`
	Boards      []Board        `json:"boards"`
}

// Login exchanges credentials for a session.
func (c *APIClient) Login(ctx context.Context, tenantSlug, email, password string) (*Session, error) {
	var out Session
	in := loginRequest{TenantSlug: tenantSlug, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, in, &out, false); err != nil {
		return nil, fmt.Errorf("client.APIClient.Login: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("client.APIClient.Login: empty access token: %w", ErrUnauthorized)
	}
	return &out, nil
}

type moveRequest struct {
	Status domain.TaskStatus `json:"status"`
}

type moveResponse struct {
	Tasks []realtime.TaskSummary `json:"tasks"`
}

// MoveTask changes a task's column and returns the project's full list as
// the server holds it after the move. The list is nil when the server
// committed the move but could not load the board.
func (c *APIClient) MoveTask(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) ([]realtime.TaskSummary, error) {
	var out moveResponse
	path := "/api/v1/tasks/" + taskID.String() + "/status"
	if err := c.do(ctx, http.MethodPatch, path, nil, moveRequest{Status: status}, &out, true); err != nil {
		return nil, fmt.Errorf("client.APIClient.MoveTask: %w", err)
	}
	return out.Tasks, nil
}

// ListTasks returns the project's tasks in board order.
func (c *APIClient) ListTasks(ctx context.Context, projectID uuid.UUID) ([]realtime.TaskSummary, error) {
	var out []*domain.Task
	q := url.Values{"project_id": {projectID.String()}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks", q, nil, &out, true); err != nil {
		return nil, fmt.Errorf("client.APIClient.ListTasks: %w", err)
	}
	return realtime.Summarize(out), nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		if c.creds == nil {
			return ErrUnauthorized
		}
		token, err := c.creds(ctx)
		if err != nil {
			return fmt.Errorf("credentials: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if apiErr.Detail == "" && apiErr.Title == "" {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
