// Package backend is the HTTP client for the project/task REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/KafClaw/taskclaw/internal/board"
)

// APIError is a non-success reply from the backend. Message is the server's
// own explanation and is what users see.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// Unwrap maps 404 replies onto board.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return board.ErrNotFound
	}
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// Client implements board.Repository over the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	developers *DeveloperCache
}

var _ board.Repository = (*Client)(nil)

// NewClient creates a client for baseURL (e.g. http://host/api/v1). A non-empty
// token is sent as a bearer token on every request.
func NewClient(ctx context.Context, baseURL, token string, timeout time.Duration, developerTTL time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	if token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
		hc.Timeout = timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		developers: NewDeveloperCache(developerTTL),
	}
}

// safeHost matches valid hostname:port patterns.
var safeHost = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// endpoint validates the base URL and appends the escaped path segments.
func (c *Client) endpoint(segments ...string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	if !safeHost.MatchString(u.Host) {
		return "", fmt.Errorf("invalid host: %s", u.Host)
	}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/"), nil
}

// do sends one request and decodes the envelope's data into out when both are
// present. It reports whether data was present.
func (c *Client) do(ctx context.Context, method string, query url.Values, body any, out any, segments ...string) (bool, error) {
	endpoint, err := c.endpoint(segments...)
	if err != nil {
		return false, err
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, strings.Join(segments, "/"), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 300 {
				return false, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
			}
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		slog.Debug("BackendClient: request failed", "method", method, "path", strings.Join(segments, "/"), "status", resp.StatusCode, "message", msg)
		return false, &APIError{Status: resp.StatusCode, Message: msg}
	}

	hasData := len(env.Data) > 0 && string(env.Data) != "null"
	if out != nil && hasData {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("decode data: %w", err)
		}
	}
	return hasData, nil
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (c *Client) CreateProject(ctx context.Context, name, description string) (*board.Project, error) {
	var p board.Project
	req := map[string]string{"name": name, "description": description}
	if _, err := c.do(ctx, http.MethodPost, nil, req, &p, "projects"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*board.Project, error) {
	var p board.Project
	ok, err := c.do(ctx, http.MethodGet, nil, nil, &p, "projects", id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, board.ErrNotFound
	}
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]board.Project, error) {
	var out []board.Project
	if _, err := c.do(ctx, http.MethodGet, nil, nil, &out, "projects"); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchProject asks the server for its best match.
func (c *Client) SearchProject(ctx context.Context, text string) (*board.Project, error) {
	var p board.Project
	ok, err := c.do(ctx, http.MethodGet, nil, nil, &p, "projects", "search", text)
	if err != nil {
		return nil, err
	}
	if !ok || p.ID == "" {
		return nil, board.ErrNotFound
	}
	return &p, nil
}

// UpdateProject updates the project. The server replies without data, so the
// fresh project is fetched afterwards.
func (c *Client) UpdateProject(ctx context.Context, id string, upd board.ProjectUpdate) (*board.Project, error) {
	var p board.Project
	ok, err := c.do(ctx, http.MethodPut, nil, upd, &p, "projects", id)
	if err != nil {
		return nil, err
	}
	if ok {
		return &p, nil
	}
	return c.GetProject(ctx, id)
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, nil, nil, nil, "projects", id)
	return err
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (c *Client) CreateTask(ctx context.Context, in board.NewTask) (*board.Task, error) {
	var t board.Task
	if _, err := c.do(ctx, http.MethodPost, nil, in, &t, "tasks"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTasks(ctx context.Context, projectID string) ([]board.Task, error) {
	var out []board.Task
	q := url.Values{"projectId": {projectID}}
	if _, err := c.do(ctx, http.MethodGet, q, nil, &out, "tasks"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchTask(ctx context.Context, text string) (*board.Task, error) {
	var t board.Task
	ok, err := c.do(ctx, http.MethodGet, nil, nil, &t, "tasks", "search", text)
	if err != nil {
		return nil, err
	}
	if !ok || t.ID == "" {
		return nil, board.ErrNotFound
	}
	return &t, nil
}

// UpdateTask updates the task. When the server replies without data, the
// returned task carries only the id and the updated fields.
func (c *Client) UpdateTask(ctx context.Context, id string, upd board.TaskUpdate) (*board.Task, error) {
	var t board.Task
	ok, err := c.do(ctx, http.MethodPut, nil, upd, &t, "tasks", id)
	if err != nil {
		return nil, err
	}
	if ok {
		return &t, nil
	}
	t = board.Task{ID: id}
	applyTaskUpdate(&t, upd)
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, nil, nil, nil, "tasks", id)
	return err
}

func applyTaskUpdate(t *board.Task, upd board.TaskUpdate) {
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.BlockReason != nil {
		t.BlockReason = *upd.BlockReason
	}
	if upd.AssignedTo != nil {
		t.AssignedTo = *upd.AssignedTo
	}
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// Developers returns the developer accounts, served from the cache when fresh.
func (c *Client) Developers(ctx context.Context) ([]board.User, error) {
	return c.developers.Get(ctx, func(ctx context.Context) ([]board.User, error) {
		var out []board.User
		if _, err := c.do(ctx, http.MethodGet, nil, nil, &out, "users", "developers"); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// PersistDevelopers keeps the developer listing in a file at path so it is
// shared between runs.
func (c *Client) PersistDevelopers(path string) {
	c.developers.PersistTo(path)
}

// InvalidateDevelopers drops the cached developer listing.
func (c *Client) InvalidateDevelopers() {
	c.developers.Invalidate()
}
