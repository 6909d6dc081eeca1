package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the graphman API for operator tooling.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8050"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// DeploymentSelector names a deployment by exactly one of id, hash or name.
type DeploymentSelector struct {
	ID   *int64 `json:"id,omitempty"`
	Hash string `json:"hash,omitempty"`
	Name string `json:"name,omitempty"`
}

// Ack is the uniform mutation response; Warning is set only when the server
// has an advisory to surface.
type Ack struct {
	Warning string `json:"warning,omitempty"`
}

// Execution reports the state of one background execution.
type Execution struct {
	ID           string     `json:"id"`
	DeploymentID int64      `json:"deployment_id"`
	Kind         string     `json:"kind"`
	Phase        string     `json:"phase"`
	DelaySeconds int        `json:"delay_seconds"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type mutationRequest struct {
	Deployment   DeploymentSelector `json:"deployment"`
	Node         string             `json:"node,omitempty"`
	DelaySeconds *int               `json:"delay_seconds,omitempty"`
}

// Pause pauses a deployment that is not already paused.
func (c *Client) Pause(ctx context.Context, selector DeploymentSelector) (Ack, error) {
	var ack Ack
	err := c.do(ctx, http.MethodPost, "/deployments/pause", mutationRequest{Deployment: selector}, &ack)
	return ack, err
}

// Resume resumes a previously paused deployment.
func (c *Client) Resume(ctx context.Context, selector DeploymentSelector) (Ack, error) {
	var ack Ack
	err := c.do(ctx, http.MethodPost, "/deployments/resume", mutationRequest{Deployment: selector}, &ack)
	return ack, err
}

// Unassign removes the node binding for a deployment.
func (c *Client) Unassign(ctx context.Context, selector DeploymentSelector) (Ack, error) {
	var ack Ack
	err := c.do(ctx, http.MethodPost, "/deployments/unassign", mutationRequest{Deployment: selector}, &ack)
	return ack, err
}

// Reassign assigns or reassigns a deployment to a node. The returned ack may
// carry an advisory warning about the node id.
func (c *Client) Reassign(ctx context.Context, selector DeploymentSelector, node string) (Ack, error) {
	var ack Ack
	err := c.do(ctx, http.MethodPost, "/deployments/reassign", mutationRequest{Deployment: selector, Node: node}, &ack)
	return ack, err
}

// Restart submits a pause-wait-resume cycle for background execution and
// returns its execution id. A nil delay selects the server default.
func (c *Client) Restart(ctx context.Context, selector DeploymentSelector, delaySeconds *int) (string, error) {
	var resp struct {
		ExecutionID string `json:"execution_id"`
	}
	err := c.do(ctx, http.MethodPost, "/deployments/restart", mutationRequest{Deployment: selector, DelaySeconds: delaySeconds}, &resp)
	return resp.ExecutionID, err
}

// Execution fetches the current state of one execution.
func (c *Client) Execution(ctx context.Context, id string) (*Execution, error) {
	var execution Execution
	if err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(id), nil, &execution); err != nil {
		return nil, err
	}
	return &execution, nil
}

// Executions lists recent executions for a deployment id.
func (c *Client) Executions(ctx context.Context, deploymentID int64, limit int) ([]Execution, error) {
	var resp struct {
		Executions []Execution `json:"executions"`
	}
	path := fmt.Sprintf("/executions?deployment_id=%d", deploymentID)
	if limit > 0 {
		path = fmt.Sprintf("%s&limit=%d", path, limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return payload.Error
}
