package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hellno/maschine-sub000/internal/domain"
)

// APIError retains diagnostic detail from a failed hosting provider call.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vercel api error: status %d: %s", e.Status, e.Body)
}

// Client talks to the hosting/deployment provider API.
type Client struct {
	baseURL    string
	token      string
	teamID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a Client.
func New(baseURL, token, teamID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		teamID:     teamID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	endpoint := c.baseURL + path
	if c.teamID != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		endpoint += sep + "teamId=" + url.QueryEscape(c.teamID)
	}
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
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		c.logger.Warn("vercel request failed", "method", method, "path", path, "status", resp.StatusCode, "body", apiErr.Body)
		return apiErr
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// EnvVar is one environment variable attached at project creation.
type EnvVar struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Type   string `json:"type"`
	Target any    `json:"target"`
}

// NewEnvVar builds an encrypted env var applied to all targets.
func NewEnvVar(key, value string) EnvVar {
	return EnvVar{Key: key, Value: value, Type: "encrypted", Target: []string{"production", "preview", "development"}}
}

// Project is a hosting project validated at ingress.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateProjectInput describes the hosting project to create.
type CreateProjectInput struct {
	Name      string
	RepoSlug  string // "owner/name"
	Framework string
	EnvVars   []EnvVar
}

// CreateProject provisions a hosting project wired to a repository.
func (c *Client) CreateProject(ctx context.Context, input CreateProjectInput) (*Project, error) {
	payload := map[string]any{
		"name":      input.Name,
		"framework": input.Framework,
		"gitRepository": map[string]string{
			"type": "github",
			"repo": input.RepoSlug,
		},
		"environmentVariables": input.EnvVars,
	}
	var project Project
	if err := c.do(ctx, http.MethodPost, "/v10/projects", payload, &project); err != nil {
		return nil, err
	}
	if project.ID == "" {
		return nil, fmt.Errorf("vercel: create project response missing id")
	}
	c.logger.Info("hosting project created", "vercel_project_id", project.ID, "name", project.Name)
	return &project, nil
}

// Deployment is one build/release instance of a hosting project.
type Deployment struct {
	ID        string
	URL       string
	State     domain.DeployState
	CreatedAt time.Time
}

type deploymentPayload struct {
	ID         string `json:"id"`
	UID        string `json:"uid"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
	State      string `json:"state"`
	CreatedAt  int64  `json:"createdAt"`
}

func (p deploymentPayload) toDeployment() *Deployment {
	id := p.ID
	if id == "" {
		id = p.UID
	}
	state := p.ReadyState
	if state == "" {
		state = p.State
	}
	return &Deployment{
		ID:        id,
		URL:       p.URL,
		State:     domain.DeployState(strings.ToUpper(strings.TrimSpace(state))),
		CreatedAt: time.UnixMilli(p.CreatedAt).UTC(),
	}
}

// CreateDeployment triggers a deployment of the project's default branch.
func (c *Client) CreateDeployment(ctx context.Context, projectName, repoSlug, branch string) (*Deployment, error) {
	payload := map[string]any{
		"name": projectName,
		"gitSource": map[string]any{
			"type": "github",
			"repo": repoSlug,
			"ref":  branch,
		},
	}
	var out deploymentPayload
	if err := c.do(ctx, http.MethodPost, "/v13/deployments", payload, &out); err != nil {
		return nil, err
	}
	deployment := out.toDeployment()
	if deployment.ID == "" {
		return nil, fmt.Errorf("vercel: create deployment response missing id")
	}
	c.logger.Info("deployment triggered", "deployment_id", deployment.ID, "url", deployment.URL)
	return deployment, nil
}

// LatestDeployment returns the most recent deployment for a hosting
// project, or nil when none exists yet.
func (c *Client) LatestDeployment(ctx context.Context, vercelProjectID string) (*Deployment, error) {
	path := "/v6/deployments?projectId=" + url.QueryEscape(vercelProjectID) + "&limit=1"
	var out struct {
		Deployments []deploymentPayload `json:"deployments"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Deployments) == 0 {
		return nil, nil
	}
	return out.Deployments[0].toDeployment(), nil
}

// BuildEvents fetches the build-event log for a deployment.
func (c *Client) BuildEvents(ctx context.Context, deploymentID string) ([]domain.DeploymentLog, error) {
	path := "/v2/deployments/" + url.PathEscape(deploymentID) + "/events"
	var raw []struct {
		ID      string          `json:"id"`
		Created int64           `json:"created"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Info    struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"info"`
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	logs := make([]domain.DeploymentLog, 0, len(raw))
	for _, event := range raw {
		entry := domain.DeploymentLog{
			ID:        event.ID,
			CreatedAt: time.UnixMilli(event.Created).UTC(),
			Source:    event.Info.Name,
			Text:      event.Text,
			Type:      event.Type,
			Payload:   event.Payload,
		}
		if entry.Source == "" {
			entry.Source = "build"
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
