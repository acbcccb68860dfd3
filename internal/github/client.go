package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyRepository is returned when a branch read hits a repository that
// has no commits yet. Callers use it to trigger the bootstrap path; every
// other failure is surfaced as an *APIError.
var ErrEmptyRepository = errors.New("github: repository is empty")

// ErrNameConflict is returned when repository creation collides with an
// existing name. The pipeline treats this as a hard failure.
var ErrNameConflict = errors.New("github: repository name already exists")

// APIError retains diagnostic detail from a failed API call.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.Status, e.Body)
}

// Client talks to the source-control hosting provider's REST API.
type Client struct {
	baseURL    string
	auth       TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// TokenSource yields an access token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource wrapping a fixed personal access token.
type StaticToken string

// Token returns the wrapped token.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// New constructs a Client against the given API base URL.
func New(baseURL string, auth TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "maschine/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		c.logger.Warn("github request failed", "method", method, "path", path, "status", resp.StatusCode, "body", apiErr.Body)
		switch {
		case resp.StatusCode == http.StatusConflict:
			// Ref and commit reads on a zero-commit repository answer 409.
			return fmt.Errorf("%w: %v", ErrEmptyRepository, apiErr)
		case resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(apiErr.Body, "already exists"):
			return fmt.Errorf("%w: %v", ErrNameConflict, apiErr)
		}
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

// Repo is repository metadata validated at ingress.
type Repo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// CreateRepo provisions an empty repository under an organization.
func (c *Client) CreateRepo(ctx context.Context, org, name, description string) (*Repo, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
		"private":     false,
		"auto_init":   false,
	}
	var repo Repo
	if err := c.do(ctx, http.MethodPost, "/orgs/"+org+"/repos", payload, &repo); err != nil {
		return nil, err
	}
	if repo.Name == "" || repo.HTMLURL == "" {
		return nil, fmt.Errorf("github: create repo response missing fields")
	}
	c.logger.Info("repository created", "repo", repo.FullName)
	return &repo, nil
}

// GetRepo fetches repository metadata, including the default branch name.
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*Repo, error) {
	var out Repo
	if err := c.do(ctx, http.MethodGet, "/repos/"+owner+"/"+repo, nil, &out); err != nil {
		return nil, err
	}
	if out.DefaultBranch == "" {
		out.DefaultBranch = "main"
	}
	return &out, nil
}
