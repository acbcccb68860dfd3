package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client queries the identity/reputation provider for account scores.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs an identity client.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Score fetches the reputation score for an account id. Scores are in the
// provider's 0..1 range.
func (c *Client) Score(ctx context.Context, accountID string) (float64, error) {
	endpoint := c.baseURL + "/v2/farcaster/user/bulk?fids=" + url.QueryEscape(accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("identity lookup failed", "account_id", accountID, "status", resp.StatusCode)
		return 0, fmt.Errorf("identity api error: status %d", resp.StatusCode)
	}

	var out struct {
		Users []struct {
			Score float64 `json:"score"`
		} `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Users) == 0 {
		return 0, fmt.Errorf("identity: account %s not found", accountID)
	}
	return out.Users[0].Score, nil
}
