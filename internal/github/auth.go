package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// AppAuth mints installation tokens for a GitHub App. It signs a short
// lived app JWT and exchanges it for an installation token, which is cached
// until shortly before expiry.
type AppAuth struct {
	appID      string
	installID  string
	key        *rsa.PrivateKey
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAppAuth parses the PEM key and returns an installation token source.
func NewAppAuth(baseURL, appID, installID, privateKeyPEM string) (*AppAuth, error) {
	key, err := jwtlib.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	return &AppAuth{
		appID:      appID,
		installID:  installID,
		key:        key,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Token returns a valid installation token, refreshing when needed.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Now().Before(a.expires) {
		return a.token, nil
	}

	appJWT, err := a.signAppJWT()
	if err != nil {
		return "", err
	}

	endpoint := a.baseURL + "/app/installations/" + a.installID + "/access_tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange installation token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode installation token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("empty installation token in response")
	}
	a.token = out.Token
	a.expires = out.ExpiresAt.Add(-time.Minute)
	return a.token, nil
}

func (a *AppAuth) signAppJWT() (string, error) {
	now := time.Now()
	claims := jwtlib.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwtlib.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(9 * time.Minute)),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	return token.SignedString(a.key)
}
