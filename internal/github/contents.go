package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ContentEntry is one directory listing entry from the contents API.
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
}

// FileContent is a single file fetched through the contents API. Content
// stays base64 encoded exactly as the host returned it.
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func contentsPath(owner, repo, path string) string {
	p := "/repos/" + owner + "/" + repo + "/contents"
	if path != "" {
		// Escape each segment but keep the separators.
		segments := strings.Split(path, "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		p += "/" + strings.Join(segments, "/")
	}
	return p
}

// ListContents lists directory entries at path. The contents API answers
// with an array for directories and an object for files; a file answer
// here means the caller asked for a non-directory and is an error.
func (c *Client) ListContents(ctx context.Context, owner, repo, path string) ([]ContentEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path), nil, &raw); err != nil {
		return nil, err
	}
	var entries []ContentEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("github: %q is not a directory", path)
	}
	return entries, nil
}

// GetFileContent fetches one file's content.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path string) (*FileContent, error) {
	var file FileContent
	if err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path), nil, &file); err != nil {
		return nil, err
	}
	if file.Path == "" {
		file.Path = path
	}
	return &file, nil
}

// CreateFile commits a single file through the contents API. Used only to
// bootstrap a zero-commit repository before the real payload commit.
func (c *Client) CreateFile(ctx context.Context, owner, repo, path, message, contentBase64 string) error {
	payload := map[string]any{
		"message": message,
		"content": contentBase64,
	}
	return c.do(ctx, http.MethodPut, contentsPath(owner, repo, path), payload, nil)
}
