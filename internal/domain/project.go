package domain

import "time"

// ProjectInfo records a successfully provisioned project. Written once
// after provisioning completes and never mutated afterwards.
type ProjectInfo struct {
	ID              string    `json:"projectId"`
	UserID          string    `json:"userId,omitempty"`
	RepoURL         string    `json:"repoUrl"`
	VercelURL       string    `json:"vercelUrl"`
	VercelProjectID string    `json:"vercelProjectId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// FileEntry is one file captured from a template repository. Content is
// carried opaquely as base64, exactly as the source host provided it.
type FileEntry struct {
	Path    string
	Content string
}
