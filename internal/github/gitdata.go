package github

import (
	"context"
	"net/http"
)

// BranchHead captures the tip of a branch: the latest commit and the tree
// it points at.
type BranchHead struct {
	CommitSHA string
	TreeSHA   string
}

// TreeEntry is one path in a tree under construction.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// BranchHead resolves the latest commit on a branch. Returns
// ErrEmptyRepository (wrapped) when the branch has no commits yet.
func (c *Client) BranchHead(ctx context.Context, owner, repo, branch string) (*BranchHead, error) {
	var out struct {
		SHA    string `json:"sha"`
		Commit struct {
			Tree struct {
				SHA string `json:"sha"`
			} `json:"tree"`
		} `json:"commit"`
	}
	if err := c.do(ctx, http.MethodGet, "/repos/"+owner+"/"+repo+"/commits/"+branch, nil, &out); err != nil {
		return nil, err
	}
	return &BranchHead{CommitSHA: out.SHA, TreeSHA: out.Commit.Tree.SHA}, nil
}

// CreateBlob stores one content-addressed blob and returns its sha.
func (c *Client) CreateBlob(ctx context.Context, owner, repo, content, encoding string) (string, error) {
	payload := map[string]string{"content": content, "encoding": encoding}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+owner+"/"+repo+"/git/blobs", payload, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateTree builds a tree layered on baseTree and returns its sha. An
// empty baseTree creates a standalone tree.
func (c *Client) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []TreeEntry) (string, error) {
	payload := map[string]any{"tree": entries}
	if baseTree != "" {
		payload["base_tree"] = baseTree
	}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+owner+"/"+repo+"/git/trees", payload, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateCommit creates a commit object referencing tree and parents.
func (c *Client) CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error) {
	if parents == nil {
		parents = []string{}
	}
	payload := map[string]any{"message": message, "tree": tree, "parents": parents}
	var out struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+owner+"/"+repo+"/git/commits", payload, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// UpdateRef moves a branch ref to the given commit. This is the only call
// in the commit sequence that changes published history.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	payload := map[string]any{"sha": sha, "force": false}
	return c.do(ctx, http.MethodPatch, "/repos/"+owner+"/"+repo+"/git/refs/heads/"+branch, payload, nil)
}
