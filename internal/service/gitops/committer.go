package gitops

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/github"
)

const (
	bootstrapPath    = ".maschine"
	bootstrapMessage = "chore: initialize repository"
	fileModeRegular  = "100644"
)

// Target exposes the git object primitives of the target repository host.
type Target interface {
	GetRepo(ctx context.Context, owner, repo string) (*github.Repo, error)
	BranchHead(ctx context.Context, owner, repo, branch string) (*github.BranchHead, error)
	CreateBlob(ctx context.Context, owner, repo, content, encoding string) (string, error)
	CreateTree(ctx context.Context, owner, repo, baseTree string, entries []github.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (string, error)
	UpdateRef(ctx context.Context, owner, repo, branch, sha string) error
	CreateFile(ctx context.Context, owner, repo, path, message, contentBase64 string) error
}

// CommitBuilder turns a file list into one commit on a target repository
// using blob/tree/commit/ref primitives.
type CommitBuilder struct {
	target      Target
	logger      *slog.Logger
	concurrency int
}

// NewCommitBuilder builds a CommitBuilder with bounded blob concurrency.
func NewCommitBuilder(target Target, concurrency int, logger *slog.Logger) *CommitBuilder {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &CommitBuilder{target: target, logger: logger, concurrency: concurrency}
}

// Commit publishes files as a single commit on the repository's default
// branch. The branch ref moves only as the very last step; a failure at
// any earlier step leaves visible history untouched. Duplicate paths and
// empty file lists are rejected before any call is made.
func (b *CommitBuilder) Commit(ctx context.Context, owner, repo string, files []domain.FileEntry, message string) error {
	if len(files) == 0 {
		return fmt.Errorf("gitops: nothing to commit")
	}
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		if _, dup := seen[file.Path]; dup {
			return fmt.Errorf("gitops: duplicate path %q", file.Path)
		}
		seen[file.Path] = struct{}{}
	}

	meta, err := b.target.GetRepo(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("resolve default branch: %w", err)
	}
	branch := meta.DefaultBranch

	head, err := b.target.BranchHead(ctx, owner, repo, branch)
	if errors.Is(err, github.ErrEmptyRepository) {
		head, err = b.bootstrap(ctx, owner, repo, branch)
	}
	if err != nil {
		return err
	}

	blobs := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			sha, err := b.target.CreateBlob(gctx, owner, repo, file.Content, "base64")
			if err != nil {
				return fmt.Errorf("create blob %s: %w", file.Path, err)
			}
			blobs[i] = sha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	entries := make([]github.TreeEntry, len(files))
	for i, file := range files {
		entries[i] = github.TreeEntry{Path: file.Path, Mode: fileModeRegular, Type: "blob", SHA: blobs[i]}
	}
	treeSHA, err := b.target.CreateTree(ctx, owner, repo, head.TreeSHA, entries)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	commitSHA, err := b.target.CreateCommit(ctx, owner, repo, message, treeSHA, []string{head.CommitSHA})
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	if err := b.target.UpdateRef(ctx, owner, repo, branch, commitSHA); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	b.logger.Info("commit published", "repo", owner+"/"+repo, "branch", branch, "commit", commitSHA, "files", len(files))
	return nil
}

// bootstrap gives a zero-commit repository its first commit via a single
// placeholder file, then re-reads the branch head.
func (b *CommitBuilder) bootstrap(ctx context.Context, owner, repo, branch string) (*github.BranchHead, error) {
	b.logger.Info("bootstrapping empty repository", "repo", owner+"/"+repo)
	placeholder := base64.StdEncoding.EncodeToString([]byte("bootstrap\n"))
	if err := b.target.CreateFile(ctx, owner, repo, bootstrapPath, bootstrapMessage, placeholder); err != nil {
		return nil, fmt.Errorf("bootstrap repository: %w", err)
	}
	head, err := b.target.BranchHead(ctx, owner, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("read bootstrapped head: %w", err)
	}
	return head, nil
}
