package gitops

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/github"
)

// Source reads a template repository's tree.
type Source interface {
	ListContents(ctx context.Context, owner, repo, path string) ([]github.ContentEntry, error)
	GetFileContent(ctx context.Context, owner, repo, path string) (*github.FileContent, error)
}

// Replicator reads a source repository's file tree into memory.
type Replicator struct {
	source      Source
	logger      *slog.Logger
	concurrency int
}

// NewReplicator builds a Replicator with bounded fetch concurrency.
func NewReplicator(source Source, concurrency int, logger *slog.Logger) *Replicator {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Replicator{source: source, logger: logger, concurrency: concurrency}
}

// Replicate returns every file under path, recursively. An empty directory
// or repository yields an empty slice; any fetch failure aborts the whole
// operation with no partial result.
func (r *Replicator) Replicate(ctx context.Context, owner, repo, path string) ([]domain.FileEntry, error) {
	paths, err := r.walk(ctx, owner, repo, path)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return []domain.FileEntry{}, nil
	}

	files := make([]domain.FileEntry, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			content, err := r.source.GetFileContent(gctx, owner, repo, p)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", p, err)
			}
			files[i] = domain.FileEntry{Path: content.Path, Content: content.Content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.logger.Info("template replicated", "repo", owner+"/"+repo, "files", len(files))
	return files, nil
}

// walk lists file paths depth-first. It returns a fresh slice at every
// level, composed by concatenation.
func (r *Replicator) walk(ctx context.Context, owner, repo, path string) ([]string, error) {
	entries, err := r.source.ListContents(ctx, owner, repo, path)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch entry.Type {
		case "dir":
			nested, err := r.walk(ctx, owner, repo, entry.Path)
			if err != nil {
				return nil, err
			}
			paths = append(paths, nested...)
		case "file":
			paths = append(paths, entry.Path)
		default:
			// Symlinks and submodules are carried only if the host reports
			// them as files; other kinds are skipped.
			r.logger.Warn("skipping unsupported entry", "path", entry.Path, "type", entry.Type)
		}
	}
	return paths, nil
}
