package gitops

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/github"
)

type fakeTarget struct {
	mu sync.Mutex

	defaultBranch string
	emptyRepo     bool
	blobErrPath   string

	blobCount    int
	createdFiles []string
	treeEntries  []github.TreeEntry
	treeBase     string
	commitTree   string
	commitParent []string
	refSHA       string
	refCalls     int
}

func (f *fakeTarget) GetRepo(context.Context, string, string) (*github.Repo, error) {
	branch := f.defaultBranch
	if branch == "" {
		branch = "main"
	}
	return &github.Repo{Name: "repo", DefaultBranch: branch}, nil
}

func (f *fakeTarget) BranchHead(context.Context, string, string, string) (*github.BranchHead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emptyRepo {
		return nil, fmt.Errorf("read head: %w", github.ErrEmptyRepository)
	}
	return &github.BranchHead{CommitSHA: "head-sha", TreeSHA: "tree-sha"}, nil
}

func (f *fakeTarget) CreateBlob(_ context.Context, _, _, content, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobErrPath != "" && content == f.blobErrPath {
		return "", errors.New("blob rejected")
	}
	f.blobCount++
	return fmt.Sprintf("blob-%d", f.blobCount), nil
}

func (f *fakeTarget) CreateTree(_ context.Context, _, _, baseTree string, entries []github.TreeEntry) (string, error) {
	f.treeBase = baseTree
	f.treeEntries = entries
	return "new-tree", nil
}

func (f *fakeTarget) CreateCommit(_ context.Context, _, _, _, tree string, parents []string) (string, error) {
	f.commitTree = tree
	f.commitParent = parents
	return "new-commit", nil
}

func (f *fakeTarget) UpdateRef(_ context.Context, _, _, _, sha string) error {
	f.refCalls++
	f.refSHA = sha
	return nil
}

func (f *fakeTarget) CreateFile(_ context.Context, _, _, path, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdFiles = append(f.createdFiles, path)
	f.emptyRepo = false
	return nil
}

func sampleFiles(n int) []domain.FileEntry {
	files := make([]domain.FileEntry, n)
	for i := range files {
		files[i] = domain.FileEntry{Path: fmt.Sprintf("file-%d.txt", i), Content: fmt.Sprintf("Y29udGVudC0%d", i)}
	}
	return files
}

func TestCommitPublishesTreeAndMovesRef(t *testing.T) {
	target := &fakeTarget{}
	b := NewCommitBuilder(target, 4, discardLogger())

	files := sampleFiles(5)
	if err := b.Commit(context.Background(), "org", "repo", files, "feat: bootstrap from template"); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	if target.treeBase != "tree-sha" {
		t.Fatalf("tree not layered on branch head, base = %q", target.treeBase)
	}
	if len(target.treeEntries) != len(files) {
		t.Fatalf("expected %d tree entries, got %d", len(files), len(target.treeEntries))
	}
	for i, entry := range target.treeEntries {
		if entry.Path != files[i].Path || entry.Mode != "100644" || entry.Type != "blob" || entry.SHA == "" {
			t.Fatalf("unexpected tree entry %d: %+v", i, entry)
		}
	}
	if len(target.commitParent) != 1 || target.commitParent[0] != "head-sha" {
		t.Fatalf("expected single parent head-sha, got %v", target.commitParent)
	}
	if target.refCalls != 1 || target.refSHA != "new-commit" {
		t.Fatalf("ref not moved to new commit: calls=%d sha=%q", target.refCalls, target.refSHA)
	}
}

func TestCommitBootstrapsEmptyRepository(t *testing.T) {
	target := &fakeTarget{emptyRepo: true}
	b := NewCommitBuilder(target, 4, discardLogger())

	if err := b.Commit(context.Background(), "org", "repo", sampleFiles(2), "msg"); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if len(target.createdFiles) != 1 || target.createdFiles[0] != ".maschine" {
		t.Fatalf("expected one bootstrap file, got %v", target.createdFiles)
	}
	if target.refCalls != 1 {
		t.Fatalf("expected ref update, got %d calls", target.refCalls)
	}
}

func TestCommitRejectsEmptyAndDuplicateInput(t *testing.T) {
	target := &fakeTarget{}
	b := NewCommitBuilder(target, 4, discardLogger())

	if err := b.Commit(context.Background(), "org", "repo", nil, "msg"); err == nil {
		t.Fatal("expected error for empty file list")
	}
	dup := []domain.FileEntry{{Path: "a.txt"}, {Path: "a.txt"}}
	if err := b.Commit(context.Background(), "org", "repo", dup, "msg"); err == nil {
		t.Fatal("expected error for duplicate path")
	}
	if target.blobCount != 0 || target.refCalls != 0 {
		t.Fatalf("expected no host calls, blobs=%d refs=%d", target.blobCount, target.refCalls)
	}
}

func TestCommitLeavesRefUntouchedOnBlobFailure(t *testing.T) {
	files := sampleFiles(3)
	target := &fakeTarget{blobErrPath: files[1].Content}
	b := NewCommitBuilder(target, 1, discardLogger())

	if err := b.Commit(context.Background(), "org", "repo", files, "msg"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if target.refCalls != 0 {
		t.Fatalf("ref moved despite blob failure: %d calls", target.refCalls)
	}
	if target.commitTree != "" {
		t.Fatalf("commit created despite blob failure: tree %q", target.commitTree)
	}
}
