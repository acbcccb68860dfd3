package gitops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/github"
)

type fakeSource struct {
	dirs     map[string][]github.ContentEntry
	files    map[string]string
	failPath string
}

func (f *fakeSource) ListContents(_ context.Context, _, _, path string) ([]github.ContentEntry, error) {
	entries, ok := f.dirs[path]
	if !ok {
		return nil, errors.New("no such directory: " + path)
	}
	return entries, nil
}

func (f *fakeSource) GetFileContent(_ context.Context, _, _, path string) (*github.FileContent, error) {
	if path == f.failPath {
		return nil, errors.New("boom")
	}
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file: " + path)
	}
	return &github.FileContent{Path: path, Content: content, Encoding: "base64"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func templateSource() *fakeSource {
	return &fakeSource{
		dirs: map[string][]github.ContentEntry{
			"": {
				{Path: "README.md", Type: "file"},
				{Path: "package.json", Type: "file"},
				{Path: "src", Type: "dir"},
				{Path: "link", Type: "symlink"},
			},
			"src": {
				{Path: "src/app.tsx", Type: "file"},
				{Path: "src/components", Type: "dir"},
			},
			"src/components": {
				{Path: "src/components/frame.tsx", Type: "file"},
			},
		},
		files: map[string]string{
			"README.md":                "cmVhZG1l",
			"package.json":             "e30=",
			"src/app.tsx":              "YXBw",
			"src/components/frame.tsx": "ZnJhbWU=",
		},
	}
}

func TestReplicateWalksNestedDirectories(t *testing.T) {
	r := NewReplicator(templateSource(), 4, discardLogger())

	files, err := r.Replicate(context.Background(), "hellno", "template", "")
	if err != nil {
		t.Fatalf("Replicate returned error: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 files, got %d", len(files))
	}

	paths := make([]string, 0, len(files))
	byPath := make(map[string]domain.FileEntry)
	for _, file := range files {
		paths = append(paths, file.Path)
		byPath[file.Path] = file
	}
	sort.Strings(paths)
	want := []string{"README.md", "package.json", "src/app.tsx", "src/components/frame.tsx"}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}
	if byPath["src/components/frame.tsx"].Content != "ZnJhbWU=" {
		t.Fatalf("content not carried: %+v", byPath["src/components/frame.tsx"])
	}
}

func TestReplicateEmptyRepositoryYieldsEmptySlice(t *testing.T) {
	source := &fakeSource{dirs: map[string][]github.ContentEntry{"": {}}}
	r := NewReplicator(source, 4, discardLogger())

	files, err := r.Replicate(context.Background(), "hellno", "template", "")
	if err != nil {
		t.Fatalf("Replicate returned error: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", files)
	}
}

func TestReplicateAbortsOnFetchFailure(t *testing.T) {
	source := templateSource()
	source.failPath = "src/app.tsx"
	r := NewReplicator(source, 2, discardLogger())

	files, err := r.Replicate(context.Background(), "hellno", "template", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if files != nil {
		t.Fatalf("expected no partial result, got %d files", len(files))
	}
}

func TestReplicateAbortsOnListFailure(t *testing.T) {
	source := templateSource()
	delete(source.dirs, "src/components")
	r := NewReplicator(source, 2, discardLogger())

	if _, err := r.Replicate(context.Background(), "hellno", "template", ""); err == nil {
		t.Fatal("expected error, got nil")
	}
}
