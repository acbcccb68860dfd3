package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBranchHeadMapsEmptyRepository(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Git Repository is empty."}`))
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), testLogger())
	_, err := c.BranchHead(context.Background(), "org", "repo", "main")
	if !errors.Is(err, ErrEmptyRepository) {
		t.Fatalf("expected ErrEmptyRepository, got %v", err)
	}
}

func TestCreateRepoMapsNameConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Repository creation failed.","errors":[{"message":"name already exists on this account"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), testLogger())
	_, err := c.CreateRepo(context.Background(), "org", "taken", "")
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
}

func TestCreateRepoSendsAuthAndPayload(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orgs/frameception-v2/repos" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"name":"alice-clock","full_name":"frameception-v2/alice-clock","default_branch":"main","html_url":"https://github.com/frameception-v2/alice-clock"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), testLogger())
	repo, err := c.CreateRepo(context.Background(), "frameception-v2", "alice-clock", "a clock")
	if err != nil {
		t.Fatalf("CreateRepo returned error: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotPayload["name"] != "alice-clock" || gotPayload["auto_init"] != false {
		t.Fatalf("unexpected payload: %v", gotPayload)
	}
	if repo.HTMLURL != "https://github.com/frameception-v2/alice-clock" {
		t.Fatalf("unexpected repo: %+v", repo)
	}
}

func TestListContentsDistinguishesFileAndDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/o/r/contents":
			_, _ = w.Write([]byte(`[{"name":"src","path":"src","type":"dir"},{"name":"README.md","path":"README.md","type":"file"}]`))
		case "/repos/o/r/contents/README.md":
			_, _ = w.Write([]byte(`{"name":"README.md","path":"README.md","type":"file","content":"aGVsbG8=","encoding":"base64"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("tok"), testLogger())
	entries, err := c.ListContents(context.Background(), "o", "r", "")
	if err != nil {
		t.Fatalf("ListContents returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Type != "dir" || entries[1].Type != "file" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	file, err := c.GetFileContent(context.Background(), "o", "r", "README.md")
	if err != nil {
		t.Fatalf("GetFileContent returned error: %v", err)
	}
	if file.Content != "aGVsbG8=" || file.Encoding != "base64" {
		t.Fatalf("unexpected file: %+v", file)
	}
}
