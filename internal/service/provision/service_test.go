package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/github"
	"github.com/hellno/maschine-sub000/internal/repository"
	jobsvc "github.com/hellno/maschine-sub000/internal/service/job"
	"github.com/hellno/maschine-sub000/internal/vercel"
)

type memoryStore struct {
	jobs      map[string]*domain.Job
	projects  map[string]*domain.ProjectInfo
	userLinks map[string][]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:      make(map[string]*domain.Job),
		projects:  make(map[string]*domain.ProjectInfo),
		userLinks: make(map[string][]string),
	}
}

func (m *memoryStore) CreateJob(_ context.Context, job *domain.Job) error {
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryStore) UpdateJob(_ context.Context, update domain.JobUpdate) error {
	job, ok := m.jobs[update.JobID]
	if !ok {
		return repository.ErrNotFound
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	job.Logs = append(job.Logs, update.AppendLogs...)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memoryStore) ListJobLogs(_ context.Context, jobID string) ([]string, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]string(nil), job.Logs...), nil
}

func (m *memoryStore) ListProjectJobs(_ context.Context, projectID string) ([]domain.Job, error) {
	jobs := make([]domain.Job, 0, 1)
	for _, job := range m.jobs {
		if job.ProjectID == projectID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (m *memoryStore) CreateProject(_ context.Context, project *domain.ProjectInfo) error {
	copied := *project
	m.projects[project.ID] = &copied
	return nil
}

func (m *memoryStore) GetProject(_ context.Context, projectID string) (*domain.ProjectInfo, error) {
	project, ok := m.projects[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *project
	return &copied, nil
}

func (m *memoryStore) AddUserProject(_ context.Context, userID, projectID string) error {
	m.userLinks[userID] = append(m.userLinks[userID], projectID)
	return nil
}

func (m *memoryStore) ListUserProjects(_ context.Context, userID string) ([]string, error) {
	return append([]string(nil), m.userLinks[userID]...), nil
}

type stubNameGen struct {
	name string
	err  error
}

func (s stubNameGen) GenerateName(context.Context, string) (string, error) {
	return s.name, s.err
}

type stubRepoHost struct {
	err   error
	calls int
	org   string
	name  string
}

func (s *stubRepoHost) CreateRepo(_ context.Context, org, name, _ string) (*github.Repo, error) {
	s.calls++
	s.org = org
	s.name = name
	if s.err != nil {
		return nil, s.err
	}
	return &github.Repo{
		Name:          name,
		FullName:      org + "/" + name,
		DefaultBranch: "main",
		HTMLURL:       "https://github.com/" + org + "/" + name,
	}, nil
}

type stubReplicator struct {
	files []domain.FileEntry
	err   error
}

func (s stubReplicator) Replicate(context.Context, string, string, string) ([]domain.FileEntry, error) {
	return s.files, s.err
}

type stubCommitter struct {
	calls   int
	files   int
	message string
	err     error
}

func (s *stubCommitter) Commit(_ context.Context, _, _ string, files []domain.FileEntry, message string) error {
	s.calls++
	s.files = len(files)
	s.message = message
	return s.err
}

type stubHosting struct {
	projectCalls int
	deployCalls  int
	envVars      []vercel.EnvVar
	projectErr   error
	deployErr    error
}

func (s *stubHosting) CreateProject(_ context.Context, input vercel.CreateProjectInput) (*vercel.Project, error) {
	s.projectCalls++
	s.envVars = input.EnvVars
	if s.projectErr != nil {
		return nil, s.projectErr
	}
	return &vercel.Project{ID: "prj_123", Name: input.Name}, nil
}

func (s *stubHosting) CreateDeployment(_ context.Context, projectName, _, _ string) (*vercel.Deployment, error) {
	s.deployCalls++
	if s.deployErr != nil {
		return nil, s.deployErr
	}
	return &vercel.Deployment{
		ID:    "dpl_123",
		URL:   projectName + ".vercel.app",
		State: domain.DeployQueued,
	}, nil
}

type stubScorer struct {
	score float64
	err   error
}

func (s stubScorer) Score(context.Context, string) (float64, error) {
	return s.score, s.err
}

type fixture struct {
	store    *memoryStore
	names    stubNameGen
	repos    *stubRepoHost
	replica  stubReplicator
	commits  *stubCommitter
	hosting  *stubHosting
	scorer   Scorer
	minScore float64
}

func newFixture() *fixture {
	return &fixture{
		store:   newMemoryStore(),
		names:   stubNameGen{name: "Countdown Clock"},
		repos:   &stubRepoHost{},
		replica: stubReplicator{files: sampleTemplate(12)},
		commits: &stubCommitter{},
		hosting: &stubHosting{},
	}
}

func (f *fixture) service() Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := jobsvc.New(f.store, log)
	return New(f.names, f.repos, f.replica, f.commits, f.hosting, f.scorer, ledger, f.store, Options{
		Org:            "frameception-v2",
		TemplateOwner:  "hellno",
		TemplateRepo:   "farcaster-frames-template",
		DefaultBranch:  "main",
		KVRestAPIURL:   "https://kv.example.com",
		KVRestAPIToken: "kv-token",
		MinUserScore:   f.minScore,
	}, log)
}

func sampleTemplate(n int) []domain.FileEntry {
	files := make([]domain.FileEntry, n)
	for i := range files {
		files[i] = domain.FileEntry{Path: fmt.Sprintf("file-%d.ts", i), Content: "aGVsbG8="}
	}
	return files
}

func TestCreateProjectHappyPath(t *testing.T) {
	f := newFixture()
	svc := f.service()

	var lines []string
	result, err := svc.CreateProject(context.Background(), Input{
		Prompt:   "a countdown clock frame",
		Username: "alice",
		UserID:   "fid:42",
	}, func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	if f.repos.org != "frameception-v2" || f.repos.name != "alice-countdown-clock" {
		t.Fatalf("unexpected repo creation: %s/%s", f.repos.org, f.repos.name)
	}
	if f.commits.calls != 1 || f.commits.files != 12 {
		t.Fatalf("unexpected commit: calls=%d files=%d", f.commits.calls, f.commits.files)
	}
	if f.commits.message != "feat: bootstrap from template" {
		t.Fatalf("unexpected commit message: %q", f.commits.message)
	}
	if f.hosting.projectCalls != 1 || f.hosting.deployCalls != 1 {
		t.Fatalf("unexpected hosting calls: project=%d deploy=%d", f.hosting.projectCalls, f.hosting.deployCalls)
	}
	if result.RepoURL != "https://github.com/frameception-v2/alice-countdown-clock" {
		t.Fatalf("unexpected repo url: %q", result.RepoURL)
	}
	if result.VercelURL != "https://alice-countdown-clock.vercel.app" {
		t.Fatalf("unexpected vercel url: %q", result.VercelURL)
	}

	if len(lines) < 2 {
		t.Fatalf("expected progress lines, got %v", lines)
	}
	if lines[len(lines)-2] != "Repository: "+result.RepoURL {
		t.Fatalf("second to last line = %q", lines[len(lines)-2])
	}
	if lines[len(lines)-1] != "Vercel URL: "+result.VercelURL {
		t.Fatalf("last line = %q", lines[len(lines)-1])
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "Error:") {
			t.Fatalf("unexpected error line on success: %q", line)
		}
	}

	envKeys := make([]string, 0, len(f.hosting.envVars))
	for _, env := range f.hosting.envVars {
		envKeys = append(envKeys, env.Key)
	}
	for _, want := range []string{"NEXTAUTH_SECRET", "KV_REST_API_URL", "KV_REST_API_TOKEN"} {
		found := false
		for _, key := range envKeys {
			if key == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing env var %s in %v", want, envKeys)
		}
	}

	project, err := f.store.GetProject(context.Background(), result.ProjectID)
	if err != nil {
		t.Fatalf("project record missing: %v", err)
	}
	if project.VercelProjectID != "prj_123" || project.UserID != "fid:42" {
		t.Fatalf("unexpected project record: %+v", project)
	}
	if links := f.store.userLinks["fid:42"]; len(links) != 1 || links[0] != result.ProjectID {
		t.Fatalf("user link missing: %v", links)
	}

	jobs, _ := f.store.ListProjectJobs(context.Background(), result.ProjectID)
	if len(jobs) != 1 || jobs[0].Status != domain.JobStatusCompleted {
		t.Fatalf("expected one completed job, got %+v", jobs)
	}
}

func TestCreateProjectRejectsEmptyPrompt(t *testing.T) {
	f := newFixture()
	svc := f.service()

	var lines []string
	_, err := svc.CreateProject(context.Background(), Input{Prompt: "   "}, func(line string) { lines = append(lines, line) })
	if err == nil {
		t.Fatal("expected validation error")
	}
	var pErr *domain.PipelineError
	if !errors.As(err, &pErr) || pErr.Kind != domain.ErrKindValidation {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "Error: ") {
		t.Fatalf("expected single error line, got %v", lines)
	}
	if f.repos.calls != 0 {
		t.Fatal("repository creation attempted for invalid input")
	}
}

func TestCreateProjectNameConflictStopsEarly(t *testing.T) {
	f := newFixture()
	f.repos.err = fmt.Errorf("create repo: %w", github.ErrNameConflict)
	svc := f.service()

	var lines []string
	_, err := svc.CreateProject(context.Background(), Input{Prompt: "a clock", Username: "alice"}, func(line string) { lines = append(lines, line) })
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "repository name already taken") {
		t.Fatalf("unexpected error: %v", err)
	}

	errorLines := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "Error: ") {
			errorLines++
		}
	}
	if errorLines != 1 {
		t.Fatalf("expected exactly one error line, got %d in %v", errorLines, lines)
	}
	if lines[len(lines)-1] != "Error: repository name already taken" {
		t.Fatalf("last line = %q", lines[len(lines)-1])
	}
	if f.commits.calls != 0 || f.hosting.projectCalls != 0 || f.hosting.deployCalls != 0 {
		t.Fatal("pipeline continued past failed repository creation")
	}

	var job *domain.Job
	for _, j := range f.store.jobs {
		job = j
	}
	if job == nil || job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed job, got %+v", job)
	}
	if job.Error != "repository name already taken" {
		t.Fatalf("unexpected job error: %q", job.Error)
	}
}

func TestCreateProjectEmptyTemplateSkipsCommit(t *testing.T) {
	f := newFixture()
	f.replica = stubReplicator{files: []domain.FileEntry{}}
	svc := f.service()

	var lines []string
	_, err := svc.CreateProject(context.Background(), Input{Prompt: "a clock", Username: "alice"}, func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	if f.commits.calls != 0 {
		t.Fatalf("expected no commit for empty template, got %d", f.commits.calls)
	}
	found := false
	for _, line := range lines {
		if line == "Template is empty, nothing to commit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing empty-template line in %v", lines)
	}
}

func TestCreateProjectScoreGate(t *testing.T) {
	f := newFixture()
	f.minScore = 0.5
	f.scorer = stubScorer{score: 0.2}
	svc := f.service()

	_, err := svc.CreateProject(context.Background(), Input{Prompt: "a clock", UserID: "fid:42"}, nil)
	if err == nil {
		t.Fatal("expected score gate rejection")
	}
	if f.repos.calls != 0 {
		t.Fatal("repository created despite low score")
	}

	f2 := newFixture()
	f2.minScore = 0.5
	f2.scorer = stubScorer{score: 0.9}
	if _, err := f2.service().CreateProject(context.Background(), Input{Prompt: "a clock", UserID: "fid:42"}, nil); err != nil {
		t.Fatalf("expected pass for high score, got %v", err)
	}
}

func TestCreateProjectDeployFailureMarksPartial(t *testing.T) {
	f := newFixture()
	f.hosting.deployErr = errors.New("deploy api down")
	svc := f.service()

	_, err := svc.CreateProject(context.Background(), Input{Prompt: "a clock", Username: "alice"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var pErr *domain.PipelineError
	if !errors.As(err, &pErr) || pErr.Kind != domain.ErrKindPartialCompletion {
		t.Fatalf("expected partial completion kind, got %v", err)
	}
	if len(f.store.projects) != 0 {
		t.Fatal("project record written despite deploy failure")
	}
}
