package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/github"
	"github.com/hellno/maschine-sub000/internal/repository"
	jobsvc "github.com/hellno/maschine-sub000/internal/service/job"
	"github.com/hellno/maschine-sub000/internal/vercel"
)

// NameGenerator produces a candidate project name from a prompt.
type NameGenerator interface {
	GenerateName(ctx context.Context, prompt string) (string, error)
}

// RepoHost creates repositories on the source-control provider.
type RepoHost interface {
	CreateRepo(ctx context.Context, org, name, description string) (*github.Repo, error)
}

// Replicator reads the template repository into memory.
type Replicator interface {
	Replicate(ctx context.Context, owner, repo, path string) ([]domain.FileEntry, error)
}

// Committer publishes a file list as one commit.
type Committer interface {
	Commit(ctx context.Context, owner, repo string, files []domain.FileEntry, message string) error
}

// Hosting provisions hosting projects and triggers deployments.
type Hosting interface {
	CreateProject(ctx context.Context, input vercel.CreateProjectInput) (*vercel.Project, error)
	CreateDeployment(ctx context.Context, projectName, repoSlug, branch string) (*vercel.Deployment, error)
}

// Scorer looks up an account's reputation score.
type Scorer interface {
	Score(ctx context.Context, accountID string) (float64, error)
}

// Options carries the fixed provisioning parameters.
type Options struct {
	Org            string
	TemplateOwner  string
	TemplateRepo   string
	DefaultBranch  string
	Framework      string
	KVRestAPIURL   string
	KVRestAPIToken string
	MinUserScore   float64
}

// Input is one provisioning request.
type Input struct {
	Prompt      string
	Description string
	Username    string
	UserID      string
}

// Result summarizes a successful provisioning run.
type Result struct {
	ProjectID string
	RepoURL   string
	VercelURL string
}

// Sink receives ordered, append-only progress lines.
type Sink func(line string)

// Service sequences the provisioning pipeline: name generation, repository
// creation, template replication, hosting project creation and deployment
// trigger. Steps are strictly ordered; nothing already created is rolled
// back when a later step fails.
type Service struct {
	names    NameGenerator
	repos    RepoHost
	replica  Replicator
	commits  Committer
	hosting  Hosting
	scorer   Scorer
	ledger   jobsvc.Service
	projects repository.ProjectRepository
	opts     Options
	logger   *slog.Logger
}

// New returns a provisioning service.
func New(names NameGenerator, repos RepoHost, replica Replicator, commits Committer, hosting Hosting, scorer Scorer, ledger jobsvc.Service, projects repository.ProjectRepository, opts Options, logger *slog.Logger) Service {
	if opts.Framework == "" {
		opts.Framework = "nextjs"
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}
	return Service{
		names:    names,
		repos:    repos,
		replica:  replica,
		commits:  commits,
		hosting:  hosting,
		scorer:   scorer,
		ledger:   ledger,
		projects: projects,
		opts:     opts,
		logger:   logger,
	}
}

// CreateProject runs the pipeline, emitting progress lines to sink. On
// failure it emits exactly one final "Error: ..." line and stops; partial
// external resources stay behind for out-of-band cleanup.
func (s Service) CreateProject(ctx context.Context, input Input, sink Sink) (*Result, error) {
	if sink == nil {
		sink = func(string) {}
	}
	if strings.TrimSpace(input.Prompt) == "" {
		err := domain.NewValidationError("prompt is required")
		sink("Error: " + err.Message)
		return nil, err
	}

	if s.scorer != nil && s.opts.MinUserScore > 0 && input.UserID != "" {
		score, err := s.scorer.Score(ctx, input.UserID)
		if err != nil {
			s.logger.Error("score lookup failed", "user_id", input.UserID, "error", err)
			sink("Error: could not verify account")
			return nil, domain.NewUpstreamError("could not verify account", err)
		}
		if score < s.opts.MinUserScore {
			err := domain.NewValidationError("account score too low")
			sink("Error: " + err.Message)
			return nil, err
		}
	}

	projectID := uuid.NewString()
	job, err := s.ledger.Create(ctx, projectID, domain.JobTypeSetup)
	if err != nil {
		s.logger.Error("job creation failed", "project_id", projectID, "error", err)
		sink("Error: could not start setup")
		return nil, domain.NewUpstreamError("could not start setup", err)
	}
	s.markInProgress(ctx, job.ID)

	emit := func(line string) {
		sink(line)
		s.appendLog(ctx, job.ID, line)
	}

	fail := func(pErr *domain.PipelineError) (*Result, error) {
		s.logger.Error("provisioning failed", "project_id", projectID, "job_id", job.ID, "kind", pErr.Kind, "error", pErr)
		s.markFailed(ctx, job.ID, pErr.Message)
		sink("Error: " + pErr.Message)
		return nil, pErr
	}

	emit("Generating project name...")
	candidate, err := s.names.GenerateName(ctx, input.Prompt)
	if err != nil {
		return fail(domain.NewUpstreamError("name generation failed", err))
	}
	repoName := RepoName(input.Username, candidate)

	emit(fmt.Sprintf("Creating repository %s/%s...", s.opts.Org, repoName))
	repo, err := s.repos.CreateRepo(ctx, s.opts.Org, repoName, input.Description)
	if err != nil {
		if errors.Is(err, github.ErrNameConflict) {
			return fail(domain.NewUpstreamError("repository name already taken", err))
		}
		return fail(domain.NewUpstreamError("repository creation failed", err))
	}
	repoSlug := s.opts.Org + "/" + repo.Name

	emit("Copying template files...")
	files, err := s.replica.Replicate(ctx, s.opts.TemplateOwner, s.opts.TemplateRepo, "")
	if err != nil {
		return fail(domain.NewPartialCompletionError("template replication failed", err))
	}
	if len(files) == 0 {
		emit("Template is empty, nothing to commit")
	} else {
		if err := s.commits.Commit(ctx, s.opts.Org, repo.Name, files, "feat: bootstrap from template"); err != nil {
			return fail(domain.NewPartialCompletionError("template commit failed", err))
		}
		emit(fmt.Sprintf("Committed %d template files", len(files)))
	}

	emit("Creating Vercel project...")
	secret, err := generateSecret()
	if err != nil {
		return fail(domain.NewPartialCompletionError("secret generation failed", err))
	}
	hostingProject, err := s.hosting.CreateProject(ctx, vercel.CreateProjectInput{
		Name:      repoName,
		RepoSlug:  repoSlug,
		Framework: s.opts.Framework,
		EnvVars: []vercel.EnvVar{
			vercel.NewEnvVar("NEXTAUTH_SECRET", secret),
			vercel.NewEnvVar("KV_REST_API_URL", s.opts.KVRestAPIURL),
			vercel.NewEnvVar("KV_REST_API_TOKEN", s.opts.KVRestAPIToken),
		},
	})
	if err != nil {
		return fail(domain.NewPartialCompletionError("hosting project creation failed", err))
	}

	emit("Triggering deployment...")
	deployment, err := s.hosting.CreateDeployment(ctx, repoName, repoSlug, s.opts.DefaultBranch)
	if err != nil {
		return fail(domain.NewPartialCompletionError("deployment trigger failed", err))
	}

	vercelURL := deployment.URL
	if vercelURL != "" && !strings.HasPrefix(vercelURL, "http") {
		vercelURL = "https://" + vercelURL
	}
	project := &domain.ProjectInfo{
		ID:              projectID,
		UserID:          input.UserID,
		RepoURL:         repo.HTMLURL,
		VercelURL:       vercelURL,
		VercelProjectID: hostingProject.ID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return fail(domain.NewPartialCompletionError("project record write failed", err))
	}
	if input.UserID != "" {
		if err := s.projects.AddUserProject(ctx, input.UserID, projectID); err != nil {
			s.logger.Warn("user project link failed", "user_id", input.UserID, "project_id", projectID, "error", err)
		}
	}
	s.markCompleted(ctx, job.ID)

	sink("Repository: " + repo.HTMLURL)
	sink("Vercel URL: " + vercelURL)
	s.logger.Info("project provisioned", "project_id", projectID, "repo", repoSlug, "vercel_project_id", hostingProject.ID)
	return &Result{ProjectID: projectID, RepoURL: repo.HTMLURL, VercelURL: vercelURL}, nil
}

func (s Service) markInProgress(ctx context.Context, jobID string) {
	status := domain.JobStatusInProgress
	if err := s.ledger.Update(ctx, domain.JobUpdate{JobID: jobID, Status: &status}); err != nil {
		s.logger.Warn("job status update failed", "job_id", jobID, "error", err)
	}
}

func (s Service) markCompleted(ctx context.Context, jobID string) {
	status := domain.JobStatusCompleted
	if err := s.ledger.Update(ctx, domain.JobUpdate{JobID: jobID, Status: &status}); err != nil {
		s.logger.Warn("job status update failed", "job_id", jobID, "error", err)
	}
}

func (s Service) markFailed(ctx context.Context, jobID, message string) {
	status := domain.JobStatusFailed
	if err := s.ledger.Update(ctx, domain.JobUpdate{JobID: jobID, Status: &status, Error: &message}); err != nil {
		s.logger.Warn("job status update failed", "job_id", jobID, "error", err)
	}
}

func (s Service) appendLog(ctx context.Context, jobID, line string) {
	if err := s.ledger.Update(ctx, domain.JobUpdate{JobID: jobID, AppendLogs: []string{line}}); err != nil {
		s.logger.Warn("job log append failed", "job_id", jobID, "error", err)
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
