package status

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/repository"
	jobsvc "github.com/hellno/maschine-sub000/internal/service/job"
	"github.com/hellno/maschine-sub000/internal/vercel"
)

// DeploymentReader queries the hosting provider for deployment state.
type DeploymentReader interface {
	LatestDeployment(ctx context.Context, vercelProjectID string) (*vercel.Deployment, error)
	BuildEvents(ctx context.Context, deploymentID string) ([]domain.DeploymentLog, error)
}

// Service answers consolidated status queries by combining the job ledger
// with the externally observed deployment state.
type Service struct {
	projects repository.ProjectRepository
	ledger   jobsvc.Service
	deploys  DeploymentReader
	logger   *slog.Logger
}

// New returns a status service.
func New(projects repository.ProjectRepository, ledger jobsvc.Service, deploys DeploymentReader, logger *slog.Logger) Service {
	return Service{projects: projects, ledger: ledger, deploys: deploys, logger: logger}
}

// ProjectStatus derives the user-facing status for a project. Lookup
// failures degrade to the aggregator's error/unknown states instead of
// propagating.
func (s Service) ProjectStatus(ctx context.Context, projectID string) domain.ProjectStatus {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("project lookup failed", "project_id", projectID, "error", err)
		}
		return Aggregate(nil, nil, nil)
	}

	setupJob, err := s.ledger.SetupJob(ctx, projectID)
	if err != nil {
		s.logger.Warn("setup job lookup failed", "project_id", projectID, "error", err)
		setupJob = nil
	}

	var deployState *domain.DeployState
	if setupJob != nil && setupJob.Status == domain.JobStatusCompleted {
		deployment, err := s.deploys.LatestDeployment(ctx, project.VercelProjectID)
		if err != nil {
			s.logger.Warn("deployment lookup failed", "project_id", projectID, "error", err)
		} else if deployment != nil {
			deployState = &deployment.State
		}
	}
	return Aggregate(project, setupJob, deployState)
}

// DeploymentStatus answers the deployment status query: the stored hosting
// project id is resolved to its most recent deployment, whose build-event
// log is fetched.
func (s Service) DeploymentStatus(ctx context.Context, projectID string) (*domain.DeploymentStatus, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	deployment, err := s.deploys.LatestDeployment(ctx, project.VercelProjectID)
	if err != nil {
		return nil, err
	}
	if deployment == nil {
		return nil, repository.ErrNotFound
	}
	logs, err := s.deploys.BuildEvents(ctx, deployment.ID)
	if err != nil {
		return nil, err
	}
	url := deployment.URL
	if url == "" {
		url = project.VercelURL
	}
	return &domain.DeploymentStatus{
		State:     deployment.State,
		URL:       url,
		CreatedAt: deployment.CreatedAt,
		Logs:      logs,
	}, nil
}

// UserProjects lists the project ids provisioned for a user.
func (s Service) UserProjects(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.projects.ListUserProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
