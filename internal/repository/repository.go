package repository

import (
	"context"

	"github.com/hellno/maschine-sub000/internal/domain"
)

// JobRepository persists per-job records and project membership.
type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJob(ctx context.Context, update domain.JobUpdate) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobLogs(ctx context.Context, jobID string) ([]string, error)
	ListProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error)
}

// ProjectRepository persists provisioned project records and user membership.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.ProjectInfo) error
	GetProject(ctx context.Context, projectID string) (*domain.ProjectInfo, error)
	AddUserProject(ctx context.Context, userID, projectID string) error
	ListUserProjects(ctx context.Context, userID string) ([]string, error)
}

// Store joins the persistence interfaces with a lifecycle. Both the Redis
// and PostgreSQL implementations satisfy it; the handle is constructed in
// main and passed down explicitly.
type Store interface {
	JobRepository
	ProjectRepository
	Ping(ctx context.Context) error
	Close()
}
