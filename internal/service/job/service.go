package job

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/repository"
)

// Service is the durable job ledger. Every long-running pipeline step
// creates a job here and mutates it as the step proceeds.
type Service struct {
	repo   repository.JobRepository
	logger *slog.Logger
	now    func() time.Time
}

// New returns a job ledger service.
func New(repo repository.JobRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger, now: time.Now}
}

// Create opens a pending job for a project.
func (s Service) Create(ctx context.Context, projectID, jobType string) (*domain.Job, error) {
	now := s.now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      jobType,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job created", "job_id", job.ID, "project_id", projectID, "type", jobType)
	return job, nil
}

// Update merges fields into the stored record. Status changes must follow
// pending -> in-progress -> {completed, failed}; regressions are rejected.
func (s Service) Update(ctx context.Context, update domain.JobUpdate) error {
	if update.Status != nil {
		current, err := s.repo.GetJob(ctx, update.JobID)
		if err != nil {
			return err
		}
		if !transitionAllowed(current.Status, *update.Status) {
			return fmt.Errorf("job %s: illegal status transition %s -> %s", update.JobID, current.Status, *update.Status)
		}
	}
	return s.repo.UpdateJob(ctx, update)
}

// Get returns a job by id.
func (s Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// Logs returns a job's accumulated log lines.
func (s Service) Logs(ctx context.Context, jobID string) ([]string, error) {
	return s.repo.ListJobLogs(ctx, jobID)
}

// ProjectJobs returns a project's jobs sorted by creation time descending.
func (s Service) ProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	jobs, err := s.repo.ListProjectJobs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// SetupJob returns the most recent setup job for a project, or nil.
func (s Service) SetupJob(ctx context.Context, projectID string) (*domain.Job, error) {
	jobs, err := s.ProjectJobs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].Type == domain.JobTypeSetup {
			return &jobs[i], nil
		}
	}
	return nil, nil
}

func transitionAllowed(from, to domain.JobStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusInProgress || to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	case domain.JobStatusInProgress:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	default:
		return false
	}
}
