package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/repository"
)

// Store implements the persistence interfaces on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ repository.JobRepository     = (*Store)(nil)
	_ repository.ProjectRepository = (*Store)(nil)
	_ repository.Store             = (*Store)(nil)
)

// CreateJob inserts a job record.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	const query = `INSERT INTO jobs (id, project_id, type, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query, job.ID, job.ProjectID, job.Type, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateJob merges the given fields and refreshes updated_at.
func (s *Store) UpdateJob(ctx context.Context, update domain.JobUpdate) error {
	const query = `UPDATE jobs SET
			status = COALESCE($2, status),
			error = COALESCE($3, error),
			updated_at = $4
		WHERE id = $1`
	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}
	tag, err := s.pool.Exec(ctx, query, update.JobID, status, update.Error, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	for _, line := range update.AppendLogs {
		const insert = `INSERT INTO job_logs (job_id, message, created_at) VALUES ($1, $2, $3)`
		if _, err := s.pool.Exec(ctx, insert, update.JobID, line, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

// GetJob fetches a job record including its logs.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	const query = `SELECT id, project_id, type, status, error, created_at, updated_at FROM jobs WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	var status string
	if err := row.Scan(&job.ID, &job.ProjectID, &job.Type, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	logs, err := s.ListJobLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Logs = logs
	return &job, nil
}

// ListJobLogs returns a job's log lines in append order.
func (s *Store) ListJobLogs(ctx context.Context, jobID string) ([]string, error) {
	const query = `SELECT message FROM job_logs WHERE job_id = $1 ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]string, 0)
	for rows.Next() {
		var message string
		if err := rows.Scan(&message); err != nil {
			return nil, err
		}
		logs = append(logs, message)
	}
	return logs, rows.Err()
}

// ListProjectJobs returns jobs for a project sorted by creation time descending.
func (s *Store) ListProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	const query = `SELECT id, project_id, type, status, error, created_at, updated_at
		FROM jobs WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		var job domain.Job
		var status string
		if err := rows.Scan(&job.ID, &job.ProjectID, &job.Type, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateProject inserts a project record and membership.
func (s *Store) CreateProject(ctx context.Context, project *domain.ProjectInfo) error {
	const query = `INSERT INTO projects (id, user_id, repo_url, vercel_url, vercel_project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query, project.ID, project.UserID, project.RepoURL, project.VercelURL, project.VercelProjectID, project.CreatedAt); err != nil {
		return err
	}
	if project.UserID == "" {
		return nil
	}
	return s.AddUserProject(ctx, project.UserID, project.ID)
}

// GetProject fetches a project record.
func (s *Store) GetProject(ctx context.Context, projectID string) (*domain.ProjectInfo, error) {
	const query = `SELECT id, user_id, repo_url, vercel_url, vercel_project_id, created_at FROM projects WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, projectID)
	var p domain.ProjectInfo
	if err := row.Scan(&p.ID, &p.UserID, &p.RepoURL, &p.VercelURL, &p.VercelProjectID, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// AddUserProject records project membership for a user.
func (s *Store) AddUserProject(ctx context.Context, userID, projectID string) error {
	const query = `INSERT INTO user_projects (user_id, project_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, project_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query, userID, projectID, time.Now().UTC())
	return err
}

// ListUserProjects returns project ids owned by the user.
func (s *Store) ListUserProjects(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT project_id FROM user_projects WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping verifies database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
