package redisstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/repository"
)

const keyPrefix = "maschine:"

// Store implements the persistence interfaces on Redis. Jobs and projects
// are stored as hashes, logs as lists, and membership as sets, mirroring a
// keyed record store with no cross-record transactions.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

var (
	_ repository.JobRepository     = (*Store)(nil)
	_ repository.ProjectRepository = (*Store)(nil)
	_ repository.Store             = (*Store)(nil)
)

func jobKey(jobID string) string         { return keyPrefix + "job:" + jobID }
func jobLogsKey(jobID string) string     { return keyPrefix + "job:" + jobID + ":logs" }
func projectKey(projectID string) string { return keyPrefix + "project:" + projectID }
func projectJobsKey(projectID string) string {
	return keyPrefix + "project:" + projectID + ":jobs"
}
func userProjectsKey(userID string) string { return keyPrefix + "user:" + userID + ":projects" }

// CreateJob stores a job record and registers project membership.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	fields := map[string]any{
		"project_id": job.ProjectID,
		"type":       job.Type,
		"status":     string(job.Status),
		"error":      job.Error,
		"created_at": job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, jobKey(job.ID), fields).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, projectJobsKey(job.ProjectID), job.ID).Err()
}

// UpdateJob merges the given fields into the stored record and refreshes
// updated_at. Last write wins per field.
func (s *Store) UpdateJob(ctx context.Context, update domain.JobUpdate) error {
	exists, err := s.client.Exists(ctx, jobKey(update.JobID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return repository.ErrNotFound
	}
	fields := map[string]any{
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if update.Status != nil {
		fields["status"] = string(*update.Status)
	}
	if update.Error != nil {
		fields["error"] = *update.Error
	}
	if err := s.client.HSet(ctx, jobKey(update.JobID), fields).Err(); err != nil {
		return err
	}
	if len(update.AppendLogs) > 0 {
		entries := make([]any, 0, len(update.AppendLogs))
		for _, line := range update.AppendLogs {
			entries = append(entries, line)
		}
		if err := s.client.RPush(ctx, jobLogsKey(update.JobID), entries...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// GetJob fetches a job record including its logs.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	job := &domain.Job{
		ID:        jobID,
		ProjectID: fields["project_id"],
		Type:      fields["type"],
		Status:    domain.JobStatus(fields["status"]),
		Error:     fields["error"],
	}
	job.CreatedAt = parseTime(fields["created_at"])
	job.UpdatedAt = parseTime(fields["updated_at"])
	logs, err := s.ListJobLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Logs = logs
	return job, nil
}

// ListJobLogs returns a job's accumulated log lines in append order.
func (s *Store) ListJobLogs(ctx context.Context, jobID string) ([]string, error) {
	return s.client.LRange(ctx, jobLogsKey(jobID), 0, -1).Result()
}

// ListProjectJobs returns a project's jobs sorted by creation time descending.
func (s *Store) ListProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	ids, err := s.client.SMembers(ctx, projectJobsKey(projectID)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// CreateProject stores a provisioned project record and user membership.
func (s *Store) CreateProject(ctx context.Context, project *domain.ProjectInfo) error {
	fields := map[string]any{
		"user_id":           project.UserID,
		"repo_url":          project.RepoURL,
		"vercel_url":        project.VercelURL,
		"vercel_project_id": project.VercelProjectID,
		"created_at":        project.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, projectKey(project.ID), fields).Err(); err != nil {
		return err
	}
	if project.UserID == "" {
		return nil
	}
	return s.AddUserProject(ctx, project.UserID, project.ID)
}

// GetProject fetches a project record.
func (s *Store) GetProject(ctx context.Context, projectID string) (*domain.ProjectInfo, error) {
	fields, err := s.client.HGetAll(ctx, projectKey(projectID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	return &domain.ProjectInfo{
		ID:              projectID,
		UserID:          fields["user_id"],
		RepoURL:         fields["repo_url"],
		VercelURL:       fields["vercel_url"],
		VercelProjectID: fields["vercel_project_id"],
		CreatedAt:       parseTime(fields["created_at"]),
	}, nil
}

// AddUserProject records project membership for a user.
func (s *Store) AddUserProject(ctx context.Context, userID, projectID string) error {
	return s.client.SAdd(ctx, userProjectsKey(userID), projectID).Err()
}

// ListUserProjects returns project ids owned by the user.
func (s *Store) ListUserProjects(ctx context.Context, userID string) ([]string, error) {
	return s.client.SMembers(ctx, userProjectsKey(userID)).Result()
}

// Ping verifies store reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() {
	_ = s.client.Close()
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
