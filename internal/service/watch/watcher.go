package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hellno/maschine-sub000/internal/domain"
	"github.com/hellno/maschine-sub000/internal/vercel"
)

// JobReader reads the job ledger.
type JobReader interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
}

// DeployReader queries the hosting provider.
type DeployReader interface {
	LatestDeployment(ctx context.Context, vercelProjectID string) (*vercel.Deployment, error)
	BuildEvents(ctx context.Context, deploymentID string) ([]domain.DeploymentLog, error)
}

// Broadcaster delivers merged log entries to streaming clients.
type Broadcaster interface {
	Broadcast(projectID string, payload []byte)
}

// Watcher runs two fixed-interval polling loops per watched project: one
// over the job ledger until the job is terminal, one over the deployment
// provider until the build is terminal. Cancelling the context stops a
// loop before its next poll; no call is issued after cancellation is
// observed. Entries seen by both loops are emitted once.
type Watcher struct {
	jobs     JobReader
	deploys  DeployReader
	hub      Broadcaster
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New returns a Watcher polling at the given interval.
func New(jobs JobReader, deploys DeployReader, hub Broadcaster, interval, timeout time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Watcher{jobs: jobs, deploys: deploys, hub: hub, interval: interval, timeout: timeout, logger: logger}
}

// session tracks per-watch emission state shared by both loops.
type session struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (s *session) admit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Watch runs both loops until each reaches a terminal observation, the
// timeout elapses or ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, projectID, jobID, vercelProjectID string) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	sess := &session{seen: make(map[string]struct{})}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.watchJob(ctx, sess, projectID, jobID)
	}()
	go func() {
		defer wg.Done()
		w.watchDeployment(ctx, sess, projectID, vercelProjectID)
	}()
	wg.Wait()
}

// WatchJob polls the ledger until the job reaches a terminal status.
func (w *Watcher) WatchJob(ctx context.Context, projectID, jobID string) {
	w.watchJob(ctx, &session{seen: make(map[string]struct{})}, projectID, jobID)
}

func (w *Watcher) watchJob(ctx context.Context, sess *session, projectID, jobID string) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		// Stop flag first: once cancellation is observed, no further call
		// attributable to this loop may happen.
		if ctx.Err() != nil {
			return
		}
		job, err := w.jobs.Get(ctx, jobID)
		if err != nil {
			w.logger.Warn("job poll failed", "job_id", jobID, "error", err)
		} else {
			w.emitJobLogs(sess, projectID, job)
			if job.Status.Terminal() {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// WatchDeployment polls the provider until the build reaches a terminal state.
func (w *Watcher) WatchDeployment(ctx context.Context, projectID, vercelProjectID string) {
	w.watchDeployment(ctx, &session{seen: make(map[string]struct{})}, projectID, vercelProjectID)
}

func (w *Watcher) watchDeployment(ctx context.Context, sess *session, projectID, vercelProjectID string) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		deployment, err := w.deploys.LatestDeployment(ctx, vercelProjectID)
		if err != nil {
			w.logger.Warn("deployment poll failed", "vercel_project_id", vercelProjectID, "error", err)
		} else if deployment != nil {
			events, err := w.deploys.BuildEvents(ctx, deployment.ID)
			if err != nil {
				w.logger.Warn("build events poll failed", "deployment_id", deployment.ID, "error", err)
			} else {
				w.emit(sess, projectID, events)
			}
			if deployment.State.Terminal() {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) emitJobLogs(sess *session, projectID string, job *domain.Job) {
	entries := make([]domain.DeploymentLog, 0, len(job.Logs))
	for i, line := range job.Logs {
		entries = append(entries, domain.DeploymentLog{
			ID:        fmt.Sprintf("job:%s:%d", job.ID, i),
			CreatedAt: job.UpdatedAt,
			Source:    "setup",
			Text:      line,
			Type:      "stdout",
		})
	}
	w.emit(sess, projectID, entries)
}

func (w *Watcher) emit(sess *session, projectID string, entries []domain.DeploymentLog) {
	for _, entry := range entries {
		if !sess.admit(entry.ID) {
			continue
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			w.logger.Warn("log marshal failed", "log_id", entry.ID, "error", err)
			continue
		}
		w.hub.Broadcast(projectID, payload)
	}
}
