package domain

import "time"

// JobStatus is the lifecycle state of a pipeline job. Transitions are
// monotonic: pending -> in-progress -> {completed, failed}.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job may no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobTypeSetup marks the job created by the provisioning pipeline.
const JobTypeSetup = "setup"

// Job tracks one unit of asynchronous pipeline work.
type Job struct {
	ID        string    `json:"jobId"`
	ProjectID string    `json:"projectId"`
	Type      string    `json:"type"`
	Status    JobStatus `json:"status"`
	Logs      []string  `json:"logs,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobUpdate captures mutable job fields. Nil fields are left untouched;
// merge semantics are last-write-wins per field.
type JobUpdate struct {
	JobID      string
	Status     *JobStatus
	Error      *string
	AppendLogs []string
}
