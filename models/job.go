package models

import "time"

// JobStatus represents the lifecycle state of a query job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Job is one query-to-answer processing unit. A job is created by POST /ask,
// mutated only by the orchestrator that claimed it, and evicted by age.
type Job struct {
	ID        string    `json:"job_id"`
	Query     string    `json:"query"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
	Result    string    `json:"result,omitempty"`
}

// JobResponse is the body returned by POST /ask
type JobResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// JobStatusResponse is the body returned by GET /ask/:job_id
type JobStatusResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
	Error     string    `json:"error,omitempty"`
}
