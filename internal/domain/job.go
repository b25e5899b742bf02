package domain

import "time"

// JobStatus enumerates ingestion job milestones.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions happen from the status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IngestionJob is a per-business scrape request tracked by the queue.
type IngestionJob struct {
	ID          int64
	BusinessID  int64
	SourceKey   string
	Status      JobStatus
	Priority    int
	RetryCount  int
	LastError   string
	ClaimToken  string
	RequestedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	UpdatedAt   time.Time
}

// Paused reports whether the job is excluded from scheduling.
func (j IngestionJob) Paused() bool {
	return j.Priority < 0
}

// QueueStatus summarizes queue occupancy for operators and the read API.
type QueueStatus struct {
	Pending        int `json:"pending"`
	Processing     int `json:"processing"`
	Paused         int `json:"paused"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
	MaxConnections int `json:"maxConnections"`
}
