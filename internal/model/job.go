package model

import "time"

// JobStatus represents the state of a batch enrichment job.
type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusStopped  JobStatus = "stopped"
	JobStatusFailed   JobStatus = "failed"
)

// Job is a handle to a batch enrichment run.
type Job struct {
	ID        string        `json:"id"`
	Status    JobStatus     `json:"status"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Summary   *BatchSummary `json:"summary,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Progress returns completion as a percentage.
func (j Job) Progress() float64 {
	if j.Total == 0 {
		return 0
	}
	return float64(j.Current) / float64(j.Total) * 100
}

// BatchSummary is the user-visible outcome of a batch: how many leads were
// filtered out and why, and how many fields were left unknown. Never a bare
// success/failure flag.
type BatchSummary struct {
	Total             int            `json:"total"`
	Kept              int            `json:"kept"`
	Removed           int            `json:"removed"`
	RemovalRate       float64        `json:"removal_rate"`
	RemovalReasons    map[string]int `json:"removal_reasons,omitempty"`
	Enriched          int            `json:"enriched"`
	SkippedDuplicates int            `json:"skipped_duplicates"`
	FieldsUnknown     map[string]int `json:"fields_unknown,omitempty"`
	AdmissionDenials  map[string]int `json:"admission_denials,omitempty"`
}
