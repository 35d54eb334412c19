package models

import (
	"time"

	"github.com/google/uuid"
)

// Recompute job names.
const (
	JobStatisticalUpdate = "statistical-data-update"
	JobSimilarityUpdate  = "similarity-data-update"
	JobSerendipityUpdate = "serendipity-data-update"
)

// KnownJob reports whether name is one of the three recompute triggers.
func KnownJob(name string) bool {
	switch name {
	case JobStatisticalUpdate, JobSimilarityUpdate, JobSerendipityUpdate:
		return true
	}
	return false
}

// ScoreJob is a recompute trigger delivered through the job queue. An empty
// Dialects list means every configured dialect.
type ScoreJob struct {
	JobID       uuid.UUID `json:"job_id"`
	Name        string    `json:"name"`
	Dialects    []string  `json:"dialects,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	RetryCount  int       `json:"retry_count"`
}

// JobAccepted is returned by the admin trigger endpoint.
type JobAccepted struct {
	JobID  uuid.UUID `json:"job_id"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
}

// JobRequest is the optional body of the admin trigger endpoint.
type JobRequest struct {
	Dialects []string `json:"dialects" validate:"omitempty,dive,min=2,max=16"`
}
