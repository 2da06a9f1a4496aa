package models

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Job is the status record of one asynchronous transcription.
// Result is set only when COMPLETED, Error only when FAILED.
type Job struct {
	ID        string    `db:"id" json:"id"`
	Status    JobStatus `db:"status" json:"status"`
	Result    string    `db:"result" json:"result,omitempty"`
	Error     string    `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func NewJob(id string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether from -> to is an edge of
// PENDING -> PROCESSING -> {COMPLETED | FAILED}.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobPending:
		return to == JobProcessing
	case JobProcessing:
		return to == JobCompleted || to == JobFailed
	default:
		return false
	}
}

func (j *Job) IsTerminal() bool { return j.Status.Terminal() }

func (j *Job) Start(now time.Time) error {
	return j.advance(JobProcessing, now)
}

func (j *Job) Complete(text string, now time.Time) error {
	if err := j.advance(JobCompleted, now); err != nil {
		return err
	}
	j.Result = text
	j.Error = ""
	return nil
}

func (j *Job) Fail(msg string, now time.Time) error {
	if err := j.advance(JobFailed, now); err != nil {
		return err
	}
	j.Error = msg
	j.Result = ""
	return nil
}

func (j *Job) advance(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}
