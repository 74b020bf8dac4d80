package pipeline

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/coursegen/internal/course"
)

// IneligibleJobError means the job was already handled or is being handled
// elsewhere. The job row is left untouched.
type IneligibleJobError struct {
	Kind   course.JobKind
	JobID  string
	Status course.JobStatus
	// Locked is set when another worker holds the job lock.
	Locked bool
}

func (e *IneligibleJobError) Error() string {
	if e.Locked {
		return fmt.Sprintf("%s job %s is locked by another worker", e.Kind, e.JobID)
	}
	return fmt.Sprintf("%s job %s already handled (status %s)", e.Kind, e.JobID, e.Status)
}

type RetriesExceededError struct {
	JobID      string
	Retries    int
	MaxRetries int
}

func (e *RetriesExceededError) Error() string { return "Maximum retries exceeded" }

type InvalidContentTypeError struct {
	ContentType course.ContentType
}

func (e *InvalidContentTypeError) Error() string {
	return fmt.Sprintf("Invalid content type: %s", e.ContentType)
}

// MissingParametersError rejects a trigger that names neither a job id nor a full job key.
type MissingParametersError struct {
	Missing []string
	Reason  string
}

func (e *MissingParametersError) Error() string {
	if e.Reason != "" {
		return "missing parameters: " + e.Reason
	}
	return "missing parameters: provide job_id or " + strings.Join(e.Missing, ", ")
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

func persist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
