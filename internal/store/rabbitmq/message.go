package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/coursegen/internal/course"
)

type JobMessage struct {
	Kind  course.JobKind `json:"kind"`
	JobID string         `json:"job_id"`
}

var ErrBadMessage = errors.New("bad job message")

func EncodeJob(kind course.JobKind, jobID string) ([]byte, error) {
	return json.Marshal(JobMessage{Kind: kind, JobID: jobID})
}

func DecodeJob(body []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return JobMessage{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	m.JobID = strings.TrimSpace(m.JobID)
	if m.JobID == "" {
		return JobMessage{}, fmt.Errorf("%w: job_id is empty", ErrBadMessage)
	}
	switch m.Kind {
	case course.KindSyllabus, course.KindContent:
	default:
		return JobMessage{}, fmt.Errorf("%w: unknown kind %q", ErrBadMessage, m.Kind)
	}
	return m, nil
}
