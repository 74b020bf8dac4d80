package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/suPer8Hu/coursegen/internal/course"
)

type TriggerKind string

const (
	TriggerDirect  TriggerKind = "direct"
	TriggerWebhook TriggerKind = "webhook"
)

// JobRef identifies a job either by id or by the key of a pending job.
type JobRef struct {
	Trigger     TriggerKind
	JobID       string
	CourseID    string
	ModuleIndex *int
	TopicIndex  *int
	ContentType course.ContentType
}

func (r JobRef) ContentKey() course.ContentKey {
	k := course.ContentKey{CourseID: r.CourseID, ContentType: r.ContentType}
	if r.ModuleIndex != nil {
		k.ModuleIndex = *r.ModuleIndex
	}
	if r.TopicIndex != nil {
		k.TopicIndex = *r.TopicIndex
	}
	return k
}

type triggerFields struct {
	ID                    string `json:"id"`
	JobID                 string `json:"job_id"`
	CourseConfigurationID string `json:"course_configuration_id"`
	ModuleIndex           *int   `json:"module_index"`
	TopicIndex            *int   `json:"topic_index"`
	ContentType           string `json:"content_type"`
}

// triggerBody accepts both the database webhook envelope
// {table, type, record:{...}} and a direct call with top-level fields.
type triggerBody struct {
	Table  string         `json:"table"`
	Type   string         `json:"type"`
	Record *triggerFields `json:"record"`
	triggerFields
}

func parseTrigger(body []byte) (JobRef, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return JobRef{}, &MissingParametersError{Reason: "request body is empty"}
	}
	var tb triggerBody
	if err := json.Unmarshal(body, &tb); err != nil {
		return JobRef{}, &MissingParametersError{Reason: "request body is not a valid JSON object: " + err.Error()}
	}

	ref := JobRef{Trigger: TriggerDirect}
	f := tb.triggerFields
	if tb.Record != nil {
		ref.Trigger = TriggerWebhook
		f = *tb.Record
		// on the job tables the row id is the job id
		if f.JobID == "" {
			f.JobID = f.ID
		}
	}
	ref.JobID = strings.TrimSpace(f.JobID)
	ref.CourseID = strings.TrimSpace(f.CourseConfigurationID)
	ref.ModuleIndex = f.ModuleIndex
	ref.TopicIndex = f.TopicIndex
	ref.ContentType = course.ContentType(strings.TrimSpace(f.ContentType))
	return ref, nil
}

// ParseSyllabusTrigger requires job_id or course_configuration_id.
func ParseSyllabusTrigger(body []byte) (JobRef, error) {
	ref, err := parseTrigger(body)
	if err != nil {
		return JobRef{}, err
	}
	if ref.JobID == "" && ref.CourseID == "" {
		return JobRef{}, &MissingParametersError{Missing: []string{"course_configuration_id"}}
	}
	return ref, nil
}

// ParseContentTrigger requires job_id, or course_configuration_id together
// with module_index, topic_index and content_type.
func ParseContentTrigger(body []byte) (JobRef, error) {
	ref, err := parseTrigger(body)
	if err != nil {
		return JobRef{}, err
	}
	if ref.JobID != "" {
		return ref, nil
	}
	var missing []string
	if ref.CourseID == "" {
		missing = append(missing, "course_configuration_id")
	}
	if ref.ModuleIndex == nil {
		missing = append(missing, "module_index")
	}
	if ref.TopicIndex == nil {
		missing = append(missing, "topic_index")
	}
	if ref.ContentType == "" {
		missing = append(missing, "content_type")
	}
	if len(missing) > 0 {
		return JobRef{}, &MissingParametersError{Missing: missing}
	}
	return ref, nil
}
