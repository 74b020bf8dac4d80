package course

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/coursegen/internal/common"
)

// Publisher enqueues a job for asynchronous processing.
type Publisher interface {
	PublishJob(ctx context.Context, kind JobKind, jobID string) error
}

var ErrInvalidInput = errors.New("invalid input")

// Service creates the pending rows the job pipeline later consumes.
type Service struct {
	repo       *Repo
	publisher  Publisher
	maxRetries int
}

func NewService(repo *Repo, publisher Publisher, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{repo: repo, publisher: publisher, maxRetries: maxRetries}
}

type CreatedCourse struct {
	Course     *CourseConfiguration
	SyllabusID string
	JobID      string
}

func (s *Service) CreateCourse(ctx context.Context, ownerID, topic, courseContext string, depth int) (*CreatedCourse, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if depth < 1 || depth > 5 {
		return nil, fmt.Errorf("%w: depth must be between 1 and 5, got %d", ErrInvalidInput, depth)
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	cfg := &CourseConfiguration{
		ID:      common.NewUUID(),
		OwnerID: ownerID,
		Topic:   topic,
		Context: strings.TrimSpace(courseContext),
		Depth:   depth,
	}
	syl := &Syllabus{
		ID:                    common.NewUUID(),
		CourseConfigurationID: cfg.ID,
		Status:                SyllabusPending,
	}
	job := &SyllabusJob{
		ID:                    jobID,
		CourseConfigurationID: cfg.ID,
		JobState:              JobState{Status: JobPending, MaxRetries: s.maxRetries},
	}

	if err := s.repo.CreateCourse(ctx, cfg, syl, job); err != nil {
		return nil, err
	}

	out := &CreatedCourse{Course: cfg, SyllabusID: syl.ID, JobID: job.ID}
	if s.publisher != nil {
		if err := s.publisher.PublishJob(ctx, KindSyllabus, job.ID); err != nil {
			return out, fmt.Errorf("enqueue syllabus job %s: %w", job.ID, err)
		}
	}
	return out, nil
}

// NewContentJob builds a pending content job row; it is not persisted.
func NewContentJob(courseID string, moduleIndex, topicIndex int, contentType ContentType, prompt string, maxRetries int) (*ContentJob, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	return &ContentJob{
		ID:                    id,
		CourseConfigurationID: courseID,
		ModuleIndex:           moduleIndex,
		TopicIndex:            topicIndex,
		ContentType:           contentType,
		Prompt:                prompt,
		JobState:              JobState{Status: JobPending, MaxRetries: maxRetries},
	}, nil
}

// RequestContent creates a fresh pending content job for one topic. This is the
// retry path after a failed generation: failed rows are never reopened.
func (s *Service) RequestContent(ctx context.Context, courseID string, moduleIndex, topicIndex int, contentType ContentType, prompt string) (*ContentJob, error) {
	if contentType == "" {
		contentType = ContentText
	}
	if !contentType.Valid() {
		return nil, fmt.Errorf("%w: invalid content type: %s", ErrInvalidInput, contentType)
	}
	if moduleIndex < 0 || topicIndex < 0 {
		return nil, fmt.Errorf("%w: module and topic indexes must be non-negative", ErrInvalidInput)
	}
	if _, err := s.repo.GetCourseConfiguration(ctx, courseID); err != nil {
		return nil, err
	}

	job, err := NewContentJob(courseID, moduleIndex, topicIndex, contentType, strings.TrimSpace(prompt), s.maxRetries)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateContentJob(ctx, job); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishJob(ctx, KindContent, job.ID); err != nil {
			return job, fmt.Errorf("enqueue content job %s: %w", job.ID, err)
		}
	}
	return job, nil
}

func (s *Service) GetSyllabusJob(ctx context.Context, id string) (*SyllabusJob, error) {
	return s.repo.GetSyllabusJob(ctx, id)
}

func (s *Service) GetContentJob(ctx context.Context, id string) (*ContentJob, error) {
	return s.repo.GetContentJob(ctx, id)
}

func (s *Service) GetSyllabus(ctx context.Context, courseID string) (*Syllabus, error) {
	return s.repo.GetSyllabus(ctx, courseID)
}

func (s *Service) ListTopicContent(ctx context.Context, courseID string, moduleIndex, topicIndex int) ([]ContentItem, error) {
	return s.repo.GetExistingContentForTopic(ctx, courseID, moduleIndex, topicIndex)
}
