package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/suPer8Hu/coursegen/internal/ai"
	"github.com/suPer8Hu/coursegen/internal/common"
	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/logger"
	"github.com/suPer8Hu/coursegen/internal/prompt"
	"github.com/suPer8Hu/coursegen/internal/schema"
)

// Gateway is the persistence surface the processor needs. *course.Repo implements it.
type Gateway interface {
	GetCourseConfiguration(ctx context.Context, courseID string) (*course.CourseConfiguration, error)
	GetSyllabus(ctx context.Context, courseID string) (*course.Syllabus, error)
	UpdateSyllabus(ctx context.Context, courseID string, modules []course.Module, keywords []string, status course.SyllabusStatus) error
	UpdateSyllabusStatus(ctx context.Context, courseID string, status course.SyllabusStatus) error
	GetExistingContentForTopic(ctx context.Context, courseID string, moduleIndex, topicIndex int) ([]course.ContentItem, error)
	CompleteContentJob(ctx context.Context, jobID string, item *course.ContentItem, completedAt time.Time) error
	CreateContentJob(ctx context.Context, job *course.ContentJob) error

	GetSyllabusJob(ctx context.Context, id string) (*course.SyllabusJob, error)
	GetContentJob(ctx context.Context, id string) (*course.ContentJob, error)
	GetPendingSyllabusJob(ctx context.Context, courseID string) (*course.SyllabusJob, error)
	GetPendingContentJob(ctx context.Context, key course.ContentKey) (*course.ContentJob, error)
	ClaimSyllabusJob(ctx context.Context, id string, startedAt time.Time) error
	ClaimContentJob(ctx context.Context, id string, startedAt time.Time) error
	UpdateSyllabusJobStatus(ctx context.Context, id string, status course.JobStatus, upd course.JobUpdate) error
	UpdateContentJobStatus(ctx context.Context, id string, status course.JobStatus, upd course.JobUpdate) error
}

// Generator returns the parsed JSON object produced for a prompt pair. *ai.Client implements it.
type Generator interface {
	Generate(ctx context.Context, system, user string, schema ai.Schema) (map[string]any, error)
}

// Locker guards a job across workers. Without one the atomic claim is the only guard.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context), acquired bool, err error)
}

type Event struct {
	Kind     course.JobKind   `json:"kind"`
	JobID    string           `json:"job_id"`
	CourseID string           `json:"course_id"`
	Status   course.JobStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
}

// Notifier announces terminal job states. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type Recorder interface {
	ObserveJob(kind, outcome string, elapsed time.Duration)
}

type Deps struct {
	Gateway   Gateway
	Generator Generator
	Prompts   *prompt.Builder
	// MaxRetries is stamped on the content jobs a finished syllabus schedules.
	MaxRetries int

	Dispatcher course.Publisher
	Locker     Locker
	Notifier   Notifier
	Recorder   Recorder
	Log        *logger.Logger
	Now        func() time.Time
}

type Processor struct {
	gw         Gateway
	gen        Generator
	prompts    *prompt.Builder
	maxRetries int
	dispatch   course.Publisher
	locker     Locker
	notifier   Notifier
	rec        Recorder
	log        *logger.Logger
	now        func() time.Time
}

func NewProcessor(d Deps) *Processor {
	p := &Processor{
		gw:         d.Gateway,
		gen:        d.Generator,
		prompts:    d.Prompts,
		maxRetries: d.MaxRetries,
		dispatch:   d.Dispatcher,
		locker:     d.Locker,
		notifier:   d.Notifier,
		rec:        d.Recorder,
		log:        d.Log,
		now:        d.Now,
	}
	if p.log == nil {
		p.log = logger.Nop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	return p
}

type SyllabusResult struct {
	JobID        string   `json:"job_id"`
	CourseID     string   `json:"course_id"`
	Modules      int      `json:"modules"`
	ContentJobs  []string `json:"content_jobs"`
	ScheduleErrs int      `json:"schedule_errors,omitempty"`
}

type ContentResult struct {
	JobID       string             `json:"job_id"`
	CourseID    string             `json:"course_id"`
	ContentID   string             `json:"content_id"`
	ModuleIndex int                `json:"module_index"`
	TopicIndex  int                `json:"topic_index"`
	ContentType course.ContentType `json:"content_type"`
	OrderIndex  int                `json:"order_index"`
}

func (p *Processor) ProcessSyllabusJob(ctx context.Context, ref JobRef) (res *SyllabusResult, err error) {
	start := p.now()
	defer func() { p.observe(course.KindSyllabus, err, start) }()

	var job *course.SyllabusJob
	if ref.JobID != "" {
		job, err = p.gw.GetSyllabusJob(ctx, ref.JobID)
	} else {
		job, err = p.gw.GetPendingSyllabusJob(ctx, ref.CourseID)
	}
	if err != nil {
		return nil, err
	}
	log := p.log.With("kind", course.KindSyllabus, "job_id", job.ID, "course_id", job.CourseConfigurationID)

	unlock, err := p.lock(ctx, course.KindSyllabus, job.ID, log)
	if err != nil {
		return nil, err
	}
	defer unlock(context.WithoutCancel(ctx))

	if job.Status != course.JobPending {
		return nil, &IneligibleJobError{Kind: course.KindSyllabus, JobID: job.ID, Status: job.Status}
	}
	if job.Retries >= job.MaxRetries {
		log.Warn("syllabus job out of retries", "retries", job.Retries, "max_retries", job.MaxRetries)
		return nil, p.failSyllabus(ctx, job, &RetriesExceededError{JobID: job.ID, Retries: job.Retries, MaxRetries: job.MaxRetries})
	}

	if err := p.gw.ClaimSyllabusJob(ctx, job.ID, p.now()); err != nil {
		if errors.Is(err, course.ErrJobNotClaimable) {
			return nil, &IneligibleJobError{Kind: course.KindSyllabus, JobID: job.ID, Status: p.syllabusJobStatus(ctx, job.ID)}
		}
		return nil, persist("claim syllabus job", err)
	}
	log.Info("syllabus job started", "attempt", job.Retries+1)

	res, err = p.generateSyllabus(ctx, job)
	if err != nil {
		log.Error("syllabus job failed", "error", err)
		return nil, p.failSyllabus(ctx, job, err)
	}
	p.notify(ctx, Event{Kind: course.KindSyllabus, JobID: job.ID, CourseID: job.CourseConfigurationID, Status: course.JobCompleted})
	log.Info("syllabus job completed", "modules", res.Modules)

	res.ContentJobs, res.ScheduleErrs = p.scheduleFirstModule(ctx, job.CourseConfigurationID, log)
	return res, nil
}

func (p *Processor) generateSyllabus(ctx context.Context, job *course.SyllabusJob) (*SyllabusResult, error) {
	courseID := job.CourseConfigurationID
	if err := p.gw.UpdateSyllabusStatus(ctx, courseID, course.SyllabusGenerating); err != nil {
		return nil, persist("mark syllabus generating", err)
	}

	cfg, err := p.gw.GetCourseConfiguration(ctx, courseID)
	if err != nil {
		return nil, err
	}
	st, err := schema.StructureForDepth(cfg.Depth)
	if err != nil {
		return nil, err
	}
	ps, err := p.prompts.Syllabus(*cfg, st)
	if err != nil {
		return nil, err
	}
	raw, err := p.gen.Generate(ctx, ps.System, ps.User, ai.Schema{Name: "course_syllabus", Definition: schema.SyllabusJSONSchema(st)})
	if err != nil {
		return nil, err
	}
	draft, err := schema.Syllabus(raw, cfg.Depth)
	if err != nil {
		return nil, err
	}

	if err := p.gw.UpdateSyllabus(ctx, courseID, draft.Modules, draft.Keywords, course.SyllabusCompleted); err != nil {
		return nil, persist("save syllabus", err)
	}
	now := p.now()
	if err := p.gw.UpdateSyllabusJobStatus(ctx, job.ID, course.JobCompleted, course.JobUpdate{ClearError: true, CompletedAt: &now}); err != nil {
		return nil, persist("mark syllabus job completed", err)
	}
	return &SyllabusResult{JobID: job.ID, CourseID: courseID, Modules: len(draft.Modules)}, nil
}

// scheduleFirstModule queues one text content job per topic of module 0.
// Failures are logged and counted, never returned.
func (p *Processor) scheduleFirstModule(ctx context.Context, courseID string, log *logger.Logger) ([]string, int) {
	syl, err := p.gw.GetSyllabus(ctx, courseID)
	if err != nil {
		log.Warn("schedule first module: load syllabus", "error", err)
		return nil, 1
	}
	modules := syl.Modules.Data()
	if len(modules) == 0 {
		return nil, 0
	}

	var ids []string
	failures := 0
	for i, topic := range modules[0].Topics {
		job, err := course.NewContentJob(courseID, 0, i, course.ContentText, firstModulePrompt(topic), p.maxRetries)
		if err == nil {
			err = p.gw.CreateContentJob(ctx, job)
		}
		if err != nil {
			failures++
			log.Warn("schedule first module: create content job", "topic_index", i, "error", err)
			continue
		}
		ids = append(ids, job.ID)
		if p.dispatch == nil {
			continue
		}
		if err := p.dispatch.PublishJob(ctx, course.KindContent, job.ID); err != nil {
			failures++
			log.Warn("schedule first module: publish content job", "content_job_id", job.ID, "error", err)
		}
	}
	return ids, failures
}

// firstModulePrompt steers the opening lesson of a topic towards its syllabus summary.
func firstModulePrompt(t course.Topic) string {
	summary := strings.TrimSpace(t.Summary)
	if summary == "" {
		return "Write the opening lesson for this topic."
	}
	return fmt.Sprintf("Write the opening lesson for this topic. Focus on: %s", summary)
}

func (p *Processor) failSyllabus(ctx context.Context, job *course.SyllabusJob, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	now := p.now()

	errs := []error{cause}
	if err := p.gw.UpdateSyllabusJobStatus(ctx, job.ID, course.JobFailed, course.JobUpdate{ErrorMessage: &msg, CompletedAt: &now}); err != nil {
		errs = append(errs, persist("mark syllabus job failed", err))
	}
	if err := p.gw.UpdateSyllabusStatus(ctx, job.CourseConfigurationID, course.SyllabusFailed); err != nil {
		errs = append(errs, persist("mark syllabus failed", err))
	}
	p.notify(ctx, Event{Kind: course.KindSyllabus, JobID: job.ID, CourseID: job.CourseConfigurationID, Status: course.JobFailed, Error: msg})
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}

func (p *Processor) ProcessContentJob(ctx context.Context, ref JobRef) (res *ContentResult, err error) {
	start := p.now()
	defer func() { p.observe(course.KindContent, err, start) }()

	var job *course.ContentJob
	if ref.JobID != "" {
		job, err = p.gw.GetContentJob(ctx, ref.JobID)
	} else {
		job, err = p.gw.GetPendingContentJob(ctx, ref.ContentKey())
	}
	if err != nil {
		return nil, err
	}
	log := p.log.With("kind", course.KindContent, "job_id", job.ID, "course_id", job.CourseConfigurationID,
		"module_index", job.ModuleIndex, "topic_index", job.TopicIndex)

	unlock, err := p.lock(ctx, course.KindContent, job.ID, log)
	if err != nil {
		return nil, err
	}
	defer unlock(context.WithoutCancel(ctx))

	if job.Status != course.JobPending {
		return nil, &IneligibleJobError{Kind: course.KindContent, JobID: job.ID, Status: job.Status}
	}
	if job.Retries >= job.MaxRetries {
		log.Warn("content job out of retries", "retries", job.Retries, "max_retries", job.MaxRetries)
		return nil, p.failContent(ctx, job, &RetriesExceededError{JobID: job.ID, Retries: job.Retries, MaxRetries: job.MaxRetries})
	}
	if !job.ContentType.Valid() {
		return nil, p.failContent(ctx, job, &InvalidContentTypeError{ContentType: job.ContentType})
	}

	if err := p.gw.ClaimContentJob(ctx, job.ID, p.now()); err != nil {
		if errors.Is(err, course.ErrJobNotClaimable) {
			return nil, &IneligibleJobError{Kind: course.KindContent, JobID: job.ID, Status: p.contentJobStatus(ctx, job.ID)}
		}
		return nil, persist("claim content job", err)
	}
	log.Info("content job started", "attempt", job.Retries+1, "content_type", job.ContentType)

	res, err = p.generateContent(ctx, job)
	if err != nil {
		log.Error("content job failed", "error", err)
		return nil, p.failContent(ctx, job, err)
	}
	p.notify(ctx, Event{Kind: course.KindContent, JobID: job.ID, CourseID: job.CourseConfigurationID, Status: course.JobCompleted})
	log.Info("content job completed", "content_id", res.ContentID, "order_index", res.OrderIndex)
	return res, nil
}

func (p *Processor) generateContent(ctx context.Context, job *course.ContentJob) (*ContentResult, error) {
	courseID := job.CourseConfigurationID
	cfg, err := p.gw.GetCourseConfiguration(ctx, courseID)
	if err != nil {
		return nil, err
	}
	syl, err := p.gw.GetSyllabus(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if syl.Status != course.SyllabusCompleted {
		return nil, fmt.Errorf("syllabus for course %s is %s, not completed", courseID, syl.Status)
	}
	prior, err := p.gw.GetExistingContentForTopic(ctx, courseID, job.ModuleIndex, job.TopicIndex)
	if err != nil {
		return nil, err
	}

	ps, err := p.prompts.Content(prompt.ContentInput{
		Course:      *cfg,
		Modules:     syl.Modules.Data(),
		ModuleIndex: job.ModuleIndex,
		TopicIndex:  job.TopicIndex,
		ContentType: job.ContentType,
		Instruction: job.Prompt,
		Previous:    prior,
	})
	if err != nil {
		return nil, err
	}
	raw, err := p.gen.Generate(ctx, ps.System, ps.User, ai.Schema{Name: "course_content", Definition: schema.ContentJSONSchema()})
	if err != nil {
		return nil, err
	}
	gc, err := schema.Content(raw)
	if err != nil {
		return nil, err
	}

	item := &course.ContentItem{
		ID:                    common.NewUUID(),
		CourseConfigurationID: courseID,
		ModuleIndex:           job.ModuleIndex,
		TopicIndex:            job.TopicIndex,
		ContentType:           job.ContentType,
		Title:                 gc.Title,
		Description:           gc.Description,
		ContentData: datatypes.NewJSONType(course.TextData{
			Content:   gc.Content,
			Format:    "markdown",
			Citations: gc.Citations,
		}),
	}
	if err := p.gw.CompleteContentJob(ctx, job.ID, item, p.now()); err != nil {
		return nil, persist("save content item", err)
	}

	return &ContentResult{
		JobID:       job.ID,
		CourseID:    courseID,
		ContentID:   item.ID,
		ModuleIndex: job.ModuleIndex,
		TopicIndex:  job.TopicIndex,
		ContentType: job.ContentType,
		OrderIndex:  item.OrderIndex,
	}, nil
}

func (p *Processor) failContent(ctx context.Context, job *course.ContentJob, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	now := p.now()

	err := p.gw.UpdateContentJobStatus(ctx, job.ID, course.JobFailed, course.JobUpdate{ErrorMessage: &msg, CompletedAt: &now})
	p.notify(ctx, Event{Kind: course.KindContent, JobID: job.ID, CourseID: job.CourseConfigurationID, Status: course.JobFailed, Error: msg})
	if err != nil {
		return errors.Join(cause, persist("mark content job failed", err))
	}
	return cause
}

func (p *Processor) lock(ctx context.Context, kind course.JobKind, jobID string, log *logger.Logger) (func(context.Context), error) {
	noop := func(context.Context) {}
	if p.locker == nil {
		return noop, nil
	}
	unlock, ok, err := p.locker.TryLock(ctx, string(kind)+":"+jobID)
	if err != nil {
		// the conditional claim still prevents double processing
		log.Warn("job lock unavailable", "error", err)
		return noop, nil
	}
	if !ok {
		return nil, &IneligibleJobError{Kind: kind, JobID: jobID, Status: course.JobPending, Locked: true}
	}
	return unlock, nil
}

func (p *Processor) syllabusJobStatus(ctx context.Context, id string) course.JobStatus {
	if j, err := p.gw.GetSyllabusJob(ctx, id); err == nil {
		return j.Status
	}
	return course.JobProcessing
}

func (p *Processor) contentJobStatus(ctx context.Context, id string) course.JobStatus {
	if j, err := p.gw.GetContentJob(ctx, id); err == nil {
		return j.Status
	}
	return course.JobProcessing
}

func (p *Processor) notify(ctx context.Context, ev Event) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, ev); err != nil {
		p.log.Warn("job notification failed", "job_id", ev.JobID, "error", err)
	}
}

func (p *Processor) observe(kind course.JobKind, err error, start time.Time) {
	if p.rec == nil {
		return
	}
	p.rec.ObserveJob(string(kind), Outcome(err), p.now().Sub(start))
}

// Outcome classifies a processing result for metrics and transports.
func Outcome(err error) string {
	var ineligible *IneligibleJobError
	switch {
	case err == nil:
		return "completed"
	case errors.As(err, &ineligible):
		return "ineligible"
	case errors.Is(err, course.ErrNotFound):
		return "not_found"
	default:
		return "failed"
	}
}
