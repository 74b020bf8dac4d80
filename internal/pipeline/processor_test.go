package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/coursegen/internal/ai"
	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/db"
	"github.com/suPer8Hu/coursegen/internal/prompt"
	"github.com/suPer8Hu/coursegen/internal/schema"
)

type fakeGenerator struct {
	docs    []map[string]any
	err     error
	calls   int
	schemas []string
}

func (g *fakeGenerator) Generate(ctx context.Context, system, user string, s ai.Schema) (map[string]any, error) {
	_ = ctx
	g.calls++
	g.schemas = append(g.schemas, s.Name)
	if g.err != nil {
		return nil, g.err
	}
	i := g.calls - 1
	if i >= len(g.docs) {
		i = len(g.docs) - 1
	}
	return g.docs[i], nil
}

type recordingPublisher struct {
	kinds []course.JobKind
	ids   []string
}

func (p *recordingPublisher) PublishJob(ctx context.Context, kind course.JobKind, jobID string) error {
	_ = ctx
	p.kinds = append(p.kinds, kind)
	p.ids = append(p.ids, jobID)
	return nil
}

type outcomeRecorder struct{ outcomes []string }

func (r *outcomeRecorder) ObserveJob(kind, outcome string, elapsed time.Duration) {
	r.outcomes = append(r.outcomes, kind+":"+outcome)
}

type heldLocker struct{}

func (heldLocker) TryLock(ctx context.Context, key string) (func(context.Context), bool, error) {
	return nil, false, nil
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	gdb  *gorm.DB
	repo *course.Repo
	svc  *course.Service
	gen  *fakeGenerator
	pub  *recordingPublisher
	rec  *outcomeRecorder
	proc *Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := db.OpenMemory(t.Name())
	require.NoError(t, err)
	b, err := prompt.NewBuilder()
	require.NoError(t, err)

	env := &testEnv{
		gdb:  gdb,
		repo: course.NewRepo(gdb),
		gen:  &fakeGenerator{},
		pub:  &recordingPublisher{},
		rec:  &outcomeRecorder{},
	}
	env.svc = course.NewService(env.repo, nil, 3)
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	env.proc = NewProcessor(Deps{
		Gateway:    env.repo,
		Generator:  env.gen,
		Prompts:    b,
		MaxRetries: 3,
		Dispatcher: env.pub,
		Recorder:   env.rec,
		Now:        clock.Now,
	})
	return env
}

func syllabusDoc(modules, topics int) map[string]any {
	mods := make([]any, 0, modules)
	for m := 0; m < modules; m++ {
		ts := make([]any, 0, topics)
		for i := 0; i < topics; i++ {
			ts = append(ts, map[string]any{
				"summary":  fmt.Sprintf("Topic %d.%d fundamentals", m, i),
				"keywords": []any{"state", "quorum", "log"},
				"content":  strings.Repeat("A replicated log orders commands across nodes. ", 4),
			})
		}
		mods = append(mods, map[string]any{
			"summary": fmt.Sprintf("Module %d introduces consensus building blocks", m),
			"topics":  ts,
		})
	}
	return map[string]any{
		"modules":  mods,
		"keywords": []any{"consensus", "raft", "paxos", "replication", "quorum"},
	}
}

func contentDoc(citations int) map[string]any {
	cs := make([]any, 0, citations)
	for i := 0; i < citations; i++ {
		cs = append(cs, map[string]any{
			"id":          fmt.Sprintf("c%d", i+1),
			"type":        "academic",
			"title":       "In Search of an Understandable Consensus Algorithm",
			"relevance":   "Defines leader election",
			"access_date": "2026-01-01",
		})
	}
	return map[string]any{
		"title":       "Leader election in Raft",
		"description": "How a Raft cluster picks and replaces its leader.",
		"content":     strings.Repeat("Raft elects a leader using randomized timeouts and terms. ", 12),
		"citations":   cs,
	}
}

func (e *testEnv) createCourse(t *testing.T, depth int) *course.CreatedCourse {
	t.Helper()
	created, err := e.svc.CreateCourse(context.Background(), "owner-1", "Consensus algorithms", "prepare for a systems role", depth)
	require.NoError(t, err)
	return created
}

// completedCourse returns a course whose syllabus (depth 3) has been generated.
func (e *testEnv) completedCourse(t *testing.T) *course.CreatedCourse {
	t.Helper()
	created := e.createCourse(t, 3)
	e.gen.docs = []map[string]any{syllabusDoc(4, 5)}
	_, err := e.proc.ProcessSyllabusJob(context.Background(), JobRef{JobID: created.JobID})
	require.NoError(t, err)
	e.gen.calls = 0
	return created
}

func (e *testEnv) contentJobs(t *testing.T, courseID string) []course.ContentJob {
	t.Helper()
	var jobs []course.ContentJob
	require.NoError(t, e.gdb.Where("course_configuration_id = ?", courseID).Order("topic_index ASC, created_at ASC").Find(&jobs).Error)
	return jobs
}

func TestProcessSyllabusJob_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 3)
	env.gen.docs = []map[string]any{syllabusDoc(4, 5)}

	res, err := env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Modules)
	assert.Len(t, res.ContentJobs, 5)
	assert.Equal(t, []string{"course_syllabus"}, env.gen.schemas)

	job, err := env.repo.GetSyllabusJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, course.JobCompleted, job.Status)
	assert.Nil(t, job.ErrorMessage)
	assert.Equal(t, 1, job.Retries)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.False(t, job.CompletedAt.Before(*job.StartedAt))

	syl, err := env.repo.GetSyllabus(ctx, created.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SyllabusCompleted, syl.Status)
	require.Len(t, syl.Modules.Data(), 4)
	for _, m := range syl.Modules.Data() {
		assert.Len(t, m.Topics, 5)
	}

	jobs := env.contentJobs(t, created.Course.ID)
	require.Len(t, jobs, 5)
	for i, j := range jobs {
		assert.Equal(t, course.JobPending, j.Status)
		assert.Equal(t, 0, j.ModuleIndex)
		assert.Equal(t, i, j.TopicIndex)
		assert.Equal(t, course.ContentText, j.ContentType)
		assert.Equal(t, 3, j.MaxRetries)
	}
	assert.Len(t, env.pub.ids, 5)
	assert.Equal(t, []string{"syllabus:completed"}, env.rec.outcomes)
}

func TestProcess_IneligibleJobIsUntouched(t *testing.T) {
	for _, status := range []course.JobStatus{course.JobProcessing, course.JobCompleted, course.JobFailed} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			created := env.createCourse(t, 1)
			require.NoError(t, env.gdb.Model(&course.SyllabusJob{}).Where("id = ?", created.JobID).Update("status", status).Error)
			before, err := env.repo.GetSyllabusJob(ctx, created.JobID)
			require.NoError(t, err)

			_, err = env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
			var ineligible *IneligibleJobError
			require.ErrorAs(t, err, &ineligible)
			assert.Equal(t, status, ineligible.Status)
			assert.Equal(t, "ineligible", Outcome(err))

			after, err := env.repo.GetSyllabusJob(ctx, created.JobID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Zero(t, env.gen.calls)

			syl, err := env.repo.GetSyllabus(ctx, created.Course.ID)
			require.NoError(t, err)
			assert.Equal(t, course.SyllabusPending, syl.Status)
		})
	}
}

func TestProcessContentJob_IneligibleCompletedJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.completedCourse(t)
	job := env.contentJobs(t, created.Course.ID)[0]
	env.gen.docs = []map[string]any{contentDoc(3)}

	_, err := env.proc.ProcessContentJob(ctx, JobRef{JobID: job.ID})
	require.NoError(t, err)

	// a redelivered trigger must not create a second item
	_, err = env.proc.ProcessContentJob(ctx, JobRef{JobID: job.ID})
	var ineligible *IneligibleJobError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, 1, env.gen.calls)

	items, err := env.repo.GetExistingContentForTopic(ctx, created.Course.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestProcessSyllabusJob_RetryCeiling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 2)
	require.NoError(t, env.gdb.Model(&course.SyllabusJob{}).Where("id = ?", created.JobID).Update("retries", 3).Error)

	_, err := env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
	var exceeded *RetriesExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Zero(t, env.gen.calls)

	job, err := env.repo.GetSyllabusJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, course.JobFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "Maximum retries exceeded", *job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)

	syl, err := env.repo.GetSyllabus(ctx, created.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SyllabusFailed, syl.Status)
}

func TestProcessContentJob_RetryCeiling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.completedCourse(t)
	job := env.contentJobs(t, created.Course.ID)[2]
	require.NoError(t, env.gdb.Model(&course.ContentJob{}).Where("id = ?", job.ID).Update("retries", 5).Error)

	_, err := env.proc.ProcessContentJob(ctx, JobRef{JobID: job.ID})
	assert.EqualError(t, err, "Maximum retries exceeded")
	assert.Zero(t, env.gen.calls)

	got, err := env.repo.GetContentJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, course.JobFailed, got.Status)

	// content failures never touch the syllabus
	syl, err := env.repo.GetSyllabus(ctx, created.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SyllabusCompleted, syl.Status)
}

func TestProcessSyllabusJob_SchemaRejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 3)
	doc := syllabusDoc(4, 5)
	doc["modules"].([]any)[0].(map[string]any)["summary"] = "short"
	env.gen.docs = []map[string]any{doc}

	_, err := env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "modules[0].summary", ve.Field)

	job, err := env.repo.GetSyllabusJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, course.JobFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "modules[0].summary")
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.False(t, job.CompletedAt.Before(*job.StartedAt))

	syl, err := env.repo.GetSyllabus(ctx, created.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.SyllabusFailed, syl.Status)
	assert.Empty(t, syl.Modules.Data())
	assert.Empty(t, env.contentJobs(t, created.Course.ID))
	assert.Equal(t, []string{"syllabus:failed"}, env.rec.outcomes)
}

func TestProcessSyllabusJob_WrongDepthStructure(t *testing.T) {
	env := newTestEnv(t)
	created := env.createCourse(t, 3)
	env.gen.docs = []map[string]any{syllabusDoc(3, 3)}

	_, err := env.proc.ProcessSyllabusJob(context.Background(), JobRef{JobID: created.JobID})
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "count", ve.Constraint)
}

func TestProcessContentJob_CitationFloor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.completedCourse(t)
	job := env.contentJobs(t, created.Course.ID)[0]
	env.gen.docs = []map[string]any{contentDoc(2)}

	_, err := env.proc.ProcessContentJob(ctx, JobRef{JobID: job.ID})
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "citations", ve.Field)

	got, err := env.repo.GetContentJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, course.JobFailed, got.Status)
	assert.Nil(t, got.ResultContentID)

	items, err := env.repo.GetExistingContentForTopic(ctx, created.Course.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestProcessContentJob_OrderingAndResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.completedCourse(t)
	env.gen.docs = []map[string]any{contentDoc(3)}

	for want := 0; want < 3; want++ {
		job, err := env.svc.RequestContent(ctx, created.Course.ID, 1, 2, course.ContentInteractive, "add exercises")
		require.NoError(t, err)

		res, err := env.proc.ProcessContentJob(ctx, JobRef{JobID: job.ID})
		require.NoError(t, err)
		assert.Equal(t, want, res.OrderIndex)

		got, err := env.repo.GetContentJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, course.JobCompleted, got.Status)
		require.NotNil(t, got.ResultContentID)
		assert.Equal(t, res.ContentID, *got.ResultContentID)
		assert.False(t, got.CompletedAt.Before(*got.StartedAt))
	}

	items, err := env.repo.GetExistingContentForTopic(ctx, created.Course.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, items, 3)
	data := items[2].ContentData.Data()
	assert.Equal(t, "markdown", data.Format)
	assert.Len(t, data.Citations, 3)
	assert.Equal(t, course.ContentInteractive, items[2].ContentType)
	assert.Equal(t, []string{"course_content"}, env.gen.schemas[len(env.gen.schemas)-1:])
}

func TestProcessContentJob_InvalidContentType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.completedCourse(t)
	job, err := course.NewContentJob(created.Course.ID, 0, 0, "hologram", "", 3)
	require.NoError(t, err)
	require.NoError(t, env.repo.CreateContentJob(ctx, job))

	_, err = env.proc.ProcessContentJob(ctx, JobRef{JobID: job.ID})
	assert.EqualError(t, err, "Invalid content type: hologram")
	assert.Zero(t, env.gen.calls)

	got, err := env.repo.GetContentJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, course.JobFailed, got.Status)
	assert.Equal(t, "Invalid content type: hologram", *got.ErrorMessage)
}

func TestProcess_KeyLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 3)
	env.gen.docs = []map[string]any{syllabusDoc(4, 5)}

	res, err := env.proc.ProcessSyllabusJob(ctx, JobRef{CourseID: created.Course.ID})
	require.NoError(t, err)
	assert.Equal(t, created.JobID, res.JobID)

	env.gen.docs = []map[string]any{contentDoc(4)}
	m, tp := 0, 3
	cres, err := env.proc.ProcessContentJob(ctx, JobRef{CourseID: created.Course.ID, ModuleIndex: &m, TopicIndex: &tp, ContentType: course.ContentText})
	require.NoError(t, err)
	assert.Equal(t, 3, cres.TopicIndex)

	// no pending job remains for that key
	_, err = env.proc.ProcessContentJob(ctx, JobRef{CourseID: created.Course.ID, ModuleIndex: &m, TopicIndex: &tp, ContentType: course.ContentText})
	assert.ErrorIs(t, err, course.ErrNotFound)
}

func TestProcess_NotFoundLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.proc.ProcessSyllabusJob(context.Background(), JobRef{JobID: "01MISSING"})
	assert.ErrorIs(t, err, course.ErrNotFound)
	assert.Equal(t, "not_found", Outcome(err))
	assert.Equal(t, []string{"syllabus:not_found"}, env.rec.outcomes)
}

func TestProcessSyllabusJob_GenerationError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 1)
	env.gen.err = &ai.GenerationError{Message: "provider call failed", Err: errors.New("503 upstream")}

	_, err := env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
	var ge *ai.GenerationError
	require.ErrorAs(t, err, &ge)

	job, err := env.repo.GetSyllabusJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, course.JobFailed, job.Status)
	assert.Contains(t, *job.ErrorMessage, "503 upstream")
	assert.Equal(t, 1, job.Retries)
}

func TestProcess_LockHeldElsewhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 1)
	env.proc.locker = heldLocker{}

	_, err := env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
	var ineligible *IneligibleJobError
	require.ErrorAs(t, err, &ineligible)
	assert.True(t, ineligible.Locked)
	assert.Zero(t, env.gen.calls)

	job, err := env.repo.GetSyllabusJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, course.JobPending, job.Status)
	assert.Zero(t, job.Retries)
}

// brokenStatusGateway fails every job status write while reads still work.
type brokenStatusGateway struct {
	*course.Repo
	err error
}

func (g brokenStatusGateway) UpdateSyllabusJobStatus(ctx context.Context, id string, status course.JobStatus, upd course.JobUpdate) error {
	return g.err
}

func (g brokenStatusGateway) UpdateSyllabusStatus(ctx context.Context, courseID string, status course.SyllabusStatus) error {
	if status == course.SyllabusFailed {
		return g.err
	}
	return g.Repo.UpdateSyllabusStatus(ctx, courseID, status)
}

func (g brokenStatusGateway) UpdateContentJobStatus(ctx context.Context, id string, status course.JobStatus, upd course.JobUpdate) error {
	return g.err
}

func TestProcessSyllabusJob_FailureWriteErrorIsJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createCourse(t, 1)
	dbDown := errors.New("db down")
	env.proc.gw = brokenStatusGateway{Repo: env.repo, err: dbDown}
	env.gen.err = &ai.GenerationError{Message: "provider call failed", Err: errors.New("503 upstream")}

	_, err := env.proc.ProcessSyllabusJob(ctx, JobRef{JobID: created.JobID})
	require.Error(t, err)

	var ge *ai.GenerationError
	assert.ErrorAs(t, err, &ge, "original cause stays in the chain")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "mark syllabus job failed", pe.Op)
	assert.ErrorIs(t, err, dbDown)
	assert.Contains(t, err.Error(), "mark syllabus failed")
	assert.Equal(t, []string{"syllabus:failed"}, env.rec.outcomes)
}

func TestProcessContentJob_FailureWriteErrorIsJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.completedCourse(t)
	jobID := env.contentJobs(t, created.Course.ID)[0].ID

	dbDown := errors.New("db down")
	env.proc.gw = brokenStatusGateway{Repo: env.repo, err: dbDown}
	env.gen.err = &ai.GenerationError{Message: "response is not a JSON object", Raw: "{oops"}

	_, err := env.proc.ProcessContentJob(ctx, JobRef{JobID: jobID})
	require.Error(t, err)

	var ge *ai.GenerationError
	assert.ErrorAs(t, err, &ge)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "mark content job failed", pe.Op)
	assert.ErrorIs(t, err, dbDown)

	// the claim went through, the failure write did not
	job, err := env.repo.GetContentJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, course.JobProcessing, job.Status)
	items, err := env.repo.GetExistingContentForTopic(ctx, created.Course.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestProcessSyllabusJob_FirstModuleJobsCarryTopicPrompt(t *testing.T) {
	env := newTestEnv(t)
	created := env.completedCourse(t)

	jobs := env.contentJobs(t, created.Course.ID)
	require.Len(t, jobs, 5)
	for i, j := range jobs {
		assert.Contains(t, j.Prompt, "opening lesson", "topic %d", i)
		assert.Contains(t, j.Prompt, fmt.Sprintf("Topic 0.%d fundamentals", i), "topic %d", i)
	}
}
