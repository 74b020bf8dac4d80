package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/coursegen/internal/common"
	"github.com/suPer8Hu/coursegen/internal/pipeline"
)

const maxTriggerBody = 1 << 20

// GenerateSyllabus runs one syllabus job synchronously. The body is either a
// database webhook envelope or {job_id} / {course_configuration_id}.
func (h *Handler) GenerateSyllabus(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	ref, err := pipeline.ParseSyllabusTrigger(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := h.triggerContext(c)
	defer cancel()

	res, err := h.Processor.ProcessSyllabusJob(ctx, ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message":      "Syllabus generated",
		"job_id":       res.JobID,
		"course_id":    res.CourseID,
		"modules":      res.Modules,
		"content_jobs": res.ContentJobs,
	})
}

func (h *Handler) GenerateContent(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	ref, err := pipeline.ParseContentTrigger(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := h.triggerContext(c)
	defer cancel()

	res, err := h.Processor.ProcessContentJob(ctx, ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{
		"message":      "Content generated",
		"job_id":       res.JobID,
		"course_id":    res.CourseID,
		"content_id":   res.ContentID,
		"module_index": res.ModuleIndex,
		"topic_index":  res.TopicIndex,
		"content_type": res.ContentType,
		"order_index":  res.OrderIndex,
	})
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTriggerBody))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, "cannot read request body", nil)
		return nil, false
	}
	return body, true
}

func (h *Handler) triggerContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.TriggerTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.TriggerTimeout)
	}
	return context.WithCancel(c.Request.Context())
}
