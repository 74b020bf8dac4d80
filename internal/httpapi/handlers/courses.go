package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/coursegen/internal/common"
	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/httpapi/middleware"
)

const anonymousOwner = "anonymous"

func (h *Handler) CreateCourse(c *gin.Context) {
	type reqBody struct {
		Topic   string `json:"topic" binding:"required"`
		Context string `json:"context"`
		Depth   int    `json:"depth" binding:"required,min=1,max=5"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json", err.Error())
		return
	}

	owner := c.GetString(middleware.UserIDKey)
	if owner == "" {
		owner = anonymousOwner
	}

	created, err := h.Courses.CreateCourse(c.Request.Context(), owner, req.Topic, req.Context, req.Depth)
	if err != nil && created == nil {
		h.writeError(c, err)
		return
	}
	if err != nil {
		// rows exist; the job can be re-published or triggered directly
		h.Log.Warn("syllabus job not enqueued", "job_id", created.JobID, "error", err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"course_id":   created.Course.ID,
		"syllabus_id": created.SyllabusID,
		"job_id":      created.JobID,
	})
}

func (h *Handler) RequestContent(c *gin.Context) {
	type reqBody struct {
		ModuleIndex *int   `json:"module_index" binding:"required"`
		TopicIndex  *int   `json:"topic_index" binding:"required"`
		ContentType string `json:"content_type"`
		Prompt      string `json:"prompt"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json", err.Error())
		return
	}

	job, err := h.Courses.RequestContent(c.Request.Context(), c.Param("course_id"),
		*req.ModuleIndex, *req.TopicIndex, course.ContentType(req.ContentType), req.Prompt)
	if err != nil && job == nil {
		h.writeError(c, err)
		return
	}
	if err != nil {
		h.Log.Warn("content job not enqueued", "job_id", job.ID, "error", err)
	}
	c.JSON(http.StatusCreated, gin.H{"job_id": job.ID})
}

func (h *Handler) GetSyllabus(c *gin.Context) {
	syl, err := h.Courses.GetSyllabus(c.Request.Context(), c.Param("course_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, syl)
}

func (h *Handler) ListTopicContent(c *gin.Context) {
	moduleIndex, err1 := strconv.Atoi(c.Param("module"))
	topicIndex, err2 := strconv.Atoi(c.Param("topic"))
	if err1 != nil || err2 != nil || moduleIndex < 0 || topicIndex < 0 {
		common.Fail(c, http.StatusBadRequest, "module and topic must be non-negative integers", nil)
		return
	}
	items, err := h.Courses.ListTopicContent(c.Request.Context(), c.Param("course_id"), moduleIndex, topicIndex)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{"items": items})
}

func (h *Handler) GetSyllabusJob(c *gin.Context) {
	job, err := h.Courses.GetSyllabusJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, job)
}

func (h *Handler) GetContentJob(c *gin.Context) {
	job, err := h.Courses.GetContentJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, job)
}
