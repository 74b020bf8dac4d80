package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/coursegen/internal/common"
	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/logger"
	"github.com/suPer8Hu/coursegen/internal/pipeline"
	"github.com/suPer8Hu/coursegen/internal/schema"
)

// EventSource streams job status events for one course.
// redisstore.Store implements it.
type EventSource interface {
	Subscribe(ctx context.Context, courseID string) (<-chan pipeline.Event, error)
}

type Handler struct {
	Courses   *course.Service
	Processor *pipeline.Processor
	Events    EventSource
	Log       *logger.Logger

	// TriggerTimeout bounds one synchronous trigger invocation.
	TriggerTimeout time.Duration
}

func NewHandler(courses *course.Service, proc *pipeline.Processor, events EventSource, log *logger.Logger, triggerTimeout time.Duration) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Courses:        courses,
		Processor:      proc,
		Events:         events,
		Log:            log,
		TriggerTimeout: triggerTimeout,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

// writeError maps domain errors onto HTTP responses. An ineligible job is
// reported as handled, not as a failure.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		ineligible *pipeline.IneligibleJobError
		missing    *pipeline.MissingParametersError
		invalid    *schema.ValidationError
	)
	switch {
	case errors.As(err, &ineligible):
		common.OK(c, gin.H{
			"message": "Job already handled",
			"job_id":  ineligible.JobID,
			"status":  ineligible.Status,
			"locked":  ineligible.Locked,
		})
	case errors.As(err, &missing):
		var details any
		if len(missing.Missing) > 0 {
			details = gin.H{"missing": missing.Missing}
		}
		common.Fail(c, http.StatusBadRequest, err.Error(), details)
	case errors.Is(err, course.ErrNotFound):
		common.Fail(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, course.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &invalid):
		common.Fail(c, http.StatusInternalServerError, err.Error(), invalid)
	default:
		common.Fail(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
