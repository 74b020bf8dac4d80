package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/suPer8Hu/coursegen/internal/common"
	"github.com/suPer8Hu/coursegen/internal/config"
	"github.com/suPer8Hu/coursegen/internal/httpapi/handlers"
	"github.com/suPer8Hu/coursegen/internal/httpapi/middleware"
	"github.com/suPer8Hu/coursegen/internal/logger"
	"github.com/suPer8Hu/coursegen/internal/metrics"
)

// NewRouter wires the trigger endpoints, the course API and /metrics.
// gatherer may be nil to leave /metrics unregistered.
func NewRouter(cfg config.Config, h *handlers.Handler, log *logger.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found", nil)
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.GET("/ping", h.Ping)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.WebhookJWTSecret))

	// job triggers (database webhooks or direct calls)
	authGroup.POST("/generate-syllabus", h.GenerateSyllabus)
	authGroup.POST("/generate-content", h.GenerateContent)

	// courses
	authGroup.POST("/courses", h.CreateCourse)
	authGroup.POST("/courses/:course_id/content-jobs", h.RequestContent)
	authGroup.GET("/courses/:course_id/syllabus", h.GetSyllabus)
	authGroup.GET("/courses/:course_id/modules/:module/topics/:topic/content", h.ListTopicContent)
	authGroup.GET("/courses/:course_id/events", h.StreamCourseEvents)

	// job status
	authGroup.GET("/syllabus-jobs/:job_id", h.GetSyllabusJob)
	authGroup.GET("/content-jobs/:job_id", h.GetContentJob)
	return r
}
