package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/coursegen/internal/common"
)

// StreamCourseEvents relays job status changes for a course as server-sent events.
func (h *Handler) StreamCourseEvents(c *gin.Context) {
	if h.Events == nil {
		common.Fail(c, http.StatusServiceUnavailable, "event stream unavailable", nil)
		return
	}

	ctx := c.Request.Context()
	courseID := c.Param("course_id")
	events, err := h.Events.Subscribe(ctx, courseID)
	if err != nil {
		h.Log.Warn("subscribe failed", "course_id", courseID, "error", err)
		common.Fail(c, http.StatusServiceUnavailable, "event stream unavailable", nil)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	// heartbeat keeps proxies from closing an idle stream
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				writeJSON("done", gin.H{"course_id": courseID})
				return
			}
			writeJSON("job", ev)
		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
