package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/coursegen/internal/common"
	"github.com/suPer8Hu/coursegen/internal/logger"
)

func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.Error("panic recovered",
						"panic", r,
						"path", c.Request.URL.Path,
						"request_id", RequestIDFrom(c),
						"stack", string(debug.Stack()),
					)
				}
				common.Fail(c, http.StatusInternalServerError, "internal server error", nil)
			}
		}()
		c.Next()
	}
}
