package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-desk/internal/handler"
)

// ErrorHandler logs errors attached with c.Error. Server errors are logged
// at error level, client errors at debug. If a handler attached an error
// without answering, the last one is written as the response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			appErr := handler.Translate(e.Err)
			level := zerolog.DebugLevel
			if appErr.StatusCode() >= 500 {
				level = zerolog.ErrorLevel
			}
			log.WithLevel(level).
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Int("status", appErr.StatusCode()).
				Msg("Request error")
		}

		if !c.Writer.Written() {
			handler.Fail(c, c.Errors.Last().Err)
		}
	}
}
