package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig represents timeout middleware configuration
type TimeoutConfig struct {
	Duration time.Duration
	// SkipSuffixes lists path suffixes of long-lived requests such as
	// event streams.
	SkipSuffixes []string
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Duration:     30 * time.Second,
		SkipSuffixes: []string{"/events"},
	}
}

// Timeout bounds the request context. Services observe the deadline
// through ctx; the handler still writes the response.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, suffix := range config.SkipSuffixes {
			if strings.HasSuffix(c.Request.URL.Path, suffix) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Duration)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
