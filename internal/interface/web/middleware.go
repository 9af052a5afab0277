package web

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	requestIdHeader = "X-Request-Id"
	requestIdKey    = "request_id"
)

// SentryMiddleware captures errors that happened during request handling
// and reports them to Sentry
func SentryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start timer
		start := time.Now()

		// Process request
		c.Next()

		// Check for errors
		if len(c.Errors) > 0 {
			// Capture each error
			for _, err := range c.Errors {
				sentry.WithScope(func(scope *sentry.Scope) {
					// Add request info for context
					scope.SetTag("method", c.Request.Method)
					scope.SetTag("path", c.FullPath())
					scope.SetTag("status", http.StatusText(c.Writer.Status()))
					scope.SetTag("request_id", c.GetString(requestIdKey))
					scope.SetTag("user-agent", c.Request.UserAgent())

					// Add timing information
					scope.SetExtra("latency", time.Since(start).String())

					// Set HTTP context
					scope.SetRequest(c.Request)

					// Capture the error
					sentry.CaptureException(err.Err)
				})
			}
		}
	}
}

// RequestIdMiddleware tags every request with an id, reusing the caller's
// one if present.
func RequestIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIdHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIdKey, id)
		c.Header(requestIdHeader, id)
		c.Next()
	}
}

// LoggerMiddleware logs every request once it has been handled.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": c.GetString(requestIdKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request handled")
	}
}
