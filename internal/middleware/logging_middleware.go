package middleware

import (
	"time"

	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	loggerKey    = "logger"
)

// LoggingMiddleware tags each request with an ID and a scoped logger, then
// writes one summary line per request. Paths in quiet are summarised at debug.
func LoggingMiddleware(quiet ...string) gin.HandlerFunc {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(c *gin.Context) {
		started := time.Now()
		requestID := requestIDFrom(c)

		log := logger.WithContext(map[string]interface{}{
			requestIDKey: requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
		})
		c.Set(loggerKey, log)

		c.Next()

		fields := map[string]interface{}{
			"status_code": c.Writer.Status(),
			"latency_ms":  time.Since(started).Milliseconds(),
			"body_size":   c.Writer.Size(),
			"route":       c.FullPath(),
		}
		if userID, ok := GetUserID(c); ok {
			fields["user_id"] = userID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		_, isQuiet := quietPaths[c.Request.URL.Path]
		summarize(log, c.Writer.Status(), isQuiet, fields)
	}
}

func requestIDFrom(c *gin.Context) string {
	id := c.GetHeader(RequestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	return id
}

func summarize(log *logger.Logger, status int, quiet bool, fields map[string]interface{}) {
	const msg = "Request completed"
	switch {
	case status >= 500:
		log.Error(msg, nil, fields)
	case status >= 400:
		log.Warn(msg, fields)
	case quiet:
		log.Debug(msg, fields)
	default:
		log.Info(msg, fields)
	}
}

// GetRequestID returns the ID assigned by LoggingMiddleware
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetLoggerFromContext returns the request-scoped logger, or the global one outside a request
func GetLoggerFromContext(c *gin.Context) *logger.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.Get()
}
