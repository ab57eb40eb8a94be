package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"filedock/internal/pkg/response"
)

// ErrorLogger logs every request, logs handler errors in detail and recovers
// from panics. 5xx responses are logged at error level, the rest at debug.
func ErrorLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "http"))

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				logger.LogAttrs(c.Request.Context(), slog.LevelError, "request panic", append(requestAttrs(c, start),
					slog.String("error", err.Error()),
					slog.String("stack", string(debug.Stack())),
				)...)

				response.Abort(c, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			for _, err := range c.Errors {
				level := slog.LevelWarn
				if c.Writer.Status() >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				logger.LogAttrs(c.Request.Context(), level, "request error", append(requestAttrs(c, start),
					slog.String("type", fmt.Sprintf("%v", err.Type)),
					slog.String("error", err.Error()),
				)...)
			}

			if len(c.Errors) == 0 && c.Writer.Status() >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request.Context(), slog.LevelError, "request failed", requestAttrs(c, start)...)
				return
			}
			logger.LogAttrs(c.Request.Context(), slog.LevelDebug, "request", requestAttrs(c, start)...)
		}()

		c.Next()
	}
}

func requestAttrs(c *gin.Context, start time.Time) []slog.Attr {
	return []slog.Attr{
		slog.Int("status", c.Writer.Status()),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.String("client_ip", c.ClientIP()),
		slog.String("request_id", requestID(c)),
		slog.Duration("latency", time.Since(start)),
	}
}

func requestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	return requestID
}
