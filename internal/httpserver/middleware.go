package httpserver

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mapleshade20/online-judge/pkg/logger"
	"github.com/Mapleshade20/online-judge/pkg/ojerr"
)

const traceIDHeader = "X-Trace-Id"

// traceMiddleware stamps every request with a trace id (reusing an
// incoming X-Trace-Id if present) and attaches it to the request context
// so handlers and logger.* calls downstream pick it up automatically.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Writer.Header().Set(traceIDHeader, traceID)
		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLogMiddleware logs method, path, status, and latency for every
// request.
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// recoveryMiddleware catches a panic from a handler, logs it with a stack
// trace, and responds with a uniform Internal error instead of crashing
// the HTTP server.
func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "http handler panic recovered", zap.Any("panic", r))
				fail(c, ojerr.Internalf("internal error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
