package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cropwatch/auth"
)

type MiddlewareManager struct {
	auth   *auth.AuthModule
	logger *zap.Logger
}

func NewMiddlewareManager(authModule *auth.AuthModule, logger *zap.Logger) *MiddlewareManager {
	return &MiddlewareManager{auth: authModule, logger: logger}
}

// RequestLogger logs one line per request.
func (m *MiddlewareManager) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			m.logger.Error("request", fields...)
		case c.Writer.Status() >= 400:
			m.logger.Warn("request", fields...)
		default:
			m.logger.Debug("request", fields...)
		}
	}
}
