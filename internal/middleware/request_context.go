package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestContext gera o request id e coloca os dados da requisição no contexto usado pelo logger
func RequestContext(log domain.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		ctx := logger.ContextWithRequestInfo(
			c.Request.Context(),
			requestID,
			GetClientIP(c),
			GetAPIToken(c),
			c.GetHeader("User-Agent"),
		)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if log != nil {
			log.WithContext(ctx).Info("Request completed", map[string]interface{}{
				"method":      c.Request.Method,
				"path":        c.Request.URL.Path,
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}
	}
}
