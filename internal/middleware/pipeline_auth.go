package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "folio/internal/errors"
	"folio/internal/logger"
)

// PipelineKeyHeader carries the shared secret of the price feed.
const PipelineKeyHeader = "X-API-Key"

// ContextPipeline is set to true on requests authenticated by API key.
const ContextPipeline = "pipeline"

// PipelineAuthMiddleware admits requests whose X-API-Key matches apiKey.
// With no key configured the pipeline routes are disabled.
func PipelineAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithError(c, apperrors.ErrPipelineNotConfigured)
			return
		}

		key := c.GetHeader(PipelineKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			logger.Get().Warnw("pipeline request rejected",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"key_present", key != "",
			)
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}

		c.Set(ContextPipeline, true)
		c.Next()
	}
}
