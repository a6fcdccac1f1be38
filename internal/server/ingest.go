package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	"go.uber.org/zap"
)

const maxIngestBodyBytes int64 = 1 << 20

// IngestBodyLimit caps the gateway payload before anything reads it.
func IngestBodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBodyBytes)
		c.Next()
	}
}

// IngestRecord accepts a gateway batch and answers with the vendor response,
// or a local success body when the batch was not relayed.
func (s *Server) IngestRecord(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			AbortWithError(c, requestError(ErrInvalidRequest, "Request body too large"))
			return
		}
		logger.FromContext(ctx).Warn("failed to read ingest body", zap.Error(err))
		AbortWithError(c, requestError(ErrInvalidRequest, "Invalid request body"))
		return
	}

	result, err := s.ingestSvc.Ingest(ctx, body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result.Response)
}
