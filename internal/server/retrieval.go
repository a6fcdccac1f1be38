package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	retrievaldomain "github.com/smallbiznis/ruuviproxy/internal/retrieval/domain"
)

var retrievalQueryKeys = []string{"start_time", "end_time", "limit", "next_token", "device_ids"}

// RetrievalMetrics counts retrieval responses by route and status.
func (s *Server) RetrievalMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.obsMetrics == nil {
			return
		}
		status := c.Writer.Status()
		if !c.Writer.Written() {
			if lastErr := c.Errors.Last(); lastErr != nil {
				status, _ = mapError(lastErr.Err)
			}
		}
		s.obsMetrics.RecordRetrieval(c.Request.Context(), normalizeRateLimitEndpoint(c), status)
	}
}

func (s *Server) GetCurrentReading(c *gin.Context) {
	resp, err := s.retrievalSvc.Current(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetMultipleCurrentReadings(c *gin.Context) {
	q, ok := s.parseRetrievalQuery(c)
	if !ok {
		return
	}
	if len(q.DeviceIDs) == 0 {
		AbortWithError(c, requestError(ErrInvalidRequest, "device_ids parameter is required"))
		return
	}

	resp, err := s.retrievalSvc.MultipleCurrent(c.Request.Context(), q.DeviceIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetReadingHistory(c *gin.Context) {
	q, ok := s.parseRetrievalQuery(c)
	if !ok {
		return
	}

	resp, err := s.retrievalSvc.History(c.Request.Context(), c.Param("device_id"), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetMultipleReadingHistory(c *gin.Context) {
	q, ok := s.parseRetrievalQuery(c)
	if !ok {
		return
	}
	if len(q.DeviceIDs) == 0 {
		AbortWithError(c, requestError(ErrInvalidRequest, "device_ids parameter is required"))
		return
	}

	resp, err := s.retrievalSvc.MultipleHistory(c.Request.Context(), q.DeviceIDs, q)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetGatewayHistory(c *gin.Context) {
	q, ok := s.parseRetrievalQuery(c)
	if !ok {
		return
	}

	resp, err := s.retrievalSvc.GatewayHistory(c.Request.Context(), c.Param("gateway_id"), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListDevices(c *gin.Context) {
	resp, err := s.retrievalSvc.Devices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) parseRetrievalQuery(c *gin.Context) (retrievaldomain.Query, bool) {
	params := make(map[string]string, len(retrievalQueryKeys))
	for _, key := range retrievalQueryKeys {
		if value, ok := c.GetQuery(key); ok {
			params[key] = value
		}
	}

	q, err := retrievaldomain.ParseQuery(params)
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordValidationError(c.Request.Context(), normalizeRateLimitEndpoint(c))
		}
		AbortWithError(c, err)
		return retrievaldomain.Query{}, false
	}
	return q, true
}
