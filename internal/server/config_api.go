package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	configResultSuccess = "success"
	configResultError   = "error"
	configResultFailed  = "failed"
)

type configEntryResponse struct {
	Value       any        `json:"value"`
	LastUpdated *time.Time `json:"last_updated"`
	UpdatedBy   string     `json:"updated_by"`
	IsDefault   bool       `json:"is_default"`
}

type getConfigResponse struct {
	Result        string                         `json:"result"`
	Configuration map[string]configEntryResponse `json:"configuration"`
	UpdatableKeys []string                       `json:"updatable_keys"`
}

type updateConfigResponse struct {
	Result    string            `json:"result"`
	Updated   map[string]any    `json:"updated"`
	Timestamp int64             `json:"timestamp"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (s *Server) GetConfig(c *gin.Context) {
	ctx := c.Request.Context()
	all := s.configSvc.GetAll(ctx)

	configuration := make(map[string]configEntryResponse, len(all))
	for key, entry := range all {
		if !configdomain.IsUpdatable(key) {
			continue
		}
		configuration[key] = configEntryResponse{
			Value:       entry.Value,
			LastUpdated: entry.LastUpdated,
			UpdatedBy:   entry.UpdatedBy,
			IsDefault:   entry.IsDefault(),
		}
	}

	logger.FromContext(ctx).Info("configuration retrieved")
	c.JSON(http.StatusOK, getConfigResponse{
		Result:        configResultSuccess,
		Configuration: configuration,
		UpdatableKeys: configdomain.UpdatableKeys(),
	})
}

// UpdateConfig applies a flat object of key/value updates. Every key is
// handled independently; the response lists what changed and what did not.
func (s *Server) UpdateConfig(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error("failed to read configuration update", zap.Error(err))
		AbortWithError(c, &AdminError{Status: http.StatusInternalServerError, Message: "Failed to update configuration"})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	var raw any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		log.Warn("invalid json in configuration update", zap.Error(err))
		AbortWithError(c, &AdminError{Status: http.StatusBadRequest, Message: "Invalid JSON in request body"})
		return
	}
	updates, ok := raw.(map[string]any)
	if !ok {
		AbortWithError(c, &AdminError{Status: http.StatusBadRequest, Message: "Request body must be a JSON object"})
		return
	}

	updatedBy := auditIdentity(c)
	updated := make(map[string]any, len(updates))
	failures := make(map[string]string)

	for key, value := range updates {
		if !configdomain.IsUpdatable(key) {
			failures[key] = fmt.Sprintf("Configuration key '%s' is not updatable", key)
			s.recordConfigUpdate(c, key, configResultError)
			continue
		}
		if err := s.configSvc.Set(ctx, key, value, updatedBy); err != nil {
			log.Warn("configuration update rejected",
				zap.String("key", key),
				zap.String("updated_by", updatedBy),
				zap.Error(err),
			)
			failures[key] = fmt.Sprintf("Failed to update configuration key '%s'", key)
			s.recordConfigUpdate(c, key, configResultFailed)
			continue
		}
		updated[key] = value
		s.recordConfigUpdate(c, key, configResultSuccess)
		log.Info("configuration updated",
			zap.String("key", key),
			zap.Any("value", value),
			zap.String("updated_by", updatedBy),
		)
	}

	s.configSvc.ClearCache()

	resp := updateConfigResponse{
		Result:    configResultError,
		Updated:   updated,
		Timestamp: time.Now().Unix(),
	}
	if len(failures) > 0 {
		resp.Errors = failures
	}
	status := http.StatusBadRequest
	if len(updated) > 0 {
		resp.Result = configResultSuccess
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) recordConfigUpdate(c *gin.Context, key, result string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordConfigUpdate(c.Request.Context(), key, result)
}
