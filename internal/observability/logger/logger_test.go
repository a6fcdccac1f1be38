package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/ruuviproxy/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM sensor_readings":                       "SELECT",
		"  insert into sensor_readings values (1)":            "INSERT",
		"WITH latest AS (SELECT 1) SELECT * FROM latest":      "SELECT",
		"DELETE FROM sensor_readings WHERE expires_at <= 1":   "DELETE",
		"CREATE TABLE IF NOT EXISTS config_entries (key int)": "CREATE",
		"":              "UNKNOWN",
		"VACUUM":        "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithCorrelationID(ctx, "corr-1")
	ctx = obscontext.WithGatewayID(ctx, "AA:BB:CC:DD:EE:FF")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", fields["gateway_id"])
	_, hasPrincipal := fields["principal"]
	assert.False(t, hasPrincipal)
}

func TestGinMiddlewareEchoesCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = obscontext.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "corr-xyz")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "corr-xyz", w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "corr-xyz", seen)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get("X-Correlation-ID"), 26)
}
