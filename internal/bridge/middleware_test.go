package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"market-bridge-go/infrastructure/logger"
	"market-bridge-go/infrastructure/monitor"
)

func TestRequestIDPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromGin(c)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, rec.Body.String(), 36)
}

func TestRecoverAndAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := logger.FromZap(zap.New(core))
	mon := monitor.New(monitor.DefaultConfig())

	r := gin.New()
	r.Use(RequestID(), AccessLog(lg), Metrics(mon), Recover(lg))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal error"}`, rec.Body.String())

	assert.Equal(t, 1, logs.FilterMessage("http panic").Len())
	access := logs.FilterMessage("http_request").All()
	require.Len(t, access, 1)
	assert.Equal(t, int64(500), access[0].ContextMap()["status"])
	_, schemaErr := access[0].ContextMap()["_schema_error"]
	assert.False(t, schemaErr)

	n, err := testutil.GatherAndCount(mon.Registry(), "bridge_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
