package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestNew(t *testing.T) {
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = New(Config{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)

	core, logs := observer.New(zapcore.InfoLevel)
	attached := zap.New(core)
	ctx := WithContext(context.Background(), attached)
	FromContext(ctx).Info("hello")
	assert.Equal(t, 1, logs.Len())
}

func TestGinMiddleware_LogsAndPropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)), Recovery(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	entries := logs.FilterField(zap.String("request_id", "req-1")).All()
	assert.Len(t, entries, 2)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
