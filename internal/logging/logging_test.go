package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelFallback(t *testing.T) {
	l := New("svc", "bogus", "json")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	l = New("svc", "debug", "text")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestTraceIDRoundTrip(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))

	id := NewTraceID()
	ctx := WithTraceID(context.Background(), id)
	assert.Equal(t, id, TraceID(ctx))
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	l := New("fitfi-data", "info", "json")
	l.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "abc-123")
	l.WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc-123", line["trace_id"])
	assert.Equal(t, "fitfi-data", line["service"])
	assert.Equal(t, "hello", line["msg"])
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New("svc", "info", "json")
	l.SetOutput(&buf)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	l.LogRequest(context.Background(), req, http.StatusServiceUnavailable, 5*time.Millisecond)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "/api/v1/products", line["path"])
}
