package logger

import (
	"GeoCMS/backend/go/internal/models"
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level logrus.Level) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Init(level)
	SetOutput(buf)
	t.Cleanup(func() { Init(logrus.InfoLevel) })
	return buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestLogger_Fields(t *testing.T) {
	buf := capture(t, logrus.InfoLevel)

	New("conversation_service", "trace-1", "run-1").
		WithPayload(map[string]interface{}{"slot": "site_type"}).
		WithErr(errors.New("boom")).
		Info("slot filled")

	entry := decodeLine(t, buf)
	assert.Equal(t, "slot filled", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "conversation_service", entry["service_name"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Contains(t, entry, "timestamp")
	assert.Equal(t, map[string]interface{}{"slot": "site_type"}, entry["payload"])
	assert.Equal(t, "boom", entry["error"].(map[string]interface{})["message"])
}

func TestLogger_OmitsEmptyIDs(t *testing.T) {
	buf := capture(t, logrus.InfoLevel)

	New("svc", "", "").WithRequest(models.RequestInfo{Method: "GET", Path: "/health", StatusCode: 200}).Warn("request")

	entry := decodeLine(t, buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "run_id")
	req := entry["request_info"].(map[string]interface{})
	assert.Equal(t, "/health", req["path"])
}

func TestLogger_WithIsImmutable(t *testing.T) {
	buf := capture(t, logrus.InfoLevel)

	base := New("svc", "", "")
	_ = base.WithField("extra", 1)
	base.Info("plain")

	assert.NotContains(t, decodeLine(t, buf), "extra")
}

func TestLogger_LevelFilter(t *testing.T) {
	buf := capture(t, logrus.WarnLevel)
	New("svc", "", "").Debug("hidden")
	New("svc", "", "").Info("hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel(" debug "))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}
