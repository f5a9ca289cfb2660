package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRedactsAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	logger.Info(context.Background(), "connected", "api_key", "sk-ant-"+strings.Repeat("a", 100))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%s)", err, buf.String())
	}
	if strings.Contains(buf.String(), "sk-ant-") {
		t.Errorf("expected api key to be redacted, got %s", buf.String())
	}
}

func TestLoggerIncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	ctx := WithSessionID(context.Background(), "sess-123")
	logger.Info(ctx, "turn started")

	if !strings.Contains(buf.String(), "sess-123") {
		t.Errorf("expected session_id in output, got %s", buf.String())
	}
}

func TestLogLevelFromStringDefaultsToInfo(t *testing.T) {
	if got := LogLevelFromString("nonsense"); got != LogLevelFromString("info") {
		t.Errorf("expected unknown level to default to info, got %v", got)
	}
}
