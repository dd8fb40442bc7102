package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetup_DefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("", &buf)
	logger.Debug("should not appear")
	logger.Info("should appear")
	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("expected debug message suppressed at default info level, got %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("expected info message present, got %q", out)
	}
}

func TestSetup_DebugLevelEnablesDebugLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("debug", &buf)
	logger.Debug("visible now")
	if !strings.Contains(buf.String(), "visible now") {
		t.Errorf("expected debug message present at debug level, got %q", buf.String())
	}
}

func TestSetup_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("info", &buf)
	logger.Info("hello", "key", "value")
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["msg"] != "hello" {
		t.Errorf("expected msg field hello, got %v", decoded["msg"])
	}
	if decoded["key"] != "value" {
		t.Errorf("expected key field value, got %v", decoded["key"])
	}
}

func TestAuditEvent_LogsAtInfoWithoutWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("info", &buf)
	AuditEvent{Action: "detect", CallID: "abc123", PIICount: 2, Categories: []string{"email", "ipv4"}}.Log(logger)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line: %v", err)
	}
	if decoded["level"] != "INFO" {
		t.Errorf("expected INFO level, got %v", decoded["level"])
	}
	if decoded["action"] != "detect" {
		t.Errorf("expected action detect, got %v", decoded["action"])
	}
	if decoded["pii_count"] != float64(2) {
		t.Errorf("expected pii_count 2, got %v", decoded["pii_count"])
	}
}

func TestAuditEvent_LogsAtWarnWhenWarningSet(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("info", &buf)
	AuditEvent{Action: "jsonrpc_line", CallID: "stream-1", Warning: "json_parse_failed"}.Log(logger)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line: %v", err)
	}
	if decoded["level"] != "WARN" {
		t.Errorf("expected WARN level, got %v", decoded["level"])
	}
	if decoded["msg"] != "json_parse_failed" {
		t.Errorf("expected msg set to the warning text, got %v", decoded["msg"])
	}
}
