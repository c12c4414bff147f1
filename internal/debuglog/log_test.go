package debuglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelOff, "OFF"},
	}

	for _, test := range tests {
		if got := test.level.String(); got != test.expected {
			t.Errorf("LogLevel.String() = %q, want %q", got, test.expected)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"WARN", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"off", LevelOff},
		{"INVALID", LevelInfo}, // Default to INFO
		{"", LevelInfo},
	}

	for _, test := range tests {
		if got := ParseLogLevel(test.input); got != test.expected {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", test.input, got, test.expected)
		}
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func TestSetupWithLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	if err := Setup(LevelInfo, logPath); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if GetLevel() != LevelInfo {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelInfo)
	}

	Debugf("debug message") // Should not appear
	Infof("info message")
	Warnf("warn message")
	Errorf("error message")

	if err := Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	logContent := readLog(t, logPath)
	if strings.Contains(logContent, "debug message") {
		t.Error("DEBUG message should not appear with INFO level")
	}
	for _, want := range []string{"info message", "warn message", "error message"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("log should contain %q", want)
		}
	}
}

func TestSetupCreatesDirectory(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "dir", "consult.log")

	if err := Setup(LevelDebug, logPath); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	Debugf("hello")
	if err := Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(readLog(t, logPath), "hello") {
		t.Error("log should contain the message")
	}
}

func TestSetupWithLevelOff(t *testing.T) {
	if err := Setup(LevelOff); err != nil {
		t.Fatalf("Setup with LevelOff failed: %v", err)
	}

	if GetLevel() != LevelOff {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelOff)
	}

	// All of these go to the no-op logger.
	Debugf("debug message")
	Infof("info message")
	WithFields(map[string]interface{}{"k": "v"}).Errorf("error message")
}

func TestBackwardCompatibility(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	SetupWithBool(true)
	if GetLevel() != LevelInfo {
		t.Errorf("SetupWithBool(true) should set level to INFO, got %v", GetLevel())
	}

	SetupWithBool(false)
	if GetLevel() != LevelOff {
		t.Errorf("SetupWithBool(false) should set level to OFF, got %v", GetLevel())
	}
}

func TestFieldLoggerJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "field_test.log")

	SetFormat("json")
	defer SetFormat("console")

	if err := Setup(LevelDebug, logPath); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	WithFields(map[string]interface{}{
		"component": "test",
		"action":    "testing",
		"count":     42,
	}).Infof("test message with fields")

	if err := Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	line := strings.TrimSpace(readLog(t, logPath))
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, line)
	}

	if entry["msg"] != "test message with fields" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v, want test", entry["component"])
	}
	if entry["action"] != "testing" {
		t.Errorf("action = %v, want testing", entry["action"])
	}
	if entry["count"] != float64(42) {
		t.Errorf("count = %v, want 42", entry["count"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestSetLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	if err := Setup(LevelError, logPath); err != nil {
		t.Fatal(err)
	}

	Warnf("before")
	SetLevel(LevelDebug)
	if GetLevel() != LevelDebug {
		t.Errorf("SetLevel(LevelDebug) failed, got %v", GetLevel())
	}
	Debugf("after")

	if err := Close(); err != nil {
		t.Fatal(err)
	}
	content := readLog(t, logPath)
	if strings.Contains(content, "before") {
		t.Error("WARN should be suppressed at ERROR level")
	}
	if !strings.Contains(content, "after") {
		t.Error("DEBUG should appear after lowering the level")
	}
}
