package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Unwritable file path",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "/nonexistent-dir/vidtube/app.log",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "warn", Format: "json"})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries at warn level, got %d", len(entries))
	}
	if entries[0]["message"] != "warn message" {
		t.Errorf("Expected warn message first, got %v", entries[0]["message"])
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	logger.WithRequestID("req-123").WithAccountID("acc-456").WithFields(map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}).Info("with fields")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["request_id"] != "req-123" {
		t.Errorf("Expected request_id req-123, got %v", entry["request_id"])
	}
	if entry["account_id"] != "acc-456" {
		t.Errorf("Expected account_id acc-456, got %v", entry["account_id"])
	}
	if entry["key1"] != "value1" {
		t.Errorf("Expected key1 value1, got %v", entry["key1"])
	}
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	logger.LogHTTPRequest("GET", "/api/v1/users/current-user", "192.168.1.1", 200, 100*time.Millisecond)
	logger.LogHTTPRequest("POST", "/api/v1/users/login", "192.168.1.1", 500, 10*time.Millisecond)

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0]["level"] != "info" || entries[1]["level"] != "error" {
		t.Errorf("Expected info then error levels, got %v and %v", entries[0]["level"], entries[1]["level"])
	}
	if entries[0]["status_code"] != float64(200) {
		t.Errorf("Expected status_code 200, got %v", entries[0]["status_code"])
	}
}

func TestLogAuthEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	logger.LogAuthEvent("acc-1", "login", nil)
	logger.LogAuthEvent("acc-1", "refresh", errors.New("token reused"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1]["level"] != "warn" || entries[1]["error"] != "token reused" {
		t.Errorf("Expected failed auth event to be a warning with error, got %v", entries[1])
	}
}

func TestLogStorageOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	logger.LogStorageOperation("upload", "media", "avatars/a.png", 1048576, 2*time.Second, nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["key"] != "avatars/a.png" {
		t.Errorf("Unexpected storage log: %v", entries)
	}
}

func TestLogDatabaseOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	// successful operations are debug and filtered at info
	logger.LogDatabaseOperation("FindByID", 5*time.Millisecond, nil)
	logger.LogDatabaseOperation("FindByID", 5*time.Millisecond, errors.New("connection refused"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["level"] != "error" {
		t.Errorf("Expected a single error entry, got %v", entries)
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Info("discarded")
	logger.WithAccountID("acc").ErrorWithErr("discarded", errors.New("x"))
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	if err != nil {
		t.Errorf("NewDefaultLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewDefaultLogger")
	}
}

func TestNewConsoleLogger(t *testing.T) {
	logger, err := NewConsoleLogger()
	if err != nil {
		t.Errorf("NewConsoleLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewConsoleLogger")
	}
}

func BenchmarkLogInfo(b *testing.B) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message")
	}
}
