package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "node.log")
	logger, err := NewLoggerWithFile(path, false)
	if err != nil {
		t.Fatalf("NewLoggerWithFile: %v", err)
	}
	logger.Sugar().Infow("summary", "total_volume", 5)
	logger.Sugar().Debugw("dropped_at_info_level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), lines)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "summary" || entry["level"] != "INFO" || entry["ts"] == nil {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["total_volume"] != float64(5) {
		t.Errorf("total_volume = %v", entry["total_volume"])
	}
}

func TestNewLogger_Verbose(t *testing.T) {
	logger, err := NewLogger(true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(-1) { // debug
		t.Errorf("verbose logger should enable debug")
	}
}
