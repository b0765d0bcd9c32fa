package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "info", Directory: dir, MaxSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("capture fired")
	logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "skin-analyzer.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"message":"capture fired"`) {
		t.Errorf("Expected JSON entry, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("Debug entry written at info level")
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestNewWithoutOutputs(t *testing.T) {
	logger, err := New(Config{Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("goes nowhere")
}
