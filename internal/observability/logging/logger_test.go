package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.log")
	logger, err := New(Config{Level: "warn", File: path, Service: "mesh-api"})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	logger.Info("dropped below level")
	logger.Warn("stock insufficient")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "dropped below level") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "stock insufficient") || !strings.Contains(out, `"service":"mesh-api"`) {
		t.Errorf("expected warn line with service field, got %s", out)
	}
}
