package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/config"
)

func TestSetup_WritesRotatedFile(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})
	dir := t.TempDir()
	cfg := config.Default().Logging
	cfg.Dir = dir
	cfg.Format = "json"
	cfg.Level = "debug"

	closer, err := Setup(cfg)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.WithField("control_number", "MOC-0001").Debug("lookup")
	if errClose := closer.Close(); errClose != nil {
		t.Fatalf("close: %v", errClose)
	}

	data, errRead := os.ReadFile(filepath.Join(dir, LogFileName))
	if errRead != nil {
		t.Fatalf("read log: %v", errRead)
	}
	if !strings.Contains(string(data), `"control_number":"MOC-0001"`) {
		t.Fatalf("unexpected log content %q", data)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("level not applied")
	}
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	cfg := config.Default().Logging
	cfg.Level = "loud"
	if _, err := Setup(cfg); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestResolveDir(t *testing.T) {
	t.Setenv("CARDHUB_WRITABLE_PATH", "/data")
	t.Setenv("WRITABLE_PATH", "")
	if got := resolveDir("logs"); got != filepath.Join("/data", "logs") {
		t.Fatalf("resolveDir(logs) = %q", got)
	}
	if got := resolveDir("/var/log/cardhub"); got != "/var/log/cardhub" {
		t.Fatalf("absolute dirs must be kept, got %q", got)
	}
}
