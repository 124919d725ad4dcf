package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Feed.BufferSize != 80 {
		t.Fatalf("expected feed buffer 80, got %d", cfg.Feed.BufferSize)
	}
	if cfg.Orchestrator.Timeout != 20*time.Second {
		t.Fatalf("expected 20s orchestrator timeout, got %s", cfg.Orchestrator.Timeout)
	}
	if err := cfg.ValidateServe(); err == nil {
		t.Fatalf("expected serve validation to require a jwt secret")
	}
}

func TestFromYAMLLayersOverDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("orchestrator:\n  timeout: 3s\nmail:\n  mode: smtp\n  smtp:\n    host: smtp.local\n    port: 2525\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Orchestrator.Timeout != 3*time.Second {
		t.Fatalf("timeout not applied: %s", cfg.Orchestrator.Timeout)
	}
	if cfg.Mail.From == "" || cfg.Feed.BufferSize != 80 {
		t.Fatalf("defaults lost: %+v", cfg.Mail)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad mail mode", "mail:\n  mode: pigeon\n", "mail.mode"},
		{"smtp without host", "mail:\n  mode: smtp\n", "mail.smtp.host"},
		{"zero timeout", "orchestrator:\n  timeout: 0s\n", "orchestrator.timeout"},
		{"webhook without url", "webhooks:\n  - events: [email.sent]\n", "webhooks[0].url"},
		{"relative base path", "server:\n  base_path: v0\n", "base_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadReadsWorkspaceFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ONBOARDLINE_TEST_ENV=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(dir), []byte("feed:\n  buffer_size: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ONBOARDLINE_TEST_ENV") })
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Feed.BufferSize != 10 {
		t.Fatalf("expected buffer 10, got %d", cfg.Feed.BufferSize)
	}
	if os.Getenv("ONBOARDLINE_TEST_ENV") != "from-dotenv" {
		t.Fatalf(".env not loaded")
	}
}
