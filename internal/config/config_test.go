package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  backend: supabase
  supabase:
    url: https://example.supabase.co
    bucket: meeting_recordings
openai:
  api_key: file-key
poller:
  interval_seconds: 15
  max_attempts: 5
prompts:
  summary: "custom summary prompt: "
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "supabase" || cfg.Storage.Supabase.Bucket != "meeting_recordings" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Poller.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d", cfg.Poller.MaxAttempts)
	}
	if cfg.Prompts["summary"] != "custom summary prompt: " {
		t.Fatalf("prompts = %v", cfg.Prompts)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  host: 0.0.0.0\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.OpenAI.TranscribeModel != "whisper-1" || cfg.OpenAI.ChatModel != "gpt-4o-mini" {
		t.Fatalf("models = %q %q", cfg.OpenAI.TranscribeModel, cfg.OpenAI.ChatModel)
	}
	if cfg.Limits.MaxFileSizeMB != 200 {
		t.Fatalf("max file size = %d", cfg.Limits.MaxFileSizeMB)
	}
	// A config omitting the cleanup section must still yield a runnable
	// scheduler, not a zero interval.
	if cfg.Cleanup.IntervalMinutes != 30 {
		t.Fatalf("cleanup interval = %d", cfg.Cleanup.IntervalMinutes)
	}
	if cfg.Cleanup.MaxAgeHours != 24 {
		t.Fatalf("cleanup max age = %d", cfg.Cleanup.MaxAgeHours)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("SMTP_PASSWORD", "env-pass")

	cfg, err := Load(writeConfig(t, "openai:\n  api_key: file-key\nsmtp:\n  password: file-pass\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAI.APIKey != "env-key" {
		t.Fatalf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.SMTP.Password != "env-pass" {
		t.Fatalf("smtp password = %q", cfg.SMTP.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
