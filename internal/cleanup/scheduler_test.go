package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "assemble-old", "merged.mp3")
	if err := os.MkdirAll(filepath.Dir(old), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(old, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fresh := filepath.Join(dir, "recent.mp3")
	if err := os.WriteFile(fresh, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewScheduler(dir, time.Minute, time.Hour)
	s.sweep()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("stale file survived sweep: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(t.TempDir(), time.Hour, time.Hour)
	s.Start()
	s.Stop()
}

func TestZeroValuesFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	fresh := filepath.Join(dir, "assemble-live", "input-000.webm")
	if err := os.MkdirAll(filepath.Dir(fresh), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(fresh, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Zero interval must not panic the ticker, and zero maxAge must not
	// make the initial sweep delete files that were just written.
	s := NewScheduler(dir, 0, 0)
	s.Start()
	s.Stop()

	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh scratch file removed by initial sweep: %v", err)
	}
}
