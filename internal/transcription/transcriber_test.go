package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merged.mp3")
	if err := os.WriteFile(path, []byte("mp3-bytes"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(f)
		f.Close()
		if string(data) != "mp3-bytes" {
			t.Errorf("uploaded body = %q", data)
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "  hello world \n"})
	}))
	defer srv.Close()

	c := NewClient("test-key", "whisper-1", WithBaseURL(srv.URL))
	got, err := c.Transcribe(context.Background(), writeArtifact(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Invalid file format"},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", "whisper-1", WithBaseURL(srv.URL))
	_, err := c.Transcribe(context.Background(), writeArtifact(t))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	c := NewClient("test-key", "whisper-1")

	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestTranscribeNoAPIKey(t *testing.T) {
	c := NewClient("", "whisper-1")

	_, err := c.Transcribe(context.Background(), writeArtifact(t))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}
