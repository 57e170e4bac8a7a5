package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestSupabaseUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/recordings/recordings/s1/chunk-0.webm" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-key" {
			t.Errorf("auth = %q", got)
		}
		if got := r.Header.Get("x-upsert"); got != "true" {
			t.Errorf("x-upsert = %q, re-uploads must overwrite", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "audio" {
			t.Errorf("body = %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewSupabaseStore(srv.URL, "recordings", "service-key")
	if err := store.Upload(context.Background(), "recordings/s1/chunk-0.webm", strings.NewReader("audio"), "audio/webm"); err != nil {
		t.Fatalf("upload: %v", err)
	}
}

func TestSupabaseListStripsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/list/recordings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Prefix string `json:"prefix"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		// A trailing slash in the prefix makes the API match nothing.
		if req.Prefix != "recordings/s1" {
			t.Errorf("prefix = %q, want recordings/s1", req.Prefix)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"name": "chunk-0.webm"},
			{"name": "chunk-1.webm"},
		})
	}))
	defer srv.Close()

	store := NewSupabaseStore(srv.URL, "recordings", "service-key")
	keys, err := store.List(context.Background(), "recordings/s1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		"recordings/s1/chunk-0.webm",
		"recordings/s1/chunk-1.webm",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
}

func TestSupabaseDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewSupabaseStore(srv.URL, "recordings", "service-key")
	_, err := store.Download(context.Background(), "recordings/s1/chunk-9.webm")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupabasePublicURL(t *testing.T) {
	store := NewSupabaseStore("https://example.supabase.co", "recordings", "service-key")

	got := store.PublicURL("merged/a.mp3")
	want := "https://example.supabase.co/storage/v1/object/public/recordings/merged/a.mp3"
	if got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}
