package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// SupabaseStore talks to the Supabase Storage REST API. This is the
// production chunk store; the bucket holds both raw chunks and merged
// artifacts.
type SupabaseStore struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

// NewSupabaseStore creates a store for the given project URL and bucket.
// serviceKey is the service-role key used as a Bearer token.
func NewSupabaseStore(projectURL, bucket, serviceKey string) *SupabaseStore {
	return &SupabaseStore{
		baseURL:    strings.TrimRight(projectURL, "/") + "/storage/v1",
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (s *SupabaseStore) objectURL(key string) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, key)
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

// Upload writes the object at key. The x-upsert header makes re-uploads
// of the same chunk key overwrite instead of fail.
func (s *SupabaseStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), r)
	if err != nil {
		return fmt.Errorf("supabase upload request: %w", err)
	}
	s.authorize(req)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase upload %s failed (status %d): %s", key, resp.StatusCode, body)
	}
	return nil
}

// Download returns a reader for the object at key.
func (s *SupabaseStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("supabase download request: %w", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase download %s: %w", key, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("supabase download %s failed (status %d): %s", key, resp.StatusCode, body)
	}
	return resp.Body, nil
}

// List returns all keys under the given prefix.
func (s *SupabaseStore) List(ctx context.Context, prefix string) ([]string, error) {
	folder := ""
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		folder = prefix[:idx+1]
	}

	// The list endpoint expects the folder path without a trailing slash;
	// with one it matches nothing and the listing is silently empty.
	reqBody, err := json.Marshal(map[string]interface{}{
		"prefix": strings.TrimSuffix(folder, "/"),
		"limit":  1000,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase list request body: %w", err)
	}

	u := fmt.Sprintf("%s/object/list/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("supabase list request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase list %s: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("supabase list %s failed (status %d): %s", prefix, resp.StatusCode, body)
	}

	var items []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("supabase list decode: %w", err)
	}

	var keys []string
	for _, item := range items {
		key := folder + item.Name
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// PublicURL returns the public object URL; the bucket must allow public reads.
func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, key)
}
