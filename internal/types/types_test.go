package types

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseMeetingMeta(t *testing.T) {
	raw := []byte(`{
		"meeting_id": "m-1",
		"meeting_code": "abc-defg-hij",
		"title": "Planning",
		"host_email": "host@example.com",
		"start_time": "2025-06-01T12:00:00Z",
		"duration_ms": 1800000,
		"some_client_extra": {"ignored": true}
	}`)

	meta := ParseMeetingMeta(raw)
	if meta.MeetingID != "m-1" || meta.MeetingCode != "abc-defg-hij" {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.DurationMs != 1_800_000 {
		t.Fatalf("duration = %d", meta.DurationMs)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !meta.StartTime.Equal(want) {
		t.Fatalf("start time = %v", meta.StartTime)
	}
}

func TestParseMeetingMetaMalformed(t *testing.T) {
	// Malformed metadata is a client problem, not a pipeline failure.
	meta := ParseMeetingMeta([]byte(`{"title": `))
	if !reflect.DeepEqual(meta, MeetingMeta{}) {
		t.Fatalf("expected zero-value meta, got %+v", meta)
	}
}

func TestParseMeetingMetaEmpty(t *testing.T) {
	if meta := ParseMeetingMeta(nil); !reflect.DeepEqual(meta, MeetingMeta{}) {
		t.Fatalf("expected zero-value meta, got %+v", meta)
	}
}

func TestErrorPlaceholder(t *testing.T) {
	got := ErrorPlaceholder(errors.New("status 500"))
	if got != "[unavailable: status 500]" {
		t.Fatalf("placeholder = %q", got)
	}
	if ErrorPlaceholder(nil) != "" {
		t.Fatal("nil error should produce an empty placeholder")
	}
}
