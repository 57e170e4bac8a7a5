package types

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Track label constants for multi-party capture
const (
	TrackUser   = "user_audio"
	TrackRemote = "remote_audio"
)

// Analysis holds the prompt outputs generated from one transcript.
// Fields whose prompt call failed carry an error placeholder produced by
// ErrorPlaceholder rather than being dropped.
type Analysis struct {
	Transcript      string `json:"transcript"`
	Summary         string `json:"summary"`
	StructuredNote  string `json:"structured_note"`
	Recommendations string `json:"recommendations"`
}

// ErrorPlaceholder marks an analysis field whose prompt call failed.
func ErrorPlaceholder(err error) string {
	if err == nil {
		return ""
	}
	return "[unavailable: " + err.Error() + "]"
}

// JobResult is attached to a job when it resolves to done.
type JobResult struct {
	MergedKey  string    `json:"merged_key"`
	AudioLink  string    `json:"audio_link"`
	Analysis   *Analysis `json:"analysis,omitempty"`
	ArchiveURL string    `json:"archive_url,omitempty"`
}

// MeetingMeta is the metadata a client attaches when finalizing an upload.
// It travels with the job untouched; only the fields below are interpreted,
// everything else is ignored.
type MeetingMeta struct {
	MeetingID    string    `json:"meeting_id,omitempty"`
	MeetingCode  string    `json:"meeting_code,omitempty"`
	Title        string    `json:"title,omitempty"`
	HostName     string    `json:"host_name,omitempty"`
	HostEmail    string    `json:"host_email,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	StartTime    time.Time `json:"start_time,omitempty"`
	DurationMs   int64     `json:"duration_ms,omitempty"`
}

// ParseMeetingMeta decodes raw meeting metadata. A malformed document is
// not an error: the pipeline proceeds with zero-value defaults.
func ParseMeetingMeta(raw []byte) MeetingMeta {
	var meta MeetingMeta
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return MeetingMeta{}
	}
	return meta
}
