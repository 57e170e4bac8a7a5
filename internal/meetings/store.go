package meetings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// ErrNotFound is returned when no meeting matches the given id or code.
var ErrNotFound = errors.New("meetings: record not found")

// Meeting is the durable record a processed job reports into.
type Meeting struct {
	ID               string          `json:"id"`
	MeetingCode      string          `json:"meeting_code"`
	Title            string          `json:"title,omitempty"`
	HostName         string          `json:"host_name,omitempty"`
	HostEmail        string          `json:"host_email,omitempty"`
	Participants     []string        `json:"participants,omitempty"`
	StartTime        time.Time       `json:"start_time,omitempty"`
	EndTime          time.Time       `json:"end_time,omitempty"`
	DurationMs       int64           `json:"duration_ms,omitempty"`
	AudioLink        string          `json:"audio_link,omitempty"`
	Analysis         *types.Analysis `json:"analysis,omitempty"`
	HostAudio        string          `json:"host_audio,omitempty"`
	ParticipantAudio []string        `json:"participant_audio,omitempty"`
}

// Result is what the pipeline attaches to a meeting once a job completes.
type Result struct {
	AudioLink        string
	Analysis         *types.Analysis
	EndTime          time.Time
	DurationMs       int64
	HostAudio        string
	ParticipantAudio []string
}

// Store persists meeting records in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore creates the meetings table if needed.
func NewStore(db *sql.DB) (*Store, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		meeting_code TEXT UNIQUE,
		title TEXT,
		host_name TEXT,
		host_email TEXT,
		participants TEXT,
		start_time DATETIME,
		end_time DATETIME,
		duration_ms INTEGER,
		audio_link TEXT,
		analysis TEXT,
		host_audio TEXT,
		participant_audio TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_meetings_code ON meetings(meeting_code);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create meetings table: %w", err)
	}
	return &Store{db: db}, nil
}

// Start records a meeting at start time, keyed by meeting code. Repeated
// starts for the same code update the row in place; the returned record
// carries the canonical meeting id clients must use from then on.
func (s *Store) Start(ctx context.Context, m Meeting) (*Meeting, error) {
	if m.MeetingCode == "" {
		return nil, fmt.Errorf("meetings: meeting code required")
	}

	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return nil, fmt.Errorf("marshal participants: %w", err)
	}

	now := time.Now().UTC()
	query := `
	INSERT INTO meetings (id, meeting_code, title, host_name, host_email, participants, start_time, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(meeting_code) DO UPDATE SET
		title = excluded.title,
		host_name = excluded.host_name,
		host_email = excluded.host_email,
		participants = excluded.participants,
		start_time = excluded.start_time,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), m.MeetingCode, m.Title, m.HostName, m.HostEmail,
		string(participants), m.StartTime, now, now,
	); err != nil {
		return nil, fmt.Errorf("upsert meeting %s: %w", m.MeetingCode, err)
	}

	return s.getByCode(ctx, m.MeetingCode)
}

// AttachResult writes a completed job's output onto the meeting record.
// When the id is unknown the code is used to resolve it first; that lookup
// is read-only reconciliation and never inserts, so two concurrent finalize
// calls cannot create duplicate rows.
func (s *Store) AttachResult(ctx context.Context, meetingID, meetingCode string, res Result) error {
	id := meetingID
	if id == "" {
		if meetingCode == "" {
			return fmt.Errorf("%w: no meeting id or code", ErrNotFound)
		}
		m, err := s.getByCode(ctx, meetingCode)
		if err != nil {
			return err
		}
		id = m.ID
	}

	var analysisJSON sql.NullString
	if res.Analysis != nil {
		b, err := json.Marshal(res.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		analysisJSON = sql.NullString{String: string(b), Valid: true}
	}

	participantAudio, err := json.Marshal(res.ParticipantAudio)
	if err != nil {
		return fmt.Errorf("marshal participant audio: %w", err)
	}

	query := `
	UPDATE meetings
	SET audio_link = ?, analysis = ?, end_time = ?, duration_ms = ?, host_audio = ?, participant_audio = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		res.AudioLink, analysisJSON, res.EndTime, res.DurationMs,
		res.HostAudio, string(participantAudio), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update meeting %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return nil
}

// Get returns the meeting with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Meeting, error) {
	return s.get(ctx, "id = ?", id)
}

func (s *Store) getByCode(ctx context.Context, code string) (*Meeting, error) {
	return s.get(ctx, "meeting_code = ?", code)
}

func (s *Store) get(ctx context.Context, where string, arg any) (*Meeting, error) {
	query := `
	SELECT id, meeting_code, title, host_name, host_email, participants,
	       start_time, end_time, duration_ms, audio_link, analysis,
	       host_audio, participant_audio
	FROM meetings WHERE ` + where

	var (
		m                           Meeting
		participants, analysis      sql.NullString
		hostAudio, participantAudio sql.NullString
		startTime, endTime          sql.NullTime
		durationMs                  sql.NullInt64
		audioLink                   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&m.ID, &m.MeetingCode, &m.Title, &m.HostName, &m.HostEmail, &participants,
		&startTime, &endTime, &durationMs, &audioLink, &analysis,
		&hostAudio, &participantAudio,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}

	if participants.Valid && participants.String != "" {
		json.Unmarshal([]byte(participants.String), &m.Participants)
	}
	if analysis.Valid && analysis.String != "" {
		var a types.Analysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err == nil {
			m.Analysis = &a
		}
	}
	if participantAudio.Valid && participantAudio.String != "" {
		json.Unmarshal([]byte(participantAudio.String), &m.ParticipantAudio)
	}
	if startTime.Valid {
		m.StartTime = startTime.Time
	}
	if endTime.Valid {
		m.EndTime = endTime.Time
	}
	m.DurationMs = durationMs.Int64
	m.AudioLink = audioLink.String
	m.HostAudio = hostAudio.String
	return &m, nil
}
