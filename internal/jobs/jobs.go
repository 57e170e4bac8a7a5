package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// Job store errors
var (
	ErrValidation = errors.New("jobs: invalid input")
	ErrNotFound   = errors.New("jobs: job not found")
)

// Job is one unit of meeting-processing work. It is created pending, claimed
// by exactly one poller invocation, and terminates in done or failed. Jobs
// are never deleted here; retention is an external concern.
type Job struct {
	ID                 string           `json:"id"`
	SessionID          string           `json:"session_id"`
	MeetingID          string           `json:"meeting_id,omitempty"`
	ChunkKeys          []string         `json:"chunk_keys"`
	MeetingMeta        json.RawMessage  `json:"meeting_meta,omitempty"`
	Status             string           `json:"status"`
	Result             *types.JobResult `json:"result,omitempty"`
	Error              string           `json:"error,omitempty"`
	Attempts           int              `json:"attempts"`
	ProcessingDeadline time.Time        `json:"processing_deadline,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Outcome resolves a claimed job: a result for done, an error message for
// failed.
type Outcome struct {
	Result *types.JobResult
	Err    string
}

// OpenDB opens the sqlite database backing the job and meeting tables.
// A single connection keeps the conditional updates serialized.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
