package jobs

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

const (
	defaultClaimTTL    = 10 * time.Minute
	defaultMaxAttempts = 3
)

// Store is the durable job queue. All state changes go through single-row
// conditional updates; there are no multi-row transactions, so job status
// and meeting records are eventually consistent with each other.
type Store struct {
	db          *sql.DB
	claimTTL    time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewStore creates the job table if needed. claimTTL bounds how long a
// claimed job may go without an update before it becomes reclaimable;
// maxAttempts caps reclaims before the job is failed outright.
func NewStore(db *sql.DB, claimTTL time.Duration, maxAttempts int) (*Store, error) {
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	schema := `
	CREATE TABLE IF NOT EXISTS meeting_jobs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		meeting_id TEXT,
		chunk_keys TEXT NOT NULL,
		meeting_meta TEXT,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		processing_deadline DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status_created_at ON meeting_jobs(status, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create job table: %w", err)
	}

	return &Store{
		db:          db,
		claimTTL:    claimTTL,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Enqueue creates a pending job for the ordered chunk keys of one session.
func (s *Store) Enqueue(ctx context.Context, sessionID string, chunkKeys []string, meetingMeta json.RawMessage) (*Job, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrValidation)
	}
	if len(chunkKeys) == 0 {
		return nil, fmt.Errorf("%w: chunkKeys required", ErrValidation)
	}

	keys, err := json.Marshal(chunkKeys)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk keys: %w", err)
	}

	meta := types.ParseMeetingMeta(meetingMeta)
	var meetingID sql.NullString
	if meta.MeetingID != "" {
		meetingID = sql.NullString{String: meta.MeetingID, Valid: true}
	}

	job := &Job{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		MeetingID:   meta.MeetingID,
		ChunkKeys:   chunkKeys,
		MeetingMeta: meetingMeta,
		Status:      types.StatusPending,
		CreatedAt:   s.now().UTC(),
	}
	job.UpdatedAt = job.CreatedAt

	query := `
	INSERT INTO meeting_jobs (id, session_id, meeting_id, chunk_keys, meeting_meta, status, attempts, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		job.ID, job.SessionID, meetingID, string(keys), nullableString(string(meetingMeta)),
		job.Status, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, session_id, meeting_id, chunk_keys, meeting_meta, status, result, error, attempts, processing_deadline, created_at, updated_at`

// ClaimNext selects the oldest runnable job and atomically transitions it to
// processing. Runnable means pending, or processing with an expired deadline
// (a poller crashed mid-job). Losing the conditional update to another
// poller yields (nil, nil): the caller claimed nothing and must not touch
// the job.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	for {
		now := s.now().UTC()
		query := fmt.Sprintf(`
		SELECT %s FROM meeting_jobs
		WHERE status = ? OR (status = ? AND processing_deadline <= ?)
		ORDER BY created_at, id
		LIMIT 1
		`, jobColumns)

		job, err := scanJob(s.db.QueryRowContext(ctx, query, types.StatusPending, types.StatusProcessing, now))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select next job: %w", err)
		}

		// A stale job that exhausted its attempts is failed, not re-run.
		if job.Status == types.StatusProcessing && job.Attempts >= s.maxAttempts {
			res, err := s.db.ExecContext(ctx, `
			UPDATE meeting_jobs SET status = ?, error = ?, updated_at = ?
			WHERE id = ? AND status = ? AND updated_at = ?`,
				types.StatusFailed, fmt.Sprintf("gave up after %d attempts", job.Attempts), now,
				job.ID, types.StatusProcessing, job.UpdatedAt,
			)
			if err != nil {
				return nil, fmt.Errorf("fail stale job %s: %w", job.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil, nil
			}
			continue
		}

		deadline := now.Add(s.claimTTL)
		res, err := s.db.ExecContext(ctx, `
		UPDATE meeting_jobs
		SET status = ?, attempts = attempts + 1, processing_deadline = ?, updated_at = ?
		WHERE id = ? AND status = ? AND updated_at = ?`,
			types.StatusProcessing, deadline, now,
			job.ID, job.Status, job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
		}
		if n == 0 {
			// Another poller won the race.
			return nil, nil
		}

		job.Status = types.StatusProcessing
		job.Attempts++
		job.ProcessingDeadline = deadline
		job.UpdatedAt = now
		return job, nil
	}
}

// Resolve finishes a processing job. Resolving an already-terminal job is a
// no-op so crash-recovery retries can resolve twice without error.
func (s *Store) Resolve(ctx context.Context, jobID string, outcome Outcome) error {
	status := types.StatusDone
	var resultJSON, errMsg sql.NullString
	if outcome.Err != "" {
		status = types.StatusFailed
		errMsg = sql.NullString{String: outcome.Err, Valid: true}
	} else if outcome.Result != nil {
		b, err := json.Marshal(outcome.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE meeting_jobs SET status = ?, result = ?, error = ?, updated_at = ?
	WHERE id = ? AND status = ?`,
		status, resultJSON, errMsg, s.now().UTC(),
		jobID, types.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("resolve job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve job %s: %w", jobID, err)
	}
	if n == 1 {
		return nil
	}

	current, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if current.Status == types.StatusDone || current.Status == types.StatusFailed {
		return nil
	}
	return fmt.Errorf("resolve job %s: status is %s, not %s", jobID, current.Status, types.StatusProcessing)
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM meeting_jobs WHERE id = ?`, jobColumns)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns the most recently created jobs.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM meeting_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, jobColumns)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                Job
		meetingID          sql.NullString
		chunkKeys          string
		meetingMeta        sql.NullString
		result, errMsg     sql.NullString
		processingDeadline sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.SessionID, &meetingID, &chunkKeys, &meetingMeta,
		&job.Status, &result, &errMsg, &job.Attempts, &processingDeadline,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.MeetingID = meetingID.String
	job.Error = errMsg.String
	if processingDeadline.Valid {
		job.ProcessingDeadline = processingDeadline.Time
	}
	if err := json.Unmarshal([]byte(chunkKeys), &job.ChunkKeys); err != nil {
		return nil, fmt.Errorf("decode chunk keys: %w", err)
	}
	if meetingMeta.Valid {
		job.MeetingMeta = json.RawMessage(meetingMeta.String)
	}
	if result.Valid && result.String != "" {
		var r types.JobResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &r
	}
	return &job, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
