package jobs

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/owlnotes/meeting-pipeline/internal/media"
	"github.com/owlnotes/meeting-pipeline/internal/meetings"
	"github.com/owlnotes/meeting-pipeline/internal/notify"
	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// Assembler merges stored audio into one local artifact and publishes it.
// Sequential chunks are concatenated; labeled simultaneous tracks are mixed.
type Assembler interface {
	AssembleChunks(ctx context.Context, keys []string) (*media.Artifact, error)
	MixTracks(ctx context.Context, tracks []media.Track) (*media.Artifact, error)
	Publish(ctx context.Context, localPath string) (key, url string, err error)
}

// Transcriber converts a local audio file into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Analyzer runs the prompt set over a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*types.Analysis, error)
}

// Notifier emails the processed result to the meeting host.
type Notifier interface {
	SendAnalysis(ctx context.Context, msg notify.Message) error
}

// MeetingSink writes the result onto the meeting record.
type MeetingSink interface {
	AttachResult(ctx context.Context, meetingID, meetingCode string, res meetings.Result) error
}

// Archiver keeps an off-site copy of the merged artifact.
type Archiver interface {
	Archive(ctx context.Context, localPath, name string) (string, error)
}

// Poller claims one job at a time and drives it through the pipeline:
// assemble, publish, transcribe, analyze, persist, notify, archive.
// It is built for single-shot invocations (cron or an HTTP trigger);
// multiple concurrent pollers are safe because claiming is a conditional
// status update.
type Poller struct {
	store        *Store
	assembler    Assembler
	transcriber  Transcriber
	analyzer     Analyzer
	notifier     Notifier    // optional
	sink         MeetingSink // optional
	archiver     Archiver    // optional
	stageTimeout time.Duration
}

// PollerOption configures optional pipeline stages.
type PollerOption func(*Poller)

// WithNotifier enables result emails.
func WithNotifier(n Notifier) PollerOption {
	return func(p *Poller) { p.notifier = n }
}

// WithMeetingSink enables meeting record persistence.
func WithMeetingSink(s MeetingSink) PollerOption {
	return func(p *Poller) { p.sink = s }
}

// WithArchiver enables off-site artifact archiving.
func WithArchiver(a Archiver) PollerOption {
	return func(p *Poller) { p.archiver = a }
}

// WithStageTimeout bounds each external pipeline stage.
func WithStageTimeout(d time.Duration) PollerOption {
	return func(p *Poller) { p.stageTimeout = d }
}

// NewPoller wires the pipeline. Assembler, transcriber and analyzer are
// required; the rest are optional stages.
func NewPoller(store *Store, assembler Assembler, transcriber Transcriber, analyzer Analyzer, opts ...PollerOption) *Poller {
	p := &Poller{
		store:        store,
		assembler:    assembler,
		transcriber:  transcriber,
		analyzer:     analyzer,
		stageTimeout: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollOnce claims the next runnable job, processes it to completion and
// resolves it. Returns whether a job was claimed. A crash mid-job leaves
// the row processing; the store's deadline reclaim recovers it later.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	job, err := p.store.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		log.Println("Poller: no pending jobs")
		return false, nil
	}

	log.Printf("Poller: processing job %s (session %s, %d chunks, attempt %d)",
		job.ID, job.SessionID, len(job.ChunkKeys), job.Attempts)

	outcome := p.process(ctx, job)
	if err := p.store.Resolve(ctx, job.ID, outcome); err != nil {
		return true, fmt.Errorf("resolve job %s: %w", job.ID, err)
	}

	if outcome.Err != "" {
		log.Printf("Poller: job %s failed: %s", job.ID, outcome.Err)
	} else {
		log.Printf("Poller: job %s done (artifact %s)", job.ID, outcome.Result.MergedKey)
	}
	return true, nil
}

// Run polls on a fixed interval until the context is cancelled. For
// deployments that prefer a resident worker over cron-style invocations.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Poller: running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Poller: stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				log.Printf("Poller: poll error: %v", err)
			}
		}
	}
}

// process runs the pipeline for one claimed job. Assembly and transcription
// errors fail the job; persistence, notification and archive errors are
// logged and swallowed so a meeting with a working transcript is never lost
// behind an email or DB hiccup. Side effects already performed are not
// rolled back; the job record is the source of truth for completion.
func (p *Poller) process(ctx context.Context, job *Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Poller: panic processing job %s: %v\n%s", job.ID, r, debug.Stack())
			out = Outcome{Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	meta := types.ParseMeetingMeta(job.MeetingMeta)

	artifact, err := p.stageAssemble(ctx, job.ChunkKeys)
	if err != nil {
		return Outcome{Err: fmt.Sprintf("assembly: %v", err)}
	}
	defer artifact.Close()

	mergedKey, audioLink, err := p.assembler.Publish(ctx, artifact.Path)
	if err != nil {
		return Outcome{Err: fmt.Sprintf("publish artifact: %v", err)}
	}

	transcript, err := p.stageTranscribe(ctx, artifact.Path)
	if err != nil {
		return Outcome{Err: fmt.Sprintf("transcription: %v", err)}
	}

	analysis, err := p.stageAnalyze(ctx, transcript)
	if err != nil {
		return Outcome{Err: fmt.Sprintf("analysis: %v", err)}
	}

	result := &types.JobResult{
		MergedKey: mergedKey,
		AudioLink: audioLink,
		Analysis:  analysis,
	}

	endTime := time.Now().UTC()
	durationMs := meta.DurationMs
	if durationMs == 0 && !meta.StartTime.IsZero() {
		durationMs = endTime.Sub(meta.StartTime).Milliseconds()
	}

	meetingID := job.MeetingID
	if meetingID == "" {
		meetingID = meta.MeetingID
	}
	if p.sink != nil && (meetingID != "" || meta.MeetingCode != "") {
		res := meetings.Result{
			AudioLink:  audioLink,
			Analysis:   analysis,
			EndTime:    endTime,
			DurationMs: durationMs,
		}
		if err := p.sink.AttachResult(ctx, meetingID, meta.MeetingCode, res); err != nil {
			log.Printf("Poller: job %s: meeting update failed, continuing: %v", job.ID, err)
		}
	}

	if p.notifier != nil && meta.HostEmail != "" {
		subject := "Meeting Notes - " + orDefault(meta.Title, "Meeting")
		msg := notify.Message{
			Recipient:    meta.HostEmail,
			Subject:      subject,
			Analysis:     analysis,
			ArtifactPath: artifact.Path,
			Meta:         meta,
		}
		if err := p.notifier.SendAnalysis(ctx, msg); err != nil {
			log.Printf("Poller: job %s: notification failed, continuing: %v", job.ID, err)
		}
	}

	if p.archiver != nil {
		url, err := p.archiver.Archive(ctx, artifact.Path, filepath.Base(artifact.Path))
		if err != nil {
			log.Printf("Poller: job %s: archive failed, continuing: %v", job.ID, err)
		} else {
			result.ArchiveURL = url
		}
	}

	return Outcome{Result: result}
}

func (p *Poller) stageAssemble(ctx context.Context, keys []string) (*media.Artifact, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	if tracks, ok := media.TracksFromKeys(keys); ok {
		return p.assembler.MixTracks(ctx, tracks)
	}
	return p.assembler.AssembleChunks(ctx, keys)
}

func (p *Poller) stageTranscribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	return p.transcriber.Transcribe(ctx, path)
}

func (p *Poller) stageAnalyze(ctx context.Context, transcript string) (*types.Analysis, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	return p.analyzer.Analyze(ctx, transcript)
}

func (p *Poller) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.stageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.stageTimeout)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
