package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/owlnotes/meeting-pipeline/internal/storage"
	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// Assembly errors
var (
	ErrNoChunks = errors.New("media: no chunks to assemble")
	ErrAssembly = errors.New("media: assembly failed")
)

// Artifact is a merged audio file on local disk. Close removes the scratch
// directory holding it; callers must Close on every exit path.
type Artifact struct {
	Path    string
	cleanup func()
}

// NewArtifact wraps an existing local file as an artifact. Used by tests.
func NewArtifact(path string, cleanup func()) *Artifact {
	return &Artifact{Path: path, cleanup: cleanup}
}

// Close releases the artifact's scratch space. Safe to call twice.
func (a *Artifact) Close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// Track is one labeled audio source from a live multi-party session.
type Track struct {
	Label string // types.TrackUser or types.TrackRemote
	Key   string
}

// TracksFromKeys interprets a job's chunk keys as labeled live-session
// tracks. It returns false when any key is not a labeled track, in which
// case the keys are sequential chunks to concatenate instead.
func TracksFromKeys(keys []string) ([]Track, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	tracks := make([]Track, 0, len(keys))
	for _, key := range keys {
		base := strings.TrimSuffix(filepath.Base(key), filepath.Ext(key))
		switch {
		case strings.HasPrefix(base, types.TrackUser):
			tracks = append(tracks, Track{Label: types.TrackUser, Key: key})
		case strings.HasPrefix(base, types.TrackRemote):
			tracks = append(tracks, Track{Label: types.TrackRemote, Key: key})
		default:
			return nil, false
		}
	}
	return tracks, true
}

// Assembler turns stored audio into one merged artifact. Sequential chunks
// of a single stream are concatenated; simultaneous labeled tracks are
// down-mixed. The two are distinct ffmpeg invocations and must not be
// conflated: concatenating simultaneous tracks doubles the timeline.
type Assembler struct {
	store      storage.BlobStore
	runner     Runner
	scratchDir string
	ffmpegBin  string
}

// NewAssembler creates an assembler writing scratch files under scratchDir.
func NewAssembler(store storage.BlobStore, runner Runner, scratchDir string) *Assembler {
	return &Assembler{
		store:      store,
		runner:     runner,
		scratchDir: scratchDir,
		ffmpegBin:  "ffmpeg",
	}
}

var chunkIndexRe = regexp.MustCompile(`chunk-(\d+)`)

// chunkIndex extracts the numeric sequence index from a chunk key.
// Keys without an index sort before indexed ones.
func chunkIndex(key string) (int, bool) {
	m := chunkIndexRe.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortChunkKeys orders chunk keys by numeric sequence index, so chunk-10
// follows chunk-2. Indices need not be contiguous; what is present is the
// total ordered set.
func SortChunkKeys(keys []string) []string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, aok := chunkIndex(sorted[i])
		b, bok := chunkIndex(sorted[j])
		if aok != bok {
			return !aok
		}
		if a != b {
			return a < b
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}

// AssembleChunks downloads the given chunk keys, orders them numerically and
// concatenates them into one mp3. Any missing or unreadable chunk fails the
// whole assembly; there are no partial merges.
func (a *Assembler) AssembleChunks(ctx context.Context, keys []string) (*Artifact, error) {
	if len(keys) == 0 {
		return nil, ErrNoChunks
	}

	workDir, cleanup, err := a.makeScratch()
	if err != nil {
		return nil, err
	}

	sorted := SortChunkKeys(keys)
	inputs := make([]string, 0, len(sorted))
	for i, key := range sorted {
		local := filepath.Join(workDir, fmt.Sprintf("input-%03d%s", i, chunkExt(key)))
		if err := a.fetch(ctx, key, local); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
		}
		inputs = append(inputs, local)
	}

	// ffmpeg concat demuxer needs a list file, one input per line.
	var list strings.Builder
	for _, in := range inputs {
		fmt.Fprintf(&list, "file '%s'\n", in)
	}
	listPath := filepath.Join(workDir, "inputs.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: write concat list: %v", ErrAssembly, err)
	}

	outPath := filepath.Join(workDir, fmt.Sprintf("merged-%s.mp3", uuid.New().String()))
	_, err = a.runner.Run(ctx, a.ffmpegBin,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y",
		outPath,
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	return &Artifact{Path: outPath, cleanup: cleanup}, nil
}

// MixTracks downloads the labeled tracks of a live session and down-mixes
// them into one timeline. The output duration equals the longest input;
// shorter tracks are padded with silence by the mixer. A user_audio track
// is required.
func (a *Assembler) MixTracks(ctx context.Context, tracks []Track) (*Artifact, error) {
	if len(tracks) == 0 {
		return nil, ErrNoChunks
	}

	ordered := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Label == types.TrackUser {
			ordered = append(ordered, t)
		}
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("%w: %s track required", ErrAssembly, types.TrackUser)
	}
	for _, t := range tracks {
		if t.Label != types.TrackUser {
			ordered = append(ordered, t)
		}
	}

	workDir, cleanup, err := a.makeScratch()
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, 2*len(ordered)+10)
	for i, t := range ordered {
		local := filepath.Join(workDir, fmt.Sprintf("track-%03d%s", i, chunkExt(t.Key)))
		if err := a.fetch(ctx, t.Key, local); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
		}
		args = append(args, "-i", local)
	}

	outPath := filepath.Join(workDir, fmt.Sprintf("merged-%s.mp3", uuid.New().String()))
	args = append(args,
		"-filter_complex", fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=2", len(ordered)),
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y",
		outPath,
	)

	if _, err := a.runner.Run(ctx, a.ffmpegBin, args...); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	return &Artifact{Path: outPath, cleanup: cleanup}, nil
}

// Publish uploads a merged artifact to the blob store under merged/ and
// returns its key and public URL.
func (a *Assembler) Publish(ctx context.Context, localPath string) (string, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("open merged artifact: %w", err)
	}
	defer f.Close()

	key := "merged/" + filepath.Base(localPath)
	if err := a.store.Upload(ctx, key, f, "audio/mpeg"); err != nil {
		return "", "", fmt.Errorf("upload merged artifact: %w", err)
	}
	return key, a.store.PublicURL(key), nil
}

func (a *Assembler) makeScratch() (string, func(), error) {
	if err := os.MkdirAll(a.scratchDir, 0755); err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	workDir, err := os.MkdirTemp(a.scratchDir, "assemble-")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return workDir, func() { os.RemoveAll(workDir) }, nil
}

func (a *Assembler) fetch(ctx context.Context, key, local string) error {
	r, err := a.store.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer r.Close()

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", local, err)
	}
	return f.Close()
}

func chunkExt(key string) string {
	if ext := filepath.Ext(key); ext != "" {
		return ext
	}
	return ".webm"
}
