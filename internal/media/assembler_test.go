package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/owlnotes/meeting-pipeline/internal/storage"
	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// fakeRunner records ffmpeg invocations and writes the output file so the
// assembler sees a successful run.
type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return "", f.err
	}
	// The output path is the last argument in every invocation we build.
	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("merged"), 0644); err != nil {
		return "", err
	}
	return "", nil
}

func newTestAssembler(t *testing.T, runner Runner) (*Assembler, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return NewAssembler(store, runner, t.TempDir()), store
}

func putChunk(t *testing.T, store *storage.LocalStore, key string) {
	t.Helper()
	if err := store.Upload(context.Background(), key, strings.NewReader("audio:"+key), "audio/webm"); err != nil {
		t.Fatalf("upload %s: %v", key, err)
	}
}

func TestSortChunkKeysNumericOrder(t *testing.T) {
	keys := []string{
		"recordings/s1/chunk-10.webm",
		"recordings/s1/chunk-2.webm",
		"recordings/s1/chunk-1.webm",
		"recordings/s1/chunk-0.webm",
	}
	want := []string{
		"recordings/s1/chunk-0.webm",
		"recordings/s1/chunk-1.webm",
		"recordings/s1/chunk-2.webm",
		"recordings/s1/chunk-10.webm",
	}
	if got := SortChunkKeys(keys); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSortChunkKeysDoesNotMutateInput(t *testing.T) {
	keys := []string{"recordings/s1/chunk-2.webm", "recordings/s1/chunk-1.webm"}
	SortChunkKeys(keys)
	if keys[0] != "recordings/s1/chunk-2.webm" {
		t.Fatalf("input mutated: %v", keys)
	}
}

func TestAssembleChunksConcatenatesInOrder(t *testing.T) {
	runner := &fakeRunner{}
	asm, store := newTestAssembler(t, runner)
	ctx := context.Background()

	// Stored out of order on purpose.
	keys := []string{
		"recordings/s1/chunk-10.webm",
		"recordings/s1/chunk-0.webm",
		"recordings/s1/chunk-2.webm",
	}
	for _, k := range keys {
		putChunk(t, store, k)
	}

	artifact, err := asm.AssembleChunks(ctx, keys)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer artifact.Close()

	if len(runner.calls) != 1 {
		t.Fatalf("ffmpeg invoked %d times, want 1", len(runner.calls))
	}
	call := runner.calls[0]
	if call[0] != "ffmpeg" {
		t.Fatalf("binary = %q", call[0])
	}

	listPath := argAfter(t, call, "-i")
	list, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read concat list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(list)), "\n")
	if len(lines) != 3 {
		t.Fatalf("concat list has %d lines: %q", len(lines), list)
	}
	// input-000 is chunk-0, input-001 is chunk-2, input-002 is chunk-10.
	for i, want := range []string{"input-000", "input-001", "input-002"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want %s", i, lines[i], want)
		}
	}

	// The downloaded inputs carry the chunk contents in numeric order.
	wantContents := []string{
		"audio:recordings/s1/chunk-0.webm",
		"audio:recordings/s1/chunk-2.webm",
		"audio:recordings/s1/chunk-10.webm",
	}
	dir := filepath.Dir(listPath)
	for i, want := range wantContents {
		data, err := os.ReadFile(filepath.Join(dir, []string{"input-000.webm", "input-001.webm", "input-002.webm"}[i]))
		if err != nil {
			t.Fatalf("read input %d: %v", i, err)
		}
		if string(data) != want {
			t.Fatalf("input %d = %q, want %q", i, data, want)
		}
	}
}

func TestAssembleChunksEmpty(t *testing.T) {
	asm, _ := newTestAssembler(t, &fakeRunner{})

	if _, err := asm.AssembleChunks(context.Background(), nil); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
}

func TestAssembleChunksMissingChunkFailsWhole(t *testing.T) {
	runner := &fakeRunner{}
	asm, store := newTestAssembler(t, runner)
	ctx := context.Background()

	putChunk(t, store, "recordings/s1/chunk-0.webm")

	_, err := asm.AssembleChunks(ctx, []string{
		"recordings/s1/chunk-0.webm",
		"recordings/s1/chunk-1.webm",
	})
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("ffmpeg should not run when a chunk is missing")
	}
}

func TestAssembleChunksFfmpegFailureCleansUp(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1: invalid data")}
	asm, store := newTestAssembler(t, runner)
	ctx := context.Background()

	putChunk(t, store, "recordings/s1/chunk-0.webm")

	if _, err := asm.AssembleChunks(ctx, []string{"recordings/s1/chunk-0.webm"}); !errors.Is(err, ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}

	entries, err := os.ReadDir(asm.scratchDir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir not cleaned: %v", entries)
	}
}

func TestMixTracksBuildsAmixFilter(t *testing.T) {
	runner := &fakeRunner{}
	asm, store := newTestAssembler(t, runner)
	ctx := context.Background()

	putChunk(t, store, "recordings/s1/user_audio.webm")
	putChunk(t, store, "recordings/s1/remote_audio.webm")

	artifact, err := asm.MixTracks(ctx, []Track{
		{Label: types.TrackRemote, Key: "recordings/s1/remote_audio.webm"},
		{Label: types.TrackUser, Key: "recordings/s1/user_audio.webm"},
	})
	if err != nil {
		t.Fatalf("mix: %v", err)
	}
	defer artifact.Close()

	call := runner.calls[0]
	filter := argAfter(t, call, "-filter_complex")
	if filter != "amix=inputs=2:duration=longest:dropout_transition=2" {
		t.Fatalf("filter = %q", filter)
	}

	// The user track is always input 0.
	first := argAfter(t, call, "-i")
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read first input: %v", err)
	}
	if string(data) != "audio:recordings/s1/user_audio.webm" {
		t.Fatalf("first input = %q, want the user track", data)
	}
}

func TestMixTracksRequiresUserTrack(t *testing.T) {
	asm, store := newTestAssembler(t, &fakeRunner{})
	putChunk(t, store, "recordings/s1/remote_audio.webm")

	_, err := asm.MixTracks(context.Background(), []Track{
		{Label: types.TrackRemote, Key: "recordings/s1/remote_audio.webm"},
	})
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
}

func TestTracksFromKeys(t *testing.T) {
	tracks, ok := TracksFromKeys([]string{
		"recordings/s1/user_audio.webm",
		"recordings/s1/remote_audio.webm",
		"recordings/s1/remote_audio-2.webm",
	})
	if !ok {
		t.Fatal("labeled keys not recognized as tracks")
	}
	if len(tracks) != 3 || tracks[0].Label != types.TrackUser || tracks[1].Label != types.TrackRemote {
		t.Fatalf("tracks = %v", tracks)
	}

	// Sequential chunk keys are not tracks.
	if _, ok := TracksFromKeys([]string{"recordings/s1/chunk-0.webm"}); ok {
		t.Fatal("chunk keys misread as tracks")
	}
	// A mixed set falls back to the chunk interpretation.
	if _, ok := TracksFromKeys([]string{
		"recordings/s1/user_audio.webm",
		"recordings/s1/chunk-0.webm",
	}); ok {
		t.Fatal("mixed key set misread as tracks")
	}
	if _, ok := TracksFromKeys(nil); ok {
		t.Fatal("empty key set misread as tracks")
	}
}

func TestMixTracksEmpty(t *testing.T) {
	asm, _ := newTestAssembler(t, &fakeRunner{})

	if _, err := asm.MixTracks(context.Background(), nil); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
}

func TestPublishUploadsUnderMergedPrefix(t *testing.T) {
	asm, store := newTestAssembler(t, &fakeRunner{})
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "merged-abc.mp3")
	if err := os.WriteFile(local, []byte("mp3"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	key, url, err := asm.Publish(ctx, local)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if key != "merged/merged-abc.mp3" {
		t.Fatalf("key = %q", key)
	}
	if url == "" {
		t.Fatal("expected a public url")
	}

	r, err := store.Download(ctx, key)
	if err != nil {
		t.Fatalf("download published artifact: %v", err)
	}
	r.Close()
}

func TestArtifactCloseTwice(t *testing.T) {
	calls := 0
	a := NewArtifact("x", func() { calls++ })
	a.Close()
	a.Close()
	if calls != 1 {
		t.Fatalf("cleanup ran %d times, want 1", calls)
	}
}

// argAfter returns the argument following the first occurrence of flag.
func argAfter(t *testing.T, call []string, flag string) string {
	t.Helper()
	for i, a := range call {
		if a == flag && i+1 < len(call) {
			return call[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, call)
	return ""
}
