package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader records calls and can be told to fail.
type fakeUploader struct {
	uploads map[string]int
	fail    bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string]int)}
}

func (f *fakeUploader) EnsureSubfolder(_ context.Context, name string) (string, error) {
	return "folder-" + name, nil
}

func (f *fakeUploader) Upload(_ context.Context, path, _, _ string) (string, error) {
	if f.fail {
		return "", errors.New("destination unavailable")
	}
	f.uploads[path]++
	return "id-" + filepath.Base(path), nil
}

func (f *fakeUploader) ListFiles(context.Context, string, int) ([]RemoteFile, error) {
	return nil, nil
}

func (f *fakeUploader) Delete(context.Context, string) error { return nil }

// writeSegment creates a closed (old, non-empty) segment file.
func writeSegment(t *testing.T, recordDir, channel, name string) string {
	t.Helper()
	dir := filepath.Join(recordDir, channel)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("mp4-bytes"), 0o644))
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := LoadState(dir)
	s.MarkUploaded("/rec/ch0/b.mp4")
	s.MarkUploaded("/rec/ch0/a.mp4")
	require.NoError(t, s.Save())

	// The on-disk form is a sorted JSON array.
	raw, err := os.ReadFile(filepath.Join(dir, StateFile))
	require.NoError(t, err)
	assert.JSONEq(t, `["/rec/ch0/a.mp4","/rec/ch0/b.mp4"]`, string(raw))

	// A fresh process sees the same set.
	s2 := LoadState(dir)
	assert.True(t, s2.IsUploaded("/rec/ch0/a.mp4"))
	assert.True(t, s2.IsUploaded("/rec/ch0/b.mp4"))
	assert.Equal(t, 2, s2.Len())
}

func TestStateToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile), []byte("{not json"), 0o644))
	s := LoadState(dir)
	assert.Equal(t, 0, s.Len())
}

func TestFindCompletedFilters(t *testing.T) {
	dir := t.TempDir()
	state := LoadState(dir)

	closed := writeSegment(t, dir, "ch0", "2026-08-25_10-00-00.mp4")
	uploaded := writeSegment(t, dir, "ch1", "2026-08-25_10-00-00.mp4")
	state.MarkUploaded(uploaded)

	// Fresh file: still being written.
	fresh := filepath.Join(dir, "ch0", "2026-08-25_10-15-00.mp4")
	require.NoError(t, os.WriteFile(fresh, []byte("mp4-bytes"), 0o644))

	// Empty file: muxer never wrote a frame.
	empty := writeSegment(t, dir, "ch0", "2026-08-25_09-00-00.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(empty, old, old))

	// Non-mp4 and non-channel entries are ignored.
	writeSegment(t, dir, "ch0", "notes.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "misc"), 0o755))

	pending := FindCompleted(dir, state)
	require.Len(t, pending, 1)
	assert.Equal(t, closed, pending[0].Path)
	assert.Equal(t, "ch0", pending[0].Channel)
}

func TestPassIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	state := LoadState(dir)
	seg1 := writeSegment(t, dir, "ch0", "a.mp4")
	seg2 := writeSegment(t, dir, "ch1", "b.mp4")

	up := newFakeUploader()
	w := NewWorker(dir, Config{DriveEnabled: true}, up, state)

	w.Pass(context.Background())
	w.Pass(context.Background())

	assert.Equal(t, 1, up.uploads[seg1])
	assert.Equal(t, 1, up.uploads[seg2])

	// The persisted set survives a restart: a new worker re-uploads
	// nothing.
	state2 := LoadState(dir)
	up2 := newFakeUploader()
	w2 := NewWorker(dir, Config{DriveEnabled: true}, up2, state2)
	w2.Pass(context.Background())
	assert.Empty(t, up2.uploads)
}

func TestPassRetriesAreBounded(t *testing.T) {
	dir := t.TempDir()
	state := LoadState(dir)
	seg := writeSegment(t, dir, "ch0", "a.mp4")

	up := newFakeUploader()
	up.fail = true
	w := NewWorker(dir, Config{DriveEnabled: true}, up, state)

	for i := 0; i < 5; i++ {
		w.Pass(context.Background())
	}
	assert.True(t, state.Exhausted(seg))

	// Once the destination recovers the file is still skipped; only a
	// restart clears the retry ledger.
	up.fail = false
	w.Pass(context.Background())
	assert.Zero(t, up.uploads[seg])

	state2 := LoadState(dir)
	w2 := NewWorker(dir, Config{DriveEnabled: true}, up, state2)
	w2.Pass(context.Background())
	assert.Equal(t, 1, up.uploads[seg])
}

func TestPassDeleteLocal(t *testing.T) {
	dir := t.TempDir()
	state := LoadState(dir)
	seg := writeSegment(t, dir, "ch0", "a.mp4")

	w := NewWorker(dir, Config{DriveEnabled: true, DeleteLocal: true}, newFakeUploader(), state)
	w.Pass(context.Background())

	_, err := os.Stat(seg)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, state.IsUploaded(seg))
}

func TestRunUploadCommandPlaceholders(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	err := runUploadCommand(context.Background(),
		"echo {channel}/{filename} > "+out, "/rec/ch2/f.mp4", "ch2", "f.mp4")
	require.NoError(t, err)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ch2/f.mp4\n", string(raw))
}

func TestRunUploadCommandFailure(t *testing.T) {
	err := runUploadCommand(context.Background(), "exit 3", "f", "ch0", "f")
	assert.Error(t, err)
}
