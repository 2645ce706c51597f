package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
}

func str(s string) *string { return &s }

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*ocr.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path))
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(filepath.Base(path), "broken"):
		return nil, &ocr.DecodeError{Path: path, Err: errors.New("unknown format")}
	case strings.HasPrefix(filepath.Base(path), "blank"):
		return &ocr.Result{}, nil
	}
	return &ocr.Result{Text: "No. 8249578 kWh", Serial: str("8249578"), Reading: str("00421")}, nil
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func decode(t *testing.T, out string) []Record {
	t.Helper()
	var recs []Record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	return recs
}

func TestIsSupportedExt(t *testing.T) {
	for name, want := range map[string]bool{
		"a.png": true, "b.JPG": true, "c.jpeg": true, "d.gif": true, "e.webp": true,
		"notes.txt": false, ".hidden.png": false, "upload.png.part": false, "noext": false,
	} {
		assert.Equal(t, want, IsSupportedExt(name), name)
	}
}

func TestRunWritesRecordsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "c.webp", "a.png", "broken.jpg", "blank.png", "readme.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	var out bytes.Buffer
	ext := &fakeExtractor{}
	r := NewRunner(ext, &out, Options{Dir: dir, Concurrency: 3, Log: logging.Nop()})
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	recs := decode(t, out.String())
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"a.png", "blank.png", "broken.jpg", "c.webp"},
		[]string{recs[0].File, recs[1].File, recs[2].File, recs[3].File})

	assert.Equal(t, "8249578", *recs[0].Serial)
	assert.Equal(t, "00421", *recs[0].Reading)
	assert.Nil(t, recs[1].Serial)
	assert.Nil(t, recs[1].Reading)
	assert.Empty(t, recs[1].Error)
	assert.True(t, recs[2].DecodeError)
	assert.Contains(t, recs[2].Error, "unknown format")

	assert.Equal(t, Summary{Files: 4, Serial: 2, Reading: 2, Failed: 1}, sum)
	assert.Len(t, ext.calls, 4)
}

func TestRunMovesProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	processed := filepath.Join(t.TempDir(), "processed")
	touch(t, dir, "a.png", "broken.png")

	var out bytes.Buffer
	r := NewRunner(&fakeExtractor{}, &out, Options{Dir: dir, ProcessedDir: processed, Log: logging.Nop()})
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(processed, "a.png"))
	assert.NoFileExists(t, filepath.Join(dir, "a.png"))
	// undecodable files stay for manual inspection
	assert.FileExists(t, filepath.Join(dir, "broken.png"))

	recs := decode(t, out.String())
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Moved)
	assert.False(t, recs[1].Moved)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.png", "b.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := NewRunner(&fakeExtractor{}, &out, Options{Dir: dir, Log: logging.Nop()}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestRunMissingDir(t *testing.T) {
	_, err := NewRunner(&fakeExtractor{}, &bytes.Buffer{}, Options{Dir: filepath.Join(t.TempDir(), "nope")}).Run(context.Background())
	assert.Error(t, err)
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	out := &syncBuffer{}
	r := NewRunner(&fakeExtractor{}, out, Options{Dir: dir, Concurrency: 2, Debounce: 20 * time.Millisecond, Log: logging.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// give the watcher time to register before files appear
	time.Sleep(100 * time.Millisecond)
	touch(t, dir, "new.png", "ignored.txt")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"file":"new.png"`)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.NotContains(t, out.String(), "ignored.txt")
}
