// Package batch runs the meter pipeline over a directory of photos and writes
// one JSON line per image.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
)

// Extractor is the part of *ocr.Pipeline the runner uses.
type Extractor interface {
	Extract(ctx context.Context, path string) (*ocr.Result, error)
}

// Record is one output line.
type Record struct {
	File        string    `json:"file"`
	Text        string    `json:"text"`
	Serial      *string   `json:"serial"`
	Reading     *string   `json:"reading"`
	DecodeError bool      `json:"decode_error,omitempty"`
	Error       string    `json:"error,omitempty"`
	Moved       bool      `json:"moved,omitempty"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Options configures a Runner.
type Options struct {
	Dir string
	// ProcessedDir receives images after extraction. Empty leaves them in place.
	ProcessedDir string
	Concurrency  int
	// Debounce is how long a new file must stay quiet before watch mode picks it up.
	Debounce time.Duration
	Log      logging.Logger
}

// Runner feeds image files to an Extractor.
type Runner struct {
	ext  Extractor
	opts Options
	log  logging.Logger
	now  func() time.Time

	mu  sync.Mutex
	enc *json.Encoder
}

// NewRunner writes records to out.
func NewRunner(ext Extractor, out io.Writer, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	log := opts.Log
	if log == nil {
		log = logging.Default
	}
	return &Runner{ext: ext, opts: opts, log: log, now: time.Now, enc: json.NewEncoder(out)}
}

// Summary counts the outcome of a run.
type Summary struct {
	Files   int
	Serial  int
	Reading int
	Failed  int
}

func (s *Summary) add(r Record) {
	s.Files++
	if r.Serial != nil {
		s.Serial++
	}
	if r.Reading != nil {
		s.Reading++
	}
	if r.Error != "" {
		s.Failed++
	}
}

// Run processes every supported image currently in the directory. Records are
// written in file-name order once all extractions finish.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	names, err := ListImageFiles(r.opts.Dir)
	if err != nil {
		return sum, err
	}
	r.log.Infof("batch: %d images in %s (concurrency=%d)", len(names), r.opts.Dir, r.opts.Concurrency)

	recs := make([]Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			rec, err := r.process(gctx, name)
			recs[i] = rec
			return err
		})
	}
	werr := g.Wait()

	for _, rec := range recs {
		if rec.File == "" {
			continue
		}
		if err := r.write(rec); err != nil {
			return sum, err
		}
		sum.add(rec)
	}
	if werr != nil {
		return sum, fmt.Errorf("batch interrupted: %w", werr)
	}
	return sum, nil
}

// process extracts one file. Only cancellation is returned as an error; every
// per-image failure ends up in the record.
func (r *Runner) process(ctx context.Context, name string) (Record, error) {
	full := filepath.Join(r.opts.Dir, name)
	start := r.now()
	res, err := r.ext.Extract(ctx, full)
	rec := Record{File: name, ProcessedAt: start.UTC(), ElapsedMS: r.now().Sub(start).Milliseconds()}
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ocr.ErrDecode) {
			return Record{}, err
		}
		rec.Error = err.Error()
		rec.DecodeError = errors.Is(err, ocr.ErrDecode)
		r.log.Warnf("batch: %s: %v", name, err)
		return rec, nil
	}
	// the pipeline hands back a partial result when ctx ends mid-image
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec.Text, rec.Serial, rec.Reading = res.Text, res.Serial, res.Reading

	if r.opts.ProcessedDir != "" {
		if err := moveToProcessed(full, r.opts.ProcessedDir, name); err != nil {
			r.log.Warnf("batch: failed to move processed file %s: %v", name, err)
		} else {
			rec.Moved = true
			r.log.Debugf("batch: moved processed %s to %s", name, r.opts.ProcessedDir)
		}
	}
	return rec, nil
}

func (r *Runner) write(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("write record %s: %w", rec.File, err)
	}
	return nil
}

// ListImageFiles returns the supported image files directly inside dir, sorted by name.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// IsSupportedExt reports whether name looks like an image the pipeline decodes.
func IsSupportedExt(name string) bool {
	// hidden and partially written files
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// moveToProcessed moves src to dir/name.
// It attempts an atomic rename and falls back to copy+remove when necessary.
func moveToProcessed(src, dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
