package ocr

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// DebugSink receives intermediate images. Failures are logged by the pipeline, never returned.
type DebugSink interface {
	Save(name string, img image.Image) error
}

// NopSink drops every image.
type NopSink struct{}

func (NopSink) Save(string, image.Image) error { return nil }

// DirSink writes PNG files into Dir. Names are made unique per invocation by the
// pipeline, so concurrent invocations can share one directory without locking.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(name string, img image.Image) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir debug dir: %w", err)
	}
	return imaging.Save(img, filepath.Join(s.Dir, safeName(name)+".png"))
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
