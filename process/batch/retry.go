package batch

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
)

// ImageExtractor runs the pipeline on a decoded image.
type ImageExtractor interface {
	ExtractImage(ctx context.Context, img image.Image) *ocr.Trace
}

// Enhance is the aggressive preprocessing used for retries: sharpen, then boost contrast.
func Enhance(img image.Image) image.Image {
	return imaging.AdjustContrast(imaging.Sharpen(img, 2.0), 30)
}

// Retry re-runs records with an unresolved field on an enhanced copy of their
// image, looked up in dirs in order. Resolved fields are never overwritten.
// It returns the updated records and how many gained a field.
func Retry(ctx context.Context, ext ImageExtractor, recs []Record, log logging.Logger, dirs ...string) ([]Record, int, error) {
	out := make([]Record, len(recs))
	copy(out, recs)
	improved := 0
	for i, rec := range out {
		if err := ctx.Err(); err != nil {
			return out, improved, err
		}
		if rec.DecodeError || (rec.Serial != nil && rec.Reading != nil) {
			continue
		}
		path, err := locate(rec.File, dirs)
		if err != nil {
			log.Warnf("retry: %s: %v", rec.File, err)
			continue
		}
		img, err := imaging.Open(path)
		if err != nil {
			log.Warnf("retry: open %s: %v", path, err)
			continue
		}
		start := time.Now()
		res := ext.ExtractImage(ctx, Enhance(img)).Result
		gained := false
		if rec.Serial == nil && res.Serial != nil {
			out[i].Serial, gained = res.Serial, true
		}
		if rec.Reading == nil && res.Reading != nil {
			out[i].Reading, gained = res.Reading, true
		}
		out[i].ElapsedMS += time.Since(start).Milliseconds()
		if gained {
			improved++
			log.Infof("retry: %s serial=%s reading=%s", rec.File, deref(out[i].Serial), deref(out[i].Reading))
		} else {
			log.Debugf("retry: no new field for %s", rec.File)
		}
	}
	return out, improved, nil
}

func locate(name string, dirs []string) (string, error) {
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("image not found")
}

func deref(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
