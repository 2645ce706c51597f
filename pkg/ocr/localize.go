package ocr

import (
	"context"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// localized is the outcome of whole-image word recognition.
type localized struct {
	Text    string
	Words   []WordBox
	Variant string
	Mode    PageSegMode
}

// localize recognizes words across the whole-image variants of g and keeps the
// variant with the longest text. Word boxes come back in g's coordinates.
func (p *Pipeline) localize(ctx context.Context, g *image.Gray) localized {
	scale := 1.0
	if max(g.Rect.Dx(), g.Rect.Dy()) < p.cfg.LocalizeSmallSide {
		scale = p.cfg.LocalizeUpscale
	}
	variants := p.prep.Whole(scaleGray(g, scale, imaging.Lanczos))

	best := p.longestText(ctx, variants, ModeFullPage)
	if len(best.Words) < p.cfg.MinLocalizedWords {
		retry := p.longestText(ctx, variants, ModeUniformBlock)
		if len(retry.Text) > len(best.Text) {
			best = retry
		}
	}
	best.Words = rescaleWords(best.Words, scale)
	p.log.Debugf("OCR localize variant=%s mode=%s words=%d text=%q", best.Variant, best.Mode, len(best.Words), snippet(best.Text, 120))
	return best
}

func (p *Pipeline) longestText(ctx context.Context, variants []Variant, mode PageSegMode) localized {
	results := make([][]WordBox, len(variants))
	p.runner.run(ctx, len(variants), func(ctx context.Context, i int) {
		words, ok := p.words(ctx, "localize", variants[i].Label+"/"+mode.String(), Request{
			Image: variants[i].Img,
			Mode:  mode,
		})
		if ok {
			results[i] = words
		}
	})
	best := localized{Mode: mode}
	for i, words := range results {
		text := joinWords(words)
		if len(text) > len(best.Text) {
			best = localized{Text: text, Words: words, Variant: variants[i].Label, Mode: mode}
		}
	}
	return best
}

func joinWords(words []WordBox) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, w.Text)
	}
	return strings.Join(parts, " ")
}

// rescaleWords maps boxes recognized on an image scaled by scale back to the original.
func rescaleWords(words []WordBox, scale float64) []WordBox {
	if scale == 1 || len(words) == 0 {
		return words
	}
	out := make([]WordBox, len(words))
	for i, w := range words {
		w.Left = int(math.Round(float64(w.Left) / scale))
		w.Top = int(math.Round(float64(w.Top) / scale))
		w.Width = int(math.Round(float64(w.Width) / scale))
		w.Height = int(math.Round(float64(w.Height) / scale))
		out[i] = w
	}
	return out
}
