package ocr

import (
	"context"
	"image"
	"math"
	"strings"
)

// anchorROI returns the crop for the first word containing one of the profile's
// keywords. Matches whose clamped crop is empty are skipped.
func anchorROI(words []WordBox, prof AnchorProfile, bounds image.Rectangle) (image.Rectangle, WordBox, bool) {
	for _, w := range words {
		if !containsKeyword(w.Text, prof.Keywords) {
			continue
		}
		box := w.Rect()
		fw, fh := float64(box.Dx()), float64(box.Dy())
		x0 := box.Min.X + int(math.Round(prof.Offset.X*fw))
		y0 := box.Min.Y + int(math.Round(prof.Offset.Y*fh))
		r := image.Rect(
			x0, y0,
			x0+int(math.Round(prof.Offset.W*fw)),
			y0+int(math.Round(prof.Offset.H*fh)),
		).Intersect(bounds)
		if r.Dx() <= 0 || r.Dy() <= 0 {
			continue
		}
		return r, w, true
	}
	return image.Rectangle{}, WordBox{}, false
}

func containsKeyword(text string, keywords []string) bool {
	low := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(low, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func (p *Pipeline) anchorProfile(f Field) AnchorProfile {
	if f == FieldSerial {
		return p.cfg.SerialAnchors
	}
	return p.cfg.ReadingAnchors
}

// anchorCandidates crops around the field's anchor and runs the digit extractor on it.
func (p *Pipeline) anchorCandidates(ctx context.Context, inv *invocation, f Field) []Candidate {
	r, anchor, ok := anchorROI(inv.loc.Words, p.anchorProfile(f), inv.gray.Rect)
	if !ok {
		p.log.Debugf("OCR %s no anchor among %d words", f, len(inv.loc.Words))
		return nil
	}
	p.log.Debugf("OCR %s anchor=%q roi=%v", f, anchor.Text, r)
	return p.extractDigits(ctx, inv, cropGray(inv.gray, r), f, "anchor")
}
