package ocr

import (
	"context"
	"image"
)

// Rect converts the fractional band into a full-width rectangle of bounds.
func (b Band) Rect(bounds image.Rectangle) image.Rectangle {
	h := float64(bounds.Dy())
	return image.Rect(
		bounds.Min.X, bounds.Min.Y+int(b.Top*h),
		bounds.Max.X, bounds.Min.Y+int(b.Bottom*h),
	)
}

// regionCandidates scans the field's fixed band when anchors gave nothing usable.
func (p *Pipeline) regionCandidates(ctx context.Context, inv *invocation, f Field) []Candidate {
	band := p.cfg.ReadingBand
	if f == FieldSerial {
		band = p.cfg.SerialBand
	}
	r := band.Rect(inv.gray.Rect)
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil
	}
	return p.extractDigits(ctx, inv, cropGray(inv.gray, r), f, "region")
}
