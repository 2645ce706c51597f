package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// rotations are tested in this order; on equal word counts the earlier one wins.
var rotations = [4]int{0, 90, 180, 270}

// rotate turns img counter-clockwise by deg (a multiple of 90).
func rotate(img image.Image, deg int) image.Image {
	switch deg {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	}
	return img
}

// correctRotation returns img turned to the orientation with the most confident
// words, and the applied angle. Probing runs on a downsampled, equalized copy.
func (p *Pipeline) correctRotation(ctx context.Context, img image.Image) (image.Image, int) {
	maxDim := p.cfg.RotationMaxDim
	probe := equalize(toGray(imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)))

	var counts [len(rotations)]int
	p.runner.run(ctx, len(rotations), func(ctx context.Context, i int) {
		deg := rotations[i]
		words, ok := p.words(ctx, "rotation", fmt.Sprintf("rot%d", deg), Request{
			Image: rotate(probe, deg),
			Mode:  ModeFullPage,
		})
		if !ok {
			return
		}
		for _, w := range words {
			if w.Confidence > p.cfg.RotationMinConfidence {
				counts[i]++
			}
		}
	})

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	p.log.Debugf("OCR rotation counts=%v chosen=%d", counts, rotations[best])
	return rotate(img, rotations[best]), rotations[best]
}
