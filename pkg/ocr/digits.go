package ocr

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// digitModes are the segmentation assumptions tried on every digit variant.
var digitModes = [3]PageSegMode{ModeSingleLine, ModeSingleWord, ModeRawLine}

// extractDigits runs the 3 variants x 3 modes grid over crop. Every non-empty
// digit result becomes a candidate, in grid order.
func (p *Pipeline) extractDigits(ctx context.Context, inv *invocation, crop *image.Gray, f Field, source string) []Candidate {
	variants := p.prep.Digits(crop, f.polarity())
	for i := range variants {
		variants[i].Img = scaleGray(variants[i].Img, p.cfg.ROIScale, imaging.CatmullRom)
		inv.debug(source+"_"+f.String(), variants[i].Label, variants[i].Img)
	}

	n := len(variants) * len(digitModes)
	results := make([]string, n)
	stage := source + "/" + f.String()
	p.runner.run(ctx, n, func(ctx context.Context, i int) {
		v, mode := variants[i/len(digitModes)], digitModes[i%len(digitModes)]
		text, ok := p.text(ctx, stage, v.Label+"/"+mode.String(), Request{
			Image:     v.Img,
			Mode:      mode,
			Whitelist: p.cfg.DigitWhitelist,
		})
		if ok {
			results[i] = onlyDigits(text)
		}
	})

	var out []Candidate
	for i, d := range results {
		if d == "" {
			continue
		}
		v, mode := variants[i/len(digitModes)], digitModes[i%len(digitModes)]
		out = append(out, Candidate{Digits: d, Method: source + "/" + v.Label + "/" + mode.String()})
	}
	p.log.Debugf("OCR %s %s candidates=%d", f, source, len(out))
	return out
}
