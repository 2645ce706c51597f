package ocr

import (
	"image"

	"github.com/disintegration/imaging"
)

// Variant is a labeled transform of an image or crop, scoped to one recognition attempt.
type Variant struct {
	Label string
	Img   *image.Gray
}

// Polarity is the assumed digit/background contrast of a region.
type Polarity int

const (
	// BrightOnDark is the reading profile: lit digits on a dark window.
	BrightOnDark Polarity = iota
	// DarkOnLight is the serial profile: printed digits on a light plate.
	DarkOnLight
)

// Preprocessor builds variant sets. Window and Bias drive the adaptive threshold.
type Preprocessor struct {
	Window int
	Bias   int
}

// NewPreprocessor reads the adaptive threshold settings from cfg.
func NewPreprocessor(cfg Config) Preprocessor {
	return Preprocessor{Window: cfg.AdaptiveWindow, Bias: cfg.AdaptiveBias}
}

// Whole returns the whole-image profile: equalized, otsu, adaptive, sharpened.
func (p Preprocessor) Whole(g *image.Gray) []Variant {
	eq := equalize(g)
	return []Variant{
		{Label: "equalized", Img: eq},
		{Label: "otsu", Img: binarize(g, otsuThreshold(g), false)},
		{Label: "adaptive", Img: adaptiveThreshold(g, p.Window, p.Bias, false)},
		{Label: "sharpened", Img: equalize(toGray(imaging.Sharpen(g, 1.0)))},
	}
}

// ROI returns the whole-image profile plus inverted and stretched variants so
// both digit polarities are represented. It is a diagnostic view for tuning
// crops; the anchor and band extractors read their crops through Digits.
func (p Preprocessor) ROI(g *image.Gray) []Variant {
	out := p.Whole(g)
	return append(out,
		Variant{Label: "inverted", Img: invert(g)},
		Variant{Label: "stretched", Img: stretch(g, 0.01, 0.99)},
	)
}

// Digits returns the three threshold variants used by the region digit extractors.
// Every variant comes out as dark digits on white, the form the recognizer reads best.
func (p Preprocessor) Digits(g *image.Gray, pol Polarity) []Variant {
	inv := pol == BrightOnDark
	st := stretch(g, 0.01, 0.99)
	labels := [3]string{"adaptive_eq", "adaptive", "contrast"}
	if inv {
		labels = [3]string{"inv_adaptive_eq", "adaptive_inv", "contrast_inv"}
	}
	return []Variant{
		{Label: labels[0], Img: adaptiveThreshold(equalize(g), p.Window, p.Bias, inv)},
		{Label: labels[1], Img: adaptiveThreshold(g, p.Window, p.Bias, inv)},
		{Label: labels[2], Img: binarize(st, otsuThreshold(st), inv)},
	}
}

// toGray converts any image to an origin-based *image.Gray.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	n := imaging.Grayscale(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := n.Pix[y*n.Stride : y*n.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// scaleGray resizes by factor with the given filter.
func scaleGray(g *image.Gray, factor float64, filter imaging.ResampleFilter) *image.Gray {
	if factor == 1 {
		return g
	}
	w := int(float64(g.Rect.Dx())*factor + 0.5)
	h := int(float64(g.Rect.Dy())*factor + 0.5)
	if w < 1 || h < 1 {
		return g
	}
	return toGray(imaging.Resize(g, w, h, filter))
}

func cropGray(g *image.Gray, r image.Rectangle) *image.Gray {
	return toGray(imaging.Crop(g, r))
}

func histogram(g *image.Gray) (hist [256]int, total int) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	return hist, w * h
}

func mapGray(g *image.Gray, lut *[256]uint8) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			dst[x] = lut[v]
		}
	}
	return out
}

// equalize performs global histogram equalization.
func equalize(g *image.Gray) *image.Gray {
	hist, total := histogram(g)
	var lut [256]uint8
	cdfMin, cdf := 0, 0
	for _, c := range hist {
		if c > 0 {
			cdfMin = c
			break
		}
	}
	den := total - cdfMin
	for i, c := range hist {
		cdf += c
		if den <= 0 {
			lut[i] = uint8(i)
			continue
		}
		v := (cdf - cdfMin) * 255 / den
		if v < 0 {
			v = 0
		}
		lut[i] = uint8(v)
	}
	return mapGray(g, &lut)
}

// otsuThreshold picks the split maximizing between-class variance.
func otsuThreshold(g *image.Gray) uint8 {
	hist, total := histogram(g)
	if total == 0 {
		return 128
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}
	var sumB, best float64
	wB := 0
	var th uint8
	for i, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(c)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			th = uint8(i)
		}
	}
	return th
}

// binarize maps pixels <= threshold to black, others to white; invert swaps them.
func binarize(g *image.Gray, threshold uint8, invert bool) *image.Gray {
	var lut [256]uint8
	for i := range lut {
		dark := uint8(i) <= threshold
		if dark != invert {
			lut[i] = 0
		} else {
			lut[i] = 255
		}
	}
	return mapGray(g, &lut)
}

// adaptiveThreshold performs a mean adaptive threshold over a window using an
// integral image. Ink pixels (darker than the local mean, or brighter when
// brightInk is set) become black and everything else white.
func adaptiveThreshold(g *image.Gray, window, bias int, brightInk bool) *image.Gray {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	half := window / 2
	ints := make([]int, w*h)
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(g.Pix[y*g.Stride+x])
			idx := y*w + x
			if y == 0 {
				ints[idx] = rowSum
			} else {
				ints[idx] = ints[(y-1)*w+x] + rowSum
			}
		}
	}
	at := func(x, y int) int {
		if x < 0 || y < 0 {
			return 0
		}
		return ints[y*w+x]
	}
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half, w-1)
			sum := at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			v := int(g.Pix[y*g.Stride+x])
			ink := v < mean-bias
			if brightInk {
				ink = v > mean+bias
			}
			if ink {
				out.Pix[y*out.Stride+x] = 0
			} else {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// stretch linearly maps the [lo, hi] percentile range onto 0..255.
func stretch(g *image.Gray, lo, hi float64) *image.Gray {
	hist, total := histogram(g)
	if total == 0 {
		return g
	}
	pct := func(q float64) int {
		target := int(q * float64(total))
		acc := 0
		for i, c := range hist {
			acc += c
			if acc > target {
				return i
			}
		}
		return 255
	}
	a, b := pct(lo), pct(hi)
	var lut [256]uint8
	for i := range lut {
		switch {
		case b <= a:
			lut[i] = uint8(i)
		case i <= a:
			lut[i] = 0
		case i >= b:
			lut[i] = 255
		default:
			lut[i] = uint8((i - a) * 255 / (b - a))
		}
	}
	return mapGray(g, &lut)
}

func invert(g *image.Gray) *image.Gray {
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(255 - i)
	}
	return mapGray(g, &lut)
}

// Gray converts img to the origin-based grayscale form every profile expects.
func Gray(img image.Image) *image.Gray {
	return toGray(img)
}

// Mean is the average intensity of the variant.
func (v Variant) Mean() float64 {
	return meanGray(v.Img)
}

func meanGray(g *image.Gray) float64 {
	hist, total := histogram(g)
	if total == 0 {
		return 0
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}
	return sum / float64(total)
}
