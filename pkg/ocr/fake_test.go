package ocr

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"meterocr/pkg/logging"
)

// fakeRecognizer answers from scripted functions and counts calls per kind.
type fakeRecognizer struct {
	words func(req Request) ([]WordBox, error)
	text  func(req Request) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

func newFake() *fakeRecognizer {
	return &fakeRecognizer{calls: map[string]int{}}
}

// kind groups calls: "words", "digits" (whitelisted text) or "text" (unrestricted).
func (f *fakeRecognizer) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeRecognizer) inc(kind string) {
	f.mu.Lock()
	f.calls[kind]++
	f.mu.Unlock()
}

func (f *fakeRecognizer) Words(_ context.Context, req Request) ([]WordBox, error) {
	f.inc("words")
	if f.words == nil {
		return nil, nil
	}
	return f.words(req)
}

func (f *fakeRecognizer) Text(_ context.Context, req Request) (string, error) {
	if req.Whitelist != "" {
		f.inc("digits")
	} else {
		f.inc("text")
	}
	if f.text == nil {
		return "", nil
	}
	return f.text(req)
}

// Meter fixture: a 600x400 light plate with a dark marker in the top-left corner.
// The fake only "reads" an image when the marker is top-left, so orientation matters.
const (
	plateW = 600
	plateH = 400
)

func plateImage() *image.NRGBA {
	img := imaging.New(plateW, plateH, color.NRGBA{200, 200, 200, 255})
	return imaging.Paste(img, imaging.New(100, 100, color.NRGBA{0, 0, 0, 255}), image.Pt(0, 0))
}

// upright reports whether the corner marker is in the top-left of img.
func upright(img image.Image) bool {
	g := toGray(img)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w <= h {
		return false
	}
	return meanGray(cropGray(g, image.Rect(0, 0, w/8, h/8))) < 64
}

// plateWords are in plate coordinates; the fake scales them to the request image.
var plateWords = []WordBox{
	{Text: "ACME", Left: 200, Top: 30, Width: 80, Height: 20, Confidence: 90},
	{Text: "1-PHASE", Left: 300, Top: 30, Width: 100, Height: 20, Confidence: 85},
	{Text: "kWh", Left: 500, Top: 100, Width: 40, Height: 20, Confidence: 88},
	{Text: "No.", Left: 300, Top: 250, Width: 40, Height: 20, Confidence: 80},
	{Text: "2019", Left: 450, Top: 350, Width: 60, Height: 20, Confidence: 70},
	{Text: "50Hz", Left: 100, Top: 350, Width: 60, Height: 20, Confidence: 75},
}

func plateWordsFor(req Request) ([]WordBox, error) {
	if !upright(req.Image) {
		return nil, nil
	}
	scale := float64(req.Image.Bounds().Dx()) / plateW
	out := make([]WordBox, len(plateWords))
	for i, w := range plateWords {
		out[i] = WordBox{
			Text:       w.Text,
			Left:       int(float64(w.Left) * scale),
			Top:        int(float64(w.Top) * scale),
			Width:      int(float64(w.Width) * scale),
			Height:     int(float64(w.Height) * scale),
			Confidence: w.Confidence,
		}
	}
	return out, nil
}

// Crop sizes produced by the default anchor profiles on plateWords, after the 3x ROI scale.
var (
	serialCropSize  = image.Pt(780, 120)
	readingCropSize = image.Pt(1080, 240)
)

func plateDigitsFor(req Request) (string, error) {
	switch req.Image.Bounds().Size() {
	case serialCropSize:
		return "8249578\n", nil
	case readingCropSize:
		return "00421\n", nil
	}
	return "", nil
}

func plateFake() *fakeRecognizer {
	f := newFake()
	f.words = plateWordsFor
	f.text = plateDigitsFor
	return f
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newTestPipeline(t *testing.T, cfg Config, rec Recognizer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, rec, WithLogger(logging.Nop()), WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}
