package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotationPicksUprightOrientation(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig(), plateFake())
	for _, deg := range []int{0, 90, 180, 270} {
		// turning the plate by deg means the corrector must apply (360-deg)%360
		in := rotate(plateImage(), deg)
		out, applied := p.correctRotation(context.Background(), in)
		assert.Equal(t, (360-deg)%360, applied, "input turned by %d", deg)
		assert.True(t, upright(out), "input turned by %d", deg)
	}
}

func TestRotationTieKeepsZero(t *testing.T) {
	rec := newFake()
	rec.words = func(Request) ([]WordBox, error) {
		return []WordBox{{Text: "x", Confidence: 90}}, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	_, deg := p.correctRotation(context.Background(), plateImage())
	assert.Equal(t, 0, deg)
	assert.Equal(t, 4, rec.count("words"))
}

func TestRotationCountsOnlyConfidentWords(t *testing.T) {
	rec := newFake()
	rec.words = func(req Request) ([]WordBox, error) {
		// portrait orientations return many weak words, landscape upright a few strong ones
		if req.Image.Bounds().Dx() < req.Image.Bounds().Dy() {
			return []WordBox{{Confidence: 30}, {Confidence: 12}, {Confidence: 29}}, nil
		}
		if upright(req.Image) {
			return []WordBox{{Confidence: 31}}, nil
		}
		return nil, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	_, deg := p.correctRotation(context.Background(), rotate(plateImage(), 180))
	assert.Equal(t, 180, deg)
}

func TestRotationSurvivesFailedAttempts(t *testing.T) {
	rec := newFake()
	rec.words = func(req Request) ([]WordBox, error) {
		if upright(req.Image) {
			return nil, errors.New("engine crashed")
		}
		return []WordBox{{Confidence: 95}}, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	_, deg := p.correctRotation(context.Background(), plateImage())
	// 0 failed and scores zero; 90 is the first of the others
	assert.Equal(t, 90, deg)

	rec.words = func(Request) ([]WordBox, error) { return nil, errors.New("down") }
	_, deg = p.correctRotation(context.Background(), plateImage())
	assert.Equal(t, 0, deg)
}

func TestRotationProbeIsBounded(t *testing.T) {
	rec := newFake()
	var maxSide int
	rec.words = func(req Request) ([]WordBox, error) {
		b := req.Image.Bounds()
		maxSide = max(maxSide, b.Dx(), b.Dy())
		return nil, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	big := imaging.New(3000, 1500, color.NRGBA{255, 255, 255, 255})
	out, _ := p.correctRotation(context.Background(), big)
	assert.Equal(t, 1000, maxSide)
	assert.Equal(t, image.Pt(3000, 1500), out.Bounds().Size(), "rotation applies to the original")
}

func TestLocalizeRetriesUniformBlock(t *testing.T) {
	rec := newFake()
	rec.words = func(req Request) ([]WordBox, error) {
		if req.Mode == ModeFullPage {
			return []WordBox{{Text: "kWh", Left: 100, Top: 100, Width: 40, Height: 20}}, nil
		}
		return []WordBox{
			{Text: "No.", Left: 200, Top: 300, Width: 60, Height: 20},
			{Text: "8249578", Left: 280, Top: 300, Width: 140, Height: 20},
		}, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	loc := p.localize(context.Background(), spot(300, 40, 200, 20))

	assert.Equal(t, ModeUniformBlock, loc.Mode)
	assert.Equal(t, "No. 8249578", loc.Text)
	assert.Equal(t, "equalized", loc.Variant)
	assert.Equal(t, 8, rec.count("words"))
	// the 300px input was upscaled 2x; boxes come back in input coordinates
	assert.Equal(t, WordBox{Text: "No.", Left: 100, Top: 150, Width: 30, Height: 10}, loc.Words[0])
}

func TestLocalizeKeepsFullPageWhenRetryIsShorter(t *testing.T) {
	rec := newFake()
	rec.words = func(req Request) ([]WordBox, error) {
		if req.Mode == ModeFullPage {
			return []WordBox{{Text: "ELECTRICITY"}, {Text: "METER"}}, nil
		}
		return []WordBox{{Text: "EL"}}, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	loc := p.localize(context.Background(), image.NewGray(image.Rect(0, 0, 1300, 60)))
	assert.Equal(t, ModeFullPage, loc.Mode)
	assert.Equal(t, "ELECTRICITY METER", loc.Text)
}

func TestLocalizeLongestVariantWins(t *testing.T) {
	rec := newFake()
	calls := 0
	rec.words = func(req Request) ([]WordBox, error) {
		calls++
		if calls == 3 { // adaptive
			return []WordBox{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}, {Text: "longest"}}, nil
		}
		return []WordBox{{Text: "short"}}, nil
	}
	p := newTestPipeline(t, DefaultConfig(), rec)
	loc := p.localize(context.Background(), image.NewGray(image.Rect(0, 0, 1300, 60)))
	assert.Equal(t, "adaptive", loc.Variant)
	assert.Len(t, loc.Words, 5)
	assert.Equal(t, 4, rec.count("words"), "no retry with five words")
}

func TestRescaleWords(t *testing.T) {
	in := []WordBox{{Left: 101, Top: 50, Width: 41, Height: 21}}
	out := rescaleWords(in, 2)
	require.Len(t, out, 1)
	assert.Equal(t, WordBox{Left: 51, Top: 25, Width: 21, Height: 11}, out[0])
	assert.Equal(t, 101, in[0].Left, "input untouched")
}
