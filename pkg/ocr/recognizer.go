package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// PageSegMode is the layout assumption handed to the recognizer.
type PageSegMode int

const (
	ModeFullPage PageSegMode = iota
	ModeUniformBlock
	ModeSingleLine
	ModeSingleWord
	ModeRawLine
)

func (m PageSegMode) String() string {
	switch m {
	case ModeFullPage:
		return "psm3"
	case ModeUniformBlock:
		return "psm6"
	case ModeSingleLine:
		return "psm7"
	case ModeSingleWord:
		return "psm8"
	case ModeRawLine:
		return "psm13"
	}
	return fmt.Sprintf("psm?%d", int(m))
}

func (m PageSegMode) tesseract() gosseract.PageSegMode {
	switch m {
	case ModeUniformBlock:
		return gosseract.PSM_SINGLE_BLOCK
	case ModeSingleLine:
		return gosseract.PSM_SINGLE_LINE
	case ModeSingleWord:
		return gosseract.PSM_SINGLE_WORD
	case ModeRawLine:
		return gosseract.PSM_RAW_LINE
	}
	return gosseract.PSM_AUTO
}

// WordBox is one recognized word with its bounding box in pixel coordinates.
type WordBox struct {
	Text       string
	Left       int
	Top        int
	Width      int
	Height     int
	Confidence float64
}

// Rect returns the box as an image.Rectangle.
func (w WordBox) Rect() image.Rectangle {
	return image.Rect(w.Left, w.Top, w.Left+w.Width, w.Top+w.Height)
}

// Request is a single recognition call. An empty Whitelist means unrestricted.
type Request struct {
	Image     image.Image
	Mode      PageSegMode
	Whitelist string
}

// Recognizer is the external OCR engine. Implementations must be safe for
// concurrent use when the pipeline runs with more than one worker.
type Recognizer interface {
	// Words returns word boxes (layout-aware recognition).
	Words(ctx context.Context, req Request) ([]WordBox, error)
	// Text returns the plain recognized text.
	Text(ctx context.Context, req Request) (string, error)
}

// TesseractRecognizer drives libtesseract through gosseract. A fresh client is
// created per call so concurrent calls never share engine state.
type TesseractRecognizer struct {
	language       string
	tessdataPrefix string
}

// NewTesseractRecognizer builds a recognizer from the engine settings in cfg.
func NewTesseractRecognizer(cfg Config) *TesseractRecognizer {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	return &TesseractRecognizer{language: lang, tessdataPrefix: cfg.TessdataPrefix}
}

func (t *TesseractRecognizer) client(req Request) (*gosseract.Client, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, req.Image, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	client := gosseract.NewClient()
	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.language); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(req.Mode.tesseract()); err != nil {
		client.Close()
		return nil, fmt.Errorf("set psm: %w", err)
	}
	if req.Whitelist != "" {
		if err := client.SetWhitelist(req.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		client.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return client, nil
}

func (t *TesseractRecognizer) Words(ctx context.Context, req Request) ([]WordBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := t.client(req)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract boxes: %w", err)
	}
	out := make([]WordBox, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		out = append(out, WordBox{
			Text:       text,
			Left:       b.Box.Min.X,
			Top:        b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
			Confidence: b.Confidence,
		})
	}
	return out, nil
}

func (t *TesseractRecognizer) Text(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client, err := t.client(req)
	if err != nil {
		return "", err
	}
	defer client.Close()
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract text: %w", err)
	}
	return text, nil
}
