package ocr

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
)

// confusions maps letters the recognizer commonly returns for digits.
var confusions = map[rune]rune{
	'S': '5',
	'O': '0',
	'I': '1',
	'l': '1',
	'B': '8',
	'G': '6',
	'Z': '2',
	'A': '4',
	'T': '7',
}

// serialConfusions adds the round glyphs seen on embossed serial plates.
var serialConfusions = map[rune]rune{
	'U': '0',
	'V': '0',
}

var (
	reSplitDigits = regexp.MustCompile(`(\d)[ \t]+(\d)`)
	reDigitRun    = regexp.MustCompile(`\d+`)
	reSerialLabel = regexp.MustCompile(`(?i)(?:No|S/N)[.;,:\s]*([A-Za-z0-9\-\s]{4,15})`)
	reDashedRun   = regexp.MustCompile(`\b[0-9-]{5,}\b`)
	reLetters     = regexp.MustCompile(`[a-zA-Z]`)
	reLineSplit   = regexp.MustCompile(`[/|\\:]`)
)

const (
	minRunLen = 4
	maxRunLen = 8
)

func confusable(r rune, f Field) (rune, bool) {
	if d, ok := confusions[r]; ok {
		return d, true
	}
	if f == FieldSerial {
		if d, ok := serialConfusions[r]; ok {
			return d, true
		}
	}
	return 0, false
}

// fixConfusions replaces confusable letters with digits. Under the adjacent
// policy only letters inside a run of digits and confusables that holds at
// least one real digit are replaced, so words like "SOLAR" survive.
func fixConfusions(text string, f Field, policy string) string {
	rs := []rune(text)
	if policy == PolicyBlanket {
		for i, r := range rs {
			if d, ok := confusable(r, f); ok {
				rs[i] = d
			}
		}
		return string(rs)
	}
	for i := 0; i < len(rs); {
		if _, ok := confusable(rs[i], f); !ok && !unicode.IsDigit(rs[i]) {
			i++
			continue
		}
		j, digits := i, false
		for ; j < len(rs); j++ {
			if unicode.IsDigit(rs[j]) {
				digits = true
				continue
			}
			if _, ok := confusable(rs[j], f); !ok {
				break
			}
		}
		if digits {
			for k := i; k < j; k++ {
				if d, ok := confusable(rs[k], f); ok {
					rs[k] = d
				}
			}
		}
		i = j
	}
	return string(rs)
}

// mergeDigitRuns joins digit groups split by horizontal whitespace ("8249 578").
// Newlines are kept so separate lines stay separate numbers.
func mergeDigitRuns(text string) string {
	for {
		next := reSplitDigits.ReplaceAllString(text, "${1}${2}")
		if next == text {
			return text
		}
		text = next
	}
}

// digitRuns extracts every digit run whose length is within the fallback bounds.
func digitRuns(text string) []string {
	var out []string
	for _, m := range reDigitRun.FindAllString(text, -1) {
		if len(m) >= minRunLen && len(m) <= maxRunLen {
			out = append(out, m)
		}
	}
	return out
}

// serialLabelDigits finds a "No."/"S/N" label and returns the digits of the
// first token after it, or the first long dashed number in the text.
func serialLabelDigits(text string) []string {
	var out []string
	if m := reSerialLabel.FindStringSubmatch(text); m != nil {
		if fields := strings.Fields(m[1]); len(fields) > 0 {
			tok := strings.TrimRightFunc(fields[0], func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
			if d := onlyDigits(tok); len(d) >= minRunLen {
				out = append(out, d)
			}
		}
	}
	if m := reDashedRun.FindString(text); m != "" {
		if d := onlyDigits(m); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// readingLineDigits splits each line on label separators, drops letters and
// decimal parts, and keeps groups of 4-7 digits.
func readingLineDigits(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, part := range reLineSplit.Split(reLetters.ReplaceAllString(line, ""), -1) {
			if i := strings.IndexByte(part, '.'); i >= 0 {
				part = part[:i]
			}
			d := onlyDigits(part)
			if len(d) >= 4 && len(d) <= 7 {
				out = append(out, d)
			}
		}
	}
	return out
}

// fallbackText is the unrestricted full-page text of one whole-image variant.
type fallbackText struct {
	Variant string
	Text    string
}

// fallbackTexts recognizes the upscaled full-resolution image once per
// invocation. The result is cached only when every attempt had time to run.
func (p *Pipeline) fallbackTexts(ctx context.Context, inv *invocation) []fallbackText {
	if inv.fallback != nil {
		return inv.fallback
	}
	variants := p.prep.Whole(scaleGray(inv.gray, p.cfg.FallbackUpscale, imaging.Lanczos))
	out := make([]fallbackText, len(variants))
	p.runner.run(ctx, len(variants), func(ctx context.Context, i int) {
		out[i].Variant = variants[i].Label
		if text, ok := p.text(ctx, "fallback", variants[i].Label+"/"+ModeFullPage.String(), Request{
			Image: variants[i].Img,
			Mode:  ModeFullPage,
		}); ok {
			out[i].Text = text
		}
	})
	if ctx.Err() == nil {
		inv.fallback = out
	}
	return out
}

// fallbackCandidates is the last resort for a field: label patterns and
// cleaned digit runs from the full-image text of each variant, in variant order.
func (p *Pipeline) fallbackCandidates(ctx context.Context, inv *invocation, f Field) []Candidate {
	var out []Candidate
	for _, ft := range p.fallbackTexts(ctx, inv) {
		if strings.TrimSpace(ft.Text) == "" {
			continue
		}
		method := "fallback/" + ft.Variant
		var labeled []string
		if f == FieldSerial {
			labeled = serialLabelDigits(ft.Text)
		} else {
			labeled = readingLineDigits(ft.Text)
		}
		for _, d := range labeled {
			out = append(out, Candidate{Digits: d, Method: method + "/label"})
		}
		cleaned := mergeDigitRuns(fixConfusions(ft.Text, f, p.cfg.ConfusionPolicy))
		for _, d := range digitRuns(cleaned) {
			out = append(out, Candidate{Digits: d, Method: method})
		}
		p.log.Debugf("OCR %s fallback variant=%s text=%q", f, ft.Variant, snippet(normalizeOCRText(ft.Text), 120))
	}
	if f == FieldReading && p.cfg.ExcludeSerialDigits && inv.serial != "" {
		out = excludeSubstrings(out, inv.serial)
	}
	return out
}

// excludeSubstrings drops candidates that are part of an already resolved serial.
func excludeSubstrings(cands []Candidate, serial string) []Candidate {
	kept := cands[:0]
	for _, c := range cands {
		if strings.Contains(serial, c.Digits) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
