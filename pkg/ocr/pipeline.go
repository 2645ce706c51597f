package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"meterocr/pkg/logging"
)

// Result is the only externally visible output. A nil field needs manual entry.
type Result struct {
	Text    string  `json:"text"`
	Serial  *string `json:"serial"`
	Reading *string `json:"reading"`
}

// FieldTrace records how one field was resolved.
type FieldTrace struct {
	Value      string      `json:"value,omitempty"`
	Method     string      `json:"method,omitempty"`
	Stage      string      `json:"stage,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Trace is the diagnostic companion of a Result.
type Trace struct {
	ID       string     `json:"id"`
	Result   Result     `json:"result"`
	Rotation int        `json:"rotation"`
	Variant  string     `json:"variant"`
	Mode     string     `json:"mode"`
	Serial   FieldTrace `json:"serial"`
	Reading  FieldTrace `json:"reading"`
}

// Pipeline extracts a serial number and a register reading from meter photos.
// It holds no per-image state and may be shared by concurrent callers.
type Pipeline struct {
	cfg    Config
	rec    Recognizer
	prep   Preprocessor
	scorer Scorer
	log    logging.Logger
	sink   DebugSink
	runner *runner
	now    func() time.Time

	// abandoned counts timed-out recognizer calls still running in the background.
	abandoned atomic.Int64
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is logging.Default.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithDebugSink overrides the sink derived from Config.DebugDir.
func WithDebugSink(s DebugSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithClock sets the time source used by the year filter.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline validates cfg and builds a pipeline. A nil rec selects Tesseract.
func NewPipeline(cfg Config, rec Recognizer, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ocr config: %w", err)
	}
	if rec == nil {
		rec = NewTesseractRecognizer(cfg)
	}
	p := &Pipeline{
		cfg:  cfg,
		rec:  rec,
		prep: NewPreprocessor(cfg),
		log:  logging.Default,
		sink: NopSink{},
		now:  time.Now,
	}
	if cfg.DebugDir != "" {
		p.sink = DirSink{Dir: cfg.DebugDir}
	}
	for _, opt := range opts {
		opt(p)
	}
	p.scorer = NewScorer(cfg, p.now)
	r, err := newRunner(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("ocr worker pool: %w", err)
	}
	p.runner = r
	return p, nil
}

// Abandoned reports how many timed-out recognizer calls are still running.
// They are not bounded by Workers.
func (p *Pipeline) Abandoned() int64 {
	return p.abandoned.Load()
}

// Close releases the worker pool.
func (p *Pipeline) Close() {
	p.runner.release()
}

// Extract decodes the image at path and returns the best-effort result.
// Only a *DecodeError or a done ctx is returned as an error.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Result, error) {
	tr, err := p.ExtractTrace(ctx, path)
	if err != nil {
		return nil, err
	}
	return &tr.Result, nil
}

// ExtractTrace is Extract with the diagnostic trace.
func (p *Pipeline) ExtractTrace(ctx context.Context, path string) (*Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	tr := p.ExtractImage(ctx, img)
	p.log.Infof("OCR %s id=%s serial=%q reading=%q", path, tr.ID, tr.Serial.Value, tr.Reading.Value)
	return tr, nil
}

// invocation is the state of one extraction. It never outlives ExtractImage.
type invocation struct {
	id       string
	gray     *image.Gray
	loc      localized
	serial   string
	fallback []fallbackText
	sink     DebugSink
	log      logging.Logger
}

func (inv *invocation) debug(region, method string, img image.Image) {
	if _, nop := inv.sink.(NopSink); nop {
		return
	}
	name := fmt.Sprintf("%s_%s_%s", inv.id, region, method)
	if err := inv.sink.Save(name, img); err != nil {
		inv.log.Warnf("OCR debug image %s: %v", name, err)
	}
}

// ExtractImage runs every stage on an already decoded image.
func (p *Pipeline) ExtractImage(ctx context.Context, img image.Image) *Trace {
	inv := &invocation{id: uuid.NewString(), sink: p.sink, log: p.log}

	rotated, deg := p.correctRotation(ctx, img)
	inv.gray = toGray(rotated)
	inv.debug("input", "gray", inv.gray)
	inv.loc = p.localize(ctx, inv.gray)

	tr := &Trace{
		ID:       inv.id,
		Rotation: deg,
		Variant:  inv.loc.Variant,
		Mode:     inv.loc.Mode.String(),
	}
	tr.Result.Text = inv.loc.Text

	// serial first so fallback readings can skip its digits
	tr.Serial = p.resolve(ctx, inv, FieldSerial)
	inv.serial = tr.Serial.Value
	tr.Reading = p.resolve(ctx, inv, FieldReading)

	tr.Result.Serial = strPtr(tr.Serial.Value)
	tr.Result.Reading = strPtr(tr.Reading.Value)
	return tr
}

type stage struct {
	name string
	run  func(ctx context.Context, inv *invocation, f Field) []Candidate
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{name: "anchor", run: p.anchorCandidates},
		{name: "region", run: p.regionCandidates},
		{name: "fallback", run: p.fallbackCandidates},
	}
}

// resolve runs the stages for f in order, scoring the accumulated candidates
// after each one. A resolved field runs no later stage.
func (p *Pipeline) resolve(ctx context.Context, inv *invocation, f Field) FieldTrace {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FieldTimeout)
	defer cancel()

	ft := FieldTrace{Candidates: []Candidate{}}
	for _, st := range p.stages() {
		if err := ctx.Err(); err != nil {
			p.log.Warnf("OCR %s %s: stopped before %s stage: %v", inv.id, f, st.name, err)
			break
		}
		ft.Candidates = append(ft.Candidates, st.run(ctx, inv, f)...)
		if best, ok := p.scorer.Best(f, ft.Candidates); ok {
			ft.Value, ft.Method, ft.Stage = best.Digits, best.Method, st.name
			break
		}
	}
	p.log.Debugf("OCR %s %s=%q method=%s candidates=%d", inv.id, f, ft.Value, ft.Method, len(ft.Candidates))
	return ft
}

// words runs one layout-aware recognition under the attempt deadline.
// A failure is logged and reported as !ok.
func (p *Pipeline) words(ctx context.Context, stage, method string, req Request) ([]WordBox, bool) {
	words, err := withDeadline(ctx, p.cfg.AttemptTimeout, &p.abandoned, func(ctx context.Context) ([]WordBox, error) {
		return p.rec.Words(ctx, req)
	})
	if err != nil {
		p.attemptFailed(stage, method, err)
		return nil, false
	}
	return words, true
}

func (p *Pipeline) text(ctx context.Context, stage, method string, req Request) (string, bool) {
	text, err := withDeadline(ctx, p.cfg.AttemptTimeout, &p.abandoned, func(ctx context.Context) (string, error) {
		return p.rec.Text(ctx, req)
	})
	if err != nil {
		p.attemptFailed(stage, method, err)
		return "", false
	}
	return text, true
}

func (p *Pipeline) attemptFailed(stage, method string, err error) {
	err = &AttemptError{Stage: stage, Method: method, Err: err}
	if errors.Is(err, errAbandoned) {
		p.log.Warnf("OCR %v (%d recognizer calls still running)", err, p.abandoned.Load())
		return
	}
	p.log.Debugf("OCR %v", err)
}
