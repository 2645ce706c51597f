package ocr

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Confusion replacement policies for the full-image fallback.
const (
	PolicyAdjacent = "adjacent"
	PolicyBlanket  = "blanket"
)

// RelRect is a crop expressed in multiples of an anchor box's width and height,
// relative to the anchor's top-left corner.
type RelRect struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// AnchorProfile pairs anchor keywords with the crop taken around the first match.
type AnchorProfile struct {
	Keywords []string `yaml:"keywords"`
	Offset   RelRect  `yaml:"offset"`
}

// Band is a full-width horizontal strip given as fractions of image height.
type Band struct {
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
}

// Config carries everything the pipeline needs. Nothing in the package reads globals.
type Config struct {
	Language       string `yaml:"language"`
	TessdataPrefix string `yaml:"tessdata_prefix"`
	DigitWhitelist string `yaml:"digit_whitelist"`

	RotationMaxDim        int     `yaml:"rotation_max_dim"`
	RotationMinConfidence float64 `yaml:"rotation_min_confidence"`

	LocalizeSmallSide int     `yaml:"localize_small_side"`
	LocalizeUpscale   float64 `yaml:"localize_upscale"`
	MinLocalizedWords int     `yaml:"min_localized_words"`

	ROIScale        float64 `yaml:"roi_scale"`
	FallbackUpscale float64 `yaml:"fallback_upscale"`
	AdaptiveWindow  int     `yaml:"adaptive_window"`
	AdaptiveBias    int     `yaml:"adaptive_bias"`

	ReadingAnchors AnchorProfile `yaml:"reading_anchors"`
	SerialAnchors  AnchorProfile `yaml:"serial_anchors"`
	ReadingBand    Band          `yaml:"reading_band"`
	SerialBand     Band          `yaml:"serial_band"`

	ReadingBlacklist    []string `yaml:"reading_blacklist"`
	YearFloor           int      `yaml:"year_floor"`
	ConfusionPolicy     string   `yaml:"confusion_policy"`
	ExcludeSerialDigits bool     `yaml:"exclude_serial_digits"`

	Workers        int           `yaml:"workers"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	FieldTimeout   time.Duration `yaml:"field_timeout"`

	DebugDir string `yaml:"debug_dir"`
}

// DefaultConfig returns the tuned heuristic constants.
func DefaultConfig() Config {
	return Config{
		Language:              "eng",
		DigitWhitelist:        "0123456789",
		RotationMaxDim:        1000,
		RotationMinConfidence: 30,
		LocalizeSmallSide:     1200,
		LocalizeUpscale:       2,
		MinLocalizedWords:     5,
		ROIScale:              3,
		FallbackUpscale:       2,
		AdaptiveWindow:        31,
		AdaptiveBias:          10,
		ReadingAnchors: AnchorProfile{
			Keywords: []string{"kwh", "kw", "kilowatt"},
			Offset:   RelRect{X: -8, Y: -1, W: 9, H: 4},
		},
		SerialAnchors: AnchorProfile{
			Keywords: []string{"no.", "s/n", "serial", "no"},
			Offset:   RelRect{X: 1, Y: -0.5, W: 10, H: 2},
		},
		ReadingBand: Band{Top: 0.10, Bottom: 0.50},
		SerialBand:  Band{Top: 0.40, Bottom: 0.75},
		// imp/kWh constants and mains voltages printed on most faceplates.
		ReadingBlacklist:    []string{"000", "0000", "00000", "000000", "220", "230", "240", "380", "400", "800", "1000", "1600", "3200", "6400"},
		YearFloor:           2010,
		ConfusionPolicy:     PolicyAdjacent,
		ExcludeSerialDigits: true,
		Workers:             1,
		AttemptTimeout:      20 * time.Second,
		FieldTimeout:        2 * time.Minute,
	}
}

// LoadConfigFile overlays the YAML file at path onto DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from OCR_* environment variables. Malformed numbers are ignored.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OCR_LANG"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("OCR_TESSDATA_PREFIX"); v != "" {
		cfg.TessdataPrefix = v
	}
	if v := os.Getenv("OCR_DEBUG_DIR"); v != "" {
		cfg.DebugDir = v
	}
	if v := os.Getenv("OCR_CONFUSION_POLICY"); v != "" {
		cfg.ConfusionPolicy = strings.ToLower(v)
	}
	if v := os.Getenv("OCR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("OCR_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AttemptTimeout = d
		}
	}
	if v := os.Getenv("OCR_FIELD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FieldTimeout = d
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.DigitWhitelist == "" {
		return fmt.Errorf("digit_whitelist is required")
	}
	if c.RotationMaxDim < 64 {
		return fmt.Errorf("rotation_max_dim must be >= 64, got %d", c.RotationMaxDim)
	}
	if c.LocalizeUpscale < 1 || c.ROIScale < 1 || c.FallbackUpscale < 1 {
		return fmt.Errorf("scale factors must be >= 1")
	}
	if c.AdaptiveWindow < 3 {
		return fmt.Errorf("adaptive_window must be >= 3, got %d", c.AdaptiveWindow)
	}
	for name, b := range map[string]Band{"reading_band": c.ReadingBand, "serial_band": c.SerialBand} {
		if b.Top < 0 || b.Bottom > 1 || b.Top >= b.Bottom {
			return fmt.Errorf("%s must satisfy 0 <= top < bottom <= 1, got %.2f-%.2f", name, b.Top, b.Bottom)
		}
	}
	if len(c.ReadingAnchors.Keywords) == 0 || len(c.SerialAnchors.Keywords) == 0 {
		return fmt.Errorf("anchor keywords must not be empty")
	}
	switch c.ConfusionPolicy {
	case PolicyAdjacent, PolicyBlanket:
	default:
		return fmt.Errorf("confusion_policy must be %q or %q, got %q", PolicyAdjacent, PolicyBlanket, c.ConfusionPolicy)
	}
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", c.Workers)
	}
	if c.AttemptTimeout <= 0 || c.FieldTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// LoadConfig resolves the effective configuration: the file at path (or
// OCR_CONFIG when path is empty) over the defaults, then OCR_* overrides.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("OCR_CONFIG")
	}
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return cfg, err
		}
	}
	ApplyEnv(&cfg)
	return cfg, cfg.Validate()
}
