package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
)

// Dumps every preprocessing variant of an image so thresholds can be tuned by eye.
func main() {
	in := flag.String("file", "", "image file")
	outDir := flag.String("out", "/tmp/meterocr-preproc", "output directory")
	flag.Parse()
	if *in == "" {
		logging.Fatalf("-file required")
	}

	img, err := imaging.Open(*in)
	if err != nil {
		logging.Fatalf("open: %v", err)
	}
	cfg := ocr.DefaultConfig()
	prep := ocr.NewPreprocessor(cfg)
	sink := ocr.DirSink{Dir: *outDir}
	base := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
	gray := ocr.Gray(img)

	// band crops use the same fractions as the region scanner
	reading := ocr.Gray(imaging.Crop(gray, cfg.ReadingBand.Rect(gray.Rect)))
	serial := ocr.Gray(imaging.Crop(gray, cfg.SerialBand.Rect(gray.Rect)))

	sets := []struct {
		name     string
		variants []ocr.Variant
	}{
		{"whole", prep.Whole(gray)},
		{"roi_reading", prep.ROI(reading)},
		{"digits_reading", prep.Digits(reading, ocr.BrightOnDark)},
		{"digits_serial", prep.Digits(serial, ocr.DarkOnLight)},
	}
	for _, s := range sets {
		for _, v := range s.variants {
			name := fmt.Sprintf("%s_%s_%s", base, s.name, v.Label)
			if err := sink.Save(name, v.Img); err != nil {
				logging.Fatalf("save %s: %v", name, err)
			}
			fmt.Printf("%s %dx%d mean=%.1f\n", name, v.Img.Rect.Dx(), v.Img.Rect.Dy(), v.Mean())
		}
	}
}
