package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
)

func main() {
	_ = godotenv.Load()
	f := flag.String("file", "", "image file to OCR")
	debugDir := flag.String("debug-dir", "", "write intermediate images here")
	configPath := flag.String("config", "", "YAML config file (default $OCR_CONFIG)")
	flag.Parse()
	if *f == "" {
		logging.Fatalf("-file required")
	}
	logging.SetLevel(logging.LevelDebug)

	cfg, err := ocr.LoadConfig(*configPath)
	if err != nil {
		logging.Fatalf("config: %v", err)
	}
	if *debugDir != "" {
		cfg.DebugDir = *debugDir
	}
	p, err := ocr.NewPipeline(cfg, nil)
	if err != nil {
		logging.Fatalf("pipeline: %v", err)
	}
	defer p.Close()

	tr, err := p.ExtractTrace(context.Background(), *f)
	if err != nil {
		logging.Fatalf("ocr error: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tr); err != nil {
		logging.Fatalf("encode trace: %v", err)
	}
}
