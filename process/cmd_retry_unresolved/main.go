package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
	"meterocr/process/batch"
	"meterocr/process/report"
)

func main() {
	_ = godotenv.Load()
	logging.SetLevel(os.Getenv("LOG_LEVEL"))

	in := flag.String("in", "results.jsonl", "JSONL results to retry")
	dir := flag.String("dir", "public/meters", "directory holding the images")
	processed := flag.String("processed", "public/processed", "fallback directory for moved images")
	policy := flag.String("policy", ocr.PolicyBlanket, "confusion policy for the retry")
	configPath := flag.String("config", "", "YAML config file (default $OCR_CONFIG)")
	flag.Parse()

	f, err := os.Open(*in)
	if err != nil {
		logging.Fatalf("open results: %v", err)
	}
	_, recs, err := report.Summarize(f)
	f.Close()
	if err != nil {
		logging.Fatalf("read results: %v", err)
	}

	cfg, err := ocr.LoadConfig(*configPath)
	if err != nil {
		logging.Fatalf("config: %v", err)
	}
	cfg.ConfusionPolicy = *policy
	p, err := ocr.NewPipeline(cfg, nil)
	if err != nil {
		logging.Fatalf("pipeline: %v", err)
	}
	defer p.Close()

	out, improved, err := batch.Retry(context.Background(), p, recs, logging.Default, *dir, *processed)
	if err != nil {
		logging.Fatalf("retry: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range out {
		if err := enc.Encode(r); err != nil {
			logging.Fatalf("write: %v", err)
		}
	}
	logging.Infof("retry done: records=%d improved=%d", len(out), improved)
}
