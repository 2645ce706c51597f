package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
	"meterocr/process/batch"
)

func main() {
	_ = godotenv.Load()
	logging.SetLevel(os.Getenv("LOG_LEVEL"))

	dir := flag.String("dir", "public/meters", "directory to scan for images")
	outPath := flag.String("out", "", "JSONL output file (default stdout)")
	move := flag.Bool("move", false, "move extracted images to -processed")
	processed := flag.String("processed", "public/processed", "destination for -move")
	watch := flag.Bool("watch", false, "keep watching -dir for new images")
	concurrency := flag.Int("concurrency", 2, "images extracted at once")
	configPath := flag.String("config", "", "YAML config file (default $OCR_CONFIG)")
	flag.Parse()

	cfg, err := ocr.LoadConfig(*configPath)
	if err != nil {
		logging.Fatalf("config: %v", err)
	}
	p, err := ocr.NewPipeline(cfg, nil)
	if err != nil {
		logging.Fatalf("pipeline: %v", err)
	}
	defer p.Close()

	out := os.Stdout
	if *outPath != "" {
		f, err := os.OpenFile(*outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logging.Fatalf("open output: %v", err)
		}
		defer f.Close()
		out = f
	}

	opts := batch.Options{Dir: *dir, Concurrency: *concurrency}
	if *move {
		opts.ProcessedDir = *processed
	}
	r := batch.NewRunner(p, out, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := r.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	logging.Infof("batch done: files=%d serial=%d reading=%d failed=%d", sum.Files, sum.Serial, sum.Reading, sum.Failed)

	if *watch {
		if err := r.Watch(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
			os.Exit(1)
		}
	}
}
