package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"meterocr/pkg/logging"
	"meterocr/pkg/ocr"
)

// output is one printed line: the extraction result tagged with its file.
type output struct {
	File  string `json:"file"`
	Error string `json:"error,omitempty"`
	*ocr.Result
}

func main() {
	// Auto-load ./.env if present; variables already set win
	_ = godotenv.Load()
	logging.SetLevel(os.Getenv("LOG_LEVEL"))

	configPath := flag.String("config", "", "YAML config file (default $OCR_CONFIG)")
	debugDir := flag.String("debug-dir", "", "write intermediate images here")
	workers := flag.Int("workers", 0, "recognizer attempts run in parallel per image (0 keeps the config value)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] image...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := ocr.LoadConfig(*configPath)
	if err != nil {
		logging.Fatalf("config: %v", err)
	}
	if *debugDir != "" {
		cfg.DebugDir = *debugDir
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	p, err := ocr.NewPipeline(cfg, nil)
	if err != nil {
		logging.Fatalf("pipeline: %v", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, path := range flag.Args() {
		res, err := p.Extract(ctx, path)
		if cerr := ctx.Err(); cerr != nil {
			logging.Errorf("interrupted at %s: %v", path, cerr)
			os.Exit(1)
		}
		out := output{File: path, Result: res}
		if err != nil {
			if !errors.Is(err, ocr.ErrDecode) {
				logging.Errorf("stopped at %s: %v", path, err)
				os.Exit(1)
			}
			failed++
			out.Error = err.Error()
			out.Result = &ocr.Result{}
		}
		if err := enc.Encode(out); err != nil {
			logging.Fatalf("write: %v", err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
