package main

import (
	"flag"
	"fmt"
	"os"

	"meterocr/process/report"
)

func main() {
	in := flag.String("in", "results.jsonl", "JSONL results written by cmd_batch")
	list := flag.Bool("list", false, "list every record")
	flag.Parse()

	if err := report.RunReport(*in, *list, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}
