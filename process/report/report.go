// Package report summarizes the JSONL output of a batch run.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"meterocr/process/batch"
)

// Summary counts how many images resolved each field.
type Summary struct {
	Total          int
	Serial         int
	Reading        int
	Both           int
	Neither        int
	DecodeFailures int
	Errors         int
}

// Summarize reads batch records from r. Blank lines are skipped; a malformed
// line is an error naming its line number.
func Summarize(r io.Reader) (Summary, []batch.Record, error) {
	var s Summary
	var recs []batch.Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec batch.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return s, recs, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
		s.Total++
		switch {
		case rec.DecodeError:
			s.DecodeFailures++
			continue
		case rec.Error != "":
			s.Errors++
			continue
		}
		hasSerial, hasReading := rec.Serial != nil, rec.Reading != nil
		if hasSerial {
			s.Serial++
		}
		if hasReading {
			s.Reading++
		}
		switch {
		case hasSerial && hasReading:
			s.Both++
		case !hasSerial && !hasReading:
			s.Neither++
		}
	}
	if err := sc.Err(); err != nil {
		return s, recs, fmt.Errorf("read results: %w", err)
	}
	return s, recs, nil
}

// RunReport prints the summary of the results file at path and optionally
// lists every record.
func RunReport(path string, list bool, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	defer f.Close()

	s, recs, err := Summarize(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Report for %s:\n", path)
	fmt.Fprintf(w, "  images=%d serial=%d reading=%d both=%d neither=%d decode_failures=%d errors=%d\n",
		s.Total, s.Serial, s.Reading, s.Both, s.Neither, s.DecodeFailures, s.Errors)
	if list {
		for _, r := range recs {
			fmt.Fprintf(w, "%s|%s|%s|%s\n", r.File, orDash(r.Serial), orDash(r.Reading), r.Error)
		}
	}
	return nil
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
