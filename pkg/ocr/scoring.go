package ocr

import "time"

// Field names one of the two extracted values.
type Field int

const (
	FieldReading Field = iota
	FieldSerial
)

func (f Field) String() string {
	if f == FieldSerial {
		return "serial"
	}
	return "reading"
}

func (f Field) polarity() Polarity {
	if f == FieldSerial {
		return DarkOnLight
	}
	return BrightOnDark
}

// Candidate is a digit string together with the method that produced it.
type Candidate struct {
	Digits string `json:"digits"`
	Method string `json:"method"`
}

// Scorer ranks candidates per field. Ties go to the earliest candidate.
type Scorer struct {
	blacklist map[string]struct{}
	yearFloor int
	now       func() time.Time
}

// NewScorer builds a scorer from cfg. now supplies the current year for the year filter.
func NewScorer(cfg Config, now func() time.Time) Scorer {
	bl := make(map[string]struct{}, len(cfg.ReadingBlacklist))
	for _, b := range cfg.ReadingBlacklist {
		bl[b] = struct{}{}
	}
	if now == nil {
		now = time.Now
	}
	return Scorer{blacklist: bl, yearFloor: cfg.YearFloor, now: now}
}

// Best dispatches to the field's rule.
func (s Scorer) Best(f Field, cands []Candidate) (Candidate, bool) {
	if f == FieldSerial {
		return s.Serial(cands)
	}
	return s.Reading(cands)
}

// Reading picks the best register reading.
func (s Scorer) Reading(cands []Candidate) (Candidate, bool) {
	ceil := s.now().Year() + 1
	return pickBest(cands, func(d string) int {
		if !plausibleReading(d, s.blacklist, s.yearFloor, ceil) {
			return -1
		}
		score := 10
		if len(d) == 4 || len(d) == 5 {
			score += 5
		}
		return score
	})
}

// Serial picks the best serial number.
func (s Scorer) Serial(cands []Candidate) (Candidate, bool) {
	return pickBest(cands, func(d string) int {
		if !plausibleSerial(d) {
			return -1
		}
		score := 10
		if len(d) == 7 {
			score += 10
		}
		if len(d) >= 6 && len(d) <= 8 {
			score += 3
		}
		return score
	})
}

// pickBest returns the highest-scoring candidate; a negative score discards it.
// Only a strictly higher score replaces the current best.
func pickBest(cands []Candidate, score func(string) int) (Candidate, bool) {
	var best Candidate
	bestScore := -1
	for _, c := range cands {
		sc := score(c.Digits)
		if sc < 0 {
			continue
		}
		if sc > bestScore {
			best, bestScore = c, sc
		}
	}
	return best, bestScore >= 0
}
