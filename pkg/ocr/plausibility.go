package ocr

import (
	"strconv"
	"strings"
)

// plausibleReading reports whether d can be a register reading: 3-6 digits,
// not blacklisted and not a recent calendar year (dates are printed on many plates).
func plausibleReading(d string, blacklist map[string]struct{}, yearFloor, yearCeil int) bool {
	if len(d) < 3 || len(d) > 6 {
		return false
	}
	if _, bad := blacklist[d]; bad {
		return false
	}
	if n, err := strconv.Atoi(d); err == nil && n >= yearFloor && n <= yearCeil {
		return false
	}
	return true
}

// plausibleSerial reports whether d can be a serial number.
func plausibleSerial(d string) bool {
	return len(d) >= 5 && len(d) <= 10
}

// onlyDigits extracts decimal digits from a string.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
