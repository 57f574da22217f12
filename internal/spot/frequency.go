package spot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var frequencyLike = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)

// IsFrequencyLike reports whether tok is digits with an optional decimal part.
func IsFrequencyLike(tok string) bool {
	return frequencyLike.MatchString(tok)
}

// ParseFrequency parses a cluster frequency in kHz. Some nodes use a comma
// as the decimal separator.
func ParseFrequency(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("frequency must be positive: %q", s)
	}
	return v, nil
}

// FormatHHMM turns a cluster "HHMM" token into "HH:MM". Out-of-range values
// are rejected.
func FormatHHMM(hhmm string) (string, bool) {
	if len(hhmm) != 4 {
		return "", false
	}
	h, err1 := strconv.Atoi(hhmm[:2])
	m, err2 := strconv.Atoi(hhmm[2:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return "", false
	}
	return hhmm[:2] + ":" + hhmm[2:], true
}
