package spot

import (
	"strings"
	"unicode"
)

// Mode names reported on spots.
const (
	ModeCW        = "CW"
	ModeSSB       = "SSB"
	ModeFT8       = "FT8"
	ModeFT4       = "FT4"
	ModeRTTY      = "RTTY"
	ModePSK31     = "PSK31"
	ModeJT65      = "JT65"
	ModeJT9       = "JT9"
	ModeWSPR      = "WSPR"
	ModeOlivia    = "OLIVIA"
	ModeContestia = "CONTESTIA"
	ModeHell      = "HELL"
	ModeSSTV      = "SSTV"
	ModeAMTOR     = "AMTOR"
	ModePACTOR    = "PACTOR"
	ModeMT63      = "MT63"
)

// explicitModes is checked in order; the first mode with any token present in
// the comment wins, regardless of where in the comment it appears.
var explicitModes = []struct {
	mode   string
	tokens []string
}{
	{ModeCW, []string{"CW"}},
	{ModeSSB, []string{"SSB", "USB", "LSB"}},
	{ModeFT8, []string{"FT8"}},
	{ModeFT4, []string{"FT4"}},
	{ModeRTTY, []string{"RTTY"}},
	{ModePSK31, []string{"PSK31", "PSK"}},
	{ModeJT65, []string{"JT65"}},
	{ModeJT9, []string{"JT9"}},
	{ModeWSPR, []string{"WSPR"}},
	{ModeOlivia, []string{"OLIVIA"}},
	{ModeContestia, []string{"CONTESTIA"}},
	{ModeHell, []string{"HELL"}},
	{ModeSSTV, []string{"SSTV"}},
	{ModeAMTOR, []string{"AMTOR"}},
	{ModePACTOR, []string{"PACTOR"}},
	{ModeMT63, []string{"MT63"}},
}

// segment is an inclusive kHz range within a band.
type segment struct {
	min, max float64
}

func (s segment) contains(f float64) bool { return f >= s.min && f <= s.max }

// Published FT8/FT4 dial windows. FT8 is checked first where they overlap.
var (
	ft8Segments = []segment{
		{1840, 1843}, {3573, 3576}, {5357, 5360}, {7074, 7077}, {10136, 10139},
		{14074, 14077}, {18100, 18103}, {21074, 21077}, {24915, 24918}, {28074, 28077},
	}
	ft4Segments = []segment{
		{3575, 3578}, {7047.5, 7050.5}, {10140, 10143}, {14080, 14083},
		{18104, 18107}, {21140, 21143}, {24919, 24922}, {28180, 28183},
	}
	cwSegments = []segment{
		{1800, 1840}, {3500, 3600}, {7000, 7040}, {10100, 10150}, {14000, 14070},
		{18068, 18100}, {21000, 21070}, {24890, 24920}, {28000, 28070},
	}
)

// ExplicitMode returns the first mode named in comment, in priority order.
func ExplicitMode(comment string) (string, bool) {
	if comment == "" {
		return "", false
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToUpper(comment), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	for _, m := range explicitModes {
		for _, tok := range m.tokens {
			if _, ok := words[tok]; ok {
				return m.mode, true
			}
		}
	}
	return "", false
}

// Mode infers the operating mode from comment tokens, then from the
// frequency's position within its band. Unknown frequencies default to CW.
func Mode(freqKHz float64, comment string) string {
	if m, ok := ExplicitMode(comment); ok {
		return m
	}
	band := Band(freqKHz)
	switch {
	case band == UnknownBand:
		return ModeCW
	case !IsHF(band):
		return ModeSSB
	}
	for _, s := range ft8Segments {
		if s.contains(freqKHz) {
			return ModeFT8
		}
	}
	for _, s := range ft4Segments {
		if s.contains(freqKHz) {
			return ModeFT4
		}
	}
	for _, s := range cwSegments {
		if s.contains(freqKHz) {
			return ModeCW
		}
	}
	return ModeSSB
}
