package spot

import (
	"regexp"
	"strings"
	"time"
)

// MinFrequency is the lowest frequency (kHz) any grammar accepts, so signal
// reports and node/user counters are not read as frequencies.
const MinFrequency = 100

var (
	// DX de W1AW:     14205.0  JA1ABC       CQ DX                          1234Z JN45
	dxDeRe = regexp.MustCompile(`(?i)^\s*DX\s+de\s+([A-Z0-9/\-#]+?)\s*:\s*(\d+(?:[.,]\d+)?)\s+([A-Z0-9/]+)\s+(.*?)\s*\b(\d{4})Z(?:\s+\S+)*\s*$`)

	// 14205.0  JA1ABC  16-Oct-2026 1234Z  FT8 -12dB   <W1AW>
	listingRe = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s+([A-Z0-9/]+)\s+(?:(\d{1,2}-[A-Z]{3}-\d{2,4})\s+)?(\d{4})Z(?:\s+(.*))?$`)

	embeddedDXDeRe = regexp.MustCompile(`(?i)DX\s+de\s+([A-Z0-9/\-#]+)\s*:`)
	bracketRe      = regexp.MustCompile(`<([A-Za-z0-9/\-#]+)>\s*$`)
	timeTokenRe    = regexp.MustCompile(`(?i)\b(\d{4})Z\b`)
)

// Parser turns decoded cluster lines into spots.
type Parser struct {
	// Now supplies the receive time. Defaults to time.Now.
	Now func() time.Time
}

// NewParser returns a Parser using the wall clock.
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// Parse tries each line grammar in priority order. loginCall is used as the
// spotter when the line names none. The second result is false when the line
// is not a spot; such lines are still terminal text for the caller.
func (p *Parser) Parse(line, loginCall string) (s Spot, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s, ok = Spot{}, false
		}
	}()

	now := p.now()
	if s, ok = parseDXDe(line); !ok {
		s, ok = parseListing(line, loginCall)
	}
	if !ok {
		if IsBanner(line) {
			return Spot{}, false
		}
		s, ok = parseFallback(line, loginCall)
	}
	if !ok {
		return Spot{}, false
	}

	if s.SpottedAt == "" {
		s.SpottedAt = now.Format("15:04")
	}
	s.Band = Band(s.FrequencyKHz)
	if s.Mode == "" {
		s.Mode = Mode(s.FrequencyKHz, s.Comment)
	}
	s.ReceivedAt = now
	s.Raw = line
	return s, true
}

func parseDXDe(line string) (Spot, bool) {
	m := dxDeRe.FindStringSubmatch(line)
	if m == nil {
		return Spot{}, false
	}
	freq, err := ParseFrequency(m[2])
	if err != nil {
		return Spot{}, false
	}
	s := Spot{
		Spotter:      NormalizeCallsign(m[1]),
		FrequencyKHz: freq,
		DXCall:       strings.ToUpper(m[3]),
		Comment:      collapseSpaces(m[4]),
	}
	s.SpottedAt, _ = FormatHHMM(m[5])
	return s, s.Spotter != "" && plausible(freq, m[3])
}

// parseListing handles the "sh/dx" listing forms. A date before the time or a
// mode token after it selects the explicit-mode form; otherwise the mode is
// inferred from the comment like any other spot.
func parseListing(line, loginCall string) (Spot, bool) {
	m := listingRe.FindStringSubmatch(line)
	if m == nil {
		return Spot{}, false
	}
	freq, err := ParseFrequency(m[1])
	if err != nil || !plausible(freq, m[2]) {
		return Spot{}, false
	}
	rest := strings.TrimSpace(m[5])

	s := Spot{FrequencyKHz: freq, DXCall: strings.ToUpper(m[2])}
	if fields := strings.Fields(rest); len(fields) > 0 {
		if mode, ok := modeToken(fields[0]); ok {
			s.Mode = mode
			rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
		}
	}
	s.Spotter, rest = extractSpotter(rest, loginCall)
	s.Comment = collapseSpaces(rest)
	s.SpottedAt, _ = FormatHHMM(m[4])
	return s, true
}

func parseFallback(line, loginCall string) (Spot, bool) {
	tokens := strings.Fields(line)
	for i := 0; i+1 < len(tokens); i++ {
		if !IsFrequencyLike(tokens[i]) || !IsCallsignLike(tokens[i+1]) {
			continue
		}
		freq, err := ParseFrequency(tokens[i])
		if err != nil || freq < MinFrequency {
			continue
		}
		comment := strings.Join(append(append([]string{}, tokens[:i]...), tokens[i+2:]...), " ")

		s := Spot{FrequencyKHz: freq, DXCall: strings.ToUpper(tokens[i+1])}
		// The time goes first so a "<CALL>" before it ends the comment.
		if tm := timeTokenRe.FindStringSubmatchIndex(comment); tm != nil {
			if hhmm, ok := FormatHHMM(comment[tm[2]:tm[3]]); ok {
				s.SpottedAt = hhmm
				comment = comment[:tm[0]] + comment[tm[1]:]
			}
		}
		s.Spotter, comment = extractSpotter(comment, loginCall)
		s.Comment = collapseSpaces(comment)
		return s, true
	}
	return Spot{}, false
}

// extractSpotter finds the spotter inside a comment, preferring "DX de CALL:"
// over a trailing "<CALL>", and removes it. With neither present the login
// callsign is used.
func extractSpotter(comment, loginCall string) (string, string) {
	if loc := embeddedDXDeRe.FindStringSubmatchIndex(comment); loc != nil {
		call := NormalizeCallsign(comment[loc[2]:loc[3]])
		return call, comment[:loc[0]] + comment[loc[1]:]
	}
	if loc := bracketRe.FindStringSubmatchIndex(comment); loc != nil {
		call := NormalizeCallsign(comment[loc[2]:loc[3]])
		return call, comment[:loc[0]]
	}
	return NormalizeCallsign(loginCall), comment
}

// plausible rejects chatter such as "12 users 1234Z" that fits a grammar's
// shape but has no real frequency or callsign.
func plausible(freq float64, call string) bool {
	return freq >= MinFrequency && IsCallsignLike(call)
}

func modeToken(tok string) (string, bool) {
	tok = strings.ToUpper(tok)
	for _, m := range explicitModes {
		for _, t := range m.tokens {
			if tok == t {
				return m.mode, true
			}
		}
	}
	return "", false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
