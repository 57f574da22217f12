package spot

import (
	"regexp"
	"strings"
)

// NormalizeCallsign upper-cases a callsign and strips skimmer/system markers
// such as the "-#" suffix used by RBN-fed nodes.
func NormalizeCallsign(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))

	if idx := strings.Index(raw, "-#"); idx != -1 {
		raw = raw[:idx]
	}
	raw = strings.ReplaceAll(raw, "#", "")
	raw = strings.Trim(raw, "-: ")

	return strings.TrimSpace(raw)
}

var callsignLike = regexp.MustCompile(`^[A-Za-z0-9/]{3,10}$`)

// IsCallsignLike reports whether tok could be a callsign: 3-10 characters of
// letters, digits and "/", containing at least one letter and one digit.
func IsCallsignLike(tok string) bool {
	if !callsignLike.MatchString(tok) {
		return false
	}
	return strings.ContainsAny(tok, "0123456789") &&
		strings.IndexFunc(tok, func(r rune) bool {
			return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
		}) >= 0
}
