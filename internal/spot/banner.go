package spot

import "regexp"

// bannerPatterns match node chatter that the fallback grammar would
// otherwise misread as a spot (e.g. "Cluster: 312 nodes, 1450 users").
var bannerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(login|password|call\s*sign|callsign|your\s+call)\s*[:?>]`),
	regexp.MustCompile(`(?i)please\s+enter\s+your\s+call`),
	regexp.MustCompile(`(?i)^\s*(hello|hi|welcome|greetings)\b`),
	regexp.MustCompile(`(?i)\bwelcome\s+to\b`),
	regexp.MustCompile(`(?i)\bcapabilit(y|ies)\b`),
	regexp.MustCompile(`(?i)\bnodes?\b.*\busers?\b`),
	regexp.MustCompile(`(?i)^\s*(node\s+list|nodes|links|connected\s+nodes)\b`),
	regexp.MustCompile(`(?i)\b(dx\s*spider|ar-?cluster|cc\s*cluster|cc-cluster|clusse|dxnet)\b`),
	regexp.MustCompile(`(?i)\b(uptime|max\s+users|local\s+users)\b`),
}

// IsBanner reports whether line is a known non-spot announcement.
func IsBanner(line string) bool {
	for _, re := range bannerPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
