package telnet

import (
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

// LineFilter converts a decoded line before it is parsed or forwarded.
type LineFilter func(string) string

// Identity returns the line unchanged.
func Identity(line string) string { return line }

// Charset returns a LineFilter converting text in the labelled encoding
// (e.g. "iso-8859-1", "windows-1252") to UTF-8. An empty label is Identity.
func Charset(label string) (LineFilter, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Identity, nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf("unknown upstream charset %q", label)
	}
	if name == "utf-8" {
		return Identity, nil
	}
	return func(line string) string {
		out, err := enc.NewDecoder().String(line)
		if err != nil {
			return line
		}
		return out
	}, nil
}
