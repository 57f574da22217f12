package spot_test

import (
	"testing"

	"github.com/user00265/dxbridge/internal/spot"
)

func TestMode(t *testing.T) {
	tests := []struct {
		name    string
		freqKHz float64
		comment string
		want    string
	}{
		{"explicit CW", 14250, "up 2 cw", "CW"},
		{"USB maps to SSB", 14025, "USB pileup", "SSB"},
		{"LSB maps to SSB", 7150, "lsb", "SSB"},
		{"FT8 in comment", 14200, "FT8 -12dB", "FT8"},
		{"CW outranks FT8", 14074, "FT8 then CW", "CW"},
		{"RTTY", 14085, "RTTY contest", "RTTY"},
		{"PSK alias", 14070, "psk 31", "PSK31"},
		{"JT65", 50276, "jt65 EME", "JT65"},
		{"WSPR", 10140, "wspr", "WSPR"},
		{"OLIVIA", 14106, "olivia 8/500", "OLIVIA"},
		{"SSTV", 14230, "SSTV pic", "SSTV"},
		{"MT63", 14110, "MT63", "MT63"},
		{"substring is not a token", 14250, "CWOPS member", "SSB"},
		{"20m CW segment", 14025, "", "CW"},
		{"20m FT8 window", 14074.5, "", "FT8"},
		{"20m FT4 window", 14081, "", "FT4"},
		{"20m phone", 14205, "CQ DX", "SSB"},
		{"40m FT8", 7075, "", "FT8"},
		{"30m CW", 10115, "", "CW"},
		{"160m CW", 1825, "", "CW"},
		{"10m phone", 28500, "", "SSB"},
		{"2m is SSB", 144300, "", "SSB"},
		{"70cm is SSB", 432200, "", "SSB"},
		{"unknown band defaults to CW", 29701, "", "CW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spot.Mode(tt.freqKHz, tt.comment); got != tt.want {
				t.Errorf("Mode(%v, %q) = %q, want %q", tt.freqKHz, tt.comment, got, tt.want)
			}
		})
	}
}

func TestExplicitModeEmpty(t *testing.T) {
	if _, ok := spot.ExplicitMode(""); ok {
		t.Error("empty comment should name no mode")
	}
	if _, ok := spot.ExplicitMode("tnx qso 73"); ok {
		t.Error("comment without mode tokens should name no mode")
	}
}
