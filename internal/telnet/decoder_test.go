package telnet

import (
	"reflect"
	"strings"
	"testing"
)

func feedAll(d *Decoder, chunks ...[]byte) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return out
}

func TestDecoderFeed(t *testing.T) {
	tests := []struct {
		name    string
		chunks  [][]byte
		want    []string
		pending string
	}{
		{
			name:   "plain lines with CRLF",
			chunks: [][]byte{[]byte("hello\r\nworld\r\n")},
			want:   []string{"hello", "world"},
		},
		{
			name:    "negotiation mid-line is removed",
			chunks:  [][]byte{{'A', 'B', cmdIAC, cmdDO, 1, 'C', '\n'}},
			want:    []string{"ABC"},
			pending: "",
		},
		{
			name:   "all four option verbs",
			chunks: [][]byte{{cmdIAC, cmdWILL, 3, cmdIAC, cmdWONT, 1, cmdIAC, cmdDONT, 24, 'x', cmdIAC, cmdDO, 31, '\n'}},
			want:   []string{"x"},
		},
		{
			name:   "subnegotiation payload is skipped",
			chunks: [][]byte{{'a', cmdIAC, cmdSB, 24, 1, 'j', 'u', 'n', 'k', cmdIAC, cmdSE, 'b', '\n'}},
			want:   []string{"ab"},
		},
		{
			name:   "escaped IAC emits 0xFF",
			chunks: [][]byte{{'a', cmdIAC, cmdIAC, 'b', '\n'}},
			want:   []string{"a\xffb"},
		},
		{
			name:    "partial line is retained",
			chunks:  [][]byte{[]byte("DX de W1AW: 14"), []byte("025.0 JA1ABC CQ 1234Z\r\nlogin: ")},
			want:    []string{"DX de W1AW: 14025.0 JA1ABC CQ 1234Z"},
			pending: "login: ",
		},
		{
			name:   "IAC split across reads",
			chunks: [][]byte{{'A', 'B', cmdIAC}, {cmdDO}, {1, 'C', '\n'}},
			want:   []string{"ABC"},
		},
		{
			name:   "subnegotiation split across reads",
			chunks: [][]byte{{'a', cmdIAC, cmdSB, 24}, {'z', cmdIAC}, {cmdSE, 'b', '\n'}},
			want:   []string{"ab"},
		},
		{
			name:   "bell and NUL are dropped",
			chunks: [][]byte{{'a', '\a', 0, 'b', '\r', '\n'}},
			want:   []string{"ab"},
		},
		{
			name:   "empty line",
			chunks: [][]byte{[]byte("\r\n")},
			want:   []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			got := feedAll(d, tt.chunks...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
			if d.Pending() != tt.pending {
				t.Errorf("Pending() = %q, want %q", d.Pending(), tt.pending)
			}
		})
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	input := []byte{'D', 'X', cmdIAC, cmdWILL, 1, ' ', 'd', 'e', cmdIAC, cmdSB, 1, 2, cmdIAC, cmdSE, '\r', '\n', 'x', '\n'}
	d := NewDecoder()
	var got []string
	for _, b := range input {
		got = append(got, d.Feed([]byte{b})...)
	}
	want := []string{"DX de", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestDecoderMaxLine(t *testing.T) {
	d := NewDecoder()
	d.MaxLine = 10
	got := d.Feed([]byte(strings.Repeat("a", 25)))
	if len(got) != 2 || got[0] != strings.Repeat("a", 10) || got[1] != strings.Repeat("a", 10) {
		t.Fatalf("unexpected flushed lines %q", got)
	}
	if d.Pending() != "aaaaa" {
		t.Errorf("Pending() = %q, want 5 bytes", d.Pending())
	}
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{'a', cmdIAC})
	d.Reset()
	got := d.Feed([]byte("b\n"))
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("after Reset lines = %q, want [b]", got)
	}
}
