package telnet

import "strings"

// Telnet command bytes.
const (
	cmdSE   = 240
	cmdSB   = 250
	cmdWILL = 251
	cmdWONT = 252
	cmdDO   = 253
	cmdDONT = 254
	cmdIAC  = 255
)

// DefaultMaxLine bounds the partial-line buffer. A cluster that never sends
// a newline gets its text flushed in chunks of this size.
const DefaultMaxLine = 8 * 1024

type decodeState int

const (
	stateData decodeState = iota
	stateIAC
	stateOption // WILL/WONT/DO/DONT seen, option byte pending
	stateSB
	stateSBIAC
)

// Decoder strips telnet command sequences from a byte stream and splits the
// remaining text into lines. Its state survives across Feed calls, so a
// command or line split by a read boundary is handled as if contiguous.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	state   decodeState
	partial []byte
	MaxLine int
}

// NewDecoder returns a Decoder with the default line bound.
func NewDecoder() *Decoder {
	return &Decoder{MaxLine: DefaultMaxLine}
}

// Feed consumes a chunk and returns the complete lines it finished, in order,
// with any trailing carriage return removed.
func (d *Decoder) Feed(chunk []byte) []string {
	var lines []string
	for _, b := range chunk {
		switch d.state {
		case stateIAC:
			switch b {
			case cmdIAC:
				d.state = stateData
				lines = d.appendByte(lines, cmdIAC)
			case cmdSB:
				d.state = stateSB
			case cmdWILL, cmdWONT, cmdDO, cmdDONT:
				d.state = stateOption
			default:
				// Two-byte command (NOP, GA, AYT...).
				d.state = stateData
			}
		case stateOption:
			d.state = stateData
		case stateSB:
			if b == cmdIAC {
				d.state = stateSBIAC
			}
		case stateSBIAC:
			if b == cmdSE {
				d.state = stateData
			} else {
				d.state = stateSB
			}
		default:
			if b == cmdIAC {
				d.state = stateIAC
				continue
			}
			lines = d.appendByte(lines, b)
		}
	}
	return lines
}

func (d *Decoder) appendByte(lines []string, b byte) []string {
	switch b {
	case '\n':
		return append(lines, d.flush())
	case 0, '\a':
		return lines
	}
	d.partial = append(d.partial, b)
	max := d.MaxLine
	if max <= 0 {
		max = DefaultMaxLine
	}
	if len(d.partial) >= max {
		return append(lines, d.flush())
	}
	return lines
}

func (d *Decoder) flush() string {
	line := strings.TrimSuffix(string(d.partial), "\r")
	d.partial = d.partial[:0]
	return line
}

// Pending returns the text received since the last line break. Login prompts
// usually arrive without a newline and are only visible here.
func (d *Decoder) Pending() string {
	return string(d.partial)
}

// Reset discards any partial line and command state.
func (d *Decoder) Reset() {
	d.state = stateData
	d.partial = d.partial[:0]
}
