package telnet

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	ztelnet "github.com/ziutek/telnet"
)

// Transport names accepted by NewDialer.
const (
	TransportNative = "native"
	TransportZiutek = "ziutek"
)

// Dialer opens the TCP connection to an upstream cluster node.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// NativeDialer dials plain TCP; command stripping is left to Decoder.
type NativeDialer struct {
	Timeout time.Duration
}

func (d NativeDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, "tcp", addr)
}

// ZiutekDialer wraps the TCP connection in a ziutek/telnet Conn, which
// answers option negotiation with refusals instead of ignoring it. Decoder
// still runs on the result and sees plain text.
type ZiutekDialer struct {
	Timeout time.Duration
}

func (d ZiutekDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := NativeDialer{Timeout: d.Timeout}.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	tconn, err := ztelnet.NewConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wrap telnet connection to %s: %w", addr, err)
	}
	return tconn, nil
}

// NewDialer returns the dialer for a transport name.
func NewDialer(transport string, timeout time.Duration) (Dialer, error) {
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case "", TransportNative:
		return NativeDialer{Timeout: timeout}, nil
	case TransportZiutek:
		return ZiutekDialer{Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown telnet transport %q (want %q or %q)", transport, TransportNative, TransportZiutek)
	}
}
