package gateway_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user00265/dxbridge/internal/cluster"
	"github.com/user00265/dxbridge/internal/config"
	"github.com/user00265/dxbridge/internal/gateway"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/spot"
)

// fakeConn is an in-memory ClientConn.
type fakeConn struct {
	in        chan []byte
	out       chan gateway.Outbound
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan gateway.Outbound, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.out <- v.(gateway.Outbound)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "test-client" }

func (c *fakeConn) sendJSON(t *testing.T, raw string) {
	t.Helper()
	c.in <- []byte(raw)
}

// expect waits for an outbound message of msgType whose text data contains
// substr (or any spot when msgType is TypeSpot).
func (c *fakeConn) expect(t *testing.T, msgType, substr string) gateway.Outbound {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-c.out:
			if msg.Type != msgType {
				continue
			}
			if text, ok := msg.Data.(string); ok && !strings.Contains(text, substr) {
				continue
			}
			return msg
		case <-timeout:
			t.Fatalf("no %s message containing %q", msgType, substr)
			return gateway.Outbound{}
		}
	}
}

type memorySink struct {
	mu    sync.Mutex
	spots []spot.Spot
}

func (m *memorySink) Store(ctx context.Context, s spot.Spot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spots = append(m.spots, s)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spots)
}

// startUpstream runs a minimal cluster node that prompts for a call, sends a
// spot after login and answers each command with "ok <cmd>".
func startUpstream(t *testing.T) (net.Listener, chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan string, 32)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				c.Write([]byte("Please enter your call: "))
				r := bufio.NewReader(c)
				login, err := r.ReadString('\n')
				if err != nil {
					return
				}
				received <- login
				c.Write([]byte("Hello " + strings.TrimSpace(login) + ", this is MOCK-1\r\n"))
				c.Write([]byte("DX de W1AW:      14074.0  JA1ABC       FT8 -12dB               2107Z\r\n"))
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					received <- line
					c.Write([]byte("ok " + strings.TrimSpace(line) + "\r\n"))
				}
			}(conn)
		}
	}()
	return ln, received
}

func newTestHub(t *testing.T, ln net.Listener, sink *memorySink) *gateway.Hub {
	t.Helper()
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	reg := registry.NewStatic([]config.ClusterConfig{
		{ID: "7", Name: "Mock", Host: host, Port: config.FlexiblePort(port)},
	})
	opts := cluster.Options{
		LoginDelay:     5 * time.Second,
		ConnectTimeout: 2 * time.Second,
		NewBackOff:     cluster.NewReconnectBackOff(100*time.Millisecond, 0, 0),
	}
	return gateway.NewHub(reg, sink, opts, 16)
}

func serve(t *testing.T, hub *gateway.Hub) (*fakeConn, chan error) {
	t.Helper()
	conn := newFakeConn()
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(context.Background(), conn) }()
	t.Cleanup(func() { conn.Close() })
	return conn, errCh
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		raw     string
		want    gateway.Inbound
		wantErr string
	}{
		{raw: `{"type":"connect","clusterId":3,"loginCallsign":"n0call"}`, want: gateway.Inbound{Type: "connect", ClusterID: "3", LoginCallsign: "n0call"}},
		{raw: `{"type":"connect","clusterId":"3"}`, want: gateway.Inbound{Type: "connect", ClusterID: "3"}},
		{raw: `{"type":"command","data":"sh/dx"}`, want: gateway.Inbound{Type: "command", Data: "sh/dx"}},
		{raw: `{"type":"DISCONNECT"}`, want: gateway.Inbound{Type: "disconnect"}},
		{raw: `{"type":"ping"}`, wantErr: "Unknown message type: ping"},
		{raw: `not json`, wantErr: gateway.MsgInvalidJSON},
		{raw: `{"clusterId":1}`, wantErr: gateway.MsgInvalidJSON},
		{raw: `{"type":"connect","clusterId":true}`, wantErr: gateway.MsgInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := gateway.DecodeInbound([]byte(tt.raw))
			if tt.wantErr != "" {
				require.ErrorIs(t, err, gateway.ErrProtocol)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	in := gateway.Inbound{Text: "sh/wwv"}
	assert.Equal(t, "sh/wwv", in.CommandText())
}

func TestOutboundSpotWireFormat(t *testing.T) {
	sp := spot.Spot{
		DXCall: "JA1ABC", Spotter: "W1AW", FrequencyKHz: 14074, Band: "20m", Mode: "FT8",
		Comment: "-12dB", SpottedAt: "21:07", ReceivedAt: time.UnixMilli(1791234567890),
	}
	b, err := json.Marshal(gateway.Outbound{Type: gateway.TypeSpot, Data: sp.Payload()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"spot","data":{"dxCall":"JA1ABC","frequency":14074,"band":"20m","mode":"FT8",
		"spotter":"W1AW","comment":"-12dB","time":"21:07","timestamp":1791234567890}}`, string(b))
}

func TestSession_ProtocolErrorsKeepSessionAlive(t *testing.T) {
	ln, _ := startUpstream(t)
	hub := newTestHub(t, ln, &memorySink{})
	conn, _ := serve(t, hub)

	conn.sendJSON(t, `{{{`)
	conn.expect(t, gateway.TypeError, gateway.MsgInvalidJSON)

	conn.sendJSON(t, `{"type":"subscribe"}`)
	conn.expect(t, gateway.TypeError, "Unknown message type: subscribe")

	conn.sendJSON(t, `{"type":"connect","clusterId":99,"loginCallsign":"N0CALL"}`)
	conn.expect(t, gateway.TypeError, gateway.MsgClusterNotFound)

	conn.sendJSON(t, `{"type":"connect","clusterId":7}`)
	conn.expect(t, gateway.TypeError, gateway.MsgMissingLogin)

	conn.sendJSON(t, `{"type":"command","data":"sh/dx"}`)
	conn.expect(t, gateway.TypeError, gateway.MsgNotConnected)

	assert.Equal(t, 1, hub.Len())
}

func TestSession_ConnectStreamCommandDisconnect(t *testing.T) {
	ln, received := startUpstream(t)
	sink := &memorySink{}
	hub := newTestHub(t, ln, sink)
	conn, errCh := serve(t, hub)

	conn.sendJSON(t, `{"type":"connect","clusterId":7,"loginCallsign":"n0call"}`)
	conn.expect(t, gateway.TypeStatus, "Connecting to Mock")
	conn.expect(t, gateway.TypeStatus, "Connected to Mock")

	select {
	case login := <-received:
		assert.Equal(t, "N0CALL\r\n", login)
	case <-time.After(3 * time.Second):
		t.Fatal("upstream never received the login")
	}

	conn.expect(t, gateway.TypeStatus, "Logged in to Mock as N0CALL")
	conn.expect(t, gateway.TypeTerminal, "Hello N0CALL")

	msg := conn.expect(t, gateway.TypeSpot, "")
	payload, ok := msg.Data.(spot.Payload)
	require.True(t, ok, "spot data should be a spot.Payload, got %T", msg.Data)
	assert.Equal(t, "JA1ABC", payload.DXCall)
	assert.Equal(t, "W1AW", payload.Spotter)
	assert.Equal(t, 14074.0, payload.Frequency)
	assert.Equal(t, "20m", payload.Band)
	assert.Equal(t, "FT8", payload.Mode)
	assert.Equal(t, "21:07", payload.Time)
	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.sendJSON(t, `{"type":"command","data":"sh/dx 5"}`)
	conn.expect(t, gateway.TypeTerminal, "> sh/dx 5")
	select {
	case cmd := <-received:
		assert.Equal(t, "sh/dx 5\r\n", cmd)
	case <-time.After(3 * time.Second):
		t.Fatal("upstream never received the command")
	}
	conn.expect(t, gateway.TypeTerminal, "ok sh/dx 5")

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "Streaming", sessions[0].State)
	assert.Equal(t, "Mock", sessions[0].Cluster)
	assert.Equal(t, 1, sessions[0].Sockets)

	conn.sendJSON(t, `{"type":"disconnect"}`)
	conn.expect(t, gateway.TypeStatus, "Disconnected from cluster")
	sessions = hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "Closed{Normal}", sessions[0].State)
	assert.Zero(t, sessions[0].Sockets)

	conn.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after the client closed")
	}
	assert.Zero(t, hub.Len())
}

func TestSession_ConnectWhileActiveSwitchesCluster(t *testing.T) {
	ln, received := startUpstream(t)
	hub := newTestHub(t, ln, &memorySink{})
	conn, _ := serve(t, hub)

	conn.sendJSON(t, `{"type":"connect","clusterId":"7","loginCallsign":"N0CALL"}`)
	conn.expect(t, gateway.TypeStatus, "Logged in")
	<-received

	conn.sendJSON(t, `{"type":"connect","clusterId":"7","loginCallsign":"K1ABC"}`)
	conn.expect(t, gateway.TypeStatus, "Disconnected from cluster")
	conn.expect(t, gateway.TypeStatus, "Logged in to Mock as K1ABC")

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Sockets)
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	ln, received := startUpstream(t)
	hub := newTestHub(t, ln, &memorySink{})
	conn, errCh := serve(t, hub)

	conn.sendJSON(t, `{"type":"connect","clusterId":7,"loginCallsign":"N0CALL"}`)
	conn.expect(t, gateway.TypeStatus, "Logged in")
	<-received

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	assert.Zero(t, hub.Len())

	err := hub.Serve(context.Background(), newFakeConn())
	assert.ErrorIs(t, err, gateway.ErrShuttingDown)
}
