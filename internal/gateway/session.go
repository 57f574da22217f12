package gateway

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/cluster"
	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/spot"
	"github.com/user00265/dxbridge/internal/store"
)

const defaultOutboundBuffer = 64

// Session couples one client connection to one cluster Supervisor.
type Session struct {
	id       string
	conn     ClientConn
	registry registry.Registry
	sink     store.Sink
	sup      *cluster.Supervisor
	log      logging.Scoped

	// out is drained by a single writer; producers block while it is full.
	out      chan Outbound
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func newSession(id string, conn ClientConn, reg registry.Registry, sink store.Sink, opts cluster.Options, outboundBuffer int) *Session {
	if outboundBuffer <= 0 {
		outboundBuffer = defaultOutboundBuffer
	}
	if sink == nil {
		sink = store.Nop{}
	}
	s := &Session{
		id:       id,
		conn:     conn,
		registry: reg,
		sink:     sink,
		log:      logging.ForSession(id),
		out:      make(chan Outbound, outboundBuffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	s.sup = cluster.New(id, opts, s)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Supervisor exposes the session's upstream connection.
func (s *Session) Supervisor() *cluster.Supervisor { return s.sup }

// Run serves the client until its connection closes or ctx is cancelled.
// The upstream socket is closed before Run returns.
func (s *Session) Run(ctx context.Context) {
	defer close(s.finished)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("client connected from %s", s.conn.RemoteAddr())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-s.done:
		}
	}()

	for {
		raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("client read ended: %v", err)
			break
		}
		s.handle(ctx, raw)
	}

	s.stop()
	s.sup.Disconnect()
	<-writerDone
	s.log.Info("client session closed")
}

// Close ends the session and waits for Run to return.
func (s *Session) Close() {
	s.stop()
	<-s.finished
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Warn("client write failed, closing session: %v", err)
				s.stop()
				return
			}
		}
	}
}

// send queues msg for the client, waiting for room unless the session ended.
func (s *Session) send(msgType string, data interface{}) {
	select {
	case s.out <- Outbound{Type: msgType, Data: data}:
	case <-s.done:
	}
}

func (s *Session) sendError(text string) {
	s.send(TypeError, text)
}

func (s *Session) handle(ctx context.Context, raw []byte) {
	msg, err := DecodeInbound(raw)
	if err != nil {
		s.log.Warn("rejected client message: %v", err)
		s.sendError(protocolText(err))
		return
	}

	switch msg.Type {
	case TypeConnect:
		s.connect(ctx, msg)
	case TypeCommand:
		s.command(msg.CommandText())
	case TypeDisconnect:
		wasActive := s.sup.Active()
		s.sup.Disconnect()
		if !wasActive {
			s.Status("Disconnected from cluster")
		}
	}
}

func (s *Session) connect(ctx context.Context, msg Inbound) {
	login := strings.TrimSpace(msg.LoginCallsign)
	if login == "" {
		s.sendError(MsgMissingLogin)
		return
	}
	target, err := s.registry.Lookup(string(msg.ClusterID))
	if err != nil {
		s.log.Warn("connect to unknown cluster %q", msg.ClusterID)
		s.sendError(MsgClusterNotFound)
		return
	}

	if s.sup.Active() {
		s.log.Info("switching cluster to %s", target.Name)
		s.sup.Disconnect()
	}
	if err := s.sup.Connect(ctx, target, login); err != nil {
		s.sendError(fmt.Sprintf("Connection failed: %v", err))
	}
}

func (s *Session) command(text string) {
	if err := s.sup.Send(text); err != nil {
		if errors.Is(err, cluster.ErrNotConnected) {
			s.sendError(MsgNotConnected)
			return
		}
		s.log.Warn("command %q failed: %v", text, err)
		s.sendError(fmt.Sprintf("Failed to send command: %v", err))
		return
	}
	s.send(TypeTerminal, "> "+text)
}

// Status implements cluster.Events.
func (s *Session) Status(text string) {
	s.send(TypeStatus, text)
}

// Terminal implements cluster.Events.
func (s *Session) Terminal(line string) {
	s.send(TypeTerminal, line)
}

// Spot implements cluster.Events. The spot is delivered before it is handed
// to the store; store failures are logged only.
func (s *Session) Spot(sp spot.Spot) {
	s.send(TypeSpot, sp.Payload())
	if err := s.sink.Store(context.Background(), sp); err != nil {
		s.log.Warn("failed to store spot %s: %v", sp.DXCall, err)
	}
}
