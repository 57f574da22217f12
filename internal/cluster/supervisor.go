// Package cluster drives one session's telnet connection to a DX cluster node:
// connect, login, stream decoded lines and reconnect after losses.
package cluster

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/dedup"
	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/spot"
	"github.com/user00265/dxbridge/internal/telnet"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultLoginDelay     = 400 * time.Millisecond
	defaultReconnectDelay = 30 * time.Second
	writeTimeout          = 10 * time.Second
	readBufferSize        = 4096
	lineTerminator        = "\r\n"
)

// Events receives everything a Supervisor reports. Calls are made from a
// single goroutine per Supervisor, in the order things happened upstream.
// Implementations must not call Disconnect from inside a callback.
type Events interface {
	Status(text string)
	Terminal(line string)
	Spot(s spot.Spot)
}

// Options configures a Supervisor. Zero values fall back to defaults.
type Options struct {
	ConnectTimeout    time.Duration
	LoginDelay        time.Duration
	LoginPrompts      []string
	PostLoginCommands []string
	NewBackOff        func() backoff.BackOff
	Dialer            telnet.Dialer
	LineFilter        telnet.LineFilter
	DedupWindow       time.Duration
	DedupCapacity     int
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.LoginDelay <= 0 {
		o.LoginDelay = defaultLoginDelay
	}
	if len(o.LoginPrompts) == 0 {
		o.LoginPrompts = []string{"login:", "please enter your call", "callsign:"}
	}
	if o.NewBackOff == nil {
		o.NewBackOff = NewReconnectBackOff(defaultReconnectDelay, 0, 0)
	}
	if o.Dialer == nil {
		o.Dialer = telnet.NativeDialer{Timeout: o.ConnectTimeout}
	}
	if o.LineFilter == nil {
		o.LineFilter = telnet.Identity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Supervisor owns the upstream socket of one client session. At most one
// socket is open at any time; it is replaced on reconnect while the session
// id and login callsign stay the same.
type Supervisor struct {
	sessionID string
	opts      Options
	events    Events
	parser    *spot.Parser
	dedup     *dedup.Deduplicator
	log       logging.Scoped
	prompts   []string

	mu      sync.Mutex
	state   State
	reason  CloseReason
	target  registry.Cluster
	login   string
	conn    net.Conn
	attempt int
	cancel  context.CancelFunc
	done    chan struct{}

	// loggedIn is set once the login and post-login commands for conn
	// have been written; client commands are refused until then.
	loggedIn bool

	writeMu sync.Mutex
	sockets atomic.Int32
}

// New returns an Idle Supervisor.
func New(sessionID string, opts Options, events Events) *Supervisor {
	opts = opts.withDefaults()
	prompts := make([]string, 0, len(opts.LoginPrompts))
	for _, p := range opts.LoginPrompts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			prompts = append(prompts, p)
		}
	}
	return &Supervisor{
		sessionID: sessionID,
		opts:      opts,
		events:    events,
		parser:    &spot.Parser{Now: opts.Now},
		dedup:     dedup.New(opts.DedupWindow, opts.DedupCapacity),
		log:       logging.ForSession(sessionID),
		prompts:   prompts,
		state:     StateIdle,
	}
}

// State returns the current state and, for StateClosed, its reason.
func (s *Supervisor) State() (State, CloseReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Attempt returns how many reconnects have been made since Connect.
func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Target returns the cluster of the current or last connection.
func (s *Supervisor) Target() registry.Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// OpenSockets reports how many upstream sockets are open (0 or 1).
func (s *Supervisor) OpenSockets() int {
	return int(s.sockets.Load())
}

// Active reports whether a connection is being made, is live, or is waiting
// to reconnect.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Connect starts connecting to target in the background. It fails with
// ErrAlreadyActive unless the Supervisor is Idle or Closed.
func (s *Supervisor) Connect(ctx context.Context, target registry.Cluster, login string) error {
	login = strings.ToUpper(strings.TrimSpace(login))
	if login == "" {
		return ErrNoLogin
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.target = target
	s.login = login
	s.attempt = 0
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.run(runCtx, target, login)

		s.mu.Lock()
		if s.done == done {
			s.done = nil
			s.cancel = nil
		}
		s.mu.Unlock()
	}()
	return nil
}

// Send writes cmd followed by CRLF to the upstream socket.
func (s *Supervisor) Send(cmd string) error {
	s.mu.Lock()
	conn, state, loggedIn := s.conn, s.state, s.loggedIn
	s.mu.Unlock()

	if conn == nil || !loggedIn || (state != StateAwaitingLogin && state != StateStreaming) {
		return ErrNotConnected
	}
	return s.writeLine(conn, cmd)
}

// Disconnect closes the socket, cancels any pending reconnect and waits for
// the connection goroutine to exit. It is safe to call in any state.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	prev := s.state
	s.state, s.reason = StateClosed, CloseNormal
	s.mu.Unlock()

	if done != nil {
		s.log.Info("disconnected by client (was %s)", prev)
		s.events.Status("Disconnected from cluster")
	}
}

func (s *Supervisor) run(ctx context.Context, target registry.Cluster, login string) {
	bo := s.opts.NewBackOff()
	bo.Reset()
	reconnecting := false

	for {
		if reconnecting {
			s.events.Status(fmt.Sprintf("Reconnecting to %s (attempt %d)...", target.Name, s.Attempt()))
		} else {
			s.events.Status(fmt.Sprintf("Connecting to %s (%s)...", target.Name, target.Address()))
		}
		s.setState(StateConnecting, CloseNone)

		conn, err := s.dial(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("connect to %s failed: %v", target.Address(), err)
			if !reconnecting {
				s.setState(StateClosed, CloseError)
				s.events.Status(fmt.Sprintf("Failed to connect to %s: %v", target.Name, err))
				return
			}
			s.events.Status(fmt.Sprintf("Reconnect to %s failed: %v", target.Name, err))
		} else {
			streamed, err := s.serve(ctx, conn, target, login)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("connection to %s lost: %v", target.Address(), err)
			if streamed {
				bo.Reset()
			} else if !reconnecting {
				s.setState(StateClosed, CloseError)
				s.events.Status(fmt.Sprintf("Connection to %s closed before login completed: %v", target.Name, err))
				return
			}
		}

		s.setState(StateClosed, CloseError)
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			s.events.Status(fmt.Sprintf("Cluster connection lost, giving up on %s", target.Name))
			return
		}
		s.events.Status(fmt.Sprintf("Cluster connection lost, reconnecting in %s", delay.Round(time.Millisecond)))
		if !sleepCtx(ctx, delay) {
			return
		}

		s.mu.Lock()
		s.attempt++
		s.mu.Unlock()
		reconnecting = true
	}
}

func (s *Supervisor) dial(ctx context.Context, target registry.Cluster) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.opts.Dialer.Dial(dialCtx, target.Address())
	if err != nil {
		return nil, classifyDialError(err)
	}
	if err := s.attach(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func classifyDialError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrConnectRefused, err)
	default:
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
}

// attach records conn as the session socket, refusing if one is already open.
func (s *Supervisor) attach(conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.log.Error("refusing second upstream socket to %s", conn.RemoteAddr())
		return ErrSocketOpen
	}
	s.conn = conn
	s.sockets.Add(1)
	return nil
}

func (s *Supervisor) detach(conn net.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.loggedIn = false
		s.sockets.Add(-1)
	}
	s.mu.Unlock()
	conn.Close()
}

// serve runs one connection from AwaitingLogin until the socket fails. It
// reports whether the connection reached Streaming.
func (s *Supervisor) serve(ctx context.Context, conn net.Conn, target registry.Cluster, login string) (bool, error) {
	defer s.detach(conn)

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopWatch:
		}
	}()

	s.setState(StateAwaitingLogin, CloseNone)
	s.events.Status(fmt.Sprintf("Connected to %s", target.Name))
	s.log.Info("connected to %s (%s)", target.Name, conn.RemoteAddr())

	var (
		loginOnce sync.Once
		loginSent atomic.Bool
		loginErr  atomic.Value
	)
	sendLogin := func(trigger string) {
		loginOnce.Do(func() {
			s.log.Debug("sending login %s after %s", login, trigger)
			if err := s.writeLine(conn, login); err != nil {
				loginErr.Store(fmt.Errorf("%w: %v", ErrLoginFailed, err))
				conn.Close()
				return
			}
			loginSent.Store(true)
			for _, cmd := range s.opts.PostLoginCommands {
				if err := s.writeLine(conn, cmd); err != nil {
					s.log.Warn("post-login command %q failed: %v", cmd, err)
					break
				}
			}
			s.mu.Lock()
			if s.conn == conn {
				s.loggedIn = true
			}
			s.mu.Unlock()
		})
	}
	loginTimer := time.AfterFunc(s.opts.LoginDelay, func() { sendLogin("delay") })
	defer loginTimer.Stop()

	dec := telnet.NewDecoder()
	buf := make([]byte, readBufferSize)
	streaming := false

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			sentBefore := loginSent.Load()
			lines := dec.Feed(buf[:n])
			if !sentBefore && s.promptSeen(lines, dec.Pending()) {
				sendLogin("prompt")
			}
			for _, line := range lines {
				if sentBefore && !streaming {
					streaming = true
					s.setState(StateStreaming, CloseNone)
					s.events.Status(fmt.Sprintf("Logged in to %s as %s", target.Name, login))
				}
				s.handleLine(line, target, login, streaming)
			}
		}
		if err != nil {
			if v := loginErr.Load(); v != nil {
				return streaming, v.(error)
			}
			return streaming, fmt.Errorf("%w: %v", ErrUpstreamClosed, err)
		}
	}
}

func (s *Supervisor) promptSeen(lines []string, pending string) bool {
	check := func(text string) bool {
		text = strings.ToLower(text)
		for _, p := range s.prompts {
			if strings.Contains(text, p) {
				return true
			}
		}
		return false
	}
	for _, l := range lines {
		if check(l) {
			return true
		}
	}
	return check(pending)
}

// handleLine forwards every line as terminal text; once streaming, lines that
// parse as spots and pass dedup are also reported as spots.
func (s *Supervisor) handleLine(line string, target registry.Cluster, login string, streaming bool) {
	line = s.opts.LineFilter(line)
	s.log.Debug("raw line from %s: %q", target.Name, line)
	s.events.Terminal(line)
	if !streaming {
		return
	}

	sp, ok := s.parser.Parse(line, login)
	if !ok {
		return
	}
	sp.SessionID = s.sessionID
	sp.Cluster = target.Name
	if !s.dedup.Admit(sp) {
		s.log.Debug("duplicate spot suppressed: %s %s %s", sp.DXCall, sp.Band, sp.Mode)
		return
	}
	s.events.Spot(sp)
}

func (s *Supervisor) writeLine(conn net.Conn, line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write([]byte(line + lineTerminator))
	return err
}

func (s *Supervisor) setState(state State, reason CloseReason) {
	s.mu.Lock()
	prev := s.state
	s.state, s.reason = state, reason
	s.mu.Unlock()
	if prev != state {
		if reason != CloseNone {
			s.log.Info("state %s -> %s{%s}", prev, state, reason)
		} else {
			s.log.Info("state %s -> %s", prev, state)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
