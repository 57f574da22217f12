package gateway

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"

	"github.com/user00265/dxbridge/internal/cluster"
	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/store"
)

// ErrShuttingDown is returned by Serve once Shutdown has begun.
var ErrShuttingDown = errors.New("gateway is shutting down")

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Cluster string `json:"cluster,omitempty"`
	Sockets int    `json:"sockets"`
}

// Hub tracks live sessions.
type Hub struct {
	registry       registry.Registry
	sink           store.Sink
	opts           cluster.Options
	outboundBuffer int

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool
}

// NewHub returns a Hub creating sessions with the given collaborators.
func NewHub(reg registry.Registry, sink store.Sink, opts cluster.Options, outboundBuffer int) *Hub {
	return &Hub{
		registry:       reg,
		sink:           sink,
		opts:           opts,
		outboundBuffer: outboundBuffer,
		sessions:       make(map[string]*Session),
	}
}

// Serve runs a new session for conn and blocks until it ends.
func (h *Hub) Serve(ctx context.Context, conn ClientConn) error {
	s := newSession(uuid.NewString(), conn, h.registry, h.sink, h.opts, h.outboundBuffer)

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		conn.Close()
		return ErrShuttingDown
	}
	h.sessions[s.id] = s
	total := len(h.sessions)
	h.mu.Unlock()
	logging.Info("registered session %s (total: %d)", s.id, total)

	defer func() {
		h.mu.Lock()
		delete(h.sessions, s.id)
		total := len(h.sessions)
		h.mu.Unlock()
		logging.Info("unregistered session %s (total: %d)", s.id, total)
	}()

	s.Run(ctx)
	return nil
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sessions returns a snapshot of every live session ordered by id.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		st, reason := s.sup.State()
		state := st.String()
		if reason != cluster.CloseNone {
			state += "{" + reason.String() + "}"
		}
		out = append(out, SessionInfo{
			ID:      s.id,
			State:   state,
			Cluster: s.sup.Target().Name,
			Sockets: s.sup.OpenSockets(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown refuses new sessions and closes every live one concurrently,
// including its upstream socket.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	if len(list) > 0 {
		logging.Notice("closing %d client sessions", len(list))
	}

	var g errgroup.Group
	for _, s := range list {
		s := s
		g.Go(func() error {
			s.Close()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
