// Package dedup suppresses repeat spots of the same station on the same band
// and mode within a trailing window.
package dedup

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/user00265/dxbridge/internal/spot"
)

// Defaults used when New is given non-positive values.
const (
	DefaultWindow   = 5 * time.Minute
	DefaultCapacity = 4096
)

// Deduplicator remembers when each (dxCall, band, mode) key was last admitted.
// Retained keys are bounded; the least recently admitted key is evicted first.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	seen   *lru.Cache[uint64, time.Time]
}

// New creates a Deduplicator with the given window and key capacity.
func New(window time.Duration, capacity int) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	seen, err := lru.New[uint64, time.Time](capacity)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}
	return &Deduplicator{window: window, seen: seen}
}

// Key hashes the dedup identity of a spot.
func Key(s spot.Spot) uint64 {
	var b strings.Builder
	b.Grow(len(s.DXCall) + len(s.Band) + len(s.Mode) + 2)
	b.WriteString(strings.ToUpper(s.DXCall))
	b.WriteByte(0)
	b.WriteString(s.Band)
	b.WriteByte(0)
	b.WriteString(s.Mode)
	return xxh3.HashString(b.String())
}

// Admit reports whether s should be forwarded. A spot is admitted when its key
// is unknown or was last admitted more than the window before s.ReceivedAt;
// admission records s.ReceivedAt for the key.
func (d *Deduplicator) Admit(s spot.Spot) bool {
	key := Key(s)

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen.Peek(key); ok {
		if s.ReceivedAt.Sub(last) <= d.window {
			return false
		}
	}
	d.seen.Add(key, s.ReceivedAt)
	return true
}

// Len returns the number of retained keys.
func (d *Deduplicator) Len() int {
	return d.seen.Len()
}

// Window returns the configured suppression window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}
