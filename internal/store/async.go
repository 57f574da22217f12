package store

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/spot"
)

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 500 * time.Millisecond
	flushTimeout         = 10 * time.Second
	dropLogEvery         = 100
)

// Async decouples a Sink from the spot delivery path. Store never blocks:
// when the queue is full the spot is dropped and counted.
type Async struct {
	sink      Sink
	queue     chan spot.Spot
	batchSize int
	interval  time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync wraps sink. Zero sizes fall back to defaults.
func NewAsync(sink Sink, queueSize, batchSize int, interval time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Async{
		sink:      sink,
		queue:     make(chan spot.Spot, queueSize),
		batchSize: batchSize,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (a *Async) Start() {
	go a.loop()
}

// Store queues s for writing. It always returns nil.
func (a *Async) Store(_ context.Context, s spot.Spot) error {
	if a.stopped.Load() {
		a.drop()
		return nil
	}
	select {
	case a.queue <- s:
	default:
		a.drop()
	}
	return nil
}

func (a *Async) drop() {
	n := a.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		logging.Warn("spot store queue full, %d spots dropped so far", n)
	}
}

// Stop flushes queued spots and waits for the writer to exit, or for ctx.
func (a *Async) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		close(a.stop)
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many spots were discarded because the queue was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Written returns how many spots were handed to the sink successfully.
func (a *Async) Written() uint64 { return a.written.Load() }

// Failed returns how many spots the sink rejected.
func (a *Async) Failed() uint64 { return a.failed.Load() }

// Pending returns the number of queued spots.
func (a *Async) Pending() int { return len(a.queue) }

func (a *Async) loop() {
	defer close(a.done)
	batch := make([]spot.Spot, 0, a.batchSize)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			for {
				select {
				case s := <-a.queue:
					batch = append(batch, s)
					if len(batch) >= a.batchSize {
						batch = a.flush(batch)
					}
				default:
					a.flush(batch)
					return
				}
			}
		case s := <-a.queue:
			batch = append(batch, s)
			if len(batch) >= a.batchSize {
				batch = a.flush(batch)
			}
		case <-ticker.C:
			batch = a.flush(batch)
		}
	}
}

func (a *Async) flush(batch []spot.Spot) []spot.Spot {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := storeAll(ctx, a.sink, batch); err != nil {
		a.failed.Add(uint64(len(batch)))
		logging.Error("failed to store %d spots: %v", len(batch), err)
	} else {
		a.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}
