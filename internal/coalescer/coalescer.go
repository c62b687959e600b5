package coalescer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
)

// Batch is the deduplicated set of entities touched during one window,
// in the order they were first seen.
type Batch struct {
	Channels []string `json:"channels"`
	Guilds   []string `json:"guilds"`
}

// Size is the number of distinct entities in the batch.
func (b Batch) Size() int { return len(b.Channels) + len(b.Guilds) }

// Flusher applies a batch to the screens and reports how many were dirtied.
// It is called from the coalescer goroutine only.
type Flusher interface {
	ApplyBatch(batch Batch) int
}

type Options struct {
	Window    time.Duration
	MaxBatch  int
	QueueSize int
}

func DefaultOptions() Options {
	return Options{Window: 150 * time.Millisecond, MaxBatch: 512, QueueSize: 4096}
}

// Snapshot is a point-in-time copy of the coalescer counters.
type Snapshot struct {
	QueueDepth     int64  `json:"queueDepth"`
	FlushedBatches uint64 `json:"flushedBatches"`
	FlushedEvents  uint64 `json:"flushedEvents"`
	Dropped        uint64 `json:"dropped"`
	DirtiedScreens uint64 `json:"dirtiedScreens"`
	Running        bool   `json:"running"`
}

type kind uint8

const (
	kindMessage kind = iota
	kindChannelUpdate
)

type event struct {
	kind kind
	id   string
}

// Coalescer merges bursts of chat events into batches. A window opens at
// the first event and closes at a fixed deadline, or earlier once MaxBatch
// distinct entities have been collected. Enqueueing never blocks: when the
// queue is full the event is dropped and counted.
type Coalescer struct {
	flusher Flusher
	opts    Options
	queue   chan event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	queued  atomic.Int64
	batches atomic.Uint64
	events  atomic.Uint64
	dropped atomic.Uint64
	dirtied atomic.Uint64
}

func New(flusher Flusher, opts Options) *Coalescer {
	def := DefaultOptions()
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.MaxBatch < 1 {
		opts.MaxBatch = def.MaxBatch
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = def.QueueSize
	}
	return &Coalescer{
		flusher: flusher,
		opts:    opts,
		queue:   make(chan event, opts.QueueSize),
	}
}

// EnqueueMessage records that a message arrived in channelID.
func (c *Coalescer) EnqueueMessage(channelID string) {
	c.enqueue(event{kind: kindMessage, id: channelID})
}

// EnqueueChannelUpdate records that channels or permissions of guildID changed.
func (c *Coalescer) EnqueueChannelUpdate(guildID string) {
	c.enqueue(event{kind: kindChannelUpdate, id: guildID})
}

// OnMessage lets the coalescer be registered as a directory listener.
func (c *Coalescer) OnMessage(channelID string) { c.EnqueueMessage(channelID) }

func (c *Coalescer) OnChannelUpdate(guildID string) { c.EnqueueChannelUpdate(guildID) }

func (c *Coalescer) enqueue(ev event) {
	if ev.id == "" {
		return
	}
	c.queued.Add(1)
	select {
	case c.queue <- ev:
	default:
		c.queued.Add(-1)
		if c.dropped.Add(1)%100 == 1 {
			logger.WithComponent("coalescer").Warnf("event queue full, dropped %d events so far", c.dropped.Load())
		}
	}
}

// Start launches the collecting goroutine. Calling it while running is a no-op.
func (c *Coalescer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
	logger.WithComponent("coalescer").Infof("coalescer started (window %s, max batch %d)", c.opts.Window, c.opts.MaxBatch)
}

// Stop ends the goroutine. A window in progress is flushed; events still
// waiting in the queue are discarded. Stop is idempotent.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	discarded := 0
drain:
	for {
		select {
		case <-c.queue:
			c.queued.Add(-1)
			discarded++
		default:
			break drain
		}
	}
	if discarded > 0 {
		c.dropped.Add(uint64(discarded))
	}
	logger.WithComponent("coalescer").Infof("coalescer stopped (%d queued events discarded)", discarded)
}

func (c *Coalescer) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		var first event
		select {
		case <-ctx.Done():
			return
		case first = <-c.queue:
		}

		acc := newAccumulator()
		c.take(acc, first)

		stopping := false
		deadline := time.NewTimer(c.opts.Window)
	collect:
		for acc.size() < c.opts.MaxBatch {
			select {
			case ev := <-c.queue:
				c.take(acc, ev)
			case <-deadline.C:
				break collect
			case <-ctx.Done():
				stopping = true
				break collect
			}
		}
		deadline.Stop()

		c.flush(acc.batch())
		if stopping {
			return
		}
	}
}

func (c *Coalescer) take(acc *accumulator, ev event) {
	c.queued.Add(-1)
	acc.add(ev)
}

func (c *Coalescer) flush(batch Batch) {
	if batch.Size() == 0 {
		return
	}
	dirtied := 0
	if c.flusher != nil {
		dirtied = c.flusher.ApplyBatch(batch)
	}
	c.batches.Add(1)
	c.events.Add(uint64(batch.Size()))
	c.dirtied.Add(uint64(dirtied))
	logger.WithComponent("coalescer").Debugf("flushed %d channels, %d guilds, %d screens dirtied",
		len(batch.Channels), len(batch.Guilds), dirtied)
}

// Snapshot returns the current counters.
func (c *Coalescer) Snapshot() Snapshot {
	c.mu.Lock()
	running := c.cancel != nil
	c.mu.Unlock()
	return Snapshot{
		QueueDepth:     max(0, c.queued.Load()),
		FlushedBatches: c.batches.Load(),
		FlushedEvents:  c.events.Load(),
		Dropped:        c.dropped.Load(),
		DirtiedScreens: c.dirtied.Load(),
		Running:        running,
	}
}

// accumulator deduplicates channel and guild ids separately, keeping
// first-seen order.
type accumulator struct {
	channels, guilds       []string
	seenChannel, seenGuild map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{seenChannel: make(map[string]struct{}), seenGuild: make(map[string]struct{})}
}

func (a *accumulator) add(ev event) {
	switch ev.kind {
	case kindMessage:
		if _, ok := a.seenChannel[ev.id]; !ok {
			a.seenChannel[ev.id] = struct{}{}
			a.channels = append(a.channels, ev.id)
		}
	case kindChannelUpdate:
		if _, ok := a.seenGuild[ev.id]; !ok {
			a.seenGuild[ev.id] = struct{}{}
			a.guilds = append(a.guilds, ev.id)
		}
	}
}

func (a *accumulator) size() int { return len(a.channels) + len(a.guilds) }

func (a *accumulator) batch() Batch {
	return Batch{Channels: a.channels, Guilds: a.guilds}
}
