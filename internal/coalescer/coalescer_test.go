package coalescer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFlusher struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recordingFlusher) ApplyBatch(b Batch) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return b.Size()
}

func (r *recordingFlusher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recordingFlusher) get(i int) Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[i]
}

func startCoalescer(t *testing.T, f Flusher, opts Options) *Coalescer {
	t.Helper()
	c := New(f, opts)
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	return c
}

func TestCoalescer_BurstFlushesOnceDeduplicated(t *testing.T) {
	f := &recordingFlusher{}
	c := startCoalescer(t, f, Options{Window: 100 * time.Millisecond, MaxBatch: 512, QueueSize: 64})

	c.EnqueueMessage("ch1")
	c.EnqueueMessage("ch2")
	c.EnqueueMessage("ch1")
	c.EnqueueChannelUpdate("g1")
	c.EnqueueChannelUpdate("g1")

	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, f.count(), "a single burst flushes once")

	b := f.get(0)
	assert.Equal(t, []string{"ch1", "ch2"}, b.Channels)
	assert.Equal(t, []string{"g1"}, b.Guilds)

	snap := c.Snapshot()
	assert.Equal(t, int64(0), snap.QueueDepth)
	assert.Equal(t, uint64(1), snap.FlushedBatches)
	assert.Equal(t, uint64(3), snap.FlushedEvents)
	assert.Equal(t, uint64(3), snap.DirtiedScreens)
	assert.True(t, snap.Running)
}

func TestCoalescer_SpacedEventsFlushSeparately(t *testing.T) {
	f := &recordingFlusher{}
	c := startCoalescer(t, f, Options{Window: 30 * time.Millisecond, MaxBatch: 512, QueueSize: 64})

	c.EnqueueMessage("ch1")
	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	c.EnqueueMessage("ch2")
	require.Eventually(t, func() bool { return f.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"ch1"}, f.get(0).Channels)
	assert.Equal(t, []string{"ch2"}, f.get(1).Channels)
}

func TestCoalescer_CapFlushesEarly(t *testing.T) {
	f := &recordingFlusher{}
	c := New(f, Options{Window: 200 * time.Millisecond, MaxBatch: 512, QueueSize: 1024})
	for i := 0; i < 513; i++ {
		c.EnqueueMessage(fmt.Sprintf("ch-%d", i))
	}
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	require.Eventually(t, func() bool { return f.count() >= 2 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 512, f.get(0).Size())
	assert.Equal(t, 1, f.get(1).Size())
	assert.Equal(t, uint64(513), c.Snapshot().FlushedEvents)
}

func TestCoalescer_DropsWhenQueueFull(t *testing.T) {
	c := New(&recordingFlusher{}, Options{Window: time.Second, MaxBatch: 512, QueueSize: 2})
	for i := 0; i < 5; i++ {
		c.EnqueueMessage("ch")
	}
	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.QueueDepth)
	assert.Equal(t, uint64(3), snap.Dropped)
	assert.False(t, snap.Running)
}

func TestCoalescer_IgnoresBlankIDs(t *testing.T) {
	c := New(&recordingFlusher{}, Options{QueueSize: 4})
	c.EnqueueMessage("")
	c.EnqueueChannelUpdate("")
	assert.Equal(t, int64(0), c.Snapshot().QueueDepth)
}

func TestCoalescer_StopFlushesOpenWindow(t *testing.T) {
	f := &recordingFlusher{}
	c := New(f, Options{Window: time.Hour, MaxBatch: 512, QueueSize: 16})
	c.Start(context.Background())

	c.EnqueueMessage("ch1")
	require.Eventually(t, func() bool { return c.Snapshot().QueueDepth == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	require.Equal(t, 1, f.count())
	assert.Equal(t, []string{"ch1"}, f.get(0).Channels)
	assert.False(t, c.Snapshot().Running)

	c.Stop()
}

func TestCoalescer_IdempotentStartAndRestart(t *testing.T) {
	f := &recordingFlusher{}
	c := New(f, Options{Window: 20 * time.Millisecond, MaxBatch: 512, QueueSize: 16})
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()

	c.EnqueueMessage("late")
	assert.Equal(t, int64(1), c.Snapshot().QueueDepth, "events queue up while stopped")

	c.Start(context.Background())
	t.Cleanup(c.Stop)
	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"late"}, f.get(0).Channels)
}

func TestCoalescer_ConcurrentProducers(t *testing.T) {
	f := &recordingFlusher{}
	c := startCoalescer(t, f, Options{Window: 20 * time.Millisecond, MaxBatch: 512, QueueSize: 8192})

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.OnMessage(fmt.Sprintf("ch-%d", i%10))
				c.OnChannelUpdate("g")
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return s.QueueDepth == 0 && s.FlushedBatches > 0
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < f.count(); i++ {
		for _, ch := range f.get(i).Channels {
			seen[ch] = true
		}
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, uint64(0), c.Snapshot().Dropped)
}
