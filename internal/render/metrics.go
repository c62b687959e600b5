package render

import (
	"sync/atomic"
	"time"
)

// Metrics counts dispatcher activity. All fields are updated atomically.
type Metrics struct {
	requests     atomic.Uint64
	hits         atomic.Uint64
	misses       atomic.Uint64
	renders      atomic.Uint64
	renderErrors atomic.Uint64
	renderNanos  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Requests     uint64  `json:"requests"`
	CacheHits    uint64  `json:"cacheHits"`
	CacheMisses  uint64  `json:"cacheMisses"`
	RenderCount  uint64  `json:"renderCount"`
	RenderErrors uint64  `json:"renderErrors"`
	AvgRenderMs  float64 `json:"avgRenderMs"`
}

func (m *Metrics) recordRender(elapsed time.Duration, err error) {
	if err != nil {
		m.renderErrors.Add(1)
		return
	}
	m.renders.Add(1)
	m.renderNanos.Add(elapsed.Nanoseconds())
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Requests:     m.requests.Load(),
		CacheHits:    m.hits.Load(),
		CacheMisses:  m.misses.Load(),
		RenderCount:  m.renders.Load(),
		RenderErrors: m.renderErrors.Load(),
	}
	if s.RenderCount > 0 {
		s.AvgRenderMs = float64(m.renderNanos.Load()) / float64(s.RenderCount) / float64(time.Millisecond)
	}
	return s
}
