// Package metrics gathers the service counters for the diagnostics routes.
package metrics

import (
	"bytes"
	"fmt"

	"github.com/bassista/go_chatwall/internal/coalescer"
	"github.com/bassista/go_chatwall/internal/fetch"
	"github.com/bassista/go_chatwall/internal/render"
)

// ContentType is the Prometheus text exposition format served by Export.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Sources yields point-in-time snapshots of each subsystem. Nil sources are
// skipped.
type Sources struct {
	Render    func() render.MetricsSnapshot
	Cache     func() render.CacheStats
	Coalescer func() coalescer.Snapshot
	Fetch     func() fetch.Stats
	Screens   func() int
	Versions  func() int
}

// Report is the JSON form of every snapshot.
type Report struct {
	Screens   int                     `json:"screens"`
	Versions  int                     `json:"trackedVersions"`
	Render    *render.MetricsSnapshot `json:"render,omitempty"`
	Cache     *render.CacheStats      `json:"cache,omitempty"`
	Coalescer *coalescer.Snapshot     `json:"coalescer,omitempty"`
	Fetch     *fetch.Stats            `json:"fetch,omitempty"`
}

// Collect reads every source once.
func (s Sources) Collect() Report {
	var r Report
	if s.Screens != nil {
		r.Screens = s.Screens()
	}
	if s.Versions != nil {
		r.Versions = s.Versions()
	}
	if s.Render != nil {
		v := s.Render()
		r.Render = &v
	}
	if s.Cache != nil {
		v := s.Cache()
		r.Cache = &v
	}
	if s.Coalescer != nil {
		v := s.Coalescer()
		r.Coalescer = &v
	}
	if s.Fetch != nil {
		v := s.Fetch()
		r.Fetch = &v
	}
	return r
}

// PrometheusExporter renders a Report in Prometheus text format.
type PrometheusExporter struct {
	sources Sources
}

func NewPrometheusExporter(sources Sources) *PrometheusExporter {
	return &PrometheusExporter{sources: sources}
}

// Export produces the metrics payload.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer
	r := e.sources.Collect()

	if e.sources.Screens != nil {
		gauge(&buf, "chatwall_screens", "Number of configured screens.", float64(r.Screens))
	}
	if e.sources.Versions != nil {
		gauge(&buf, "chatwall_render_versions_tracked", "Screens with a render version counter.", float64(r.Versions))
	}
	if m := r.Render; m != nil {
		counter(&buf, "chatwall_tile_requests_total", "Total number of tile and image requests.", m.Requests)
		counter(&buf, "chatwall_render_cache_hits_total", "Requests answered from the render cache.", m.CacheHits)
		counter(&buf, "chatwall_render_cache_misses_total", "Requests that needed a composition.", m.CacheMisses)
		counter(&buf, "chatwall_renders_total", "Completed compositions.", m.RenderCount)
		counter(&buf, "chatwall_render_errors_total", "Failed compositions.", m.RenderErrors)
		gauge(&buf, "chatwall_render_avg_seconds", "Mean composition time.", m.AvgRenderMs/1000)
	}
	if c := r.Cache; c != nil {
		gauge(&buf, "chatwall_render_cache_entries", "Composed images held in the render cache.", float64(c.Entries))
		gauge(&buf, "chatwall_render_cache_bytes", "Pixel bytes held in the render cache.", float64(c.Bytes))
		gauge(&buf, "chatwall_render_cache_budget_bytes", "Render cache byte budget.", float64(c.Budget))
		counter(&buf, "chatwall_render_cache_evictions_total", "Entries evicted to stay within budget.", c.Evictions)
		counter(&buf, "chatwall_render_cache_idle_evictions_total", "Entries evicted after sitting idle.", c.IdleEvictions)
	}
	if q := r.Coalescer; q != nil {
		gauge(&buf, "chatwall_coalescer_queue_depth", "Events waiting in the coalescer queue.", float64(q.QueueDepth))
		counter(&buf, "chatwall_coalescer_batches_total", "Batches flushed by the coalescer.", q.FlushedBatches)
		counter(&buf, "chatwall_coalescer_events_total", "Distinct ids flushed by the coalescer.", q.FlushedEvents)
		counter(&buf, "chatwall_coalescer_dropped_total", "Events dropped because the queue was full.", q.Dropped)
		counter(&buf, "chatwall_coalescer_dirtied_screens_total", "Screen invalidations caused by flushed batches.", q.DirtiedScreens)
	}
	if f := r.Fetch; f != nil {
		buf.WriteString("# HELP chatwall_fetch_cache_entries Images held by the fetch cache per tier.\n")
		buf.WriteString("# TYPE chatwall_fetch_cache_entries gauge\n")
		buf.WriteString(fmt.Sprintf("chatwall_fetch_cache_entries{tier=%q} %d\n", "positive", f.Positive))
		buf.WriteString(fmt.Sprintf("chatwall_fetch_cache_entries{tier=%q} %d\n", "negative", f.Negative))
		counter(&buf, "chatwall_fetch_hits_total", "Resolves answered from the positive tier.", f.Hits)
		counter(&buf, "chatwall_fetch_negative_hits_total", "Resolves answered from the negative tier.", f.NegativeHits)
		counter(&buf, "chatwall_fetches_total", "Remote fetches started.", f.Fetches)
		counter(&buf, "chatwall_fetch_failures_total", "Remote fetches that failed.", f.Failures)
	}
	return buf.Bytes()
}

func counter(buf *bytes.Buffer, name, help string, value uint64) {
	buf.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	buf.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
	buf.WriteString(fmt.Sprintf("%s %d\n", name, value))
}

func gauge(buf *bytes.Buffer, name, help string, value float64) {
	buf.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	buf.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
	buf.WriteString(fmt.Sprintf("%s %g\n", name, value))
}
