package controller

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/bassista/go_chatwall/internal/coalescer"
	"github.com/bassista/go_chatwall/internal/metrics"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsController(t *testing.T) {
	mc := NewMetricsController(metrics.Sources{
		Render:    func() render.MetricsSnapshot { return render.MetricsSnapshot{Requests: 4, CacheHits: 3} },
		Coalescer: func() coalescer.Snapshot { return coalescer.Snapshot{Running: true} },
		Screens:   func() int { return 2 },
	})
	r := gin.New()
	r.GET("/metrics", mc.Metrics)
	r.GET("/metrics/prometheus", mc.Prometheus)

	w := doJSON(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report metrics.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Screens)
	require.NotNil(t, report.Render)
	assert.Equal(t, uint64(3), report.Render.CacheHits)
	require.NotNil(t, report.Coalescer)
	assert.True(t, report.Coalescer.Running)
	assert.Nil(t, report.Fetch)

	w = doJSON(r, http.MethodGet, "/metrics/prometheus", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain; version=0.0.4"))
	assert.Contains(t, w.Body.String(), "chatwall_tile_requests_total 4\n")
}
