package controller

import (
	"net/http"

	"github.com/bassista/go_chatwall/internal/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsController exposes service counters as JSON and Prometheus text.
type MetricsController struct {
	sources  metrics.Sources
	exporter *metrics.PrometheusExporter
}

func NewMetricsController(sources metrics.Sources) *MetricsController {
	return &MetricsController{sources: sources, exporter: metrics.NewPrometheusExporter(sources)}
}

// Metrics handles GET /metrics.
func (mc *MetricsController) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, mc.sources.Collect())
}

// Prometheus handles GET /metrics/prometheus.
func (mc *MetricsController) Prometheus(c *gin.Context) {
	c.Data(http.StatusOK, metrics.ContentType, mc.exporter.Export())
}
