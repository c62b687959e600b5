package route

import (
	"github.com/bassista/go_chatwall/internal/api/controller"
	"github.com/bassista/go_chatwall/internal/app"
	"github.com/gin-gonic/gin"
)

func NewMetricsRouter(appCtx *app.App, group *gin.RouterGroup) {
	mc := controller.NewMetricsController(appCtx.MetricsSources())

	group.GET("metrics", mc.Metrics)
	group.GET("metrics/prometheus", mc.Prometheus)
}
