package route

import (
	"github.com/bassista/go_chatwall/internal/api/controller"
	"github.com/bassista/go_chatwall/internal/api/middleware"
	"github.com/bassista/go_chatwall/internal/app"
	"github.com/gin-gonic/gin"
)

func NewEventRouter(appCtx *app.App, group *gin.RouterGroup) {
	ec := controller.NewEventController(appCtx.Directory, appCtx.Coalescer)
	timeoutMiddleware := middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout)

	group.POST("events/message", timeoutMiddleware, ec.Message)
	group.POST("events/channel-update", timeoutMiddleware, ec.ChannelUpdate)
}
