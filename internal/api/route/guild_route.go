package route

import (
	"github.com/bassista/go_chatwall/internal/api/controller"
	"github.com/bassista/go_chatwall/internal/api/middleware"
	"github.com/bassista/go_chatwall/internal/app"
	"github.com/gin-gonic/gin"
)

func NewGuildRouter(appCtx *app.App, group *gin.RouterGroup) {
	gc := controller.NewGuildController(appCtx.Store, appCtx.Directory)
	timeoutMiddleware := middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout)

	group.GET("guilds", timeoutMiddleware, gc.AllGuilds)
	group.GET("guilds/:id/channels", timeoutMiddleware, gc.Channels)
	group.GET("guilds/:id/style", timeoutMiddleware, gc.GetStyle)
	group.PUT("guilds/:id/style", timeoutMiddleware, gc.SetStyle)
}
