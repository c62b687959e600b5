package route

import (
	"github.com/bassista/go_chatwall/internal/api/controller"
	"github.com/bassista/go_chatwall/internal/api/middleware"
	"github.com/bassista/go_chatwall/internal/app"
	"github.com/gin-gonic/gin"
)

// NewTileRouter serves tiles and full images. A composition keeps running
// for other waiters when the request that started it times out.
func NewTileRouter(appCtx *app.App, group *gin.RouterGroup) {
	tc := controller.NewTileController(appCtx.Dispatcher)
	timeoutMiddleware := middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout)

	group.GET("screens/:id/tiles/:x/:y", timeoutMiddleware, tc.Tile)
	group.GET("screens/:id/image", timeoutMiddleware, tc.Image)
}
