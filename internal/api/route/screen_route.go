package route

import (
	"github.com/bassista/go_chatwall/internal/api/controller"
	"github.com/bassista/go_chatwall/internal/api/middleware"
	"github.com/bassista/go_chatwall/internal/app"
	"github.com/gin-gonic/gin"
)

func NewScreenRouter(appCtx *app.App, group *gin.RouterGroup) {
	sc := controller.NewScreenController(appCtx.Store, appCtx.Directory)
	timeoutMiddleware := middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout)

	group.GET("screens", timeoutMiddleware, sc.AllScreens)
	group.POST("screens", timeoutMiddleware, sc.CreateScreen)
	group.GET("screens/:id", timeoutMiddleware, sc.GetScreen)
	group.DELETE("screens/:id", timeoutMiddleware, sc.DeleteScreen)
	group.PUT("screens/:id/link", timeoutMiddleware, sc.LinkScreen)
	group.POST("screens/:id/lock", timeoutMiddleware, sc.LockChannel)
	group.POST("screens/:id/unlock", timeoutMiddleware, sc.UnlockChannel)
	group.POST("screens/:id/members/toggle", timeoutMiddleware, sc.ToggleMemberList)
	group.PUT("screens/:id/position", timeoutMiddleware, sc.MoveScreen)
	group.PUT("screens/:id/size", timeoutMiddleware, sc.ResizeScreen)
	group.POST("screens/:id/dirty", timeoutMiddleware, sc.MarkDirty)
}
