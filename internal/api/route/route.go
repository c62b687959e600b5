package route

import (
	"net/http"

	"github.com/bassista/go_chatwall/internal/api/middleware"
	"github.com/bassista/go_chatwall/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRoutes builds the gin engine with every API route.
func SetupRoutes(appCtx *app.App, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logger.Writer()))
	r.Use(middleware.HoneybadgerMiddleware(logger, appCtx.Config.Misc.HoneybadgerKey, appCtx.Config.Misc.EnvironmentName))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})

	publicRouter := r.Group("")
	timeout := appCtx.Config.Server.RequestTimeout

	NewConfigurationRouter(timeout, publicRouter, appCtx.Config)
	NewScreenRouter(appCtx, publicRouter)
	NewGuildRouter(appCtx, publicRouter)
	NewTileRouter(appCtx, publicRouter)
	NewEventRouter(appCtx, publicRouter)
	NewMetricsRouter(appCtx, publicRouter)

	return r
}
