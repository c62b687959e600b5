package controller

import (
	"net/http"

	"github.com/bassista/go_chatwall/internal/config"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/gin-gonic/gin"
)

// ConfigurationResponse is the render configuration exposed to clients that
// place and size screens.
type ConfigurationResponse struct {
	TileSize          int      `json:"tileSize"`
	MaxTiles          int      `json:"maxTiles"`
	PerformanceMode   string   `json:"performanceMode"`
	DefaultLocale     string   `json:"defaultLocale"`
	Timezone          string   `json:"timezone"`
	CoalescerWindowMs int64    `json:"coalescerWindowMs"`
	Layouts           []string `json:"layouts"`
}

// ConfigurationController handles configuration-related API endpoints.
type ConfigurationController struct {
	config *config.Config
}

// NewConfigurationController creates a new ConfigurationController.
func NewConfigurationController(cfg *config.Config) *ConfigurationController {
	return &ConfigurationController{
		config: cfg,
	}
}

// GetConfiguration returns the render settings. Secrets are never included.
func (cc *ConfigurationController) GetConfiguration(c *gin.Context) {
	response := ConfigurationResponse{
		TileSize:          repository.TileSize,
		MaxTiles:          16,
		PerformanceMode:   cc.config.Render.PerformanceMode,
		DefaultLocale:     cc.config.Render.DefaultLocale,
		Timezone:          cc.config.Location().String(),
		CoalescerWindowMs: cc.config.Coalescer.Window.Milliseconds(),
		Layouts:           repository.LayoutCycle,
	}
	c.JSON(http.StatusOK, response)
}
