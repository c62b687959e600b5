package controller

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/gin-gonic/gin"
)

const tileComponent = "tile_controller"

// TileRenderer is the part of the render dispatcher the tile routes need.
type TileRenderer interface {
	RenderTile(ctx context.Context, screenID string, x, y int, locale string) (*image.RGBA, bool)
	RenderFull(ctx context.Context, screenID, locale string) (*render.FullImage, error)
}

// TileController serves composed tiles and full screen images as PNG.
type TileController struct {
	renderer TileRenderer
	encoder  *png.Encoder
}

func NewTileController(renderer TileRenderer) *TileController {
	return &TileController{
		renderer: renderer,
		encoder:  &png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

// Tile handles GET /screens/:id/tiles/:x/:y. Unknown screens, failed
// compositions and coordinates outside the image all answer 404.
func (tc *TileController) Tile(c *gin.Context) {
	id := c.Param("id")
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile coordinates must be integers"})
		return
	}

	tile, ok := tc.renderer.RenderTile(c.Request.Context(), id, x, y, c.Query("locale"))
	if !ok {
		if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timeout"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "tile not available"})
		return
	}
	tc.writePNG(c, tile)
}

// Image handles GET /screens/:id/image.
func (tc *TileController) Image(c *gin.Context) {
	id := c.Param("id")
	full, err := tc.renderer.RenderFull(c.Request.Context(), id, c.Query("locale"))
	if err != nil {
		writeError(c, tileComponent, "render "+id, err)
		return
	}
	tc.writePNG(c, full.Image)
}

func (tc *TileController) writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := tc.encoder.Encode(&buf, img); err != nil {
		logger.WithComponent(tileComponent).Errorf("png encode failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
