package controller

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/bassista/go_chatwall/internal/render"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	full      *render.FullImage
	lastLoc   string
	waitUntil bool
}

func (f *fakeRenderer) RenderTile(ctx context.Context, id string, x, y int, locale string) (*image.RGBA, bool) {
	f.lastLoc = locale
	if f.waitUntil {
		<-ctx.Done()
		return nil, false
	}
	if id != "s1" {
		return nil, false
	}
	return f.full.Tile(x, y)
}

func (f *fakeRenderer) RenderFull(_ context.Context, id, locale string) (*render.FullImage, error) {
	f.lastLoc = locale
	if id != "s1" {
		return nil, render.ErrNoScreen
	}
	if f.full == nil {
		return nil, errors.New("composition failed")
	}
	return f.full, nil
}

func newFullImage() *render.FullImage {
	img := image.NewRGBA(image.Rect(0, 0, 256, 128))
	for y := 0; y < 128; y++ {
		for x := 128; x < 256; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return render.NewFullImage(img)
}

func newTileRouter(f *fakeRenderer, timeout time.Duration) *gin.Engine {
	tc := NewTileController(f)
	r := gin.New()
	if timeout > 0 {
		r.Use(func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
	r.GET("/screens/:id/tiles/:x/:y", tc.Tile)
	r.GET("/screens/:id/image", tc.Image)
	return r
}

func TestTileController_Tile(t *testing.T) {
	f := &fakeRenderer{full: newFullImage()}
	r := newTileRouter(f, 0)

	w := doJSON(r, http.MethodGet, "/screens/s1/tiles/1/0?locale=pt-BR", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "pt-BR", f.lastLoc)

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 128, 128), img.Bounds())
	r0, _, _, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(200*0x101), r0)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"outside image", "/screens/s1/tiles/2/0", http.StatusNotFound},
		{"negative", "/screens/s1/tiles/-1/0", http.StatusNotFound},
		{"coordinate overflowing pixel offset", "/screens/s1/tiles/144115188075855872/0", http.StatusNotFound},
		{"unknown screen", "/screens/zz/tiles/0/0", http.StatusNotFound},
		{"bad coordinate", "/screens/s1/tiles/a/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTileController_TileTimeout(t *testing.T) {
	r := newTileRouter(&fakeRenderer{waitUntil: true}, 20*time.Millisecond)
	w := doJSON(r, http.MethodGet, "/screens/s1/tiles/0/0", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestTileController_Image(t *testing.T) {
	r := newTileRouter(&fakeRenderer{full: newFullImage()}, 0)

	w := doJSON(r, http.MethodGet, "/screens/s1/image", "")
	require.Equal(t, http.StatusOK, w.Code)
	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 128, cfg.Height)

	w = doJSON(r, http.MethodGet, "/screens/zz/image", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = newTileRouter(&fakeRenderer{}, 0)
	w = doJSON(r, http.MethodGet, "/screens/s1/image", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
