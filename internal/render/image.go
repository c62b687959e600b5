package render

import (
	"image"
	"image/draw"
	"strings"

	"github.com/bassista/go_chatwall/internal/repository"
	"golang.org/x/text/language"
)

// FullImage is a composed screen. It is never mutated after construction,
// so it can be shared between the cache and any number of readers.
type FullImage struct {
	Image     *image.RGBA
	SizeBytes int64
}

// NewFullImage wraps img and records its pixel buffer size as its weight.
func NewFullImage(img *image.RGBA) *FullImage {
	return &FullImage{Image: img, SizeBytes: int64(len(img.Pix))}
}

// Tile copies the 128x128 region at tile column x, row y.
// It reports false when the region does not lie inside the image.
func (f *FullImage) Tile(x, y int) (*image.RGBA, bool) {
	if f == nil || f.Image == nil || x < 0 || y < 0 {
		return nil, false
	}
	b := f.Image.Bounds()
	// compare tile indices before multiplying so huge coordinates cannot wrap
	if x >= b.Dx()/repository.TileSize || y >= b.Dy()/repository.TileSize {
		return nil, false
	}
	x0 := b.Min.X + x*repository.TileSize
	y0 := b.Min.Y + y*repository.TileSize

	tile := image.NewRGBA(image.Rect(0, 0, repository.TileSize, repository.TileSize))
	draw.Draw(tile, tile.Bounds(), f.Image, image.Pt(x0, y0), draw.Src)
	return tile, true
}

// NormalizeLocale folds the spellings of a locale ("en-US", "EN_us") into the
// lowercase underscore form used in cache keys. Empty input yields fallback.
func NormalizeLocale(locale, fallback string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = fallback
	}
	if locale == "" {
		return ""
	}
	if tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-")); err == nil {
		locale = tag.String()
	}
	return strings.ToLower(strings.ReplaceAll(locale, "-", "_"))
}
