package compose

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// canvas draws in unscaled screen pixels onto a supersampled RGBA buffer.
// All coordinates passed to its methods are multiplied by scale.
type canvas struct {
	img   *image.RGBA
	scale int
	fonts *faceSet
}

func newCanvas(width, height, scale int) *canvas {
	return &canvas{
		img:   image.NewRGBA(image.Rect(0, 0, width*scale, height*scale)),
		scale: scale,
		fonts: newFaceSet(scale),
	}
}

func (c *canvas) rect(x, y, w, h int) image.Rectangle {
	s := c.scale
	return image.Rect(x*s, y*s, (x+w)*s, (y+h)*s).Intersect(c.img.Bounds())
}

func (c *canvas) fillRect(x, y, w, h int, col color.Color) {
	if w <= 0 || h <= 0 {
		return
	}
	draw.Draw(c.img, c.rect(x, y, w, h), image.NewUniform(col), image.Point{}, draw.Over)
}

// fillRoundRect fills a rectangle whose corners are rounded with the given
// arc diameter.
func (c *canvas) fillRoundRect(x, y, w, h, arc int, col color.Color) {
	if w <= 0 || h <= 0 {
		return
	}
	r := c.rect(x, y, w, h)
	mask := &roundRectMask{outer: image.Rect(x*c.scale, y*c.scale, (x+w)*c.scale, (y+h)*c.scale), radius: arc * c.scale / 2}
	draw.DrawMask(c.img, r, image.NewUniform(col), image.Point{}, mask, r.Min, draw.Over)
}

// strokeRoundRect draws a one pixel rounded outline.
func (c *canvas) strokeRoundRect(x, y, w, h, arc int, col color.Color) {
	if w <= 0 || h <= 0 {
		return
	}
	s := c.scale
	outer := image.Rect(x*s, y*s, (x+w)*s, (y+h)*s)
	mask := &roundRectMask{
		outer:  outer,
		radius: arc * s / 2,
		inner:  outer.Inset(s),
		hollow: true,
	}
	r := outer.Intersect(c.img.Bounds())
	draw.DrawMask(c.img, r, image.NewUniform(col), image.Point{}, mask, r.Min, draw.Over)
}

func (c *canvas) fillCircle(x, y, size int, col color.Color) {
	c.fillRoundRect(x, y, size, size, size, col)
}

func (c *canvas) strokeCircle(x, y, size int, col color.Color) {
	c.strokeRoundRect(x, y, size, size, size, col)
}

func (c *canvas) hLine(x1, x2, y int, col color.Color) {
	c.fillRect(x1, y, x2-x1+1, 1, col)
}

func (c *canvas) vLine(x, y1, y2 int, col color.Color) {
	c.fillRect(x, y1, 1, y2-y1+1, col)
}

// verticalGradient blends from top to bottom at a constant opacity.
func (c *canvas) verticalGradient(x, y, w, h int, top, bottom color.RGBA, alpha int) {
	if w <= 0 || h <= 0 {
		return
	}
	rows := h * c.scale
	for i := 0; i < rows; i++ {
		t := float64(i) / float64(max(1, rows-1))
		col := withAlpha(mix(top, bottom, t), alpha)
		row := image.Rect(x*c.scale, y*c.scale+i, (x+w)*c.scale, y*c.scale+i+1).Intersect(c.img.Bounds())
		draw.Draw(c.img, row, image.NewUniform(col), image.Point{}, draw.Over)
	}
}

// softShadow draws the two offset translucent layers under a card.
func (c *canvas) softShadow(x, y, w, h, arc int) {
	c.fillRoundRect(x+1, y+1, w, h, arc, color.NRGBA{A: 36})
	c.fillRoundRect(x+2, y+2, w, h, arc, color.NRGBA{A: 20})
}

// text draws s with its baseline at y and returns the advance in unscaled
// pixels.
func (c *canvas) text(s string, x, baseline, size int, bold bool, col color.Color) int {
	if s == "" {
		return 0
	}
	face := c.fonts.face(size, bold)
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x*c.scale, baseline*c.scale),
	}
	d.DrawString(s)
	return c.fonts.measurer(size, bold)(s)
}

func (c *canvas) measure(size int, bold bool) measureFunc {
	return c.fonts.measurer(size, bold)
}

// circleImage draws src scaled into a size x size circle.
func (c *canvas) circleImage(src image.Image, x, y, size int) {
	s := c.scale
	dr := image.Rect(x*s, y*s, (x+size)*s, (y+size)*s)
	scaled := image.NewRGBA(image.Rect(0, 0, dr.Dx(), dr.Dy()))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	mask := &roundRectMask{outer: dr, radius: dr.Dx() / 2}
	clipped := dr.Intersect(c.img.Bounds())
	draw.DrawMask(c.img, clipped, scaled, clipped.Min.Sub(dr.Min), mask, clipped.Min, draw.Over)
}

// clipRoundFrame clears every pixel outside the rounded app frame.
func (c *canvas) clipRoundFrame(x, y, w, h, arc int) {
	s := c.scale
	mask := &roundRectMask{outer: image.Rect(x*s, y*s, (x+w)*s, (y+h)*s), radius: arc * s / 2}
	b := c.img.Bounds()
	for py := b.Min.Y; py < b.Max.Y; py++ {
		for px := b.Min.X; px < b.Max.X; px++ {
			if mask.alphaAt(px, py) == 0 {
				c.img.SetRGBA(px, py, color.RGBA{})
			}
		}
	}
}

func (c *canvas) Close() { c.fonts.Close() }

// roundRectMask is an alpha mask in destination coordinates covering a
// rounded rectangle, or its one-pixel ring when hollow is set.
type roundRectMask struct {
	outer  image.Rectangle
	radius int
	inner  image.Rectangle
	hollow bool
}

func (m *roundRectMask) ColorModel() color.Model { return color.AlphaModel }
func (m *roundRectMask) Bounds() image.Rectangle { return m.outer }

func (m *roundRectMask) At(x, y int) color.Color {
	return color.Alpha{A: m.alphaAt(x, y)}
}

func (m *roundRectMask) alphaAt(x, y int) uint8 {
	if !insideRounded(m.outer, m.radius, x, y) {
		return 0
	}
	if m.hollow {
		innerRadius := max(0, m.radius-(m.outer.Dx()-m.inner.Dx())/2)
		if insideRounded(m.inner, innerRadius, x, y) {
			return 0
		}
	}
	return 0xff
}

// insideRounded reports whether the pixel centre (x+.5, y+.5) lies in r
// with corners of radius rad.
func insideRounded(r image.Rectangle, rad, x, y int) bool {
	if x < r.Min.X || x >= r.Max.X || y < r.Min.Y || y >= r.Max.Y {
		return false
	}
	rad = min(rad, r.Dx()/2, r.Dy()/2)
	if rad <= 0 {
		return true
	}
	px, py := float64(x)+0.5, float64(y)+0.5
	var cx, cy float64
	switch {
	case px < float64(r.Min.X+rad):
		cx = float64(r.Min.X + rad)
	case px > float64(r.Max.X-rad):
		cx = float64(r.Max.X - rad)
	default:
		return true
	}
	switch {
	case py < float64(r.Min.Y+rad):
		cy = float64(r.Min.Y + rad)
	case py > float64(r.Max.Y-rad):
		cy = float64(r.Max.Y - rad)
	default:
		return true
	}
	dx, dy := px-cx, py-cy
	return dx*dx+dy*dy <= float64(rad*rad)
}

// downscale reduces src to w x h by repeated halving followed by one final
// resample, which keeps thin strokes and text crisp.
func downscale(src *image.RGBA, w, h int) *image.RGBA {
	cur := src
	for cur.Bounds().Dx()/2 >= w && cur.Bounds().Dy()/2 >= h {
		nw := max(w, cur.Bounds().Dx()/2)
		nh := max(h, cur.Bounds().Dy()/2)
		next := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(next, next.Bounds(), cur, cur.Bounds(), xdraw.Src, nil)
		cur = next
	}
	if cur.Bounds().Dx() == w && cur.Bounds().Dy() == h {
		return cur
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), cur, cur.Bounds(), xdraw.Src, nil)
	return out
}
