package compose

import (
	"sync"

	"github.com/bassista/go_chatwall/internal/logger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	fontsOnce   sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
)

func loadFonts() {
	fontsOnce.Do(func() {
		log := logger.WithComponent("compose")
		var err error
		if regularFont, err = opentype.Parse(goregular.TTF); err != nil {
			log.Errorf("parse regular font: %v", err)
		}
		if boldFont, err = opentype.Parse(gobold.TTF); err != nil {
			log.Errorf("parse bold font: %v", err)
		}
	})
}

type faceKey struct {
	size int
	bold bool
}

// faceSet hands out font faces at a fixed supersampling scale. Faces keep
// glyph caches and are not safe for concurrent use, so every composition
// owns its own set.
type faceSet struct {
	scale int
	faces map[faceKey]font.Face
}

func newFaceSet(scale int) *faceSet {
	loadFonts()
	return &faceSet{scale: scale, faces: make(map[faceKey]font.Face)}
}

func (fs *faceSet) face(size int, bold bool) font.Face {
	key := faceKey{size: size, bold: bold}
	if f, ok := fs.faces[key]; ok {
		return f
	}
	src := regularFont
	if bold {
		src = boldFont
	}
	var f font.Face = basicfont.Face7x13
	if src != nil {
		nf, err := opentype.NewFace(src, &opentype.FaceOptions{
			Size:    float64(size * fs.scale),
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err == nil {
			f = nf
		}
	}
	fs.faces[key] = f
	return f
}

// measurer returns a measureFunc in unscaled pixels for the given face.
func (fs *faceSet) measurer(size int, bold bool) measureFunc {
	f := fs.face(size, bold)
	return func(s string) int {
		w := font.MeasureString(f, s).Ceil()
		return (w + fs.scale - 1) / fs.scale
	}
}

func (fs *faceSet) Close() {
	for k, f := range fs.faces {
		if f != basicfont.Face7x13 {
			_ = f.Close()
		}
		delete(fs.faces, k)
	}
}
