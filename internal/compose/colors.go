package compose

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/bassista/go_chatwall/internal/repository"
)

// Reference palette the theme colours are blended towards.
var (
	refBackground = rgb(49, 51, 56)
	refSidebar    = rgb(43, 45, 49)
	refGuildRail  = rgb(30, 31, 34)
	refCard       = rgb(56, 58, 64)
	refAccent     = rgb(88, 101, 242)
	white         = rgb(255, 255, 255)
)

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 255} }

// withAlpha returns c at the given opacity, clamped to 0..255.
func withAlpha(c color.RGBA, alpha int) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(clamp(alpha))}
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return v
}

// mix blends base towards target by weight (0 keeps base, 1 is target).
func mix(base, target color.RGBA, weight float64) color.RGBA {
	weight = math.Max(0, math.Min(1, weight))
	ch := func(b, t uint8) uint8 {
		return uint8(clamp(int(float64(b)*(1-weight) + float64(t)*weight)))
	}
	return rgb(ch(base.R, target.R), ch(base.G, target.G), ch(base.B, target.B))
}

// adjust shifts every channel by delta.
func adjust(c color.RGBA, delta int) color.RGBA {
	return rgb(uint8(clamp(int(c.R)+delta)), uint8(clamp(int(c.G)+delta)), uint8(clamp(int(c.B)+delta)))
}

// relativeLuminance is the WCAG relative luminance of c.
func relativeLuminance(c color.RGBA) float64 {
	channel := func(v uint8) float64 {
		f := float64(v) / 255
		if f <= 0.03928 {
			return f / 12.92
		}
		return math.Pow((f+0.055)/1.055, 2.4)
	}
	return 0.2126*channel(c.R) + 0.7152*channel(c.G) + 0.0722*channel(c.B)
}

const darkThreshold = 0.42

func isDark(c color.RGBA) bool { return relativeLuminance(c) < darkThreshold }

// bestTextColor picks a primary text colour readable on background.
func bestTextColor(background color.RGBA) color.RGBA {
	if isDark(background) {
		return rgb(242, 245, 252)
	}
	return rgb(22, 24, 31)
}

// bestMutedTextColor picks a secondary text colour readable on background.
func bestMutedTextColor(background color.RGBA) color.RGBA {
	if isDark(background) {
		return rgb(186, 191, 203)
	}
	return rgb(88, 93, 106)
}

// parseHex reads #RRGGBB (or RRGGBB). Anything else yields fallback.
func parseHex(s string, fallback color.RGBA) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return rgb(uint8(v>>16), uint8(v>>8), uint8(v))
}

// stylePreset controls how far theme colours are pulled towards the
// reference palette and how strong the decorative overlays are.
type stylePreset struct {
	backgroundBlend float64
	sidebarBlend    float64
	guildRailBlend  float64
	cardBlend       float64
	accentBlend     float64
	chatGradient    int
	sidebarGradient int
	topOverlay      int
	guildHeader     int
}

var stylePresets = map[string]stylePreset{
	repository.LayoutGlass:   {0.42, 0.5, 0.58, 0.4, 0.35, 52, 38, 48, 28},
	repository.LayoutUltra:   {0.65, 0.75, 0.85, 0.60, 0.50, 70, 50, 60, 40},
	repository.LayoutClassic: {0.2, 0.26, 0.32, 0.24, 0.12, 20, 14, 20, 10},
	repository.LayoutDiscord: {0.58, 0.62, 0.75, 0.55, 0.45, 36, 24, 32, 18},
}

func presetFor(layout string) stylePreset {
	if p, ok := stylePresets[strings.ToLower(strings.TrimSpace(layout))]; ok {
		return p
	}
	return stylePresets[repository.LayoutDiscord]
}

// palette is the resolved set of colours for one composition.
type palette struct {
	background, sidebar, rail, card, accent color.RGBA
	message                                  color.RGBA

	text, textMuted               color.RGBA
	sidebarText, sidebarTextMuted color.RGBA
	cardText, cardTextMuted       color.RGBA
}

func newPalette(theme repository.GuildTheme, style stylePreset) palette {
	bg := parseHex(theme.Background, rgb(0x1E, 0x1F, 0x22))
	side := parseHex(theme.Sidebar, rgb(0x2B, 0x2D, 0x31))
	msg := parseHex(theme.Message, rgb(0x31, 0x33, 0x38))
	primary := parseHex(theme.Primary, rgb(0x58, 0x65, 0xF2))

	p := palette{
		background: mix(bg, refBackground, style.backgroundBlend),
		sidebar:    mix(side, refSidebar, style.sidebarBlend),
		rail:       mix(side, refGuildRail, style.guildRailBlend),
		card:       mix(msg, refCard, style.cardBlend),
		accent:     mix(primary, refAccent, style.accentBlend),
		message:    msg,
	}
	p.text, p.textMuted = bestTextColor(p.background), bestMutedTextColor(p.background)
	p.sidebarText, p.sidebarTextMuted = bestTextColor(p.sidebar), bestMutedTextColor(p.sidebar)
	p.cardText, p.cardTextMuted = bestTextColor(p.card), bestMutedTextColor(p.card)
	return p
}
