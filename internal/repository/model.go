package repository

import (
	"encoding/json"
	"reflect"
	"strings"
)

// TileSize is the edge of one display tile in pixels.
const TileSize = 128

// Layout presets for a guild theme.
const (
	LayoutDiscord = "discord"
	LayoutGlass   = "glass"
	LayoutUltra   = "ultra"
	LayoutClassic = "classic"
)

// LayoutCycle is the order used when cycling a guild's style.
var LayoutCycle = []string{LayoutDiscord, LayoutGlass, LayoutUltra, LayoutClassic}

// Metadata holds versioning info for optimistic locking.
type Metadata struct {
	LastUpdate int64 `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// DataDocument represents the persisted JSON structure.
type DataDocument struct {
	Metadata Metadata      `json:"metadata"`
	Screens  []ScreenState `json:"screens" validate:"dive"`
	Themes   []GuildTheme  `json:"themes" validate:"dive"`
}

// ScreenState is one physical tiled display.
// Width and Height are measured in tiles.
type ScreenState struct {
	ID                 string    `json:"id" validate:"required"`
	Width              int       `json:"width" validate:"min=1,max=16"`
	Height             int       `json:"height" validate:"min=1,max=16"`
	GuildID            string    `json:"guildId,omitempty"`
	ChannelID          string    `json:"channelId,omitempty"`
	SecondaryGuildID   string    `json:"secondaryGuildId,omitempty"`
	SecondaryChannelID string    `json:"secondaryChannelId,omitempty"`
	LockedGuildID      string    `json:"lockedGuildId,omitempty"`
	LockedChannelID    string    `json:"lockedChannelId,omitempty"`
	ShowMemberList     bool      `json:"showMemberList"`
	Placement          Placement `json:"placement"`
}

// Placement is where the screen hangs in the host world. It is carried
// through untouched for whoever positions the display.
type Placement struct {
	World  string `json:"world"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	Facing string `json:"facing" validate:"omitempty,oneof=north south east west up down"`
}

// PixelWidth is the width of the full composed image.
func (s ScreenState) PixelWidth() int { return s.Width * TileSize }

// PixelHeight is the height of the full composed image.
func (s ScreenState) PixelHeight() int { return s.Height * TileSize }

// TileCount is Width*Height.
func (s ScreenState) TileCount() int { return s.Width * s.Height }

// Locked reports whether the screen is pinned to a channel.
func (s ScreenState) Locked() bool { return s.LockedChannelID != "" }

// GuildTheme holds the per-guild colours and style preset.
type GuildTheme struct {
	GuildID           string `json:"guildId" validate:"required"`
	Primary           string `json:"primary" validate:"omitempty,hexcolor"`
	Background        string `json:"background" validate:"omitempty,hexcolor"`
	Sidebar           string `json:"sidebar" validate:"omitempty,hexcolor"`
	Message           string `json:"message" validate:"omitempty,hexcolor"`
	ShowVoiceChannels *bool  `json:"showVoiceChannels"`
	Layout            string `json:"layout" validate:"omitempty,oneof=discord glass ultra classic"`
}

// DefaultTheme is used for guilds with no stored theme.
func DefaultTheme(guildID string) GuildTheme {
	t := GuildTheme{GuildID: guildID}
	t.applyDefaults()
	return t
}

// ShowsVoice reports whether voice channels are listed regardless of permissions.
func (t GuildTheme) ShowsVoice() bool {
	return t.ShowVoiceChannels == nil || *t.ShowVoiceChannels
}

// NextLayout returns the preset following current in LayoutCycle.
func NextLayout(current string) string {
	current = strings.ToLower(strings.TrimSpace(current))
	for i, l := range LayoutCycle {
		if l == current {
			return LayoutCycle[(i+1)%len(LayoutCycle)]
		}
	}
	return LayoutCycle[0]
}

// ApplyDefaults sets fallback values after decode.
func (d *DataDocument) ApplyDefaults() {
	if d.Screens == nil {
		d.Screens = []ScreenState{}
	}
	if d.Themes == nil {
		d.Themes = []GuildTheme{}
	}
	for i := range d.Screens {
		d.Screens[i].applyDefaults()
	}
	for i := range d.Themes {
		d.Themes[i].applyDefaults()
	}
}

func (s *ScreenState) applyDefaults() {
	if s.Width < 1 {
		s.Width = 1
	}
	if s.Height < 1 {
		s.Height = 1
	}
	s.Placement.Facing = strings.ToLower(s.Placement.Facing)
}

func (t *GuildTheme) applyDefaults() {
	if t.Primary == "" {
		t.Primary = "#5865F2"
	}
	if t.Background == "" {
		t.Background = "#1E1F22"
	}
	if t.Sidebar == "" {
		t.Sidebar = "#2B2D31"
	}
	if t.Message == "" {
		t.Message = "#313338"
	}
	if t.ShowVoiceChannels == nil {
		v := true
		t.ShowVoiceChannels = &v
	}
	t.Layout = strings.ToLower(strings.TrimSpace(t.Layout))
	if t.Layout == "" {
		t.Layout = LayoutDiscord
	}
}

// AreDataDocumentsEqual compares two DataDocuments ignoring Metadata.
func AreDataDocumentsEqual(a, b *DataDocument) bool {
	if a == nil || b == nil {
		return a == b
	}

	aBytes, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bBytes, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aMap, bMap map[string]interface{}
	if err := json.Unmarshal(aBytes, &aMap); err != nil {
		return false
	}
	if err := json.Unmarshal(bBytes, &bMap); err != nil {
		return false
	}

	delete(aMap, "metadata")
	delete(bMap, "metadata")

	return reflect.DeepEqual(aMap, bMap)
}
