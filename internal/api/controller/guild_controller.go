package controller

import (
	"net/http"
	"strings"

	"github.com/bassista/go_chatwall/internal/cache"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/gin-gonic/gin"
)

const guildComponent = "guild_controller"

// GuildController serves guild listings and per-guild styles.
type GuildController struct {
	themes cache.ThemeStore
	dir    directory.ChatDirectory
}

func NewGuildController(themes cache.ThemeStore, dir directory.ChatDirectory) *GuildController {
	return &GuildController{themes: themes, dir: dir}
}

// styleRequest changes a guild style. Cycle moves to the next preset and
// ignores everything else; empty colour fields keep their current value.
type styleRequest struct {
	Layout            string `json:"layout"`
	Cycle             bool   `json:"cycle"`
	Primary           string `json:"primary"`
	Background        string `json:"background"`
	Sidebar           string `json:"sidebar"`
	Message           string `json:"message"`
	ShowVoiceChannels *bool  `json:"showVoiceChannels"`
}

func (r styleRequest) layoutOnly() bool {
	return r.Primary == "" && r.Background == "" && r.Sidebar == "" && r.Message == "" && r.ShowVoiceChannels == nil
}

// AllGuilds handles GET /guilds.
func (gc *GuildController) AllGuilds(c *gin.Context) {
	guilds, err := gc.dir.Guilds(c.Request.Context())
	if err != nil {
		writeError(c, guildComponent, "list guilds", err)
		return
	}
	c.JSON(http.StatusOK, guilds)
}

// Channels handles GET /guilds/:id/channels.
func (gc *GuildController) Channels(c *gin.Context) {
	channels, err := gc.dir.Channels(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, guildComponent, "list channels of "+c.Param("id"), err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

// GetStyle handles GET /guilds/:id/style.
func (gc *GuildController) GetStyle(c *gin.Context) {
	c.JSON(http.StatusOK, gc.themes.Theme(c.Param("id")))
}

// SetStyle handles PUT /guilds/:id/style.
func (gc *GuildController) SetStyle(c *gin.Context) {
	guildID := c.Param("id")
	var req styleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	var (
		theme   repository.GuildTheme
		dirtied int
		err     error
	)
	switch {
	case req.Cycle:
		theme, dirtied, err = gc.themes.CycleGuildLayout(guildID)
	case req.layoutOnly():
		if strings.TrimSpace(req.Layout) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to change"})
			return
		}
		theme, dirtied, err = gc.themes.SetGuildLayout(guildID, req.Layout)
	default:
		theme = gc.themes.Theme(guildID)
		if req.Layout != "" {
			theme.Layout = req.Layout
		}
		if req.Primary != "" {
			theme.Primary = req.Primary
		}
		if req.Background != "" {
			theme.Background = req.Background
		}
		if req.Sidebar != "" {
			theme.Sidebar = req.Sidebar
		}
		if req.Message != "" {
			theme.Message = req.Message
		}
		if req.ShowVoiceChannels != nil {
			theme.ShowVoiceChannels = req.ShowVoiceChannels
		}
		theme, dirtied, err = gc.themes.UpsertTheme(theme)
	}
	if err != nil {
		writeError(c, guildComponent, "set style of "+guildID, err)
		return
	}

	logger.WithComponent(guildComponent).Infof("guild %s style now %s, %d screens dirtied", guildID, theme.Layout, dirtied)
	c.JSON(http.StatusOK, gin.H{"theme": theme, "dirtied": dirtied})
}
