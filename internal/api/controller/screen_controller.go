package controller

import (
	"net/http"
	"strings"

	"github.com/bassista/go_chatwall/internal/cache"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const screenComponent = "screen_controller"

// ScreenController handles screen endpoints. Listing, creation and removal
// go through the generic CRUD controller.
type ScreenController struct {
	crud  *CrudController[repository.ScreenState]
	store cache.ScreenStore
	dir   directory.ChatDirectory
}

func NewScreenController(store cache.ScreenStore, dir directory.ChatDirectory) *ScreenController {
	return &ScreenController{
		crud: &CrudController[repository.ScreenState]{
			Service:   &ScreenCrudService{Store: store, Directory: dir},
			Validator: &ScreenCrudValidator{validator: validator.New()},
			Component: screenComponent,
		},
		store: store,
		dir:   dir,
	}
}

type linkRequest struct {
	GuildID   string `json:"guildId" binding:"required"`
	ChannelID string `json:"channelId" binding:"required"`
	Secondary bool   `json:"secondary"`
}

type sizeRequest struct {
	Width  int `json:"width" binding:"min=1,max=16"`
	Height int `json:"height" binding:"min=1,max=16"`
}

// AllScreens handles GET /screens.
func (sc *ScreenController) AllScreens(c *gin.Context) {
	logger.WithComponent(screenComponent).Debug("GET /screens handler called")
	sc.crud.GetAll(c)
}

// GetScreen handles GET /screens/:id.
func (sc *ScreenController) GetScreen(c *gin.Context) {
	screen, ok := sc.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	c.JSON(http.StatusOK, screen)
}

// CreateScreen handles POST /screens.
func (sc *ScreenController) CreateScreen(c *gin.Context) {
	logger.WithComponent(screenComponent).Debug("POST /screens handler called")
	sc.crud.Create(c)
}

// DeleteScreen handles DELETE /screens/:id.
func (sc *ScreenController) DeleteScreen(c *gin.Context) {
	logger.WithComponent(screenComponent).Debugf("DELETE /screens/%s handler called", c.Param("id"))
	sc.crud.Delete(c)
}

// LinkScreen handles PUT /screens/:id/link.
func (sc *ScreenController) LinkScreen(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := directory.ValidateLink(c.Request.Context(), sc.dir, req.GuildID, req.ChannelID); err != nil {
		writeError(c, screenComponent, "link "+c.Param("id"), err)
		return
	}
	sc.respond(c, "link")(sc.store.LinkScreen(c.Param("id"), req.GuildID, req.ChannelID, req.Secondary))
}

// LockChannel handles POST /screens/:id/lock.
func (sc *ScreenController) LockChannel(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := directory.ValidateLink(c.Request.Context(), sc.dir, req.GuildID, req.ChannelID); err != nil {
		writeError(c, screenComponent, "lock "+c.Param("id"), err)
		return
	}
	sc.respond(c, "lock")(sc.store.LockChannel(c.Param("id"), req.GuildID, req.ChannelID))
}

// UnlockChannel handles POST /screens/:id/unlock.
func (sc *ScreenController) UnlockChannel(c *gin.Context) {
	sc.respond(c, "unlock")(sc.store.UnlockChannel(c.Param("id")))
}

// ToggleMemberList handles POST /screens/:id/members/toggle.
func (sc *ScreenController) ToggleMemberList(c *gin.Context) {
	sc.respond(c, "toggle members")(sc.store.ToggleMemberList(c.Param("id")))
}

// MoveScreen handles PUT /screens/:id/position.
func (sc *ScreenController) MoveScreen(c *gin.Context) {
	var placement repository.Placement
	if err := c.ShouldBindJSON(&placement); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	placement.Facing = strings.ToLower(placement.Facing)
	sc.respond(c, "move")(sc.store.MoveScreen(c.Param("id"), placement))
}

// ResizeScreen handles PUT /screens/:id/size.
func (sc *ScreenController) ResizeScreen(c *gin.Context) {
	var req sizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": cache.ErrInvalidSize.Error()})
		return
	}
	sc.respond(c, "resize")(sc.store.ResizeScreen(c.Param("id"), req.Width, req.Height))
}

// MarkDirty handles POST /screens/:id/dirty and forces the next tile
// request to recompose.
func (sc *ScreenController) MarkDirty(c *gin.Context) {
	id := c.Param("id")
	if !sc.store.MarkDirty(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	logger.WithComponent(screenComponent).Debugf("screen %s marked dirty", id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "dirty": true})
}

// respond writes the outcome of a store mutation.
func (sc *ScreenController) respond(c *gin.Context, op string) func(repository.ScreenState, error) {
	return func(screen repository.ScreenState, err error) {
		if err != nil {
			writeError(c, screenComponent, op+" "+c.Param("id"), err)
			return
		}
		logger.WithComponent(screenComponent).Debugf("%s %s succeeded", op, screen.ID)
		c.JSON(http.StatusOK, screen)
	}
}
