package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/gin-gonic/gin"
)

const eventComponent = "event_controller"

// ChannelUpdateSink receives guild-wide change notifications that do not
// go through the directory.
type ChannelUpdateSink interface {
	EnqueueChannelUpdate(guildID string)
}

// EventController is the ingress for chat activity. Messages and channel
// changes are written to the directory, which notifies the coalescer.
type EventController struct {
	dir  directory.ChatDirectory
	sink ChannelUpdateSink
}

func NewEventController(dir directory.ChatDirectory, sink ChannelUpdateSink) *EventController {
	return &EventController{dir: dir, sink: sink}
}

type messageEvent struct {
	ChannelID string    `json:"channelId" binding:"required"`
	Author    string    `json:"author" binding:"required"`
	Content   string    `json:"content" binding:"required"`
	Timestamp time.Time `json:"timestamp"`
}

type channelUpdateEvent struct {
	GuildID string             `json:"guildId" binding:"required"`
	Channel *directory.Channel `json:"channel"`
}

// Message handles POST /events/message.
func (ec *EventController) Message(c *gin.Context) {
	var ev messageEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := ec.dir.PostMessage(c.Request.Context(), directory.Message{
		ChannelID: ev.ChannelID,
		Author:    ev.Author,
		Content:   ev.Content,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		writeError(c, eventComponent, "message on "+ev.ChannelID, err)
		return
	}
	logger.WithComponent(eventComponent).Tracef("message accepted on %s", ev.ChannelID)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// ChannelUpdate handles POST /events/channel-update. With a channel in the
// body the channel is upserted; without one the guild is only invalidated.
func (ec *EventController) ChannelUpdate(c *gin.Context) {
	var ev channelUpdateEvent
	if err := c.ShouldBindJSON(&ev); err != nil || strings.TrimSpace(ev.GuildID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if ev.Channel != nil {
		ch := *ev.Channel
		ch.GuildID = ev.GuildID
		if err := ec.dir.UpsertChannel(c.Request.Context(), ch); err != nil {
			writeError(c, eventComponent, "channel update on "+ev.GuildID, err)
			return
		}
	} else {
		ec.sink.EnqueueChannelUpdate(ev.GuildID)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
