package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownGuild       = errors.New("unknown guild")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrChannelNotLinkable = errors.New("channel cannot be shown on a screen")
	ErrInvalidInput       = errors.New("invalid directory input")
)

type Guild struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"iconUrl,omitempty"`
}

type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guildId"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Voice    bool   `json:"voice"`
	CanView  bool   `json:"canView"`
	CanTalk  bool   `json:"canTalk"`
	Position int    `json:"position"`
}

type Member struct {
	ID        string   `json:"id"`
	GuildID   string   `json:"guildId"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
}

type Message struct {
	ChannelID string    `json:"channelId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener is notified after the directory accepts a change. Calls happen
// outside any directory lock and must not block.
type Listener interface {
	OnMessage(channelID string)
	OnChannelUpdate(guildID string)
}

// ChatDirectory is the source of guilds, channels, members and messages.
type ChatDirectory interface {
	Guilds(ctx context.Context) ([]Guild, error)
	Channels(ctx context.Context, guildID string) ([]Channel, error)
	Members(ctx context.Context, guildID string, limit int) ([]Member, error)
	// LatestMessages returns up to limit messages, newest first.
	LatestMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	PostMessage(ctx context.Context, msg Message) error
	UpsertChannel(ctx context.Context, ch Channel) error
	RegisterListener(l Listener)
	Close() error
}

// ValidateLink checks that channelID belongs to guildID and can be shown.
func ValidateLink(ctx context.Context, dir ChatDirectory, guildID, channelID string) (Channel, error) {
	guilds, err := dir.Guilds(ctx)
	if err != nil {
		return Channel{}, fmt.Errorf("list guilds: %w", err)
	}
	found := false
	for _, g := range guilds {
		if g.ID == guildID {
			found = true
			break
		}
	}
	if !found {
		return Channel{}, fmt.Errorf("%w: %s", ErrUnknownGuild, guildID)
	}

	channels, err := dir.Channels(ctx, guildID)
	if err != nil {
		return Channel{}, fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.ID != channelID {
			continue
		}
		if ch.Voice || !ch.CanView {
			return Channel{}, fmt.Errorf("%w: %s", ErrChannelNotLinkable, channelID)
		}
		return ch, nil
	}
	return Channel{}, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
}

func normalizeMessage(msg Message) (Message, error) {
	msg.ChannelID = strings.TrimSpace(msg.ChannelID)
	msg.Author = strings.TrimSpace(msg.Author)
	if msg.ChannelID == "" {
		return msg, fmt.Errorf("%w: message channel is required", ErrInvalidInput)
	}
	if msg.Author == "" {
		return msg, fmt.Errorf("%w: message author is required", ErrInvalidInput)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg, nil
}

func notifyMessage(listeners []Listener, channelID string) {
	for _, l := range listeners {
		l.OnMessage(channelID)
	}
}

func notifyChannelUpdate(listeners []Listener, guildID string) {
	for _, l := range listeners {
		l.OnChannelUpdate(guildID)
	}
}
