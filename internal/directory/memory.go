package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryDirectory keeps chat data in process memory with a bounded message
// history per channel.
type MemoryDirectory struct {
	mu        sync.RWMutex
	history   int
	guilds    []Guild
	channels  map[string][]Channel // by guild
	members   map[string][]Member  // by guild
	messages  map[string][]Message // by channel, oldest first
	listeners []Listener
}

func NewMemoryDirectory(history int, seedDemo bool) *MemoryDirectory {
	if history < 1 {
		history = 50
	}
	d := &MemoryDirectory{
		history:  history,
		channels: make(map[string][]Channel),
		members:  make(map[string][]Member),
		messages: make(map[string][]Message),
	}
	if seedDemo {
		data := demo(time.Now())
		d.guilds = append(d.guilds, data.guilds...)
		for _, ch := range data.channels {
			d.channels[ch.GuildID] = append(d.channels[ch.GuildID], ch)
		}
		for _, m := range data.members {
			d.members[m.GuildID] = append(d.members[m.GuildID], m)
		}
		for _, msg := range data.messages {
			d.appendLocked(msg)
		}
	}
	return d
}

func (d *MemoryDirectory) Guilds(ctx context.Context) ([]Guild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Guild(nil), d.guilds...), nil
}

// AddGuild registers a guild, replacing one with the same id.
func (d *MemoryDirectory) AddGuild(g Guild) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.guilds {
		if d.guilds[i].ID == g.ID {
			d.guilds[i] = g
			return
		}
	}
	d.guilds = append(d.guilds, g)
}

// SetMembers replaces the member list of a guild.
func (d *MemoryDirectory) SetMembers(guildID string, members []Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := make([]Member, len(members))
	for i, m := range members {
		m.GuildID = guildID
		m.Roles = append([]string(nil), m.Roles...)
		copied[i] = m
	}
	d.members[guildID] = copied
}

func (d *MemoryDirectory) Channels(ctx context.Context, guildID string) ([]Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := append([]Channel(nil), d.channels[guildID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (d *MemoryDirectory) Members(ctx context.Context, guildID string, limit int) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	src := d.members[guildID]
	if limit >= 0 && limit < len(src) {
		src = src[:limit]
	}
	out := make([]Member, len(src))
	for i, m := range src {
		m.Roles = append([]string(nil), m.Roles...)
		out[i] = m
	}
	return out, nil
}

func (d *MemoryDirectory) LatestMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	msgs := d.messages[channelID]
	n := len(msgs)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]Message, 0, n)
	for i := len(msgs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (d *MemoryDirectory) PostMessage(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := normalizeMessage(msg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	if !d.knownChannelLocked(msg.ChannelID) {
		d.mu.Unlock()
		return ErrUnknownChannel
	}
	d.appendLocked(msg)
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	notifyMessage(listeners, msg.ChannelID)
	return nil
}

func (d *MemoryDirectory) UpsertChannel(ctx context.Context, ch Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch.ID = strings.TrimSpace(ch.ID)
	ch.GuildID = strings.TrimSpace(ch.GuildID)
	if ch.ID == "" || ch.GuildID == "" {
		return fmt.Errorf("%w: channel id and guild id are required", ErrInvalidInput)
	}
	d.mu.Lock()
	if !d.knownGuildLocked(ch.GuildID) {
		d.mu.Unlock()
		return ErrUnknownGuild
	}
	list := d.channels[ch.GuildID]
	replaced := false
	for i := range list {
		if list[i].ID == ch.ID {
			list[i] = ch
			replaced = true
			break
		}
	}
	if !replaced {
		d.channels[ch.GuildID] = append(list, ch)
	}
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	notifyChannelUpdate(listeners, ch.GuildID)
	return nil
}

func (d *MemoryDirectory) RegisterListener(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *MemoryDirectory) Close() error { return nil }

func (d *MemoryDirectory) appendLocked(msg Message) {
	msgs := append(d.messages[msg.ChannelID], msg)
	if over := len(msgs) - d.history; over > 0 {
		msgs = append([]Message(nil), msgs[over:]...)
	}
	d.messages[msg.ChannelID] = msgs
}

func (d *MemoryDirectory) knownGuildLocked(guildID string) bool {
	for _, g := range d.guilds {
		if g.ID == guildID {
			return true
		}
	}
	return false
}

func (d *MemoryDirectory) knownChannelLocked(channelID string) bool {
	for _, list := range d.channels {
		for _, ch := range list {
			if ch.ID == channelID {
				return true
			}
		}
	}
	return false
}
