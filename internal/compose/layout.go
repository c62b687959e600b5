package compose

import (
	"strings"

	"github.com/bassista/go_chatwall/internal/config"
	"github.com/bassista/go_chatwall/internal/directory"
)

const (
	topBarHeight    = 24
	inputHeight     = 24
	maxCategoryRows = 9
	messageLimit    = 14
	memberLimit     = 40
	memberPanelRows = 12
	minMemberPanelW = 512
)

// layout holds the column geometry of a screen in output pixels.
type layout struct {
	width, height  int
	railWidth      int
	channelWidth   int
	memberWidth    int
	chatX          int
	chatWidth      int
	canShowMembers bool
	showMembers    bool
}

func computeLayout(width, height int, memberFlag bool) layout {
	l := layout{width: width, height: height}
	l.canShowMembers = width >= minMemberPanelW
	l.showMembers = l.canShowMembers && memberFlag
	l.railWidth = max(18, int(float64(width)*0.07))
	l.channelWidth = max(80, int(float64(width)*0.25))
	if l.showMembers {
		l.memberWidth = max(76, int(float64(width)*0.2))
	}
	l.chatX = l.railWidth + l.channelWidth
	l.chatWidth = max(0, width-l.chatX-l.memberWidth)
	return l
}

// qualityScale is the integer supersampling factor for a screen of
// totalTiles tiles in the given performance mode.
func qualityScale(totalTiles int, mode string) int {
	switch mode {
	case config.PerformanceQuality:
		switch {
		case totalTiles <= 4:
			return 4
		case totalTiles <= 9:
			return 3
		case totalTiles <= 16:
			return 2
		}
		return 1
	case config.PerformancePerformance:
		if totalTiles <= 9 {
			return 2
		}
		return 1
	default:
		switch {
		case totalTiles <= 4:
			return 3
		case totalTiles <= 16:
			return 2
		}
		return 1
	}
}

// resolveGuild returns the guild with id guildID, else the first guild.
func resolveGuild(guilds []directory.Guild, guildID string) (directory.Guild, bool) {
	for _, g := range guilds {
		if g.ID == guildID {
			return g, true
		}
	}
	if len(guilds) > 0 {
		return guilds[0], true
	}
	return directory.Guild{}, false
}

// selectChannel returns the channel with id channelID, else the first
// viewable text channel.
func selectChannel(channels []directory.Channel, channelID string) (directory.Channel, bool) {
	if channelID != "" {
		for _, ch := range channels {
			if ch.ID == channelID {
				return ch, true
			}
		}
	}
	for _, ch := range channels {
		if !ch.Voice && ch.CanView {
			return ch, true
		}
	}
	return directory.Channel{}, false
}

type channelGroup struct {
	title         string
	uncategorized bool
	entries       []directory.Channel
}

// groupChannels filters the visible channels and groups them by category:
// uncategorized first, then categories in the order they first appear.
// Each group keeps at most maxCategoryRows entries.
func groupChannels(channels []directory.Channel, showVoice bool) []channelGroup {
	var loose []directory.Channel
	var order []string
	byCategory := make(map[string][]directory.Channel)

	for _, ch := range channels {
		visible := ch.CanView
		if ch.Voice {
			visible = showVoice
		}
		if !visible {
			continue
		}
		cat := strings.TrimSpace(ch.Category)
		if cat == "" {
			loose = append(loose, ch)
			continue
		}
		if _, seen := byCategory[cat]; !seen {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], ch)
	}

	var groups []channelGroup
	if len(loose) > 0 {
		groups = append(groups, channelGroup{uncategorized: true, entries: capRows(loose)})
	}
	for _, cat := range order {
		groups = append(groups, channelGroup{title: cat, entries: capRows(byCategory[cat])})
	}
	return groups
}

func capRows(list []directory.Channel) []directory.Channel {
	if len(list) > maxCategoryRows {
		return list[:maxCategoryRows]
	}
	return list
}

func channelPrefix(ch directory.Channel) string {
	switch {
	case ch.Voice:
		return ">"
	case ch.CanTalk:
		return "#"
	}
	return "-"
}

// bubble is one message card positioned in the chat column.
type bubble struct {
	message directory.Message
	lines   []string
	top     int
	height  int
	index   int
}

// layoutBubbles stacks messages (newest first) upward from areaBottom and
// stops at the first one that would cross areaTop.
func layoutBubbles(messages []directory.Message, wrap func(string) []string, maxLines, areaTop, areaBottom int) []bubble {
	var out []bubble
	cursor := areaBottom
	for i, msg := range messages {
		content := msg.Content
		if strings.TrimSpace(content) == "" {
			content = " "
		}
		lines := wrap(content)
		if len(lines) > maxLines {
			lines = lines[:maxLines]
		}
		height := 16 + len(lines)*11 + 8
		top := cursor - height
		if top < areaTop {
			break
		}
		out = append(out, bubble{message: msg, lines: lines, top: top, height: height, index: i})
		cursor = top - 6
	}
	return out
}
