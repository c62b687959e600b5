package compose

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/fetch"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/bassista/go_chatwall/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ThemeSource returns the stored (or default) theme of a guild.
type ThemeSource interface {
	Theme(guildID string) repository.GuildTheme
}

// ImageResolver turns an image URL into a decoded image, or nil.
type ImageResolver interface {
	Resolve(ctx context.Context, rawURL string) image.Image
}

type Options struct {
	PerformanceMode   string
	Location          *time.Location
	AvatarURLTemplate string
	// ImageParallelism bounds concurrent avatar resolutions per composition.
	ImageParallelism int
}

// Compositor draws the chat view of a screen into a full image.
type Compositor struct {
	dir    directory.ChatDirectory
	themes ThemeSource
	images ImageResolver
	opts   Options
	tracer trace.Tracer
}

func NewCompositor(dir directory.ChatDirectory, themes ThemeSource, images ImageResolver, opts Options) *Compositor {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ImageParallelism <= 0 {
		opts.ImageParallelism = 8
	}
	return &Compositor{
		dir:    dir,
		themes: themes,
		images: images,
		opts:   opts,
		tracer: otel.Tracer("github.com/bassista/go_chatwall/internal/compose"),
	}
}

// scene is everything read from the directory for one composition.
type scene struct {
	guild      directory.Guild
	hasGuild   bool
	channels   []directory.Channel
	selected   directory.Channel
	hasChannel bool
	messages   []directory.Message
	members    []directory.Member
	byName     map[string]directory.Member
	images     map[string]image.Image
}

// Compose renders state for locale. Directory failures degrade to an empty
// view; only an invalid geometry is an error.
func (c *Compositor) Compose(ctx context.Context, state repository.ScreenState, locale string) (*render.FullImage, error) {
	if state.Width < 1 || state.Height < 1 {
		return nil, fmt.Errorf("screen %s has invalid size %dx%d", state.ID, state.Width, state.Height)
	}
	ctx, span := c.tracer.Start(ctx, "render.compose", trace.WithAttributes(
		attribute.String("screen.id", state.ID),
		attribute.String("render.locale", locale),
		attribute.Int("screen.tiles", state.TileCount()),
	))
	defer span.End()

	width, height := state.PixelWidth(), state.PixelHeight()
	scale := qualityScale(state.TileCount(), c.opts.PerformanceMode)
	span.SetAttributes(attribute.Int("render.scale", scale))

	sc := c.loadScene(ctx, state)
	theme := c.themes.Theme(sc.guild.ID)
	lay := computeLayout(width, height, state.ShowMemberList)

	cv := newCanvas(width, height, scale)
	defer cv.Close()

	d := &drawer{
		cv:     cv,
		lay:    lay,
		pal:    newPalette(theme, presetFor(theme.Layout)),
		style:  presetFor(theme.Layout),
		theme:  theme,
		labels: newLabeler(locale),
		scene:  sc,
		loc:    c.opts.Location,
		avatar: c.opts.AvatarURLTemplate,
	}
	d.draw()

	img := cv.img
	if scale > 1 {
		img = downscale(cv.img, width, height)
	}
	return render.NewFullImage(img), nil
}

func (c *Compositor) loadScene(ctx context.Context, state repository.ScreenState) scene {
	log := logger.WithComponent("compose")
	var sc scene

	guilds, err := c.dir.Guilds(ctx)
	if err != nil {
		log.Warnf("list guilds for screen %s: %v", state.ID, err)
	}
	sc.guild, sc.hasGuild = resolveGuild(guilds, state.GuildID)
	if sc.hasGuild {
		if sc.channels, err = c.dir.Channels(ctx, sc.guild.ID); err != nil {
			log.Warnf("list channels of %s: %v", sc.guild.ID, err)
		}
		if sc.members, err = c.dir.Members(ctx, sc.guild.ID, memberLimit); err != nil {
			log.Warnf("list members of %s: %v", sc.guild.ID, err)
		}
	}
	sc.selected, sc.hasChannel = selectChannel(sc.channels, state.ChannelID)
	if sc.hasChannel {
		if sc.messages, err = c.dir.LatestMessages(ctx, sc.selected.ID, messageLimit); err != nil {
			log.Warnf("latest messages of %s: %v", sc.selected.ID, err)
		}
	}

	sc.byName = make(map[string]directory.Member, len(sc.members))
	for _, m := range sc.members {
		key := strings.ToLower(m.Name)
		if _, dup := sc.byName[key]; !dup {
			sc.byName[key] = m
		}
	}
	sc.images = c.resolveImages(ctx, c.imageURLs(sc, state))
	return sc
}

// imageURLs lists every remote image the view may draw.
func (c *Compositor) imageURLs(sc scene, state repository.ScreenState) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	add(sc.guild.IconURL)
	for _, msg := range sc.messages {
		add(avatarFor(sc.byName, c.opts.AvatarURLTemplate, msg.Author))
	}
	if state.ShowMemberList && state.PixelWidth() >= minMemberPanelW {
		for i, m := range sc.members {
			if i == memberPanelRows {
				break
			}
			add(m.AvatarURL)
		}
	}
	return urls
}

// avatarFor prefers the avatar of a known member with that name and falls
// back to the external template.
func avatarFor(byName map[string]directory.Member, template, author string) string {
	if m, ok := byName[strings.ToLower(author)]; ok {
		return m.AvatarURL
	}
	return fetch.AvatarURL(template, author)
}

// resolveImages fetches urls concurrently. Each lookup is bounded by the
// resolver's own timeout, so the whole step waits roughly one timeout.
func (c *Compositor) resolveImages(ctx context.Context, urls []string) map[string]image.Image {
	out := make(map[string]image.Image, len(urls))
	if c.images == nil || len(urls) == 0 {
		return out
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ImageParallelism)
	for _, u := range urls {
		g.Go(func() error {
			if img := c.images.Resolve(gctx, u); img != nil {
				mu.Lock()
				out[u] = img
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// drawer paints one composition.
type drawer struct {
	cv     *canvas
	lay    layout
	pal    palette
	style  stylePreset
	theme  repository.GuildTheme
	labels labeler
	scene  scene
	loc    *time.Location
	avatar string
}

func whiteA(a int) color.NRGBA { return color.NRGBA{R: 255, G: 255, B: 255, A: uint8(clamp(a))} }

func blackA(a int) color.NRGBA { return color.NRGBA{A: uint8(clamp(a))} }

func (d *drawer) draw() {
	d.drawChrome()
	d.drawGuildHeader()
	d.drawChannelList()
	d.drawTopBar()
	d.drawMessages()
	d.drawInput()
	if d.lay.showMembers {
		d.drawMemberPanel()
	}
	d.drawFrame()
}

func (d *drawer) drawChrome() {
	l, p, cv := d.lay, d.pal, d.cv
	cv.fillRect(0, 0, l.width, l.height, p.background)
	cv.fillRect(0, 0, l.railWidth, l.height, p.rail)
	cv.fillRect(l.railWidth, 0, l.channelWidth, l.height, p.sidebar)
	cv.fillRect(l.chatX, 0, l.chatWidth, topBarHeight, adjust(p.background, -14))
	cv.fillRect(l.chatX, topBarHeight, l.chatWidth, l.height-topBarHeight, p.background)
	cv.verticalGradient(l.chatX, topBarHeight, l.chatWidth, l.height-topBarHeight, adjust(p.background, 6), p.background, d.style.chatGradient)
	cv.verticalGradient(l.chatX, topBarHeight, l.chatWidth, max(1, l.height-topBarHeight), mix(p.accent, white, 0.2), p.background, 16)

	if l.showMembers {
		cv.fillRect(l.width-l.memberWidth, 0, l.memberWidth, l.height, adjust(p.sidebar, -6))
	}
	cv.verticalGradient(l.railWidth, 0, l.channelWidth, l.height, adjust(p.sidebar, 8), p.sidebar, d.style.sidebarGradient)

	cv.fillRoundRect(l.chatX+4, topBarHeight+6, l.chatWidth-8, 18, 8, withAlpha(adjust(p.background, 9), d.style.topOverlay))
	cv.fillRoundRect(l.railWidth+6, 4, l.channelWidth-12, 18, 8, whiteA(d.style.guildHeader))

	cv.vLine(l.railWidth, 0, l.height, whiteA(22))
	cv.vLine(l.chatX, 0, l.height, whiteA(22))
	cv.hLine(l.chatX, l.chatX+l.chatWidth, topBarHeight-1, whiteA(28))
	if l.showMembers {
		cv.vLine(l.width-l.memberWidth, 0, l.height, whiteA(28))
	}
}

func (d *drawer) guildName() string {
	if d.scene.hasGuild {
		return d.scene.guild.Name
	}
	return d.labels.get("discord-disconnected")
}

func (d *drawer) drawGuildHeader() {
	l, cv := d.lay, d.cv
	name := truncate(d.guildName(), 20)
	cv.text(name, l.railWidth+8, 17, 11, true, blackA(80))
	cv.text(name, l.railWidth+8, 16, 11, true, d.pal.sidebarText)

	size := max(10, l.railWidth-8)
	x := (l.railWidth - size) / 2
	y := 8
	cv.softShadow(x, y, size, size, 8)
	if icon := d.scene.images[d.scene.guild.IconURL]; icon != nil && d.scene.hasGuild {
		cv.circleImage(icon, x, y, size)
		cv.strokeCircle(x, y, size, whiteA(70))
		return
	}
	cv.fillRoundRect(x, y, size, size, 6, d.pal.accent)
	cv.text(initials(d.guildName(), 2), x+2, y+size-3, 8, true, white)
}

func (d *drawer) drawChannelList() {
	l, p, cv := d.lay, d.pal, d.cv
	y := 34
	for _, group := range groupChannels(d.scene.channels, d.theme.ShowsVoice()) {
		title := group.title
		if group.uncategorized {
			title = d.labels.get("uncategorized")
		}
		cv.text(truncate(strings.ToUpper(normalizeUIText(title)), 16), l.railWidth+8, y, 9, true, p.sidebarTextMuted)
		cv.hLine(l.railWidth+8, l.railWidth+l.channelWidth-10, y+3, whiteA(28))
		y += 12

		for _, ch := range group.entries {
			selected := d.scene.hasChannel && ch.ID == d.scene.selected.ID
			if selected {
				cv.softShadow(l.railWidth+6, y-10, l.channelWidth-12, 14, 6)
				cv.fillRoundRect(l.railWidth+6, y-10, l.channelWidth-12, 14, 6, adjust(p.card, 6))
				cv.fillRoundRect(l.railWidth+6, y-10, 3, 14, 3, p.accent)
			}
			col := p.sidebarTextMuted
			if ch.CanTalk {
				col = p.sidebarText
			}
			label := channelPrefix(ch) + " " + truncate(normalizeUIText(ch.Name), 18)
			cv.text(label, l.railWidth+10, y, 10, selected, col)
			y += 14
		}
		y += 4
	}
}

func (d *drawer) selectedName() string {
	if d.scene.hasChannel {
		return d.scene.selected.Name
	}
	return d.labels.get("unlinked")
}

func (d *drawer) drawTopBar() {
	l, p, cv := d.lay, d.pal, d.cv
	cv.text("# "+truncate(normalizeUIText(d.selectedName()), 24), l.chatX+8, 16, 11, true, p.text)

	summary := d.labels.get("no-messages")
	if n := len(d.scene.messages); n > 0 {
		summary = strings.TrimSpace(strconv.Itoa(n) + " " + d.labels.get("messages"))
	}
	cv.text(truncateByWidth(cv.measure(9, false), summary, l.chatWidth/2), l.chatX+8, 23, 9, false, p.textMuted)

	if l.canShowMembers {
		bw := max(76, min(108, l.chatWidth/3))
		bx, by := l.chatX+l.chatWidth-bw-8, 5
		cv.softShadow(bx, by, bw, 14, 7)
		fill := withAlpha(adjust(p.card, 10), 210)
		textCol := p.text
		label := d.labels.get("show-members")
		if l.showMembers {
			fill = withAlpha(adjust(p.accent, -6), 220)
			textCol = bestTextColor(p.accent)
			label = d.labels.get("hide-members")
		}
		cv.fillRoundRect(bx, by, bw, 14, 7, fill)
		cv.text(truncateByWidth(cv.measure(9, true), label, bw-10), bx+5, by+10, 9, true, textCol)
	}
	cv.fillCircle(l.chatX+l.chatWidth-14, 8, 6, p.accent)
}

func (d *drawer) drawMessages() {
	l, p, cv := d.lay, d.pal, d.cv
	areaTop := topBarHeight + 12
	areaBottom := l.height - inputHeight - 12
	bx := l.chatX + 8
	bw := l.chatWidth - 16
	const avatarSize = 14
	contentX := bx + avatarSize + 12
	contentW := bw - (contentX - bx) - 8
	channelName := normalizeUIText(d.selectedName())
	message := parseHex(d.theme.Message, p.card)

	if len(d.scene.messages) <= 2 {
		cv.softShadow(bx, areaTop, bw, 48, 8)
		cv.fillRoundRect(bx, areaTop, bw, 48, 8, withAlpha(adjust(message, 5), 220))
		cv.strokeRoundRect(bx, areaTop, bw, 48, 8, withAlpha(adjust(message, 16), 110))
		cv.text(truncateByWidth(cv.measure(11, true), d.labels.get("welcome-channel", "channel", channelName), bw-16), bx+8, areaTop+18, 11, true, p.cardText)
		cv.text(truncateByWidth(cv.measure(9, false), d.labels.get("welcome-start", "channel", channelName), bw-16), bx+8, areaTop+34, 9, false, p.cardTextMuted)
		areaTop += 48 + 8
	}
	if len(d.scene.messages) == 0 {
		cv.softShadow(bx, areaTop, bw, 36, 8)
		cv.fillRoundRect(bx, areaTop, bw, 36, 8, withAlpha(adjust(message, 2), 200))
		cv.strokeRoundRect(bx, areaTop, bw, 36, 8, withAlpha(adjust(message, 14), 110))
		m := cv.measure(9, false)
		cv.text(truncateByWidth(m, d.labels.get("empty-channel-1"), bw-16), bx+8, areaTop+16, 9, false, p.cardTextMuted)
		cv.text(truncateByWidth(m, d.labels.get("empty-channel-2"), bw-16), bx+8, areaTop+28, 9, false, p.cardTextMuted)
		return
	}

	maxLines := 4
	if l.showMembers {
		maxLines = 3
	}
	body := cv.measure(10, false)
	wrap := func(s string) []string { return wrapText(body, s, contentW) }
	for _, b := range layoutBubbles(d.scene.messages, wrap, maxLines, areaTop, areaBottom) {
		fill := p.card
		if b.index%2 == 0 {
			fill = adjust(p.card, 4)
		}
		cv.softShadow(bx, b.top, bw, b.height, 8)
		cv.fillRoundRect(bx, b.top, bw, b.height, 8, fill)
		cv.strokeRoundRect(bx, b.top, bw, b.height, 8, withAlpha(adjust(fill, 14), 120))
		cv.fillRoundRect(bx+2, b.top+4, 2, b.height-8, 2, withAlpha(adjust(p.accent, 8), 180))

		d.drawAvatar(b.message.Author, avatarFor(d.scene.byName, d.avatar, b.message.Author), bx+6, b.top+5, avatarSize, p.accent)

		cv.text(truncate(b.message.Author, 16), contentX, b.top+14, 10, true, p.cardText)
		ts := b.message.Timestamp.In(d.loc).Format("15:04")
		tw := cv.measure(9, false)(ts)
		cv.text(ts, bx+bw-tw-8, b.top+14, 9, false, p.cardTextMuted)

		lineY := b.top + 26
		for _, line := range b.lines {
			d.drawMessageLine(line, contentX, lineY)
			lineY += 11
		}
	}
}

var (
	mentionBackground = color.NRGBA{R: 246, G: 201, B: 90, A: 120}
	mentionText       = rgb(255, 229, 132)
)

func (d *drawer) drawMessageLine(line string, x, baseline int) {
	m := d.cv.measure(10, false)
	cursor := x
	for _, tok := range tokenizeLine(line) {
		w := m(tok.text)
		switch {
		case tok.space:
		case tok.mention:
			d.cv.fillRoundRect(cursor-1, baseline-9, w+2, 11, 4, mentionBackground)
			d.cv.text(tok.text, cursor, baseline, 10, false, mentionText)
		default:
			d.cv.text(tok.text, cursor, baseline, 10, false, d.pal.cardText)
		}
		cursor += w
	}
}

// drawAvatar draws the image behind url in a circle, or a coloured circle
// with the first letter of name when the image is unavailable.
func (d *drawer) drawAvatar(name, url string, x, y, size int, fallback color.RGBA) {
	if img := d.scene.images[url]; img != nil && url != "" {
		d.cv.circleImage(img, x, y, size)
		d.cv.strokeCircle(x, y, size, whiteA(48))
		return
	}
	d.cv.fillCircle(x, y, size, adjust(fallback, -8))
	d.cv.text(initials(name, 1), x+size/2-3, y+size-4, 8, true, white)
	d.cv.strokeCircle(x, y, size, whiteA(48))
}

func (d *drawer) drawInput() {
	l, p, cv := d.lay, d.pal, d.cv
	x := l.chatX + 8
	y := l.height - inputHeight - 6
	w := l.chatWidth - 16
	canSend := !d.scene.hasChannel || (!d.scene.selected.Voice && d.scene.selected.CanTalk)

	cv.softShadow(x, y, w, inputHeight, 8)
	if canSend {
		cv.fillRoundRect(x, y, w, inputHeight, 8, adjust(p.card, 8))
		cv.strokeRoundRect(x, y, w, inputHeight, 8, withAlpha(adjust(p.card, 20), 90))
		cv.fillCircle(x+8, y+8, 7, withAlpha(p.accent, 180))
	} else {
		cv.fillRoundRect(x, y, w, inputHeight, 8, withAlpha(adjust(p.background, -4), 220))
		cv.strokeRoundRect(x, y, w, inputHeight, 8, withAlpha(adjust(p.sidebar, 12), 120))
		cv.text("+", x+8, y+16, 13, true, rgb(168, 172, 182))
	}

	hint, col := d.labels.get("input-chat"), p.textMuted
	if !canSend {
		hint, col = d.labels.get("input-no-permission"), p.sidebarTextMuted
	}
	cv.text(truncateByWidth(cv.measure(10, false), hint, w-24), x+20, y+15, 10, false, col)
}

func (d *drawer) drawMemberPanel() {
	l, p, cv := d.lay, d.pal, d.cv
	left := l.width - l.memberWidth + 8
	members := d.scene.members
	if len(members) > memberPanelRows {
		members = members[:memberPanelRows]
	}

	cv.text(strings.ToUpper(d.labels.get("members-title")), left, 16, 9, true, p.sidebarText)
	cv.text(d.labels.get("online")+" • "+strconv.Itoa(len(members)), left, 30, 9, false, p.sidebarTextMuted)

	y := 44
	const avatarSize = 16
	nameX := left + avatarSize + 6
	roleW := l.memberWidth - (avatarSize + 20)
	if len(members) == 0 {
		cv.text(d.labels.get("no-members"), left, y, 9, false, p.sidebarTextMuted)
		return
	}
	for _, m := range members {
		if y+20 > l.height-8 {
			break
		}
		d.drawAvatar(m.Name, m.AvatarURL, left, y-11, avatarSize, p.accent)
		cv.text(truncateByWidth(cv.measure(9, true), m.Name, roleW), nameX, y-1, 9, true, p.sidebarText)
		cv.fillCircle(nameX+roleW-5, y-8, 4, withAlpha(p.accent, 220))
		role := d.labels.get("no-role")
		if len(m.Roles) > 0 {
			role = m.Roles[0]
		}
		cv.text(truncateByWidth(cv.measure(8, false), role, roleW), nameX, y+9, 8, false, p.sidebarTextMuted)
		y += 22
	}
}

func (d *drawer) drawFrame() {
	l, cv := d.lay, d.cv
	w, h := max(1, l.width-4), max(1, l.height-4)
	cv.clipRoundFrame(2, 2, w, h, 12)
	cv.strokeRoundRect(2, 2, w, h, 12, whiteA(52))
	cv.strokeRoundRect(3, 3, w-2, h-2, 12, blackA(38))
}
