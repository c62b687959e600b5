package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bassista/go_chatwall/internal/coalescer"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrScreenNotFound = errors.New("screen not found")
	ErrScreenLocked   = errors.New("screen is locked to a channel")
	ErrInvalidSize    = errors.New("screen size must be between 1 and 16 tiles")
	ErrInvalidLayout  = errors.New("unknown layout preset")
	ErrInvalidState   = errors.New("invalid screen or theme")
)

const maxTiles = 16

// validate checks mutations against the same rules the repository applies
// on save, so a bad value is rejected here instead of wedging persistence.
var validate = validator.New()

// Invalidator drops every cached render of a screen.
type Invalidator interface {
	InvalidateScreen(screenID string)
}

// Store keeps the screen document in memory and is the only place screen
// state changes. Every change that affects what a screen shows bumps its
// render version and invalidates its cached renders while the write lock is
// still held, so readers using Snapshot never pair new state with an old
// version or the other way round.
type Store struct {
	mu       sync.RWMutex
	data     repository.DataDocument
	versions *render.Versions
	renders  Invalidator

	changes    uint64 // bumped by every mutation that must reach disk
	persisted  uint64 // value of changes at the last successful save
	lastUpdate int64
}

// NewStore creates a store over doc. renders may be nil.
func NewStore(doc repository.DataDocument, versions *render.Versions, renders Invalidator) *Store {
	doc.ApplyDefaults()
	if versions == nil {
		versions = render.NewVersions()
	}
	return &Store{data: doc, versions: versions, renders: renders, lastUpdate: doc.Metadata.LastUpdate}
}

// Versions exposes the version tracker the store bumps.
func (s *Store) Versions() *render.Versions { return s.versions }

// ---- reads ----

func (s *Store) Get(id string) (repository.ScreenState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return repository.ScreenState{}, false
	}
	return s.data.Screens[i], true
}

func (s *Store) All() []repository.ScreenState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Screens)
}

// Snapshot returns the state of a screen together with the render version
// that state corresponds to.
func (s *Store) Snapshot(id string) (repository.ScreenState, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return repository.ScreenState{}, 0, false
	}
	return s.data.Screens[i], s.versions.Current(id), true
}

// Theme returns the stored theme of guildID or the default theme.
func (s *Store) Theme(guildID string) repository.GuildTheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.themeIndexLocked(guildID); i >= 0 {
		return s.data.Themes[i]
	}
	return repository.DefaultTheme(guildID)
}

func (s *Store) Themes() []repository.GuildTheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Themes)
}

// ---- screen mutations ----

// NewScreen describes a screen to create.
type NewScreen struct {
	Width     int
	Height    int
	GuildID   string
	ChannelID string
	Placement repository.Placement
}

// CreateScreen adds a screen with a fresh id.
func (s *Store) CreateScreen(ns NewScreen) (repository.ScreenState, error) {
	if !validSize(ns.Width, ns.Height) {
		return repository.ScreenState{}, ErrInvalidSize
	}
	screen := repository.ScreenState{
		ID:        uuid.NewString(),
		Width:     ns.Width,
		Height:    ns.Height,
		GuildID:   ns.GuildID,
		ChannelID: ns.ChannelID,
		Placement: ns.Placement,
	}
	screen.Placement.Facing = strings.ToLower(screen.Placement.Facing)
	if err := validate.Struct(screen); err != nil {
		return repository.ScreenState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Screens = append(s.data.Screens, screen)
	s.markDirtyLocked(screen.ID)
	s.changes++
	logger.WithComponent("store").Infof("screen %s created (%dx%d)", screen.ID, screen.Width, screen.Height)
	return screen, nil
}

// RemoveScreen deletes a screen and forgets its version and cached renders.
func (s *Store) RemoveScreen(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrScreenNotFound
	}
	s.data.Screens = slices.Delete(s.data.Screens, i, i+1)
	s.forgetLocked(id)
	s.changes++
	logger.WithComponent("store").Infof("screen %s removed", id)
	return nil
}

// LinkScreen points the primary (or secondary) slot of a screen at a
// channel. Locked screens refuse primary relinks.
func (s *Store) LinkScreen(id, guildID, channelID string, secondary bool) (repository.ScreenState, error) {
	return s.mutate(id, func(sc *repository.ScreenState) error {
		if secondary {
			sc.SecondaryGuildID, sc.SecondaryChannelID = guildID, channelID
			return nil
		}
		if sc.Locked() {
			return ErrScreenLocked
		}
		sc.GuildID, sc.ChannelID = guildID, channelID
		return nil
	})
}

// LockChannel pins a screen to a channel and links it there.
func (s *Store) LockChannel(id, guildID, channelID string) (repository.ScreenState, error) {
	return s.mutate(id, func(sc *repository.ScreenState) error {
		sc.LockedGuildID, sc.LockedChannelID = guildID, channelID
		sc.GuildID, sc.ChannelID = guildID, channelID
		return nil
	})
}

func (s *Store) UnlockChannel(id string) (repository.ScreenState, error) {
	return s.mutate(id, func(sc *repository.ScreenState) error {
		sc.LockedGuildID, sc.LockedChannelID = "", ""
		return nil
	})
}

func (s *Store) ToggleMemberList(id string) (repository.ScreenState, error) {
	return s.mutate(id, func(sc *repository.ScreenState) error {
		sc.ShowMemberList = !sc.ShowMemberList
		return nil
	})
}

// MoveScreen changes where the screen hangs.
func (s *Store) MoveScreen(id string, placement repository.Placement) (repository.ScreenState, error) {
	placement.Facing = strings.ToLower(placement.Facing)
	return s.mutate(id, func(sc *repository.ScreenState) error {
		sc.Placement = placement
		return nil
	})
}

// ResizeScreen changes the tile grid of a screen.
func (s *Store) ResizeScreen(id string, width, height int) (repository.ScreenState, error) {
	if !validSize(width, height) {
		return repository.ScreenState{}, ErrInvalidSize
	}
	return s.mutate(id, func(sc *repository.ScreenState) error {
		sc.Width, sc.Height = width, height
		return nil
	})
}

func (s *Store) mutate(id string, fn func(*repository.ScreenState) error) (repository.ScreenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return repository.ScreenState{}, ErrScreenNotFound
	}
	updated := s.data.Screens[i]
	if err := fn(&updated); err != nil {
		return repository.ScreenState{}, err
	}
	if err := validate.Struct(updated); err != nil {
		return repository.ScreenState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	s.data.Screens[i] = updated
	s.markDirtyLocked(id)
	s.changes++
	return updated, nil
}

// ---- themes ----

// SetGuildLayout stores a style preset for a guild and dirties every screen
// showing it. It returns the theme and the number of screens dirtied.
func (s *Store) SetGuildLayout(guildID, layout string) (repository.GuildTheme, int, error) {
	layout = strings.ToLower(strings.TrimSpace(layout))
	if !slices.Contains(repository.LayoutCycle, layout) {
		return repository.GuildTheme{}, 0, fmt.Errorf("%w: %q", ErrInvalidLayout, layout)
	}
	return s.updateTheme(guildID, func(t *repository.GuildTheme) { t.Layout = layout })
}

// CycleGuildLayout moves a guild to the next preset.
func (s *Store) CycleGuildLayout(guildID string) (repository.GuildTheme, int, error) {
	return s.updateTheme(guildID, func(t *repository.GuildTheme) { t.Layout = repository.NextLayout(t.Layout) })
}

// UpsertTheme replaces the colours and flags of a guild theme.
func (s *Store) UpsertTheme(theme repository.GuildTheme) (repository.GuildTheme, int, error) {
	if theme.Layout != "" && !slices.Contains(repository.LayoutCycle, strings.ToLower(strings.TrimSpace(theme.Layout))) {
		return repository.GuildTheme{}, 0, fmt.Errorf("%w: %q", ErrInvalidLayout, theme.Layout)
	}
	return s.updateTheme(theme.GuildID, func(t *repository.GuildTheme) { *t = theme })
}

func (s *Store) updateTheme(guildID string, fn func(*repository.GuildTheme)) (repository.GuildTheme, int, error) {
	if strings.TrimSpace(guildID) == "" {
		return repository.GuildTheme{}, 0, errors.New("guild id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	theme := repository.DefaultTheme(guildID)
	i := s.themeIndexLocked(guildID)
	if i >= 0 {
		theme = s.data.Themes[i]
	}
	fn(&theme)
	theme.GuildID = guildID
	doc := repository.DataDocument{Themes: []repository.GuildTheme{theme}}
	doc.ApplyDefaults()
	theme = doc.Themes[0]
	if err := validate.Struct(theme); err != nil {
		return repository.GuildTheme{}, 0, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if i < 0 {
		s.data.Themes = append(s.data.Themes, theme)
	} else {
		s.data.Themes[i] = theme
	}
	s.changes++

	dirtied := 0
	for _, sc := range s.data.Screens {
		if sc.GuildID == guildID || sc.SecondaryGuildID == guildID {
			s.markDirtyLocked(sc.ID)
			dirtied++
		}
	}
	return theme, dirtied, nil
}

// ---- invalidation ----

// MarkDirty bumps the render version of a screen and drops its cached
// renders. It reports false for unknown screens.
func (s *Store) MarkDirty(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return false
	}
	s.markDirtyLocked(id)
	return true
}

// ApplyBatch dirties, once each, every screen showing a channel or guild in
// batch. It returns the number of screens dirtied.
func (s *Store) ApplyBatch(batch coalescer.Batch) int {
	if batch.Size() == 0 {
		return 0
	}
	channels := toSet(batch.Channels)
	guilds := toSet(batch.Guilds)

	s.mu.Lock()
	defer s.mu.Unlock()
	dirtied := 0
	for _, sc := range s.data.Screens {
		if affected(sc, channels, guilds) {
			s.markDirtyLocked(sc.ID)
			dirtied++
		}
	}
	return dirtied
}

func affected(sc repository.ScreenState, channels, guilds map[string]struct{}) bool {
	for _, ch := range []string{sc.ChannelID, sc.SecondaryChannelID, sc.LockedChannelID} {
		if _, ok := channels[ch]; ok && ch != "" {
			return true
		}
	}
	for _, g := range []string{sc.GuildID, sc.SecondaryGuildID} {
		if _, ok := guilds[g]; ok && g != "" {
			return true
		}
	}
	return false
}

func (s *Store) markDirtyLocked(id string) {
	s.versions.Bump(id)
	if s.renders != nil {
		s.renders.InvalidateScreen(id)
	}
}

func (s *Store) forgetLocked(id string) {
	s.versions.Forget(id)
	if s.renders != nil {
		s.renders.InvalidateScreen(id)
	}
}

// ---- persistence bookkeeping ----

// NeedsPersist reports whether there are changes not yet saved.
func (s *Store) NeedsPersist() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes != s.persisted
}

// PersistSnapshot returns a copy of the document and the change counter it
// reflects, to be handed back to ClearPersist after a successful save.
func (s *Store) PersistSnapshot() (repository.DataDocument, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := cloneData(s.data)
	return doc, s.changes, err
}

// ClearPersist records that everything up to generation gen is on disk.
// Changes made after the snapshot keep the store pending.
func (s *Store) ClearPersist(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.persisted {
		s.persisted = gen
	}
}

func (s *Store) GetLastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func (s *Store) SetLastUpdate(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = ts
	s.data.Metadata.LastUpdate = ts
}

// DocumentSnapshot returns a deep copy of the document.
func (s *Store) DocumentSnapshot() (repository.DataDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneData(s.data)
}

// Replace swaps in a document read from disk. Every screen in either
// document is dirtied; screens that disappeared are forgotten.
func (s *Store) Replace(doc repository.DataDocument) error {
	cloned, err := cloneData(doc)
	if err != nil {
		return err
	}
	cloned.ApplyDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]struct{}, len(cloned.Screens))
	for _, sc := range cloned.Screens {
		kept[sc.ID] = struct{}{}
	}
	for _, sc := range s.data.Screens {
		if _, ok := kept[sc.ID]; !ok {
			s.forgetLocked(sc.ID)
		}
	}
	s.data = cloned
	for _, sc := range s.data.Screens {
		s.markDirtyLocked(sc.ID)
	}
	s.lastUpdate = doc.Metadata.LastUpdate
	s.persisted = s.changes
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.data.Screens, func(sc repository.ScreenState) bool { return sc.ID == id })
}

func (s *Store) themeIndexLocked(guildID string) int {
	return slices.IndexFunc(s.data.Themes, func(t repository.GuildTheme) bool { return t.GuildID == guildID })
}

func validSize(w, h int) bool {
	return w >= 1 && w <= maxTiles && h >= 1 && h <= maxTiles
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// cloneData deep-copies the document to avoid shared slices between the
// store and callers.
func cloneData(doc repository.DataDocument) (repository.DataDocument, error) {
	bytes, err := json.Marshal(doc)
	if err != nil {
		return repository.DataDocument{}, err
	}
	var copy repository.DataDocument
	if err := json.Unmarshal(bytes, &copy); err != nil {
		return repository.DataDocument{}, err
	}
	return copy, nil
}
