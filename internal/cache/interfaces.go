package cache

import (
	"github.com/bassista/go_chatwall/internal/coalescer"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/bassista/go_chatwall/internal/repository"
)

// ReadOnlyStore is the minimal store API for read-only controllers.
type ReadOnlyStore interface {
	Get(id string) (repository.ScreenState, bool)
	All() []repository.ScreenState
	Theme(guildID string) repository.GuildTheme
}

// ScreenStore is the store API needed by screen handlers.
type ScreenStore interface {
	ReadOnlyStore
	CreateScreen(ns NewScreen) (repository.ScreenState, error)
	RemoveScreen(id string) error
	LinkScreen(id, guildID, channelID string, secondary bool) (repository.ScreenState, error)
	LockChannel(id, guildID, channelID string) (repository.ScreenState, error)
	UnlockChannel(id string) (repository.ScreenState, error)
	ToggleMemberList(id string) (repository.ScreenState, error)
	MoveScreen(id string, placement repository.Placement) (repository.ScreenState, error)
	ResizeScreen(id string, width, height int) (repository.ScreenState, error)
	MarkDirty(id string) bool
}

// ThemeStore is the store API needed by guild style handlers.
type ThemeStore interface {
	Theme(guildID string) repository.GuildTheme
	SetGuildLayout(guildID, layout string) (repository.GuildTheme, int, error)
	CycleGuildLayout(guildID string) (repository.GuildTheme, int, error)
	UpsertTheme(theme repository.GuildTheme) (repository.GuildTheme, int, error)
}

// PersistableStore is the store API needed by the persistence scheduler.
type PersistableStore interface {
	NeedsPersist() bool
	PersistSnapshot() (repository.DataDocument, uint64, error)
	ClearPersist(gen uint64)
	SetLastUpdate(ts int64)
}

// AppStore is the store contract the application container exposes:
// controllers, the render dispatcher, the coalescer, the persistence
// scheduler and the file watcher all use it.
type AppStore interface {
	repository.CacheStore
	render.ScreenSource
	coalescer.Flusher
	ScreenStore
	ThemeStore
	PersistableStore
}

var _ AppStore = (*Store)(nil)
