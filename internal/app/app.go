package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bassista/go_chatwall/internal/cache"
	"github.com/bassista/go_chatwall/internal/coalescer"
	"github.com/bassista/go_chatwall/internal/compose"
	"github.com/bassista/go_chatwall/internal/config"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/fetch"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/metrics"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/bassista/go_chatwall/internal/repository"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config      *config.Config
	Repo        repository.Repository
	Store       *cache.Store
	Directory   directory.ChatDirectory
	Fetch       *fetch.Cache
	Versions    *render.Versions
	RenderCache *render.Cache
	Compositor  *compose.Compositor
	Dispatcher  *render.Dispatcher
	Coalescer   *coalescer.Coalescer

	BaseCtx context.Context
	Cancel  context.CancelFunc

	persistDone <-chan struct{}
	janitorDone <-chan struct{}
}

// New wires the render pipeline over doc. fetcher may be nil, in which case
// an HTTP fetcher is built from the fetch configuration.
func New(cfg *config.Config, repo repository.Repository, doc repository.DataDocument, dir directory.ChatDirectory, fetcher fetch.Fetcher) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if repo == nil {
		return nil, errors.New("repo is nil")
	}
	if dir == nil {
		return nil, errors.New("directory is nil")
	}
	if fetcher == nil {
		fetcher = fetch.NewHTTPFetcher(cfg.Fetch.ConnectTimeout, cfg.Fetch.ReadTimeout, cfg.Fetch.Attempts)
	}

	versions := render.NewVersions()
	renderCache := render.NewCache(cfg.Render.CacheBudget, cfg.Render.IdleTTL)
	store := cache.NewStore(doc, versions, renderCache)

	images := fetch.NewCache(fetcher, fetch.Options{
		PositiveCapacity: cfg.Fetch.PositiveCapacity,
		PositiveTTL:      cfg.Fetch.PositiveTTL,
		NegativeCapacity: cfg.Fetch.NegativeCapacity,
		NegativeTTL:      cfg.Fetch.NegativeTTL,
		Workers:          cfg.Fetch.Workers,
		ResolveTimeout:   cfg.Fetch.ResolveTimeout,
	})
	compositor := compose.NewCompositor(dir, store, images, compose.Options{
		PerformanceMode:   cfg.Render.PerformanceMode,
		Location:          cfg.Location(),
		AvatarURLTemplate: cfg.Fetch.ExternalAvatarURL,
	})
	dispatcher := render.NewDispatcher(store, renderCache, compositor, cfg.Render.DefaultLocale)

	co := coalescer.New(store, coalescer.Options{
		Window:    cfg.Coalescer.Window,
		MaxBatch:  cfg.Coalescer.MaxBatch,
		QueueSize: cfg.Coalescer.QueueSize,
	})
	dir.RegisterListener(co)

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:      cfg,
		Repo:        repo,
		Store:       store,
		Directory:   dir,
		Fetch:       images,
		Versions:    versions,
		RenderCache: renderCache,
		Compositor:  compositor,
		Dispatcher:  dispatcher,
		Coalescer:   co,
		BaseCtx:     ctx,
		Cancel:      cancel,
	}, nil
}

// StartWatchers starts the coalescer, the persistence scheduler, the render
// cache janitor and, when enabled, the screens file watcher.
func (a *App) StartWatchers() error {
	a.Coalescer.Start(a.BaseCtx)
	a.persistDone = cache.StartPersistenceScheduler(a.BaseCtx, a.Store, a.Repo, a.Config.Data.PersistInterval)
	a.janitorDone = a.RenderCache.StartJanitor(a.BaseCtx, a.Config.Render.SweepInterval)

	if a.Config.Data.WatchEnabled {
		if err := a.Repo.StartWatcher(a.BaseCtx, a.Store); err != nil {
			return fmt.Errorf("start screens file watcher: %w", err)
		}
	}
	logger.WithComponent("app").Infof("background workers started (%d screens)", len(a.Store.All()))
	return nil
}

// Shutdown stops the coalescer, cancels the base context and waits up to
// timeout for the final persistence flush.
func (a *App) Shutdown(timeout time.Duration) {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Coalescer.Stop()
	a.Cancel()

	wait := time.After(timeout)
	for _, done := range []<-chan struct{}{a.persistDone, a.janitorDone} {
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-wait:
			logger.WithComponent("app").Warn("shutdown timed out waiting for background workers")
			return
		}
	}
	if err := a.Directory.Close(); err != nil {
		logger.WithComponent("app").Warnf("closing directory: %v", err)
	}
}

// MetricsSources exposes the counters of every subsystem.
func (a *App) MetricsSources() metrics.Sources {
	return metrics.Sources{
		Render:    a.Dispatcher.MetricsSnapshot,
		Cache:     a.Dispatcher.CacheStats,
		Coalescer: a.Coalescer.Snapshot,
		Fetch:     a.Fetch.Stats,
		Screens:   func() int { return len(a.Store.All()) },
		Versions:  a.Versions.Len,
	}
}
