package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	appctx "github.com/bassista/go_chatwall/internal/app"
	"github.com/bassista/go_chatwall/internal/config"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/fetch"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/spf13/cobra"
)

// globalOptions override the loaded configuration for one invocation.
type globalOptions struct {
	dataPath      string
	directoryType string
	sqlitePath    string
	mode          string
	locale        string
	offline       bool
	logLevel      string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "chatwallctl",
		Short:         "Inspect and render chat wall screens offline",
		Long:          "chatwallctl loads the screens file and chat directory used by the server and renders screens or single tiles to PNG files without starting the HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.dataPath, "data", "", "screens file (defaults to data.file_path)")
	flags.StringVar(&opts.directoryType, "directory", "", "chat directory backend: memory or sqlite")
	flags.StringVar(&opts.sqlitePath, "sqlite", "", "sqlite database path for the sqlite backend")
	flags.StringVar(&opts.mode, "mode", "", "performance mode: performance, balanced or quality")
	flags.StringVar(&opts.locale, "locale", "", "locale used for rendering")
	flags.BoolVar(&opts.offline, "offline", false, "do not fetch avatars, draw initials instead")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(
		newScreensCmd(opts),
		newRenderCmd(opts),
		newTileCmd(opts),
	)
	return rootCmd
}

// offlineFetcher refuses every fetch so avatars fall back to initials.
type offlineFetcher struct{}

func (offlineFetcher) Fetch(context.Context, string) (image.Image, error) {
	return nil, errors.New("offline mode")
}

// openApp builds the render pipeline without starting background workers.
// The caller must Shutdown the returned app.
func openApp(ctx context.Context, opts *globalOptions) (*appctx.App, error) {
	if err := logger.SetLevelFromString(opts.logLevel); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.dataPath != "" {
		cfg.Data.FilePath = opts.dataPath
	}
	if opts.directoryType != "" {
		cfg.Directory.Type = opts.directoryType
	}
	if opts.sqlitePath != "" {
		cfg.Directory.SQLitePath = opts.sqlitePath
	}
	if opts.mode != "" {
		switch opts.mode {
		case config.PerformancePerformance, config.PerformanceBalanced, config.PerformanceQuality:
			cfg.Render.PerformanceMode = opts.mode
		default:
			return nil, fmt.Errorf("unknown performance mode %q", opts.mode)
		}
	}
	if opts.locale != "" {
		cfg.Render.DefaultLocale = opts.locale
	}

	repo, err := repository.NewJSONRepository(cfg.Data.FilePath)
	if err != nil {
		return nil, err
	}
	doc, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.Data.FilePath, err)
	}
	dir, err := directory.NewDirectoryFromConfig(cfg.Directory.Type, cfg.Directory.SQLitePath, cfg.Directory.HistorySize, cfg.Directory.SeedDemoData)
	if err != nil {
		return nil, err
	}

	var fetcher fetch.Fetcher
	if opts.offline {
		fetcher = offlineFetcher{}
	}
	a, err := appctx.New(cfg, repo, *doc, dir, fetcher)
	if err != nil {
		_ = dir.Close()
		return nil, err
	}
	return a, nil
}

func closeApp(a *appctx.App) {
	a.Shutdown(5 * time.Second)
}
