package render

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoScreen is returned by RenderFull for unknown screen ids.
var ErrNoScreen = errors.New("screen not found")

// ScreenSource yields a screen's state together with the render version
// that state corresponds to, read atomically.
type ScreenSource interface {
	Snapshot(screenID string) (repository.ScreenState, uint64, bool)
}

// Composer builds the full image of a screen for a locale.
type Composer interface {
	Compose(ctx context.Context, state repository.ScreenState, locale string) (*FullImage, error)
}

// Dispatcher answers tile requests from the render cache, composing on miss.
type Dispatcher struct {
	screens       ScreenSource
	cache         *Cache
	composer      Composer
	metrics       *Metrics
	defaultLocale string
	tracer        trace.Tracer
}

func NewDispatcher(screens ScreenSource, cache *Cache, composer Composer, defaultLocale string) *Dispatcher {
	return &Dispatcher{
		screens:       screens,
		cache:         cache,
		composer:      composer,
		metrics:       &Metrics{},
		defaultLocale: NormalizeLocale(defaultLocale, "en_us"),
		tracer:        otel.Tracer("github.com/bassista/go_chatwall/internal/render"),
	}
}

// RenderTile returns the 128x128 tile at column x, row y of screenID.
// It reports false for unknown screens, failed compositions and
// coordinates outside the composed image.
func (d *Dispatcher) RenderTile(ctx context.Context, screenID string, x, y int, locale string) (*image.RGBA, bool) {
	ctx, span := d.tracer.Start(ctx, "render.tile", trace.WithAttributes(
		attribute.String("screen.id", screenID),
		attribute.Int("tile.x", x),
		attribute.Int("tile.y", y),
	))
	defer span.End()

	full, err := d.full(ctx, span, screenID, locale)
	if err != nil {
		return nil, false
	}
	tile, ok := full.Tile(x, y)
	if !ok {
		span.SetAttributes(attribute.Bool("tile.out_of_bounds", true))
		return nil, false
	}
	return tile, true
}

// RenderFull returns the whole composed image of screenID.
func (d *Dispatcher) RenderFull(ctx context.Context, screenID, locale string) (*FullImage, error) {
	ctx, span := d.tracer.Start(ctx, "render.full", trace.WithAttributes(attribute.String("screen.id", screenID)))
	defer span.End()
	return d.full(ctx, span, screenID, locale)
}

func (d *Dispatcher) full(ctx context.Context, span trace.Span, screenID, locale string) (*FullImage, error) {
	d.metrics.requests.Add(1)

	gen := d.cache.Generation(screenID)
	state, version, ok := d.screens.Snapshot(screenID)
	if !ok {
		return nil, ErrNoScreen
	}
	key := Key{ScreenID: screenID, Locale: NormalizeLocale(locale, d.defaultLocale)}
	span.SetAttributes(attribute.String("render.locale", key.Locale), attribute.Int64("render.version", int64(version)))

	full, hit, err := d.cache.GetOrRender(ctx, key, version, gen, func(ctx context.Context) (*FullImage, error) {
		start := time.Now()
		img, err := d.composer.Compose(ctx, state, key.Locale)
		d.metrics.recordRender(time.Since(start), err)
		return img, err
	})
	if hit {
		d.metrics.hits.Add(1)
	} else {
		d.metrics.misses.Add(1)
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "composition failed")
		logger.WithComponent("render").Errorf("composition of screen %s (%s, v%d) failed: %v", screenID, key.Locale, version, err)
		return nil, err
	}
	return full, nil
}

// MetricsSnapshot returns the dispatcher counters.
func (d *Dispatcher) MetricsSnapshot() MetricsSnapshot {
	return d.metrics.Snapshot()
}

// CacheStats returns the render cache statistics.
func (d *Dispatcher) CacheStats() CacheStats {
	return d.cache.Stats()
}
