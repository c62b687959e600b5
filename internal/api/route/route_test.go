package route

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bassista/go_chatwall/internal/app"
	"github.com/bassista/go_chatwall/internal/config"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopRepository struct{}

func (nopRepository) Load(ctx context.Context) (*repository.DataDocument, error) {
	return &repository.DataDocument{}, nil
}
func (nopRepository) Save(ctx context.Context, doc *repository.DataDocument) error { return nil }
func (nopRepository) StartWatcher(ctx context.Context, store repository.CacheStore) error {
	return nil
}

type offlineFetcher struct{}

func (offlineFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	return nil, errors.New("offline")
}

func newTestEngine(t *testing.T) (*gin.Engine, *app.App) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second, CORSAllowedOrigins: "*"},
		Render: config.RenderConfig{
			PerformanceMode: config.PerformancePerformance,
			CacheBudget:     32 << 20,
			IdleTTL:         time.Minute,
			DefaultLocale:   "en_us",
		},
		Fetch: config.FetchConfig{Attempts: 1, ResolveTimeout: 20 * time.Millisecond, PositiveCapacity: 4, NegativeCapacity: 4, Workers: 1},
	}
	doc := repository.DataDocument{Screens: []repository.ScreenState{
		{ID: "wall", Width: 2, Height: 1, GuildID: directory.DemoGuildID, ChannelID: "ch-geral"},
	}}
	a, err := app.New(cfg, nopRepository{}, doc, directory.NewMemoryDirectory(20, true), offlineFetcher{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(time.Second) })
	return SetupRoutes(a, logger.Logger), a
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_Health(t *testing.T) {
	r, _ := newTestEngine(t)
	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRoutes_ScreensAndTiles(t *testing.T) {
	r, _ := newTestEngine(t)

	w := serve(r, http.MethodGet, "/screens", "")
	require.Equal(t, http.StatusOK, w.Code)
	var screens []repository.ScreenState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &screens))
	require.Len(t, screens, 1)
	assert.Equal(t, "wall", screens[0].ID)

	w = serve(r, http.MethodGet, "/screens/wall/tiles/1/0", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = serve(r, http.MethodGet, "/screens/wall/tiles/2/0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodGet, "/screens/ghost/tiles/0/0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRoutes_EventsReachTheScreens(t *testing.T) {
	r, a := newTestEngine(t)
	a.Coalescer.Start(a.BaseCtx)

	w := serve(r, http.MethodPost, "/events/message", `{"channelId":"ch-geral","author":"Steve","content":"oi"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		return a.Versions.Current("wall") > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSetupRoutes_Metrics(t *testing.T) {
	r, _ := newTestEngine(t)

	w := serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"screens":1`)

	w = serve(r, http.MethodGet, "/metrics/prometheus", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chatwall_screens 1")
}
