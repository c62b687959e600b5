package compose

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/bassista/go_chatwall/internal/config"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type themeFunc func(guildID string) repository.GuildTheme

func (f themeFunc) Theme(guildID string) repository.GuildTheme { return f(guildID) }

type recordingResolver struct {
	mu   sync.Mutex
	urls []string
	img  image.Image
}

func (r *recordingResolver) Resolve(_ context.Context, url string) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return r.img
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestCompositor(t *testing.T, dir directory.ChatDirectory, resolver ImageResolver, mode string) *Compositor {
	t.Helper()
	return NewCompositor(dir, themeFunc(repository.DefaultTheme), resolver, Options{
		PerformanceMode:   mode,
		Location:          time.UTC,
		AvatarURLTemplate: "https://avatars.example/{name}",
	})
}

func TestCompose_ProducesScreenSizedImage(t *testing.T) {
	resolver := &recordingResolver{img: solid(color.RGBA{R: 200, A: 255})}
	c := newTestCompositor(t, directory.NewMemoryDirectory(50, true), resolver, config.PerformancePerformance)

	state := repository.ScreenState{ID: "s1", Width: 2, Height: 2, GuildID: directory.DemoGuildID, ChannelID: "ch-geral"}
	full, err := c.Compose(context.Background(), state, "en_us")
	require.NoError(t, err)
	require.NotNil(t, full)

	assert.Equal(t, image.Rect(0, 0, 256, 256), full.Image.Bounds())
	assert.Equal(t, int64(256*256*4), full.SizeBytes)

	// outside the rounded frame is transparent, the guild rail is opaque
	assert.Less(t, full.Image.RGBAAt(0, 0).A, uint8(64))
	assert.Equal(t, uint8(255), full.Image.RGBAAt(8, 128).A)

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	assert.ElementsMatch(t, []string{
		"https://mc-heads.net/avatar/discord",
		"https://mc-heads.net/avatar/admin",
	}, resolver.urls)
}

func TestCompose_UnknownAuthorUsesAvatarTemplate(t *testing.T) {
	dir := directory.NewMemoryDirectory(50, true)
	require.NoError(t, dir.PostMessage(context.Background(), directory.Message{
		ChannelID: "ch-suporte", Author: "Visitor", Content: "hello @here", Timestamp: time.Now(),
	}))
	resolver := &recordingResolver{}
	c := newTestCompositor(t, dir, resolver, config.PerformancePerformance)

	state := repository.ScreenState{ID: "s1", Width: 4, Height: 2, GuildID: directory.DemoGuildID, ChannelID: "ch-suporte", ShowMemberList: true}
	full, err := c.Compose(context.Background(), state, "pt_br")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 512, 256), full.Image.Bounds())

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	assert.Contains(t, resolver.urls, "https://avatars.example/Visitor")
	assert.Contains(t, resolver.urls, "https://mc-heads.net/avatar/builder", "member panel avatars are resolved")
}

func TestCompose_EmptyDirectory(t *testing.T) {
	c := newTestCompositor(t, directory.NewMemoryDirectory(50, false), nil, config.PerformanceQuality)

	full, err := c.Compose(context.Background(), repository.ScreenState{ID: "s", Width: 1, Height: 1}, "en_us")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 128, 128), full.Image.Bounds())
}

func TestCompose_RejectsInvalidSize(t *testing.T) {
	c := newTestCompositor(t, directory.NewMemoryDirectory(50, false), nil, config.PerformanceBalanced)
	_, err := c.Compose(context.Background(), repository.ScreenState{ID: "s", Width: 0, Height: 1}, "en_us")
	assert.Error(t, err)
}

func TestCompose_ConcurrentCallsAreIndependent(t *testing.T) {
	c := newTestCompositor(t, directory.NewMemoryDirectory(50, true), &recordingResolver{}, config.PerformanceBalanced)
	state := repository.ScreenState{ID: "s1", Width: 1, Height: 1, GuildID: directory.DemoGuildID}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Compose(context.Background(), state, "en_us")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 300))
	out := downscale(src, 100, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())

	exact := image.NewRGBA(image.Rect(0, 0, 400, 200))
	assert.Equal(t, image.Rect(0, 0, 100, 50), downscale(exact, 100, 50).Bounds())
}

func TestInsideRounded(t *testing.T) {
	r := image.Rect(0, 0, 20, 20)
	assert.False(t, insideRounded(r, 6, 0, 0), "corner is cut")
	assert.True(t, insideRounded(r, 6, 10, 0), "edge middle is inside")
	assert.True(t, insideRounded(r, 6, 10, 10))
	assert.False(t, insideRounded(r, 6, 20, 10), "max edge is exclusive")
	assert.True(t, insideRounded(r, 0, 0, 0))
}
