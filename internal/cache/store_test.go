package cache

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bassista/go_chatwall/internal/coalescer"
	"github.com/bassista/go_chatwall/internal/render"
	"github.com/bassista/go_chatwall/internal/repository"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recordingInvalidator) InvalidateScreen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[id]++
}

func (r *recordingInvalidator) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func createTestDocument() repository.DataDocument {
	return repository.DataDocument{
		Metadata: repository.Metadata{LastUpdate: 1000},
		Screens: []repository.ScreenState{
			{ID: "s1", Width: 2, Height: 2, GuildID: "g1", ChannelID: "c1"},
			{ID: "s2", Width: 1, Height: 1, GuildID: "g1", ChannelID: "c1"},
			{ID: "s3", Width: 1, Height: 1, GuildID: "g2", ChannelID: "c2", SecondaryGuildID: "g1", SecondaryChannelID: "c3"},
		},
		Themes: []repository.GuildTheme{
			{GuildID: "g1", Layout: repository.LayoutGlass},
		},
	}
}

func newTestStore() (*Store, *render.Versions, *recordingInvalidator) {
	versions := render.NewVersions()
	inv := &recordingInvalidator{}
	return NewStore(createTestDocument(), versions, inv), versions, inv
}

func TestNewStore(t *testing.T) {
	store, _, _ := newTestStore()

	if store.GetLastUpdate() != 1000 {
		t.Errorf("expected lastUpdate 1000, got %d", store.GetLastUpdate())
	}
	if store.NeedsPersist() {
		t.Error("expected a fresh store to have nothing to persist")
	}
	if len(store.All()) != 3 {
		t.Errorf("expected 3 screens, got %d", len(store.All()))
	}
}

func TestStore_SnapshotPairsStateAndVersion(t *testing.T) {
	store, _, _ := newTestStore()

	state, version, ok := store.Snapshot("s1")
	if !ok || state.ID != "s1" || version != 0 {
		t.Fatalf("unexpected snapshot %+v v%d ok=%v", state, version, ok)
	}

	store.MarkDirty("s1")
	_, version, _ = store.Snapshot("s1")
	if version != 1 {
		t.Errorf("expected version 1 after MarkDirty, got %d", version)
	}

	if _, _, ok := store.Snapshot("missing"); ok {
		t.Error("expected unknown screen to be reported missing")
	}
}

func TestStore_MarkDirty(t *testing.T) {
	store, versions, inv := newTestStore()

	if !store.MarkDirty("s2") {
		t.Fatal("expected MarkDirty to find s2")
	}
	if versions.Current("s2") != 1 || inv.count("s2") != 1 {
		t.Errorf("expected one bump and one invalidation, got v%d inv%d", versions.Current("s2"), inv.count("s2"))
	}
	if store.MarkDirty("nope") {
		t.Error("expected MarkDirty on unknown screen to report false")
	}
	if versions.Current("nope") != 0 {
		t.Error("unknown screens must not get a version")
	}
	if store.NeedsPersist() {
		t.Error("render invalidation alone must not require a save")
	}
}

func TestStore_CreateScreen(t *testing.T) {
	store, versions, _ := newTestStore()

	screen, err := store.CreateScreen(NewScreen{Width: 3, Height: 2, GuildID: "g1", Placement: repository.Placement{World: "w", Facing: "NORTH"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if screen.ID == "" {
		t.Error("expected generated id")
	}
	if screen.Placement.Facing != "north" {
		t.Errorf("expected lowercase facing, got %s", screen.Placement.Facing)
	}
	if versions.Current(screen.ID) != 1 {
		t.Errorf("expected new screen at version 1, got %d", versions.Current(screen.ID))
	}
	if !store.NeedsPersist() {
		t.Error("expected create to require a save")
	}

	if _, err := store.CreateScreen(NewScreen{Width: 0, Height: 1}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	if _, err := store.CreateScreen(NewScreen{Width: 1, Height: 17}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	if _, err := store.CreateScreen(NewScreen{Width: 1, Height: 1, Placement: repository.Placement{Facing: "sideways"}}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestStore_RemoveScreen(t *testing.T) {
	store, versions, inv := newTestStore()
	store.MarkDirty("s1")

	if err := store.RemoveScreen("s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.Get("s1"); ok {
		t.Error("expected s1 to be gone")
	}
	if versions.Current("s1") != 0 {
		t.Error("expected version to be forgotten")
	}
	if inv.count("s1") != 2 {
		t.Errorf("expected cached renders dropped on remove, got %d invalidations", inv.count("s1"))
	}
	if err := store.RemoveScreen("s1"); !errors.Is(err, ErrScreenNotFound) {
		t.Errorf("expected ErrScreenNotFound, got %v", err)
	}
}

func TestStore_LinkAndLock(t *testing.T) {
	store, versions, _ := newTestStore()

	screen, err := store.LinkScreen("s1", "g2", "c2", false)
	if err != nil || screen.ChannelID != "c2" || screen.GuildID != "g2" {
		t.Fatalf("link failed: %+v %v", screen, err)
	}

	screen, err = store.LockChannel("s1", "g1", "c9")
	if err != nil || !screen.Locked() || screen.ChannelID != "c9" {
		t.Fatalf("lock failed: %+v %v", screen, err)
	}

	if _, err := store.LinkScreen("s1", "g2", "c2", false); !errors.Is(err, ErrScreenLocked) {
		t.Errorf("expected ErrScreenLocked, got %v", err)
	}
	screen, err = store.LinkScreen("s1", "g2", "c5", true)
	if err != nil || screen.SecondaryChannelID != "c5" {
		t.Errorf("secondary link should bypass the lock: %+v %v", screen, err)
	}

	screen, err = store.UnlockChannel("s1")
	if err != nil || screen.Locked() {
		t.Fatalf("unlock failed: %+v %v", screen, err)
	}
	if versions.Current("s1") != 4 {
		t.Errorf("expected 4 bumps for 4 successful mutations, got %d", versions.Current("s1"))
	}

	if _, err := store.LinkScreen("missing", "g", "c", false); !errors.Is(err, ErrScreenNotFound) {
		t.Errorf("expected ErrScreenNotFound, got %v", err)
	}
}

func TestStore_ToggleMoveResize(t *testing.T) {
	store, versions, inv := newTestStore()

	screen, _ := store.ToggleMemberList("s2")
	if !screen.ShowMemberList {
		t.Error("expected member list enabled")
	}
	screen, _ = store.MoveScreen("s2", repository.Placement{World: "nether", X: 1, Y: 2, Z: 3, Facing: "East"})
	if screen.Placement.World != "nether" || screen.Placement.Facing != "east" {
		t.Errorf("unexpected placement %+v", screen.Placement)
	}
	screen, _ = store.ResizeScreen("s2", 4, 3)
	if screen.Width != 4 || screen.Height != 3 {
		t.Errorf("unexpected size %dx%d", screen.Width, screen.Height)
	}
	if _, err := store.ResizeScreen("s2", 20, 1); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	if versions.Current("s2") != 3 || inv.count("s2") != 3 {
		t.Errorf("expected 3 bumps, got v%d inv%d", versions.Current("s2"), inv.count("s2"))
	}
}

func TestStore_SetGuildLayout(t *testing.T) {
	store, versions, _ := newTestStore()

	theme, dirtied, err := store.SetGuildLayout("g1", "ULTRA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if theme.Layout != repository.LayoutUltra {
		t.Errorf("expected ultra, got %s", theme.Layout)
	}
	// s1, s2 by primary guild and s3 by secondary guild
	if dirtied != 3 {
		t.Errorf("expected 3 screens dirtied, got %d", dirtied)
	}
	if store.Theme("g1").Layout != repository.LayoutUltra {
		t.Error("expected stored theme to change")
	}
	if versions.Current("s3") != 1 {
		t.Errorf("expected s3 bumped once, got %d", versions.Current("s3"))
	}

	if _, _, err := store.SetGuildLayout("g1", "neon"); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("expected ErrInvalidLayout, got %v", err)
	}
}

func TestStore_CycleGuildLayoutCreatesTheme(t *testing.T) {
	store, _, _ := newTestStore()

	theme, dirtied, err := store.CycleGuildLayout("g2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if theme.Layout != repository.LayoutGlass {
		t.Errorf("expected discord to cycle to glass, got %s", theme.Layout)
	}
	if dirtied != 1 {
		t.Errorf("expected only s3 dirtied, got %d", dirtied)
	}
	if len(store.Themes()) != 2 {
		t.Errorf("expected a theme to be added, got %d", len(store.Themes()))
	}
}

func TestStore_UpsertTheme(t *testing.T) {
	store, _, _ := newTestStore()

	theme, _, err := store.UpsertTheme(repository.GuildTheme{GuildID: "g1", Primary: "#FF0000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if theme.Primary != "#FF0000" || theme.Background == "" || theme.Layout != repository.LayoutDiscord {
		t.Errorf("expected defaults filled in, got %+v", theme)
	}

	if _, _, err := store.UpsertTheme(repository.GuildTheme{GuildID: "g1", Primary: "red"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if store.Theme("g1").Primary != "#FF0000" {
		t.Error("a rejected theme must not be stored")
	}
	if _, _, err := store.UpsertTheme(repository.GuildTheme{}); err == nil {
		t.Error("expected error for missing guild id")
	}
}

func TestStore_ApplyBatch_DirtiesEachScreenOnce(t *testing.T) {
	store, versions, inv := newTestStore()

	// c1 is shown by s1 and s2; g1 also matches both of them and s3
	n := store.ApplyBatch(coalescer.Batch{Channels: []string{"c1", "c1"}, Guilds: []string{"g1"}})
	if n != 3 {
		t.Errorf("expected 3 screens dirtied, got %d", n)
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		if versions.Current(id) != 1 {
			t.Errorf("expected %s at version 1, got %d", id, versions.Current(id))
		}
		if inv.count(id) != 1 {
			t.Errorf("expected %s invalidated once, got %d", id, inv.count(id))
		}
	}
}

func TestStore_ApplyBatch_TwoScreensSameChannel(t *testing.T) {
	store, versions, _ := newTestStore()

	n := store.ApplyBatch(coalescer.Batch{Channels: []string{"c1"}})
	if n != 2 {
		t.Errorf("expected 2 screens dirtied, got %d", n)
	}
	if versions.Current("s1") != 1 || versions.Current("s2") != 1 {
		t.Error("expected both screens on c1 bumped exactly once")
	}
	if versions.Current("s3") != 0 {
		t.Error("expected unrelated screen untouched")
	}

	if store.ApplyBatch(coalescer.Batch{Channels: []string{"c3"}}) != 1 {
		t.Error("expected secondary channel to match")
	}
	if store.ApplyBatch(coalescer.Batch{}) != 0 {
		t.Error("expected empty batch to dirty nothing")
	}
}

func TestStore_Replace(t *testing.T) {
	store, versions, inv := newTestStore()
	_, _ = store.ToggleMemberList("s1")

	newDoc := repository.DataDocument{
		Metadata: repository.Metadata{LastUpdate: 5000},
		Screens:  []repository.ScreenState{{ID: "s1", Width: 1, Height: 1}, {ID: "s9", Width: 1, Height: 1}},
	}
	if err := store.Replace(newDoc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.GetLastUpdate() != 5000 {
		t.Errorf("expected lastUpdate 5000, got %d", store.GetLastUpdate())
	}
	if store.NeedsPersist() {
		t.Error("expected replace to leave nothing to persist")
	}
	if _, ok := store.Get("s2"); ok {
		t.Error("expected s2 to be gone")
	}
	if versions.Current("s2") != 0 || inv.count("s2") != 1 {
		t.Error("expected removed screen forgotten and invalidated")
	}
	if versions.Current("s1") != 2 || versions.Current("s9") != 1 {
		t.Errorf("expected kept and new screens dirtied, got s1=%d s9=%d", versions.Current("s1"), versions.Current("s9"))
	}

	newDoc.Screens[0].Width = 7
	if s, _ := store.Get("s1"); s.Width != 1 {
		t.Error("store must not alias the replaced document")
	}
}

func TestStore_PersistGenerations(t *testing.T) {
	store, _, _ := newTestStore()
	_, _ = store.ToggleMemberList("s1")

	_, gen, err := store.PersistSnapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a change lands between snapshot and save
	_, _ = store.ToggleMemberList("s2")
	store.ClearPersist(gen)
	if !store.NeedsPersist() {
		t.Error("a change after the snapshot must stay pending")
	}

	_, gen, _ = store.PersistSnapshot()
	store.ClearPersist(gen)
	if store.NeedsPersist() {
		t.Error("expected store clean after saving the latest generation")
	}
	store.ClearPersist(0)
	if store.NeedsPersist() {
		t.Error("an older generation must not reopen pending state")
	}
}

func TestStore_DocumentSnapshotIsDeepCopy(t *testing.T) {
	store, _, _ := newTestStore()
	doc, err := store.DocumentSnapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc.Screens[0].ChannelID = "changed"
	if s, _ := store.Get("s1"); s.ChannelID != "c1" {
		t.Error("snapshot must not alias store state")
	}
}

// ==================== Persistence scheduler ====================

type mockSaver struct {
	mu        sync.Mutex
	savedDocs []repository.DataDocument
	saveErr   error
}

func (m *mockSaver) Save(_ context.Context, doc *repository.DataDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.savedDocs = append(m.savedDocs, *doc)
	return nil
}

func (m *mockSaver) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.savedDocs)
}

func TestStartPersistenceScheduler_PeriodicFlush(t *testing.T) {
	store, _, _ := newTestStore()
	_, _ = store.ToggleMemberList("s1")

	saver := &mockSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartPersistenceScheduler(ctx, store, saver, 50*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done

	if saver.Count() != 1 {
		t.Errorf("expected exactly one save, got %d", saver.Count())
	}
	if store.NeedsPersist() {
		t.Error("expected store to be clean after flush")
	}
	if store.GetLastUpdate() <= 1000 {
		t.Error("expected lastUpdate to advance after save")
	}
}

func TestStartPersistenceScheduler_CleanStoreSkipsFlush(t *testing.T) {
	store, _, _ := newTestStore()
	store.MarkDirty("s1")

	saver := &mockSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartPersistenceScheduler(ctx, store, saver, 20*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	if saver.Count() > 0 {
		t.Error("expected no saves when nothing needs persisting")
	}
}

func TestStartPersistenceScheduler_SaveError(t *testing.T) {
	store, _, _ := newTestStore()
	_, _ = store.ToggleMemberList("s1")

	saver := &mockSaver{saveErr: errors.New("disk full")}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartPersistenceScheduler(ctx, store, saver, 20*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	if !store.NeedsPersist() {
		t.Error("expected store to stay pending after save error")
	}
}

func TestStartPersistenceScheduler_FinalFlushOnShutdown(t *testing.T) {
	store, _, _ := newTestStore()
	saver := &mockSaver{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartPersistenceScheduler(ctx, store, saver, 10*time.Second)

	_, _ = store.ToggleMemberList("s1")
	cancel()
	<-done

	if saver.Count() != 1 {
		t.Errorf("expected final flush on shutdown, got %d saves", saver.Count())
	}
}

// ==================== Concurrency ====================

// TestStore_ConcurrentSnapshotNeverGoesBackwards checks that readers always
// see versions moving forward while writers dirty screens.
func TestStore_ConcurrentSnapshotNeverGoesBackwards(t *testing.T) {
	store, versions, _ := newTestStore()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.MarkDirty("s1")
				store.ApplyBatch(coalescer.Batch{Channels: []string{"c1"}})
			}
		}()
	}

	errs := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for i := 0; i < 500; i++ {
				_, v, ok := store.Snapshot("s1")
				if !ok {
					errs <- "screen vanished"
					return
				}
				if v < last {
					errs <- "version went backwards"
					return
				}
				last = v
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	if versions.Current("s1") != 4*200*2 {
		t.Errorf("expected %d bumps, got %d", 4*200*2, versions.Current("s1"))
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	store, _, _ := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CreateScreen(NewScreen{Width: 1, Height: 1}); err != nil {
				t.Errorf("create failed: %v", err)
			}
			_, _ = store.ToggleMemberList("s1")
			_, _ = store.DocumentSnapshot()
		}()
	}
	wg.Wait()

	if len(store.All()) != 23 {
		t.Errorf("expected 23 screens, got %d", len(store.All()))
	}
}

// blockingComposer holds every composition until release is closed.
type blockingComposer struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingComposer) Compose(_ context.Context, state repository.ScreenState, _ string) (*render.FullImage, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return render.NewFullImage(image.NewRGBA(image.Rect(0, 0, state.PixelWidth(), state.PixelHeight()))), nil
}

func TestRemoveScreenDuringCompositionLeavesNoRender(t *testing.T) {
	for _, remove := range []struct {
		name string
		fn   func(*Store) error
	}{
		{"remove", func(s *Store) error { return s.RemoveScreen("s1") }},
		{"replace", func(s *Store) error {
			doc := createTestDocument()
			doc.Screens = doc.Screens[1:]
			return s.Replace(doc)
		}},
	} {
		t.Run(remove.name, func(t *testing.T) {
			rc := render.NewCache(64<<20, time.Hour)
			store := NewStore(createTestDocument(), render.NewVersions(), rc)
			composer := &blockingComposer{started: make(chan struct{}), release: make(chan struct{})}
			d := render.NewDispatcher(store, rc, composer, "en_us")

			done := make(chan bool)
			go func() {
				_, ok := d.RenderTile(context.Background(), "s1", 0, 0, "en_us")
				done <- ok
			}()

			<-composer.started
			if err := remove.fn(store); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			close(composer.release)
			if !<-done {
				t.Error("expected the in-flight request to still get its tile")
			}

			if stats := rc.Stats(); stats.Entries != 0 || stats.Bytes != 0 {
				t.Errorf("expected no cached render for a removed screen, got %+v", stats)
			}
		})
	}
}
