package cache

import (
	"context"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/bassista/go_chatwall/internal/repository"
)

// StartPersistenceScheduler runs a goroutine that periodically saves pending
// store changes. On ctx.Done it performs a final flush before returning.
// The returned channel is closed once the goroutine has exited.
func StartPersistenceScheduler(
	ctx context.Context,
	store PersistableStore,
	repo repository.Saver,
	interval time.Duration,
) <-chan struct{} {
	done := make(chan struct{})
	log := logger.WithComponent("persist")
	log.Debugf("starting persistence scheduler with interval: %v", interval)
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("persistence scheduler stopping, performing final flush")
				// the final flush must not inherit the cancelled context
				flushStore(context.Background(), store, repo)
				log.Info("persistence scheduler stopped after final flush")
				return
			case <-ticker.C:
				flushStore(ctx, store, repo)
			}
		}
	}()
	return done
}

// flushStore saves the document when the store has pending changes.
func flushStore(ctx context.Context, store PersistableStore, repo repository.Saver) {
	log := logger.WithComponent("persist")
	if !store.NeedsPersist() {
		log.Trace("store is clean, skipping flush")
		return
	}
	if err := ctx.Err(); err != nil {
		log.Debugf("flush cancelled: %v", err)
		return
	}

	snapshot, gen, err := store.PersistSnapshot()
	if err != nil {
		log.Errorf("persist error: failed to get snapshot: %v", err)
		return
	}
	snapshot.Metadata.LastUpdate = time.Now().UnixMilli()

	if err := repo.Save(ctx, &snapshot); err != nil {
		log.Errorf("persist error: failed to save: %v", err)
		return
	}

	store.ClearPersist(gen)
	store.SetLastUpdate(snapshot.Metadata.LastUpdate)
	log.Infof("store persisted to disk (%d screens)", len(snapshot.Screens))
}
