package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
)

// DefaultDebounce is the quiet period after the last change before a
// backup starts.
const DefaultDebounce = 30 * time.Second

// BookmarkWatcher starts a backup once the bookmark file stopped changing
// for the debounce period. Browsers replace the file by rename, so the
// parent directory is watched and events are filtered by name.
type BookmarkWatcher struct {
	runner   BackupRunner
	logger   logger.Logger
	path     string
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	timer       *time.Timer
	gen         int
	stopped     bool
	paused      bool
	ignoreUntil time.Time
	now         func() time.Time
}

// NewBookmarkWatcher creates a watcher for path. It must be started with
// Start.
func NewBookmarkWatcher(runner BackupRunner, log logger.Logger, path string, debounce time.Duration) (*BookmarkWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &BookmarkWatcher{
		runner:   runner,
		logger:   log,
		path:     filepath.Clean(path),
		debounce: debounce,
		watcher:  w,
		done:     make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Start watches the bookmark file's directory until Stop or ctx ends.
func (bw *BookmarkWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(bw.path)
	if err := bw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	bw.logger.Info("watching bookmark file",
		logger.String("path", bw.path),
		logger.Duration("debounce", bw.debounce))

	bw.wg.Add(1)
	go bw.processEvents(ctx)
	return nil
}

// Stop ends the watch and waits for the event loop and any backup it
// started to finish.
func (bw *BookmarkWatcher) Stop() error {
	bw.mu.Lock()
	if bw.stopped {
		bw.mu.Unlock()
		return nil
	}
	bw.stopped = true
	bw.cancelLocked()
	bw.mu.Unlock()

	close(bw.done)
	err := bw.watcher.Close()
	bw.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// RunStarted pauses the watcher while a restore rewrites the file.
func (bw *BookmarkWatcher) RunStarted(run *domain.SyncRun) {
	if run.Op != domain.OpRestore {
		return
	}
	bw.mu.Lock()
	defer bw.mu.Unlock()

	bw.cancelLocked()
	bw.paused = true
}

// RunFinished resumes the watcher after a restore. Events arriving within
// one debounce period are still dropped, so a restored tree is not pushed
// straight back.
func (bw *BookmarkWatcher) RunFinished(run *domain.SyncRun) {
	if run.Op != domain.OpRestore {
		return
	}
	bw.mu.Lock()
	defer bw.mu.Unlock()

	bw.cancelLocked()
	bw.paused = false
	bw.ignoreUntil = bw.now().Add(bw.debounce)
}

func (bw *BookmarkWatcher) cancelLocked() {
	if bw.timer != nil {
		bw.timer.Stop()
		bw.timer = nil
	}
	bw.gen++
}

func (bw *BookmarkWatcher) processEvents(ctx context.Context) {
	defer bw.wg.Done()

	for {
		select {
		case <-bw.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if bw.relevant(event) {
				bw.schedule(ctx)
			}
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.logger.Warn("bookmark watcher error", logger.Error(err))
		}
	}
}

func (bw *BookmarkWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != bw.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (bw *BookmarkWatcher) schedule(ctx context.Context) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.stopped || bw.paused || bw.now().Before(bw.ignoreUntil) {
		return
	}
	bw.cancelLocked()
	gen := bw.gen
	bw.timer = time.AfterFunc(bw.debounce, func() { bw.fire(ctx, gen) })
}

func (bw *BookmarkWatcher) fire(ctx context.Context, gen int) {
	bw.mu.Lock()
	if gen != bw.gen || bw.stopped {
		bw.mu.Unlock()
		return
	}
	bw.timer = nil
	bw.wg.Add(1)
	bw.mu.Unlock()
	defer bw.wg.Done()

	bw.logger.Info("bookmark file changed, starting backup")
	if res := bw.runner.Backup(ctx, orchestrator.TriggerWatch); !res.Success {
		bw.logger.Error("watch backup failed", logger.String("error", res.Error))
	}
}
