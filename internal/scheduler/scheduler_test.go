package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
)

type countingRunner struct {
	mu       sync.Mutex
	triggers []orchestrator.Trigger
	notify   chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{notify: make(chan struct{}, 100)}
}

func (c *countingRunner) Backup(_ context.Context, trigger orchestrator.Trigger) orchestrator.Result {
	c.mu.Lock()
	c.triggers = append(c.triggers, trigger)
	c.mu.Unlock()
	c.notify <- struct{}{}
	return orchestrator.Result{Success: true}
}

func (c *countingRunner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.triggers)
}

func (c *countingRunner) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.notify:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a backup")
	}
}

func TestBackupSchedulerManualTrigger(t *testing.T) {
	runner := newCountingRunner()
	trigger := make(chan struct{}, 1)
	s := NewBackupScheduler(runner, logger.New("error", false), 0, trigger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	trigger <- struct{}{}
	runner.wait(t, time.Second)

	if runner.count() != 1 {
		t.Errorf("backups = %d, want 1", runner.count())
	}
}

func TestBackupSchedulerInterval(t *testing.T) {
	runner := newCountingRunner()
	s := NewBackupScheduler(runner, logger.New("error", false), 10*time.Millisecond, make(chan struct{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	runner.wait(t, time.Second)
	runner.wait(t, time.Second)
	s.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, tr := range runner.triggers {
		if tr != orchestrator.TriggerSchedule {
			t.Errorf("trigger = %s, want schedule", tr)
		}
	}
}

func startWatcher(t *testing.T, runner BackupRunner, debounce time.Duration) (*BookmarkWatcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Bookmarks")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("failed to write bookmark file: %v", err)
	}

	w, err := NewBookmarkWatcher(runner, logger.New("error", false), path, debounce)
	if err != nil {
		t.Fatalf("NewBookmarkWatcher() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w, path
}

func TestBookmarkWatcherDebounces(t *testing.T) {
	runner := newCountingRunner()
	_, path := startWatcher(t, runner, 100*time.Millisecond)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o600); err != nil {
			t.Fatalf("write error: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	runner.wait(t, 2*time.Second)
	time.Sleep(200 * time.Millisecond)

	if n := runner.count(); n != 1 {
		t.Errorf("backups = %d, want 1", n)
	}
	if runner.triggers[0] != orchestrator.TriggerWatch {
		t.Errorf("trigger = %s, want watch", runner.triggers[0])
	}
}

func TestBookmarkWatcherIgnoresOtherFiles(t *testing.T) {
	runner := newCountingRunner()
	_, path := startWatcher(t, runner, 50*time.Millisecond)

	other := filepath.Join(filepath.Dir(path), "Preferences")
	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if n := runner.count(); n != 0 {
		t.Errorf("backups = %d, want 0", n)
	}
}

func TestBookmarkWatcherSkipsRestoreWrites(t *testing.T) {
	runner := newCountingRunner()
	w, path := startWatcher(t, runner, 100*time.Millisecond)
	run := &domain.SyncRun{Op: domain.OpRestore}

	w.RunStarted(run)
	if err := os.WriteFile(path, []byte("restored"), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	w.RunFinished(run)

	time.Sleep(250 * time.Millisecond)
	if n := runner.count(); n != 0 {
		t.Errorf("backups after restore = %d, want 0", n)
	}

	// Later user edits are picked up again.
	if err := os.WriteFile(path, []byte("edited"), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}
	runner.wait(t, 2*time.Second)
}

type blockingRunner struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Backup(context.Context, orchestrator.Trigger) orchestrator.Result {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return orchestrator.Result{Success: true}
}

func TestBookmarkWatcherStopWaitsForBackup(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	w, path := startWatcher(t, runner, 20*time.Millisecond)

	if err := os.WriteFile(path, []byte("edited"), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the backup to start")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop() returned while a backup was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after the backup finished")
	}
}
