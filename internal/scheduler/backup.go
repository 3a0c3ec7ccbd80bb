package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
)

// BackupRunner is the gated backup pipeline.
type BackupRunner interface {
	Backup(ctx context.Context, trigger orchestrator.Trigger) orchestrator.Result
}

// BackupScheduler runs a backup every interval and whenever the manual
// trigger fires.
type BackupScheduler struct {
	runner        BackupRunner
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewBackupScheduler creates a scheduler. An interval <= 0 disables the
// ticker; the manual trigger keeps working.
func NewBackupScheduler(
	runner BackupRunner,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *BackupScheduler {
	return &BackupScheduler{
		runner:        runner,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start begins the periodic backup loop.
func (bs *BackupScheduler) Start(ctx context.Context) {
	var tick <-chan time.Time
	if bs.interval > 0 {
		ticker := time.NewTicker(bs.interval)
		tick = ticker.C
		bs.logger.Info("periodic backup enabled", logger.Duration("interval", bs.interval))
		go func() {
			<-bs.stopCh
			ticker.Stop()
		}()
	}

	go func() {
		for {
			select {
			case <-tick:
				bs.run(ctx, orchestrator.TriggerSchedule)
			case <-bs.manualTrigger:
				bs.logger.Info("manual backup triggered")
				bs.run(ctx, orchestrator.TriggerSchedule)
			case <-bs.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the scheduler.
func (bs *BackupScheduler) Stop() {
	close(bs.stopCh)
}

func (bs *BackupScheduler) run(ctx context.Context, trigger orchestrator.Trigger) {
	if res := bs.runner.Backup(ctx, trigger); !res.Success {
		bs.logger.Error("scheduled backup failed", logger.String("error", res.Error))
	}
}
