// Package orchestrator runs the Backup and Restore pipelines behind a
// serialization gate and turns their outcome into a uniform Result.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/lock"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
)

// Trigger tells who started a run.
type Trigger string

const (
	TriggerAPI      Trigger = "api"
	TriggerCLI      Trigger = "cli"
	TriggerSchedule Trigger = "schedule"
	TriggerWatch    Trigger = "watch"
)

// Interactive reports whether a user is waiting on the run, in which case
// the credential provider may prompt.
func (t Trigger) Interactive() bool {
	return t == TriggerAPI || t == TriggerCLI
}

// LocalStore is the local bookmark tree.
type LocalStore interface {
	GetForest(ctx context.Context) (domain.Forest, error)
	reconcile.Tree
}

// SnapshotStore is the remote snapshot object.
type SnapshotStore interface {
	Put(ctx context.Context, tok domain.Token, doc domain.SnapshotDocument) (domain.RemoteObjectRef, error)
	Get(ctx context.Context, tok domain.Token) ([]byte, error)
}

// History records finished runs.
type History interface {
	SaveRun(ctx context.Context, run *domain.SyncRun) error
}

// Observer is told when runs start and finish.
type Observer interface {
	RunStarted(run *domain.SyncRun)
	RunFinished(run *domain.SyncRun)
}

// Result is what the command surface reports for a run.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Run *domain.SyncRun `json:"-"`
	Err error           `json:"-"`
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Local    LocalStore
	Snapshot SnapshotStore
	Tokens   auth.Source
	Gate     lock.Locker
	History  History
	Logger   logger.Logger

	Observers []Observer
}

// Service exposes Backup and Restore.
type Service struct {
	local      LocalStore
	snapshot   SnapshotStore
	tokens     auth.Source
	gate       lock.Locker
	history    History
	observers  []Observer
	reconciler *reconcile.Reconciler
	logger     logger.Logger
	now        func() time.Time
}

// NewService wires a Service. A nil Gate falls back to an in-process mutex;
// a nil History disables run recording.
func NewService(d Deps) *Service {
	gate := d.Gate
	if gate == nil {
		gate = lock.NewMutex()
	}
	return &Service{
		local:      d.Local,
		snapshot:   d.Snapshot,
		tokens:     d.Tokens,
		gate:       gate,
		history:    d.History,
		observers:  d.Observers,
		reconciler: reconcile.New(d.Local, d.Logger),
		logger:     d.Logger,
		now:        time.Now,
	}
}

// Observe registers o for run notifications. It must be called before the
// first run.
func (s *Service) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// Backup pushes the local forest to the remote snapshot.
func (s *Service) Backup(ctx context.Context, trigger Trigger) Result {
	return s.run(ctx, domain.OpBackup, trigger, s.backup)
}

// Restore replaces the children of the local root containers with the
// remote snapshot. Nothing local is touched until the snapshot has been
// downloaded and decoded.
func (s *Service) Restore(ctx context.Context, trigger Trigger) Result {
	return s.run(ctx, domain.OpRestore, trigger, s.restore)
}

type pipeline func(ctx context.Context, tok domain.Token, run *domain.SyncRun) error

func (s *Service) run(ctx context.Context, op domain.Operation, trigger Trigger, p pipeline) Result {
	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		Op:        op,
		Trigger:   string(trigger),
		StartedAt: s.now(),
	}
	log := s.logger.With(
		logger.String("op", string(op)),
		logger.String("run_id", run.ID),
		logger.String("trigger", string(trigger)),
	)

	err := s.gated(ctx, trigger, run, p)

	run.FinishedAt = s.now()
	run.Success = err == nil
	if err != nil {
		run.Error = err.Error()
		log.Error("sync run failed", logger.Duration("duration", run.Duration()), logger.Error(err))
	} else {
		log.Info("sync run completed",
			logger.Duration("duration", run.Duration()),
			logger.String("remote_id", run.RemoteID),
			logger.Int("bookmarks", run.Bookmarks),
			logger.Int("folders", run.Folders),
		)
	}

	if s.history != nil {
		// Recorded even when the caller's context is gone.
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if herr := s.history.SaveRun(hctx, run); herr != nil {
			log.Warn("failed to record sync run", logger.Error(herr))
		}
		cancel()
	}

	return Result{Success: run.Success, Error: run.Error, Run: run, Err: err}
}

func (s *Service) gated(ctx context.Context, trigger Trigger, run *domain.SyncRun, p pipeline) error {
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, o := range s.observers {
		o.RunStarted(run)
	}
	defer func() {
		for _, o := range s.observers {
			o.RunFinished(run)
		}
	}()

	tok, err := s.tokens.Token(ctx, trigger.Interactive())
	if err != nil {
		return err
	}

	err = p(ctx, tok, run)
	if domain.IsUnauthorized(err) {
		s.invalidate(ctx)
		return &domain.AuthError{Message: "remote store rejected the credential", Err: err}
	}
	return err
}

func (s *Service) invalidate(ctx context.Context) {
	inv, ok := s.tokens.(auth.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to invalidate credential", logger.Error(err))
	}
}
