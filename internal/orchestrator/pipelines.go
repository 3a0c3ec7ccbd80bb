package orchestrator

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/codec"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

func (s *Service) backup(ctx context.Context, tok domain.Token, run *domain.SyncRun) error {
	forest, err := s.local.GetForest(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local bookmarks: %w", err)
	}
	run.Bookmarks, run.Folders = forest.Count()

	ref, err := s.snapshot.Put(ctx, tok, codec.Encode(forest))
	if err != nil {
		return err
	}
	run.RemoteID = ref.ID
	return nil
}

func (s *Service) restore(ctx context.Context, tok domain.Token, run *domain.SyncRun) error {
	data, err := s.snapshot.Get(ctx, tok)
	if err != nil {
		return err
	}
	doc, err := codec.Decode(data)
	if err != nil {
		return err
	}
	run.Bookmarks, run.Folders = domain.Forest(doc.Roots).Count()

	live, err := s.local.GetForest(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local bookmarks: %w", err)
	}
	if len(live) != len(doc.Roots) {
		s.logger.Warn("root container count differs, unmatched roots are left untouched",
			logger.Int("snapshot_roots", len(doc.Roots)),
			logger.Int("local_roots", len(live)),
		)
	}

	report, err := s.reconciler.Restore(ctx, doc, live)
	if report != nil {
		s.logger.Debug("restore applied",
			logger.Int("roots", report.Roots),
			logger.Int("removed", report.Removed),
			logger.Int("created", report.Created),
			logger.Int("skipped", report.Skipped),
		)
	}
	return err
}
