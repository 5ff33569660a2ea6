package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"sealdrive/internal/config"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

// Compactor is implemented by blob backends that reclaim space in the
// background (the badger store)
type Compactor interface {
	RunGC() error
}

// Sweeper purges expired trash and replays journaled cascades on a ticker
type Sweeper struct {
	trash     services.TrashService
	revoker   services.RevocationService
	journal   repositories.CascadeJournal
	compactor Compactor
	policy    config.Policy
	now       func() time.Time
	logger    *slog.Logger
}

// SweeperDeps groups the collaborators of the sweeper
type SweeperDeps struct {
	Trash     services.TrashService
	Revoker   services.RevocationService
	Journal   repositories.CascadeJournal
	Compactor Compactor // Optional
	Policy    config.Policy
	Now       func() time.Time
	Logger    *slog.Logger
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Purged   int
	Replayed int
	Pending  int
}

func NewSweeper(deps SweeperDeps) *Sweeper {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Policy.SweepBatchSize <= 0 {
		deps.Policy.SweepBatchSize = config.DefaultSweepBatchSize
	}
	return &Sweeper{
		trash:     deps.Trash,
		revoker:   deps.Revoker,
		journal:   deps.Journal,
		compactor: deps.Compactor,
		policy:    deps.Policy,
		now:       now,
		logger:    deps.Logger,
	}
}

// Run sweeps once immediately and then every SweepInterval until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.policy.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("sweeper started",
		"interval", interval,
		"retention", s.policy.TrashRetention,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	result, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error("sweep finished with errors",
			"purged", result.Purged,
			"replayed", result.Replayed,
			"pending", result.Pending,
			"error", err,
		)
		return
	}
	if result.Purged > 0 || result.Replayed > 0 {
		s.logger.Info("sweep finished",
			"purged", result.Purged,
			"replayed", result.Replayed,
		)
	}
}

// SweepOnce purges trash older than the retention window, then replays
// pending cascade tasks. Errors are aggregated; one failing item never stops
// the rest of the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	var errs error

	if s.policy.TrashRetention > 0 {
		cutoff := s.now().Add(-s.policy.TrashRetention)
		purged, err := s.trash.PurgeExpired(ctx, cutoff, s.policy.SweepBatchSize)
		result.Purged = purged
		errs = multierr.Append(errs, err)
	}

	tasks, err := s.journal.ListPending(ctx, s.policy.SweepBatchSize)
	if err != nil {
		return result, multierr.Append(errs, fmt.Errorf("list pending cascades: %w", err))
	}

	for i := range tasks {
		task := &tasks[i]
		if err := s.replay(ctx, task); err != nil {
			// The failed replay journaled itself again with a bumped attempt count
			result.Pending++
			errs = multierr.Append(errs, fmt.Errorf("replay %s %s: %w", task.Kind, task.NodeID, err))
			continue
		}
		if err := s.journal.Complete(ctx, task.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("complete task %s: %w", task.ID, err))
			continue
		}
		result.Replayed++
	}

	if s.compactor != nil {
		if err := s.compactor.RunGC(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("blob gc: %w", err))
		}
	}

	return result, errs
}

func (s *Sweeper) replay(ctx context.Context, task *models.CascadeTask) error {
	var err error
	switch task.Kind {
	case models.CascadeRevokeFolder:
		_, err = s.revoker.ReplayFolderCascade(ctx, task.OwnerID, task.NodeID, task.Recipient)
	case models.CascadePurgeFolder:
		_, err = s.trash.Purge(ctx, task.OwnerID, models.NodeKindFolder, task.NodeID)
	case models.CascadePurgeFile:
		_, err = s.trash.Purge(ctx, task.OwnerID, models.NodeKindFile, task.NodeID)
	default:
		s.logger.Warn("dropping cascade task of unknown kind",
			"task_id", task.ID,
			"kind", task.Kind,
		)
	}

	// A purge target restored since the failure is live again; nothing to finish
	if errors.Is(err, domain.ErrConflict) && task.Kind != models.CascadeRevokeFolder {
		s.logger.Info("dropping purge task for restored node",
			"task_id", task.ID,
			"node_id", task.NodeID,
		)
		return nil
	}
	return err
}
