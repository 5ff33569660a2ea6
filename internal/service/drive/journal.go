package drive

import (
	"context"
	"log/slog"

	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

// journalTask records an incomplete cascade so the sweeper replays it. A
// journal failure is logged only; the caller already reports the cascade as
// incomplete.
func journalTask(ctx context.Context, journal repositories.CascadeJournal, logger *slog.Logger, task *models.CascadeTask) {
	if err := journal.Record(ctx, task); err != nil {
		logger.Error("failed to journal cascade for retry",
			"kind", task.Kind,
			"node_id", task.NodeID,
			"recipient", task.Recipient,
			"error", err,
		)
		return
	}
	logger.Warn("cascade journaled for retry",
		"task_id", task.ID,
		"kind", task.Kind,
		"node_id", task.NodeID,
		"attempts", task.Attempts,
	)
}
