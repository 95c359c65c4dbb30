package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/pkg/logger"
)

// AuditCleanupWorker prunes old activity records and relayed outbox rows.
type AuditCleanupWorker struct {
	audit           repository.AuditRepository
	outbox          repository.OutboxRepository
	retentionDays   int
	outboxRetention time.Duration
	cleanupInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewAuditCleanupWorker(
	audit repository.AuditRepository,
	outbox repository.OutboxRepository,
	retentionDays int,
	outboxRetention time.Duration,
	cleanupInterval time.Duration,
	log *logger.Logger,
) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		audit:           audit,
		outbox:          outbox,
		retentionDays:   retentionDays,
		outboxRetention: outboxRetention,
		cleanupInterval: cleanupInterval,
		logger:          log.With("retention"),
		now:             time.Now,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Retention sweep failed")
			}
		}
	}
}

// Cleanup runs one sweep.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) error {
	if w.retentionDays > 0 {
		cutoff := w.now().AddDate(0, 0, -w.retentionDays)
		rows, err := w.audit.Cleanup(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		w.logger.Info("Cleaned up audit logs", "rows", rows, "before", cutoff)
	}

	if w.outbox != nil && w.outboxRetention > 0 {
		cutoff := w.now().Add(-w.outboxRetention)
		rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup outbox events: %w", err)
		}
		w.logger.Info("Cleaned up relayed outbox events", "rows", rows, "before", cutoff)
	}
	return nil
}
