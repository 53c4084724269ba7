package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/locking"
	"github.com/facturacr/einvoice-engine/internal/observability"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/facturacr/einvoice-engine/internal/retry"
	"go.uber.org/zap"
)

const (
	defaultSchedulerInterval = 5 * time.Minute
	defaultSchedulerLimit    = 100

	schedulerLeaseName = "retry-scheduler"
)

// OperationExecutor re-runs a lifecycle operation for a claimed retry entry.
type OperationExecutor interface {
	Execute(ctx context.Context, op domain.Operation, documentID string) error
	MarkExhausted(ctx context.Context, entry *domain.RetryEntry) error
}

// RetryScheduler periodically claims due retry entries and re-invokes their
// operations. A distributed lease keeps replicas from scanning concurrently;
// the claimed-entry transition guards correctness if the lease ever fails
// open.
type RetryScheduler struct {
	entries  repository.RetryRepository
	executor OperationExecutor
	lease    locking.Lease
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	limit    int
	now      func() time.Time
}

func NewRetryScheduler(
	entries repository.RetryRepository,
	executor OperationExecutor,
	lease locking.Lease,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScheduler, error) {
	if entries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("operation executor is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScheduler{
		entries:  entries,
		executor: executor,
		lease:    lease,
		logger:   logger,
		interval: interval,
		limit:    limit,
		now:      time.Now,
	}, nil
}

func (s *RetryScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *RetryScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due entries do not wait for the first
	// ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scheduler scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScheduler) scanDue(ctx context.Context) error {
	if s.lease != nil {
		acquired, err := s.lease.Acquire(ctx, schedulerLeaseName, s.interval)
		if err != nil {
			return fmt.Errorf("failed to acquire scheduler lease: %w", err)
		}
		if !acquired {
			s.logger.Debug("retry scheduler lease held elsewhere, skipping scan")
			return nil
		}
		defer func() {
			if err := s.lease.Release(ctx, schedulerLeaseName); err != nil {
				s.logger.Warn("failed to release scheduler lease", zap.Error(err))
			}
		}()
	}

	claimed, err := s.entries.ClaimDue(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to claim due retry entries: %w", err)
	}

	for i := range claimed {
		entry := claimed[i]
		s.processEntry(ctx, &entry)
	}

	return nil
}

func (s *RetryScheduler) processEntry(ctx context.Context, entry *domain.RetryEntry) {
	err := s.executor.Execute(ctx, entry.Operation, entry.DocumentID)
	if err == nil {
		if markErr := s.entries.MarkState(ctx, entry.ID, domain.EntryCompleted); markErr != nil {
			s.logger.Error("failed to mark retry entry completed",
				zap.String("entryId", entry.ID),
				zap.Error(markErr),
			)
		}
		if s.metrics != nil {
			s.metrics.IncRetryCompleted(string(entry.Operation))
		}
		s.logger.Info("retry succeeded",
			zap.String("documentId", entry.DocumentID),
			zap.String("operation", string(entry.Operation)),
			zap.Int("attempt", entry.RetryCount+1),
		)
		return
	}

	// The document moved on since the entry was created; the re-attempt has
	// nothing left to do.
	if errors.Is(err, domain.ErrState) || errors.Is(err, domain.ErrNotFound) {
		if markErr := s.entries.MarkState(ctx, entry.ID, domain.EntryCancelled); markErr != nil {
			s.logger.Error("failed to cancel stale retry entry",
				zap.String("entryId", entry.ID),
				zap.Error(markErr),
			)
		}
		s.logger.Info("retry entry stale, cancelled",
			zap.String("documentId", entry.DocumentID),
			zap.String("operation", string(entry.Operation)),
		)
		return
	}

	entry.RetryCount++
	entry.ErrorCategory = retry.CategoryOf(err)
	entry.LastError = truncateError(err.Error())
	entry.UpdatedAt = s.now().UTC()

	if entry.Exhausted() {
		entry.State = domain.EntryFailed
		if updateErr := s.entries.Update(ctx, entry); updateErr != nil {
			s.logger.Error("failed to mark retry entry failed",
				zap.String("entryId", entry.ID),
				zap.Error(updateErr),
			)
			return
		}
		if exhaustErr := s.executor.MarkExhausted(ctx, entry); exhaustErr != nil {
			s.logger.Error("failed to mark document exhausted",
				zap.String("documentId", entry.DocumentID),
				zap.Error(exhaustErr),
			)
		}
		if s.metrics != nil {
			s.metrics.IncRetryExhausted(string(entry.Operation))
		}
		s.logger.Warn("retry budget exhausted",
			zap.String("documentId", entry.DocumentID),
			zap.String("operation", string(entry.Operation)),
			zap.Int("attempts", entry.RetryCount),
			zap.String("category", string(entry.ErrorCategory)),
		)
		return
	}

	entry.State = domain.EntryPending
	entry.NextAttemptAt = s.now().UTC().Add(retry.Delay(entry.RetryCount, entry.ErrorCategory))
	if updateErr := s.entries.Update(ctx, entry); updateErr != nil {
		s.logger.Error("failed to reschedule retry entry",
			zap.String("entryId", entry.ID),
			zap.Error(updateErr),
		)
		return
	}

	s.logger.Info("retry rescheduled",
		zap.String("documentId", entry.DocumentID),
		zap.String("operation", string(entry.Operation)),
		zap.Int("attempt", entry.RetryCount),
		zap.String("category", string(entry.ErrorCategory)),
		zap.Time("nextAttemptAt", entry.NextAttemptAt),
	)
}
