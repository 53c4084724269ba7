package service

import (
	"context"
	"fmt"
	"time"

	"github.com/facturacr/einvoice-engine/internal/locking"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 24 * time.Hour
	defaultRetentionPeriod = 30 * 24 * time.Hour
	cleanupLeaseName       = "retry-cleanup"
)

// QueueJanitor removes terminal retry entries past the retention window.
type QueueJanitor struct {
	entries   repository.RetryRepository
	lease     locking.Lease
	logger    *zap.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewQueueJanitor(
	entries repository.RetryRepository,
	lease locking.Lease,
	interval time.Duration,
	retention time.Duration,
	logger *zap.Logger,
) (*QueueJanitor, error) {
	if entries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if retention <= 0 {
		retention = defaultRetentionPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueJanitor{
		entries:   entries,
		lease:     lease,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *QueueJanitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.purge(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				j.logger.Error("retry queue cleanup failed", zap.Error(err))
			}
		}
	}
}

func (j *QueueJanitor) purge(ctx context.Context) error {
	if j.lease != nil {
		acquired, err := j.lease.Acquire(ctx, cleanupLeaseName, j.interval)
		if err != nil {
			return fmt.Errorf("failed to acquire cleanup lease: %w", err)
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := j.lease.Release(ctx, cleanupLeaseName); err != nil {
				j.logger.Warn("failed to release cleanup lease", zap.Error(err))
			}
		}()
	}

	cutoff := j.now().UTC().Add(-j.retention)
	purged, err := j.entries.PurgeTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge terminal retry entries: %w", err)
	}

	if purged > 0 {
		j.logger.Info("purged terminal retry entries",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}

	return nil
}
