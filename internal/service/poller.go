package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/locking"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 15 * time.Minute
	defaultPollLimit    = 50

	pollerLeaseName = "status-poller"
)

// StatusPoller periodically queries the provider for the verdict on documents
// still awaiting one. Poll failures are left to the next cycle; the poller
// never feeds the retry queue.
type StatusPoller struct {
	documents repository.DocumentRepository
	executor  OperationExecutor
	lease     locking.Lease
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewStatusPoller(
	documents repository.DocumentRepository,
	executor OperationExecutor,
	lease locking.Lease,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*StatusPoller, error) {
	if documents == nil {
		return nil, fmt.Errorf("document repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("operation executor is required")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if limit <= 0 {
		limit = defaultPollLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusPoller{
		documents: documents,
		executor:  executor,
		lease:     lease,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (p *StatusPoller) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.pollPending(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error("status poll failed", zap.Error(err))
			}
		}
	}
}

func (p *StatusPoller) pollPending(ctx context.Context) error {
	if p.lease != nil {
		acquired, err := p.lease.Acquire(ctx, pollerLeaseName, p.interval)
		if err != nil {
			return fmt.Errorf("failed to acquire poller lease: %w", err)
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := p.lease.Release(ctx, pollerLeaseName); err != nil {
				p.logger.Warn("failed to release poller lease", zap.Error(err))
			}
		}()
	}

	pending, err := p.documents.GetSubmitted(ctx, p.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch submitted documents: %w", err)
	}

	for i := range pending {
		doc := pending[i]
		if err := p.executor.Execute(ctx, domain.OperationCheckStatus, doc.ID); err != nil {
			// Another worker may have advanced the document in the meantime.
			if errors.Is(err, domain.ErrState) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			p.logger.Warn("status check failed",
				zap.String("documentId", doc.ID),
				zap.String("clave", doc.Clave),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
